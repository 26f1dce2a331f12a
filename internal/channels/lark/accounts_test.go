package lark

import (
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/clawbridge/internal/config"
)

func TestConfiguredRequiresAllCredentials(t *testing.T) {
	tests := []struct {
		name string
		acct account
		want bool
	}{
		{"all set", account{appID: "a", appSecret: "s", verificationToken: "v"}, true},
		{"missing verification token", account{appID: "a", appSecret: "s"}, false},
		{"missing secret", account{appID: "a", verificationToken: "v"}, false},
		{"missing app id", account{appSecret: "s", verificationToken: "v"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.acct.configured(); got != tt.want {
				t.Errorf("configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveAccountDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Channels.Lark = &config.LarkConfig{
		AppID:             " app1 ",
		AppSecret:         "s",
		VerificationToken: "v",
	}

	acct := resolveAccount(cfg, "default")
	if !acct.enabled {
		t.Error("expected enabled")
	}
	if acct.appID != "app1" {
		t.Errorf("appID = %q, want trimmed", acct.appID)
	}
	if !acct.configured() {
		t.Error("expected configured")
	}
	if acct.webhookPath != "/webhooks/lark" {
		t.Errorf("webhookPath = %q", acct.webhookPath)
	}
	if acct.dmPolicy != "pairing" {
		t.Errorf("dmPolicy = %q, want pairing default", acct.dmPolicy)
	}
}

func TestResolveAccountAllowlistOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Channels.Lark = &config.LarkConfig{
		AppID:             "app1",
		AppSecret:         "s",
		VerificationToken: "v",
		AllowFrom:         []string{"ou_base1", "ou_base2"},
		GroupAllowFrom:    []string{"ou_grp"},
		Accounts: map[string]*config.LarkConfig{
			"work": {
				AllowFrom: []string{"ou_base1"},
			},
		},
	}

	acct := resolveAccount(cfg, "work")
	// A set override replaces the base list so accounts can narrow it.
	if want := []string{"ou_base1"}; !reflect.DeepEqual(acct.allowFrom, want) {
		t.Errorf("allowFrom = %v, want override %v", acct.allowFrom, want)
	}
	// An absent override inherits the base list.
	if want := []string{"ou_grp"}; !reflect.DeepEqual(acct.groupAllowFrom, want) {
		t.Errorf("groupAllowFrom = %v, want inherited %v", acct.groupAllowFrom, want)
	}
	if acct.webhookPath != "/webhooks/lark/work" {
		t.Errorf("webhookPath = %q, want per-account default", acct.webhookPath)
	}
}
