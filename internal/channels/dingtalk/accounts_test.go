package dingtalk

import (
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/clawbridge/internal/config"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func TestListAccountIDs(t *testing.T) {
	cfg := config.Default()
	if ids := listAccountIDs(cfg); ids != nil {
		t.Errorf("no channel block should yield no accounts, got %v", ids)
	}

	cfg.Channels.DingTalk = &config.DingTalkConfig{
		AccessToken: "tok",
		Accounts: map[string]*config.DingTalkConfig{
			"Ops":     {},
			"work":    {},
			"default": {},
		},
	}
	got := listAccountIDs(cfg)
	want := []string{"default", "ops", "work"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("listAccountIDs() = %v, want %v", got, want)
	}
}

func TestResolveAccountDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Channels.DingTalk = &config.DingTalkConfig{AccessToken: " tok "}

	acct := resolveAccount(cfg, "default")
	if !acct.enabled {
		t.Error("expected enabled")
	}
	if acct.accessToken != "tok" {
		t.Errorf("accessToken = %q, want trimmed", acct.accessToken)
	}
	if !acct.configured() {
		t.Error("expected configured")
	}
	if acct.webhookPath != "/webhooks/dingtalk" {
		t.Errorf("webhookPath = %q", acct.webhookPath)
	}
	if acct.groupPolicy != "allowlist" {
		t.Errorf("groupPolicy = %q, want allowlist default", acct.groupPolicy)
	}
	if !acct.blockStreaming {
		t.Error("blockStreaming should default on")
	}
}

func TestResolveAccountOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Channels.DingTalk = &config.DingTalkConfig{
		AccessToken:    "base-tok",
		GroupPolicy:    "open",
		AllowFrom:      []string{"x", "y"},
		GroupAllowFrom: []string{"a"},
		TextChunkLimit: intPtr(1000),
		Accounts: map[string]*config.DingTalkConfig{
			"ops": {
				AccessToken:    "ops-tok",
				GroupAllowFrom: []string{"b"},
				BlockStreaming: boolPtr(false),
			},
		},
	}

	acct := resolveAccount(cfg, "ops")
	if acct.accessToken != "ops-tok" {
		t.Errorf("accessToken = %q, want override", acct.accessToken)
	}
	if acct.groupPolicy != "open" {
		t.Errorf("groupPolicy = %q, want inherited base", acct.groupPolicy)
	}
	// A set override replaces the base list so accounts can narrow it.
	if want := []string{"b"}; !reflect.DeepEqual(acct.groupAllowFrom, want) {
		t.Errorf("groupAllowFrom = %v, want override %v", acct.groupAllowFrom, want)
	}
	// An absent override inherits the base list.
	if want := []string{"x", "y"}; !reflect.DeepEqual(acct.allowFrom, want) {
		t.Errorf("allowFrom = %v, want inherited %v", acct.allowFrom, want)
	}
	if acct.textChunkLimit != 1000 {
		t.Errorf("textChunkLimit = %d, want inherited 1000", acct.textChunkLimit)
	}
	if acct.blockStreaming {
		t.Error("override should disable block streaming")
	}
	if acct.webhookPath != "/webhooks/dingtalk/ops" {
		t.Errorf("webhookPath = %q, want per-account default", acct.webhookPath)
	}
}

func TestResolveAccountEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Channels.DingTalk = &config.DingTalkConfig{
		AccessToken: "tok",
		Accounts: map[string]*config.DingTalkConfig{
			"off": {Enabled: boolPtr(false)},
		},
	}
	if acct := resolveAccount(cfg, "default"); !acct.enabled {
		t.Error("default should be enabled")
	}
	if acct := resolveAccount(cfg, "off"); acct.enabled {
		t.Error("explicit false should disable the account")
	}

	cfg.Channels.DingTalk.Enabled = boolPtr(false)
	if acct := resolveAccount(cfg, "default"); acct.enabled {
		t.Error("base explicit false should disable everything")
	}
}

func TestResolveAccountChannelDefaultGroupPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Channels.Defaults.GroupPolicy = "open"
	cfg.Channels.DingTalk = &config.DingTalkConfig{AccessToken: "tok"}

	if acct := resolveAccount(cfg, "default"); acct.groupPolicy != "open" {
		t.Errorf("groupPolicy = %q, want cross-channel default", acct.groupPolicy)
	}
}
