// Package lark implements the Lark/Feishu channel: event-subscription
// webhook inbound, Open API outbound, DM pairing and allowlist admission.
// Everything here works the same for Feishu, which shares the platform.
package lark

import (
	"sort"
	"strings"

	"github.com/nextlevelbuilder/clawbridge/internal/channels"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
)

const defaultWebhookPath = "/webhooks/lark"

// account is the fully resolved configuration of one Lark account.
type account struct {
	id      string
	name    string
	enabled bool

	appID             string
	appSecret         string
	verificationToken string
	webhookPath       string

	dmPolicy  string
	allowFrom []string

	groupPolicy    string
	groupAllowFrom []string

	textChunkLimit int
	chunkMode      string
	blockStreaming bool
}

// configured requires the verification token too: without it the webhook
// refuses every delivery, so the account cannot operate.
func (a account) configured() bool {
	return a.appID != "" && a.appSecret != "" && a.verificationToken != ""
}

func listAccountIDs(cfg *config.Config) []string {
	ch := cfg.Channels.Lark
	if ch == nil {
		return nil
	}
	ids := []string{channels.DefaultAccountID}
	seen := map[string]bool{channels.DefaultAccountID: true}
	extra := make([]string, 0, len(ch.Accounts))
	for raw := range ch.Accounts {
		id := channels.NormalizeAccountID(raw)
		if seen[id] {
			continue
		}
		seen[id] = true
		extra = append(extra, id)
	}
	sort.Strings(extra)
	return append(ids, extra...)
}

// resolveAccount merges the base channel block with the account override.
func resolveAccount(cfg *config.Config, accountID string) account {
	acct := account{
		id:          channels.NormalizeAccountID(accountID),
		name:        "Lark",
		enabled:     true,
		webhookPath: defaultWebhookPath,
		dmPolicy:    channels.DMPolicyPairing,
		groupPolicy: channels.GroupPolicyAllowlist,
		chunkMode:   "length",
	}

	base := cfg.Channels.Lark
	if base == nil {
		acct.enabled = false
		return acct
	}

	var override *config.LarkConfig
	if acct.id != channels.DefaultAccountID {
		for raw, o := range base.Accounts {
			if channels.NormalizeAccountID(raw) == acct.id {
				override = o
				break
			}
		}
	}

	if base.Enabled != nil && !*base.Enabled {
		acct.enabled = false
	}
	if override != nil && override.Enabled != nil && !*override.Enabled {
		acct.enabled = false
	}

	acct.name = firstNonEmpty(overrideStr(override, func(c *config.LarkConfig) string { return c.Name }), base.Name, acct.name)
	if acct.id != channels.DefaultAccountID && acct.name == "Lark" {
		acct.name = "Lark (" + acct.id + ")"
	}

	acct.appID = strings.TrimSpace(firstNonEmpty(
		overrideStr(override, func(c *config.LarkConfig) string { return c.AppID }),
		base.AppID))
	acct.appSecret = strings.TrimSpace(firstNonEmpty(
		overrideStr(override, func(c *config.LarkConfig) string { return c.AppSecret }),
		base.AppSecret))
	acct.verificationToken = strings.TrimSpace(firstNonEmpty(
		overrideStr(override, func(c *config.LarkConfig) string { return c.VerificationToken }),
		base.VerificationToken))

	rawPath := firstNonEmpty(
		overrideStr(override, func(c *config.LarkConfig) string { return c.WebhookPath }),
		base.WebhookPath)
	acct.webhookPath = channels.NormalizeWebhookPath(rawPath, defaultWebhookPath)
	if override != nil && override.WebhookPath == "" && base.WebhookPath == "" && acct.id != channels.DefaultAccountID {
		acct.webhookPath = defaultWebhookPath + "/" + acct.id
	}

	acct.dmPolicy = firstNonEmpty(
		overrideStr(override, func(c *config.LarkConfig) string { return c.DMPolicy }),
		base.DMPolicy,
		channels.DMPolicyPairing)

	// A set override replaces the base list entirely, so an account can
	// narrow it. Absent means inherit.
	acct.allowFrom = base.AllowFrom
	if override != nil && override.AllowFrom != nil {
		acct.allowFrom = override.AllowFrom
	}

	acct.groupPolicy = firstNonEmpty(
		overrideStr(override, func(c *config.LarkConfig) string { return c.GroupPolicy }),
		base.GroupPolicy,
		cfg.Channels.Defaults.GroupPolicy,
		channels.GroupPolicyAllowlist)
	acct.groupAllowFrom = base.GroupAllowFrom
	if override != nil && override.GroupAllowFrom != nil {
		acct.groupAllowFrom = override.GroupAllowFrom
	}

	acct.textChunkLimit = intOr(overridePtr(override, func(c *config.LarkConfig) *int { return c.TextChunkLimit }), base.TextChunkLimit, 0)
	acct.chunkMode = firstNonEmpty(
		overrideStr(override, func(c *config.LarkConfig) string { return c.ChunkMode }),
		base.ChunkMode,
		"length")

	acct.blockStreaming = true
	if base.BlockStreaming != nil {
		acct.blockStreaming = *base.BlockStreaming
	}
	if override != nil && override.BlockStreaming != nil {
		acct.blockStreaming = *override.BlockStreaming
	}

	return acct
}

func describeAccount(cfg *config.Config, accountID string) channels.AccountInfo {
	acct := resolveAccount(cfg, accountID)
	return channels.AccountInfo{
		AccountID:   acct.id,
		Name:        acct.name,
		Enabled:     acct.enabled,
		Configured:  acct.configured(),
		WebhookPath: acct.webhookPath,
	}
}

func overrideStr(o *config.LarkConfig, pick func(*config.LarkConfig) string) string {
	if o == nil {
		return ""
	}
	return pick(o)
}

func overridePtr(o *config.LarkConfig, pick func(*config.LarkConfig) *int) *int {
	if o == nil {
		return nil
	}
	return pick(o)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func intOr(override, base *int, fallback int) int {
	if override != nil {
		return *override
	}
	if base != nil {
		return *base
	}
	return fallback
}
