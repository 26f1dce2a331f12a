// Package dingtalk implements the DingTalk custom-robot channel: outgoing
// webhook inbound, robot webhook outbound, group allowlist admission.
// DingTalk robots only live in group chats, so direct messages are not
// supported on this channel.
package dingtalk

import (
	"sort"
	"strings"

	"github.com/nextlevelbuilder/clawbridge/internal/channels"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
)

const defaultWebhookPath = "/webhooks/dingtalk"

// account is the fully resolved configuration of one DingTalk account:
// the base channel block with the per-account override merged in.
type account struct {
	id      string
	name    string
	enabled bool

	accessToken       string
	verificationToken string
	webhookPath       string

	allowFrom      []string
	groupPolicy    string
	groupAllowFrom []string

	textChunkLimit int
	chunkMode      string
	blockStreaming bool
}

func (a account) configured() bool {
	return a.accessToken != ""
}

// listAccountIDs returns the default account plus every override key,
// sorted, default first.
func listAccountIDs(cfg *config.Config) []string {
	ch := cfg.Channels.DingTalk
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
// The override only applies for non-default account ids.
func resolveAccount(cfg *config.Config, accountID string) account {
	acct := account{
		id:          channels.NormalizeAccountID(accountID),
		name:        "DingTalk",
		enabled:     true,
		webhookPath: defaultWebhookPath,
		groupPolicy: channels.GroupPolicyAllowlist,
		chunkMode:   "length",
	}

	base := cfg.Channels.DingTalk
	if base == nil {
		acct.enabled = false
		return acct
	}

	var override *config.DingTalkConfig
	if acct.id != channels.DefaultAccountID {
		for raw, o := range base.Accounts {
			if channels.NormalizeAccountID(raw) == acct.id {
				override = o
				break
			}
		}
	}

	// Enabled only when neither layer disables explicitly.
	if base.Enabled != nil && !*base.Enabled {
		acct.enabled = false
	}
	if override != nil && override.Enabled != nil && !*override.Enabled {
		acct.enabled = false
	}

	acct.name = firstNonEmpty(overrideStr(override, func(c *config.DingTalkConfig) string { return c.Name }), base.Name, acct.name)
	if acct.id != channels.DefaultAccountID && acct.name == "DingTalk" {
		acct.name = "DingTalk (" + acct.id + ")"
	}

	acct.accessToken = strings.TrimSpace(firstNonEmpty(
		overrideStr(override, func(c *config.DingTalkConfig) string { return c.AccessToken }),
		base.AccessToken))
	acct.verificationToken = strings.TrimSpace(firstNonEmpty(
		overrideStr(override, func(c *config.DingTalkConfig) string { return c.VerificationToken }),
		base.VerificationToken))

	rawPath := firstNonEmpty(
		overrideStr(override, func(c *config.DingTalkConfig) string { return c.WebhookPath }),
		base.WebhookPath)
	acct.webhookPath = channels.NormalizeWebhookPath(rawPath, defaultWebhookPath)
	if override != nil && override.WebhookPath == "" && base.WebhookPath == "" && acct.id != channels.DefaultAccountID {
		// Each extra account needs its own path.
		acct.webhookPath = defaultWebhookPath + "/" + acct.id
	}

	acct.groupPolicy = firstNonEmpty(
		overrideStr(override, func(c *config.DingTalkConfig) string { return c.GroupPolicy }),
		base.GroupPolicy,
		cfg.Channels.Defaults.GroupPolicy,
		channels.GroupPolicyAllowlist)

	// A set override replaces the base list entirely, so an account can
	// narrow it. Absent means inherit.
	acct.allowFrom = base.AllowFrom
	if override != nil && override.AllowFrom != nil {
		acct.allowFrom = override.AllowFrom
	}
	acct.groupAllowFrom = base.GroupAllowFrom
	if override != nil && override.GroupAllowFrom != nil {
		acct.groupAllowFrom = override.GroupAllowFrom
	}

	acct.textChunkLimit = intOr(overridePtr(override, func(c *config.DingTalkConfig) *int { return c.TextChunkLimit }), base.TextChunkLimit, 0)
	acct.chunkMode = firstNonEmpty(
		overrideStr(override, func(c *config.DingTalkConfig) string { return c.ChunkMode }),
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

func overrideStr(o *config.DingTalkConfig, pick func(*config.DingTalkConfig) string) string {
	if o == nil {
		return ""
	}
	return pick(o)
}

func overridePtr(o *config.DingTalkConfig, pick func(*config.DingTalkConfig) *int) *int {
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
