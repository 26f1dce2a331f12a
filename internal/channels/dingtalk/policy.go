package dingtalk

import (
	"strings"

	"github.com/nextlevelbuilder/clawbridge/internal/channels"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
)

// effectiveGroupAllowFrom builds the allowlist group admission runs
// against: groupAllowFrom, falling back to allowFrom when unset, plus
// every pairing-approved sender.
func effectiveGroupAllowFrom(acct account, dynamicAllow []string) []string {
	base := acct.groupAllowFrom
	if len(base) == 0 {
		base = acct.allowFrom
	}
	return channels.MergeAllowlist(base, dynamicAllow)
}

// groupAdmission decides whether a group message passes the policy.
// reason is set when allowed is false.
func groupAdmission(policy string, allowFrom []string, senderID, senderName string) (allowed bool, reason string) {
	switch policy {
	case channels.GroupPolicyDisabled:
		return false, "group_disabled"
	case channels.GroupPolicyOpen:
		return true, ""
	default: // allowlist
		if allowlistMatches(allowFrom, senderID, senderName) {
			return true, ""
		}
		return false, "group_not_allowed"
	}
}

// allowlistMatches reports whether a sender matches any entry. "*" allows
// everyone; ids match exactly after prefix stripping; display names match
// case-insensitively.
func allowlistMatches(entries []string, senderID, senderName string) bool {
	for _, raw := range entries {
		entry := normalizeEntry(raw)
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		if senderID != "" && strings.EqualFold(entry, senderID) {
			return true
		}
		if senderName != "" && strings.EqualFold(entry, senderName) {
			return true
		}
	}
	return false
}

// resolveDMPolicy always reports disabled: DingTalk custom robots cannot
// receive direct messages.
func resolveDMPolicy(cfg *config.Config, accountID string) channels.DMPolicyView {
	return channels.DMPolicyView{Policy: channels.DMPolicyDisabled}
}

func resolveAllowFrom(cfg *config.Config, accountID string) []string {
	acct := resolveAccount(cfg, accountID)
	return channels.MergeAllowlist(acct.allowFrom, acct.groupAllowFrom)
}
