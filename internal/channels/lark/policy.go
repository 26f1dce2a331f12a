package lark

import (
	"strings"

	"github.com/nextlevelbuilder/clawbridge/internal/channels"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
)

// effectiveAllowlists builds the lists admission runs against. DM
// admission uses allowFrom; group admission uses groupAllowFrom, falling
// back to allowFrom when unset. Both get every pairing-approved sender
// appended.
func effectiveAllowlists(acct account, dynamicAllow []string) (dm, group []string) {
	baseGroup := acct.groupAllowFrom
	if len(baseGroup) == 0 {
		baseGroup = acct.allowFrom
	}
	dm = channels.MergeAllowlist(acct.allowFrom, dynamicAllow)
	group = channels.MergeAllowlist(baseGroup, dynamicAllow)
	return dm, group
}

// groupAdmission decides whether a group message passes the policy.
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

// dmDecision is the outcome of DM admission for one sender.
type dmDecision struct {
	allowed bool
	reason  string
	// startPairing means the sender should be offered a pairing code.
	// The message itself is still dropped.
	startPairing bool
}

// dmAdmission decides whether a direct message passes the policy.
// allowFrom must already include pairing-approved senders.
func dmAdmission(policy string, allowFrom []string, senderID, senderName string) dmDecision {
	switch policy {
	case channels.DMPolicyDisabled:
		return dmDecision{reason: "dm_disabled"}
	case channels.DMPolicyOpen:
		return dmDecision{allowed: true}
	}

	if allowlistMatches(allowFrom, senderID, senderName) {
		return dmDecision{allowed: true}
	}
	if policy == channels.DMPolicyPairing {
		return dmDecision{reason: "dm_pairing_pending", startPairing: true}
	}
	return dmDecision{reason: "dm_not_allowed"}
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

func resolveDMPolicy(cfg *config.Config, accountID string) channels.DMPolicyView {
	acct := resolveAccount(cfg, accountID)
	return channels.DMPolicyView{Policy: acct.dmPolicy, AllowFrom: acct.allowFrom}
}

func resolveAllowFrom(cfg *config.Config, accountID string) []string {
	acct := resolveAccount(cfg, accountID)
	return channels.MergeAllowlist(acct.allowFrom, acct.groupAllowFrom)
}
