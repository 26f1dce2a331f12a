package dingtalk

import (
	"regexp"
	"strings"
)

// vendorPrefix matches the channel prefixes users put in front of targets
// and allowlist entries, e.g. "dingtalk:cidXXXX" or "dd:cidXXXX".
var vendorPrefix = regexp.MustCompile(`(?i)^(dingtalk|dingding|dd):\s*`)

var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-+=/]{6,}$`)

// stripVendorPrefix removes one leading channel prefix, if present.
func stripVendorPrefix(raw string) string {
	return vendorPrefix.ReplaceAllString(strings.TrimSpace(raw), "")
}

// normalizeTarget canonicalizes an outbound target to
// "conversation:<id>". Already canonical input passes through unchanged.
func normalizeTarget(raw string) (string, bool) {
	s := stripVendorPrefix(raw)
	if s == "" {
		return "", false
	}
	if rest, ok := cutPrefixFold(s, "conversation:"); ok {
		s = strings.TrimSpace(rest)
	}
	if !looksLikeID(s) {
		return "", false
	}
	return "conversation:" + s, true
}

// looksLikeID reports whether s is plausibly a DingTalk conversation id.
func looksLikeID(raw string) bool {
	s := stripVendorPrefix(raw)
	if rest, ok := cutPrefixFold(s, "conversation:"); ok {
		s = strings.TrimSpace(rest)
	}
	return conversationIDPattern.MatchString(s)
}

// normalizeEntry canonicalizes one allowlist entry: prefix stripped,
// trimmed, lowercased. "*" passes through.
func normalizeEntry(raw string) string {
	s := stripVendorPrefix(raw)
	if s == "*" {
		return s
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
