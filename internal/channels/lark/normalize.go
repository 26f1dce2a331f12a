package lark

import (
	"regexp"
	"strings"
)

// vendorPrefix matches the channel prefixes users put in front of targets
// and allowlist entries, e.g. "lark:ou_abc" or "feishu:oc_xyz".
var vendorPrefix = regexp.MustCompile(`(?i)^(lark|feishu):\s*`)

var idPattern = regexp.MustCompile(`^(ou|oc|on)_[A-Za-z0-9]+$`)

func stripVendorPrefix(raw string) string {
	return vendorPrefix.ReplaceAllString(strings.TrimSpace(raw), "")
}

// normalizeTarget canonicalizes an outbound target to "user:<open_id>" or
// "chat:<chat_id>". Bare ids are classified by their platform prefix:
// ou_/on_ are users, oc_ is a chat. Already canonical input passes through.
func normalizeTarget(raw string) (string, bool) {
	s := stripVendorPrefix(raw)
	if s == "" {
		return "", false
	}

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "user:"):
		id := strings.TrimSpace(s[len("user:"):])
		if id == "" {
			return "", false
		}
		return "user:" + id, true
	case strings.HasPrefix(lower, "open_id:"):
		id := strings.TrimSpace(s[len("open_id:"):])
		if id == "" {
			return "", false
		}
		return "user:" + id, true
	case strings.HasPrefix(lower, "chat:"):
		id := strings.TrimSpace(s[len("chat:"):])
		if id == "" {
			return "", false
		}
		return "chat:" + id, true
	case strings.HasPrefix(lower, "conversation:"):
		id := strings.TrimSpace(s[len("conversation:"):])
		if id == "" {
			return "", false
		}
		return "chat:" + id, true
	case strings.HasPrefix(s, "oc_"):
		return "chat:" + s, true
	case strings.HasPrefix(s, "ou_"), strings.HasPrefix(s, "on_"):
		return "user:" + s, true
	}
	return "", false
}

// looksLikeID reports whether s is plausibly a Lark open_id or chat_id.
func looksLikeID(raw string) bool {
	s := stripVendorPrefix(raw)
	lower := strings.ToLower(s)
	for _, p := range []string{"user:", "open_id:", "chat:", "conversation:"} {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	return idPattern.MatchString(s)
}

// normalizeEntry canonicalizes one allowlist entry: prefix stripped,
// trimmed, lowercased, user:/open_id: wrappers removed. "*" passes through.
func normalizeEntry(raw string) string {
	s := stripVendorPrefix(raw)
	if s == "*" {
		return s
	}
	lower := strings.ToLower(s)
	for _, p := range []string{"user:", "open_id:"} {
		if strings.HasPrefix(lower, p) {
			return strings.ToLower(strings.TrimSpace(s[len(p):]))
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}
