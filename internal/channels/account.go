package channels

import "strings"

// DefaultAccountID is the sentinel id for the base (non-override) account.
const DefaultAccountID = "default"

// NormalizeAccountID trims and lowercases an account id.
// Empty input yields the default account id.
func NormalizeAccountID(raw string) string {
	id := strings.ToLower(strings.TrimSpace(raw))
	if id == "" {
		return DefaultAccountID
	}
	return id
}

// MergeAllowlist unions outer and inner allowlists, order-preserving,
// dropping empties and duplicates.
func MergeAllowlist(outer, inner []string) []string {
	merged := make([]string, 0, len(outer)+len(inner))
	seen := make(map[string]bool, len(outer)+len(inner))
	for _, entry := range append(append([]string{}, outer...), inner...) {
		if entry == "" || seen[entry] {
			continue
		}
		seen[entry] = true
		merged = append(merged, entry)
	}
	return merged
}

// NormalizeWebhookPath cleans a configured webhook path, falling back to
// the vendor default when empty. The result always begins with "/".
func NormalizeWebhookPath(raw, fallback string) string {
	path := strings.TrimSpace(raw)
	if path == "" {
		path = fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
