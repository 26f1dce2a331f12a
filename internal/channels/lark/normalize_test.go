package lark

import "testing"

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"ou_abc123", "user:ou_abc123", true},
		{"on_abc123", "user:on_abc123", true},
		{"oc_abc123", "chat:oc_abc123", true},
		{"user:ou_abc123", "user:ou_abc123", true},
		{"chat:oc_abc123", "chat:oc_abc123", true},
		{"open_id:ou_abc123", "user:ou_abc123", true},
		{"conversation:oc_abc123", "chat:oc_abc123", true},
		{"lark:ou_abc123", "user:ou_abc123", true},
		{"FEISHU: oc_abc123", "chat:oc_abc123", true},
		{"", "", false},
		{"something", "", false},
		{"user:", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeTarget(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("normalizeTarget(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalizeTargetIdempotent(t *testing.T) {
	for _, raw := range []string{"ou_abc123", "oc_abc123", "lark:user:ou_abc123"} {
		first, ok := normalizeTarget(raw)
		if !ok {
			t.Fatalf("normalizeTarget(%q) failed", raw)
		}
		second, ok := normalizeTarget(first)
		if !ok || second != first {
			t.Errorf("second pass changed result: %q -> %q", first, second)
		}
	}
}

func TestLooksLikeID(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"ou_abc123", true},
		{"oc_abc123", true},
		{"user:ou_abc123", true},
		{"lark:ou_abc123", true},
		{"random", false},
		{"ou_", false},
	}
	for _, tt := range tests {
		if got := looksLikeID(tt.raw); got != tt.want {
			t.Errorf("looksLikeID(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeEntry(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"lark:ou_abc", "ou_abc"},
		{"feishu: ou_abc", "ou_abc"},
		{"user:ou_abc", "ou_abc"},
		{"open_id:ou_abc", "ou_abc"},
		{"  ou_abc  ", "ou_abc"},
		{"*", "*"},
		{"Alice Wang", "alice wang"},
	}
	for _, tt := range tests {
		if got := normalizeEntry(tt.raw); got != tt.want {
			t.Errorf("normalizeEntry(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
