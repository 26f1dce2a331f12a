package dingtalk

import "testing"

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"conversation:abcDEF_123", "conversation:abcDEF_123", true},
		{"abcDEF_123", "conversation:abcDEF_123", true},
		{"dingtalk:abcDEF_123", "conversation:abcDEF_123", true},
		{"dd:conversation:abcDEF_123", "conversation:abcDEF_123", true},
		{"DINGDING: abcDEF_123", "conversation:abcDEF_123", true},
		{"cidAbC+dEf/123==", "conversation:cidAbC+dEf/123==", true},
		{"", "", false},
		{"ab", "", false},
		{"has spaces here", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeTarget(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("normalizeTarget(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalizeTargetIdempotent(t *testing.T) {
	first, ok := normalizeTarget("dingtalk:abcDEF_123")
	if !ok {
		t.Fatal("first pass failed")
	}
	second, ok := normalizeTarget(first)
	if !ok || second != first {
		t.Errorf("second pass changed result: %q -> %q", first, second)
	}
}

func TestLooksLikeID(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"abcDEF_123", true},
		{"conversation:abcDEF_123", true},
		{"dingtalk:abcDEF_123", true},
		{"short", false},
		{"way too many spaces", false},
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
		{"dingtalk:user123", "user123"},
		{"dd: user123", "user123"},
		{"  user123  ", "user123"},
		{"DingDing:ABC", "abc"},
		{"*", "*"},
	}
	for _, tt := range tests {
		if got := normalizeEntry(tt.raw); got != tt.want {
			t.Errorf("normalizeEntry(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
