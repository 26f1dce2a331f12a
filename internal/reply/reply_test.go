package reply

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestHasControlCommand(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"/status", true},
		{"  /status  ", true},
		{"/STATUS", true},
		{"/status@mybot", true},
		{"/status please", true},
		{"/unknown", false},
		{"status", false},
		{"hello /status", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := HasControlCommand(tt.text); got != tt.want {
			t.Errorf("HasControlCommand(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestResolveControlCommandGate(t *testing.T) {
	tests := []struct {
		name  string
		p     GateParams
		want  Gate
	}{
		{
			"access groups off authorizes everyone",
			GateParams{UseAccessGroups: false, AllowTextCommands: true, HasControlCommand: true},
			Gate{CommandAuthorized: true, ShouldBlock: false},
		},
		{
			"matching allowlist authorizes",
			GateParams{
				UseAccessGroups:   true,
				Authorizers:       []Authorizer{{Configured: true, Allowed: true}},
				AllowTextCommands: true,
				HasControlCommand: true,
			},
			Gate{CommandAuthorized: true, ShouldBlock: false},
		},
		{
			"unauthorized command blocks",
			GateParams{
				UseAccessGroups:   true,
				Authorizers:       []Authorizer{{Configured: true, Allowed: false}},
				AllowTextCommands: true,
				HasControlCommand: true,
			},
			Gate{CommandAuthorized: false, ShouldBlock: true},
		},
		{
			"unconfigured authorizer never authorizes",
			GateParams{
				UseAccessGroups:   true,
				Authorizers:       []Authorizer{{Configured: false, Allowed: true}},
				AllowTextCommands: true,
				HasControlCommand: true,
			},
			Gate{CommandAuthorized: false, ShouldBlock: true},
		},
		{
			"plain text from unauthorized sender passes",
			GateParams{
				UseAccessGroups:   true,
				Authorizers:       []Authorizer{{Configured: true, Allowed: false}},
				AllowTextCommands: true,
				HasControlCommand: false,
			},
			Gate{CommandAuthorized: false, ShouldBlock: false},
		},
		{
			"text commands disabled never blocks",
			GateParams{
				UseAccessGroups:   true,
				Authorizers:       []Authorizer{{Configured: true, Allowed: false}},
				AllowTextCommands: false,
				HasControlCommand: true,
			},
			Gate{CommandAuthorized: false, ShouldBlock: false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveControlCommandGate(tt.p); got != tt.want {
				t.Errorf("ResolveControlCommandGate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFormatAgentEnvelope(t *testing.T) {
	got := FormatAgentEnvelope(EnvelopeParams{
		Channel:   "Lark",
		From:      "Alice",
		Timestamp: 1700000000000,
		Body:      "hello",
	})
	if !strings.HasPrefix(got, "[Lark] Alice at 2023-11-14 22:13 UTC") {
		t.Errorf("unexpected header: %q", got)
	}
	if !strings.HasSuffix(got, "\nhello") {
		t.Errorf("body missing: %q", got)
	}
	if strings.Contains(got, "last message") {
		t.Errorf("no previous timestamp expected: %q", got)
	}

	got = FormatAgentEnvelope(EnvelopeParams{
		Channel:           "DingTalk",
		From:              "Bob",
		Timestamp:         1700000000000,
		PreviousTimestamp: 1699990000000,
		Body:              "hi",
	})
	if !strings.Contains(got, "(last message ") {
		t.Errorf("previous timestamp missing: %q", got)
	}
}

func TestChunkTextLength(t *testing.T) {
	text := strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 30)
	chunks := ChunkText(text, 40, "length")
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	// The cut prefers the newline past the midpoint of the window.
	if chunks[0] != strings.Repeat("a", 30)+"\n" {
		t.Errorf("chunk[0] = %q", chunks[0])
	}
	for i, c := range chunks {
		if len(c) > 40 {
			t.Errorf("chunk %d exceeds limit: %d", i, len(c))
		}
	}
}

func TestChunkTextNewline(t *testing.T) {
	text := "one\ntwo\nthree"
	chunks := ChunkText(text, 8, "newline")
	if len(chunks) != 2 {
		t.Fatalf("chunks = %v", chunks)
	}
	if chunks[0] != "one\ntwo" || chunks[1] != "three" {
		t.Errorf("chunks = %v", chunks)
	}

	// Oversize single line gets hard-split.
	chunks = ChunkText(strings.Repeat("x", 20), 8, "newline")
	for i, c := range chunks {
		if len(c) > 8 {
			t.Errorf("chunk %d exceeds limit: %d", i, len(c))
		}
	}
}

func TestChunkTextEmpty(t *testing.T) {
	if chunks := ChunkText("", 100, "length"); chunks != nil {
		t.Errorf("expected nil, got %v", chunks)
	}
}

func TestDispatcherBlockStreaming(t *testing.T) {
	var delivered []Payload
	d := NewDispatcher(DispatcherOptions{
		Deliver: func(_ context.Context, p Payload) error {
			delivered = append(delivered, p)
			return nil
		},
	})
	d.SendBlock(context.Background(), "block one")
	d.SendBlock(context.Background(), "   ")
	d.Flush(context.Background(), Payload{Text: "final", MediaURLs: []string{"https://x/y.png"}})

	if len(delivered) != 2 {
		t.Fatalf("delivered = %d payloads, want 2", len(delivered))
	}
	if delivered[0].Text != "block one" {
		t.Errorf("block = %q", delivered[0].Text)
	}
	if delivered[1].Text != "final" || len(delivered[1].MediaURLs) != 1 {
		t.Errorf("final = %+v", delivered[1])
	}
}

func TestDispatcherBuffered(t *testing.T) {
	var delivered []Payload
	d := NewDispatcher(DispatcherOptions{
		DisableBlockStreaming: true,
		Deliver: func(_ context.Context, p Payload) error {
			delivered = append(delivered, p)
			return nil
		},
	})
	d.SendBlock(context.Background(), "first")
	d.SendBlock(context.Background(), "second")
	d.Flush(context.Background(), Payload{Text: "final"})

	if len(delivered) != 1 {
		t.Fatalf("delivered = %d payloads, want 1", len(delivered))
	}
	if delivered[0].Text != "first\n\nsecond\n\nfinal" {
		t.Errorf("merged = %q", delivered[0].Text)
	}
}

func TestDispatcherEmptyFlushNoOp(t *testing.T) {
	calls := 0
	d := NewDispatcher(DispatcherOptions{
		Deliver: func(_ context.Context, _ Payload) error {
			calls++
			return nil
		},
	})
	d.Flush(context.Background(), Payload{Text: "  \n "})
	if calls != 0 {
		t.Errorf("expected no delivery, got %d", calls)
	}
}

func TestDispatcherErrorRouted(t *testing.T) {
	wantErr := errors.New("send failed")
	var gotErr error
	var gotKind string
	d := NewDispatcher(DispatcherOptions{
		Deliver: func(_ context.Context, _ Payload) error { return wantErr },
		OnError: func(err error, kind string) {
			gotErr = err
			gotKind = kind
		},
	})
	d.Flush(context.Background(), Payload{Text: "boom"})
	if !errors.Is(gotErr, wantErr) || gotKind != "final" {
		t.Errorf("got err=%v kind=%q", gotErr, gotKind)
	}
}
