// Package reply holds the host-side reply plumbing shared by channel
// plugins: envelope formatting, the canonical inbound context, the
// control-command gate, and the buffered reply dispatcher.
package reply

import (
	"fmt"
	"time"
)

// InboundContext is the canonical message-context object handed to the
// agent/session/reply pipeline.
type InboundContext struct {
	Body        string // formatted display body (envelope)
	RawBody     string
	CommandBody string

	From string // vendor-prefixed sender address
	To   string // vendor-prefixed conversation address

	SessionKey string
	AccountID  string
	ChatType   string // "group" or "direct"

	ConversationLabel string
	SenderID          string
	SenderName        string
	GroupSubject      string

	Provider string
	Surface  string

	MessageID string
	Timestamp int64 // epoch ms

	OriginatingChannel string
	OriginatingTo      string

	CommandAuthorized bool
}

// EnvelopeParams describe one inbound message for display formatting.
type EnvelopeParams struct {
	Channel           string // vendor display name, e.g. "Lark"
	From              string
	Timestamp         int64 // epoch ms
	PreviousTimestamp int64 // epoch ms of the previous session update, 0 if none
	Body              string
}

// FormatAgentEnvelope renders the display body shown to the agent: a header
// line with vendor, sender and timestamps, then the raw message text.
func FormatAgentEnvelope(p EnvelopeParams) string {
	header := fmt.Sprintf("[%s] %s at %s", p.Channel, p.From, formatStamp(p.Timestamp))
	if p.PreviousTimestamp > 0 {
		header += fmt.Sprintf(" (last message %s)", formatStamp(p.PreviousTimestamp))
	}
	return header + "\n" + p.Body
}

func formatStamp(ms int64) string {
	if ms <= 0 {
		return "unknown"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04 MST")
}
