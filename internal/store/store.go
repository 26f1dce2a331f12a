// Package store defines the storage contracts used by channel plugins:
// the dynamic pairing allowlist and per-session metadata.
package store

import (
	"context"
	"time"
)

// PairingRequest is a pending or approved access request from a sender.
type PairingRequest struct {
	Channel    string
	SenderID   string
	SenderName string
	Code       string
	Approved   bool
	CreatedAt  time.Time
	ApprovedAt time.Time
}

// PairingStore holds dynamically approved senders and pending requests.
type PairingStore interface {
	// ReadAllowFrom returns the approved sender ids for a channel.
	ReadAllowFrom(ctx context.Context, channel string) ([]string, error)

	// UpsertRequest records a pairing request for a sender. created is true
	// only the first time a given channel+sender pair is seen; subsequent
	// calls return the existing code.
	UpsertRequest(ctx context.Context, channel, senderID, senderName string) (code string, created bool, err error)

	// ListRequests returns pending (unapproved) requests for a channel.
	// An empty channel matches all channels.
	ListRequests(ctx context.Context, channel string) ([]PairingRequest, error)

	// Approve marks the request with the given code as approved, adding the
	// sender to the channel allowlist.
	Approve(ctx context.Context, code string) (PairingRequest, error)

	Close() error
}

// SessionMeta is the per-session metadata recorded on inbound messages.
type SessionMeta struct {
	Channel   string
	AccountID string
	ChatType  string
	UpdatedAt int64 // epoch ms
}

// SessionStore records session metadata under a store path.
type SessionStore interface {
	// UpdatedAt returns the last recorded timestamp for a session, or ok=false
	// when the session has never been seen.
	UpdatedAt(storePath, sessionKey string) (ms int64, ok bool)

	// RecordInbound upserts session metadata for an inbound message.
	RecordInbound(storePath, sessionKey string, meta SessionMeta) error
}
