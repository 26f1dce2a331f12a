// Package sqlite implements the pairing store on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/clawbridge/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS pairing_requests (
	channel     TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	sender_name TEXT NOT NULL DEFAULT '',
	code        TEXT NOT NULL,
	approved    INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	approved_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (channel, sender_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_pairing_code ON pairing_requests (code);
`

// PairingStore persists pairing requests and the approved allowlist.
type PairingStore struct {
	db *sql.DB
}

// Open creates (if needed) and opens the pairing database under dir.
func Open(dir string) (*PairingStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(dir, "pairing.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open pairing db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init pairing schema: %w", err)
	}
	return &PairingStore{db: db}, nil
}

func (s *PairingStore) Close() error { return s.db.Close() }

// ReadAllowFrom returns approved sender ids for a channel.
func (s *PairingStore) ReadAllowFrom(ctx context.Context, channel string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender_id FROM pairing_requests WHERE channel = ? AND approved = 1 ORDER BY approved_at`,
		channel)
	if err != nil {
		return nil, fmt.Errorf("read allowlist: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertRequest records a pairing request, returning the (possibly existing)
// code. Two near-simultaneous upserts for the same sender may both insert and
// one will lose on the primary key; the duplicate notification is tolerated.
func (s *PairingStore) UpsertRequest(ctx context.Context, channel, senderID, senderName string) (string, bool, error) {
	var code string
	err := s.db.QueryRowContext(ctx,
		`SELECT code FROM pairing_requests WHERE channel = ? AND sender_id = ?`,
		channel, senderID).Scan(&code)
	if err == nil {
		return code, false, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("lookup pairing request: %w", err)
	}

	code = newPairingCode()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pairing_requests (channel, sender_id, sender_name, code, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (channel, sender_id) DO NOTHING`,
		channel, senderID, senderName, code, time.Now().UnixMilli())
	if err != nil {
		return "", false, fmt.Errorf("insert pairing request: %w", err)
	}

	// Re-read in case a concurrent insert won.
	var stored string
	if err := s.db.QueryRowContext(ctx,
		`SELECT code FROM pairing_requests WHERE channel = ? AND sender_id = ?`,
		channel, senderID).Scan(&stored); err != nil {
		return "", false, fmt.Errorf("reread pairing request: %w", err)
	}
	return stored, stored == code, nil
}

// ListRequests returns pending requests, newest first.
func (s *PairingStore) ListRequests(ctx context.Context, channel string) ([]store.PairingRequest, error) {
	query := `SELECT channel, sender_id, sender_name, code, created_at FROM pairing_requests WHERE approved = 0`
	args := []any{}
	if channel != "" {
		query += ` AND channel = ?`
		args = append(args, channel)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pairing requests: %w", err)
	}
	defer rows.Close()

	var out []store.PairingRequest
	for rows.Next() {
		var r store.PairingRequest
		var createdAt int64
		if err := rows.Scan(&r.Channel, &r.SenderID, &r.SenderName, &r.Code, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Approve marks the request with the given code as approved.
func (s *PairingStore) Approve(ctx context.Context, code string) (store.PairingRequest, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	var r store.PairingRequest
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT channel, sender_id, sender_name, code, approved, created_at
		 FROM pairing_requests WHERE code = ?`, code).
		Scan(&r.Channel, &r.SenderID, &r.SenderName, &r.Code, &r.Approved, &createdAt)
	if err == sql.ErrNoRows {
		return store.PairingRequest{}, fmt.Errorf("no pairing request with code %s", code)
	}
	if err != nil {
		return store.PairingRequest{}, fmt.Errorf("lookup pairing code: %w", err)
	}
	r.CreatedAt = time.UnixMilli(createdAt)
	if r.Approved {
		return r, nil
	}

	now := time.Now()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE pairing_requests SET approved = 1, approved_at = ? WHERE code = ?`,
		now.UnixMilli(), code); err != nil {
		return store.PairingRequest{}, fmt.Errorf("approve pairing: %w", err)
	}
	r.Approved = true
	r.ApprovedAt = now
	return r, nil
}

func newPairingCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

var _ store.PairingStore = (*PairingStore)(nil)
