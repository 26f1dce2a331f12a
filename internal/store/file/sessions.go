// Package file implements the session metadata store on the filesystem,
// one JSON file per session under the agent's store path.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/clawbridge/internal/store"
)

// ResolveStorePath expands the configured session store template for an agent.
// The template may contain an {agentId} placeholder.
func ResolveStorePath(template, agentID string) string {
	if template == "" {
		template = "~/.clawbridge/sessions/{agentId}"
	}
	path := strings.ReplaceAll(template, "{agentId}", agentID)
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = home + strings.TrimPrefix(path, "~")
	}
	return path
}

// SessionStore reads and writes per-session metadata files.
type SessionStore struct{}

func NewSessionStore() *SessionStore { return &SessionStore{} }

type sessionFile struct {
	Channel   string `json:"channel"`
	AccountID string `json:"account_id"`
	ChatType  string `json:"chat_type"`
	UpdatedAt int64  `json:"updated_at"`
}

// UpdatedAt returns the last recorded timestamp for a session.
func (s *SessionStore) UpdatedAt(storePath, sessionKey string) (int64, bool) {
	data, err := os.ReadFile(sessionFilePath(storePath, sessionKey))
	if err != nil {
		return 0, false
	}
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil || f.UpdatedAt == 0 {
		return 0, false
	}
	return f.UpdatedAt, true
}

// RecordInbound upserts session metadata for an inbound message.
func (s *SessionStore) RecordInbound(storePath, sessionKey string, meta store.SessionMeta) error {
	if err := os.MkdirAll(storePath, 0700); err != nil {
		return fmt.Errorf("create session store: %w", err)
	}
	data, err := json.MarshalIndent(sessionFile{
		Channel:   meta.Channel,
		AccountID: meta.AccountID,
		ChatType:  meta.ChatType,
		UpdatedAt: meta.UpdatedAt,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sessionFilePath(storePath, sessionKey), data, 0600)
}

// sessionFilePath maps a session key to a filename. Colons in canonical keys
// are not portable across filesystems, so they become double underscores.
func sessionFilePath(storePath, sessionKey string) string {
	name := strings.ReplaceAll(sessionKey, ":", "__") + ".json"
	return filepath.Join(storePath, name)
}

var _ store.SessionStore = (*SessionStore)(nil)
