package dingtalk

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/channels"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
	"github.com/nextlevelbuilder/clawbridge/internal/reply"
)

// sender delivers outbound messages. Replies prefer the per-conversation
// session webhook handed out on each inbound message (those URLs expire);
// proactive sends fall back to the account's fixed robot webhook.
type sender struct {
	client *http.Client

	mu       sync.Mutex
	sessions map[string]sessionWebhook
}

type sessionWebhook struct {
	url       string
	expiresAt time.Time
}

func newSender() *sender {
	return &sender{
		client:   &http.Client{Timeout: 30 * time.Second},
		sessions: make(map[string]sessionWebhook),
	}
}

func (s *sender) rememberSession(conversationID, url string, expiresAt time.Time) {
	if conversationID == "" || url == "" {
		return
	}
	s.mu.Lock()
	s.sessions[conversationID] = sessionWebhook{url: url, expiresAt: expiresAt}
	s.mu.Unlock()
}

func (s *sender) sessionURL(conversationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sw, ok := s.sessions[conversationID]
	if !ok || time.Now().After(sw.expiresAt) {
		delete(s.sessions, conversationID)
		return ""
	}
	return sw.url
}

// sendText delivers text to a conversation target. Empty text is a no-op.
func (s *sender) sendText(ctx context.Context, cfg *config.Config, accountID, target, text string) (channels.SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return channels.SendResult{}, nil
	}
	acct := resolveAccount(cfg, accountID)

	canonical, ok := normalizeTarget(target)
	if !ok {
		return channels.SendResult{}, fmt.Errorf("invalid dingtalk target %q", target)
	}
	conversationID := strings.TrimPrefix(canonical, "conversation:")

	url := s.sessionURL(conversationID)
	if url == "" {
		if !acct.configured() {
			return channels.SendResult{}, fmt.Errorf("dingtalk account %s has no access token and no live session webhook", acct.id)
		}
		url = robotSendURL + "?access_token=" + acct.accessToken
	}

	msg := robotMessage{MsgType: "text", Text: &robotText{Content: text}}
	if err := postRobotMessage(ctx, s.client, url, msg); err != nil {
		return channels.SendResult{}, err
	}
	return channels.SendResult{}, nil
}

// sendPayload delivers a reply payload, rendering media as attachment lines.
func (s *sender) sendPayload(ctx context.Context, cfg *config.Config, accountID, target string, payload reply.Payload) (channels.SendResult, error) {
	return s.sendText(ctx, cfg, accountID, target, renderPayloadText(payload))
}

func renderPayloadText(payload reply.Payload) string {
	text := payload.Text
	for _, u := range payload.MediaURLs {
		if strings.TrimSpace(u) == "" {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += "Attachment: " + u
	}
	return text
}
