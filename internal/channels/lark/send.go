package lark

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/clawbridge/internal/channels"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
	"github.com/nextlevelbuilder/clawbridge/internal/reply"
)

// sendText delivers text to a user or chat target. Empty text is a no-op.
func (c *client) sendText(ctx context.Context, cfg *config.Config, accountID, target, text string) (channels.SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return channels.SendResult{}, nil
	}
	acct := resolveAccount(cfg, accountID)
	if acct.appID == "" || acct.appSecret == "" {
		return channels.SendResult{}, fmt.Errorf("lark account %s missing app credentials", acct.id)
	}

	// Unrecognized bare targets are treated as a chat_id as a last resort.
	canonical, ok := normalizeTarget(target)
	if !ok {
		fallback := stripVendorPrefix(target)
		if fallback == "" {
			return channels.SendResult{}, fmt.Errorf("empty lark target")
		}
		canonical = "chat:" + fallback
	}

	receiveIDType := "open_id"
	receiveID := canonical
	switch {
	case strings.HasPrefix(canonical, "user:"):
		receiveID = strings.TrimPrefix(canonical, "user:")
	case strings.HasPrefix(canonical, "chat:"):
		receiveIDType = "chat_id"
		receiveID = strings.TrimPrefix(canonical, "chat:")
	}

	messageID, err := c.sendMessage(ctx, acct, receiveIDType, receiveID, text)
	if err != nil {
		return channels.SendResult{}, err
	}
	return channels.SendResult{MessageID: messageID}, nil
}

// sendPayload delivers a reply payload, rendering media as attachment lines.
func (c *client) sendPayload(ctx context.Context, cfg *config.Config, accountID, target string, payload reply.Payload) (channels.SendResult, error) {
	return c.sendText(ctx, cfg, accountID, target, renderPayloadText(payload))
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
