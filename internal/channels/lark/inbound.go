package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/channels"
	"github.com/nextlevelbuilder/clawbridge/internal/reply"
	"github.com/nextlevelbuilder/clawbridge/internal/routing"
	"github.com/nextlevelbuilder/clawbridge/internal/store"
	"github.com/nextlevelbuilder/clawbridge/internal/store/file"
)

// eventEnvelope is the event-subscription body, schema 2.0. The v1 fields
// at the top level cover url_verification, which still uses the old shape.
type eventEnvelope struct {
	Schema string `json:"schema"`
	Header struct {
		EventID    string `json:"event_id"`
		EventType  string `json:"event_type"`
		CreateTime string `json:"create_time"`
		Token      string `json:"token"`
		AppID      string `json:"app_id"`
	} `json:"header"`

	Token     string `json:"token"`
	Type      string `json:"type"`
	Challenge string `json:"challenge"`

	Event json.RawMessage `json:"event"`
}

func (e *eventEnvelope) verifyToken() string {
	if e.Header.Token != "" {
		return e.Header.Token
	}
	return e.Token
}

// messageEvent is the im.message.receive_v1 event payload.
type messageEvent struct {
	Sender struct {
		SenderType string `json:"sender_type"`
		SenderID   struct {
			OpenID string `json:"open_id"`
			UserID string `json:"user_id"`
		} `json:"sender_id"`
	} `json:"sender"`
	Message struct {
		MessageID   string `json:"message_id"`
		ChatID      string `json:"chat_id"`
		ChatType    string `json:"chat_type"` // "p2p" or "group"
		MessageType string `json:"message_type"`
		Content     string `json:"content"` // JSON-encoded, {"text": "..."} for text
		CreateTime  string `json:"create_time"`
		Mentions    []struct {
			Key  string `json:"key"`
			Name string `json:"name"`
			ID   struct {
				OpenID string `json:"open_id"`
			} `json:"id"`
		} `json:"mentions"`
	} `json:"message"`
}

// extractText pulls display text out of the event content. Mention
// placeholders (@_user_N) are replaced with the mentioned display names.
func extractText(ev *messageEvent) string {
	if ev.Message.MessageType != "text" {
		return ""
	}
	var content struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(ev.Message.Content), &content); err != nil {
		return ""
	}
	text := content.Text
	for _, m := range ev.Message.Mentions {
		if m.Key == "" {
			continue
		}
		name := m.Name
		if name != "" {
			name = "@" + name
		}
		text = strings.ReplaceAll(text, m.Key, name)
	}
	return strings.TrimSpace(text)
}

// processEvent runs the admission pipeline for one message event and,
// when admitted, hands the message to the host inbound sink.
func processEvent(ctx context.Context, deps channels.AccountDeps, c *client, env *eventEnvelope) {
	cfg := deps.Cfg
	acct := resolveAccount(cfg, deps.AccountID)
	log := slog.With("channel", "lark", "account", acct.id)

	var ev messageEvent
	if err := json.Unmarshal(env.Event, &ev); err != nil {
		log.Warn("bad message event", "error", err)
		return
	}

	senderID := strings.TrimSpace(ev.Sender.SenderID.OpenID)
	senderName := "" // contact lookup needs extra scopes; allowlists match ids
	isGroup := ev.Message.ChatType == "group"

	drop := func(reason string) {
		log.Info("inbound dropped", "reason", reason, "sender", senderID, "chat_type", ev.Message.ChatType)
		if deps.Host != nil && deps.Host.Activity != nil {
			deps.Host.Activity.RecordDrop("lark", acct.id, reason)
		}
	}

	// Canonical-field validation before anything touches the pairing
	// store or the policy engine.
	if ev.Sender.SenderType != "" && ev.Sender.SenderType != "user" {
		drop("non_user_sender")
		return
	}
	if strings.TrimSpace(ev.Message.MessageID) == "" ||
		strings.TrimSpace(ev.Message.ChatID) == "" ||
		strings.TrimSpace(ev.Message.ChatType) == "" {
		drop("invalid_message")
		return
	}
	if senderID == "" {
		drop("missing_sender")
		return
	}
	text := extractText(&ev)
	if text == "" {
		drop("empty_text")
		return
	}

	timestamp, _ := strconv.ParseInt(ev.Message.CreateTime, 10, 64)
	if timestamp <= 0 {
		timestamp = time.Now().UnixMilli()
	}

	// The message counts as seen once it canonicalizes, admitted or not.
	if deps.Host != nil && deps.Host.Activity != nil {
		deps.Host.Activity.RecordInbound("lark", acct.id)
	}
	if deps.Status != nil {
		deps.Status(channels.StatusPatch{LastInboundAt: timestamp})
	}

	var dynamicAllow []string
	if deps.Host != nil && deps.Host.Pairing != nil {
		var err error
		dynamicAllow, err = deps.Host.Pairing.ReadAllowFrom(ctx, "lark")
		if err != nil {
			log.Warn("pairing allowlist read failed", "error", err)
		}
	}
	effectiveAllow, effectiveGroup := effectiveAllowlists(acct, dynamicAllow)

	if isGroup {
		if allowed, reason := groupAdmission(acct.groupPolicy, effectiveGroup, senderID, senderName); !allowed {
			drop(reason)
			return
		}
	} else {
		decision := dmAdmission(acct.dmPolicy, effectiveAllow, senderID, senderName)
		if !decision.allowed {
			if decision.startPairing {
				startPairing(ctx, deps, c, acct, senderID, senderName, log)
			}
			drop(decision.reason)
			return
		}
	}

	// Command authorization follows the list of the current scope.
	scopeAllow := effectiveAllow
	if isGroup {
		scopeAllow = effectiveGroup
	}
	gate := reply.ResolveControlCommandGate(reply.GateParams{
		UseAccessGroups: cfg.Commands.AccessGroupsEnabled(),
		Authorizers: []reply.Authorizer{
			{Configured: len(scopeAllow) > 0, Allowed: allowlistMatches(scopeAllow, senderID, senderName)},
		},
		AllowTextCommands: cfg.Commands.TextCommandsEnabled("lark"),
		HasControlCommand: reply.HasControlCommand(text),
	})
	if isGroup && gate.ShouldBlock {
		drop("command_not_authorized")
		return
	}

	peer := routing.Peer{Kind: routing.PeerKindFromGroup(isGroup), ID: ev.Message.ChatID}
	if !isGroup {
		peer.ID = senderID
	}
	route := routing.ResolveAgentRoute(cfg, "lark", acct.id, peer)
	storePath := file.ResolveStorePath(cfg.Session.Store, route.AgentID)

	chatType := "direct"
	if isGroup {
		chatType = "group"
	}

	var prevAt int64
	if deps.Host != nil && deps.Host.Sessions != nil {
		prevAt, _ = deps.Host.Sessions.UpdatedAt(storePath, route.SessionKey)
		if err := deps.Host.Sessions.RecordInbound(storePath, route.SessionKey, store.SessionMeta{
			Channel:   "lark",
			AccountID: acct.id,
			ChatType:  chatType,
			UpdatedAt: timestamp,
		}); err != nil {
			log.Warn("session record failed", "error", err)
		}
	}

	body := reply.FormatAgentEnvelope(reply.EnvelopeParams{
		Channel:           acct.name,
		From:              senderID,
		Timestamp:         timestamp,
		PreviousTimestamp: prevAt,
		Body:              text,
	})

	target := "user:" + senderID
	if isGroup {
		target = "chat:" + ev.Message.ChatID
	}

	inbound := &reply.InboundContext{
		Body:               body,
		RawBody:            text,
		CommandBody:        text,
		From:               "lark:" + senderID,
		To:                 "lark:" + target,
		SessionKey:         route.SessionKey,
		AccountID:          acct.id,
		ChatType:           chatType,
		SenderID:           senderID,
		SenderName:         senderName,
		Provider:           "lark",
		Surface:            "lark",
		MessageID:          ev.Message.MessageID,
		Timestamp:          timestamp,
		OriginatingChannel: "lark",
		OriginatingTo:      target,
		CommandAuthorized:  gate.CommandAuthorized,
	}

	if deps.Host == nil || deps.Host.Inbound == nil {
		log.Warn("no inbound sink configured, message discarded", "session", route.SessionKey)
		return
	}

	dispatcher := reply.NewDispatcher(reply.DispatcherOptions{
		ChunkLimit:            acct.textChunkLimit,
		ChunkMode:             acct.chunkMode,
		DisableBlockStreaming: !acct.blockStreaming,
		Deliver: func(ctx context.Context, p reply.Payload) error {
			_, err := c.sendPayload(ctx, cfg, acct.id, inbound.OriginatingTo, p)
			if err == nil {
				if deps.Host != nil && deps.Host.Activity != nil {
					deps.Host.Activity.RecordOutbound("lark", acct.id)
				}
				if deps.Status != nil {
					deps.Status(channels.StatusPatch{LastOutboundAt: time.Now().UnixMilli()})
				}
			}
			return err
		},
		OnError: func(err error, kind string) {
			log.Error("reply delivery failed", "kind", kind, "error", err)
		},
	})

	deps.Host.Inbound(ctx, inbound, dispatcher)
}

// startPairing records a pairing request and, the first time a sender is
// seen, replies with their open_id and pairing code. The triggering
// message is dropped either way.
func startPairing(ctx context.Context, deps channels.AccountDeps, c *client, acct account, senderID, senderName string, log *slog.Logger) {
	if deps.Host == nil || deps.Host.Pairing == nil {
		return
	}
	code, created, err := deps.Host.Pairing.UpsertRequest(ctx, "lark", senderID, senderName)
	if err != nil {
		log.Warn("pairing upsert failed", "sender", senderID, "error", err)
		return
	}
	if !created {
		return
	}

	text := fmt.Sprintf("Your Lark open_id: %s\nPairing code: %s\nAsk an operator to approve this code to start chatting.", senderID, code)
	if _, err := c.sendText(ctx, deps.Cfg, acct.id, "user:"+senderID, text); err != nil {
		log.Warn("pairing reply failed", "sender", senderID, "error", err)
	}
}
