package dingtalk

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/channels"
	"github.com/nextlevelbuilder/clawbridge/internal/reply"
	"github.com/nextlevelbuilder/clawbridge/internal/routing"
	"github.com/nextlevelbuilder/clawbridge/internal/store"
	"github.com/nextlevelbuilder/clawbridge/internal/store/file"
)

// inboundMessage is the outgoing-webhook payload DingTalk posts on each
// robot mention.
type inboundMessage struct {
	// Token is the shared outgoing-webhook token, echoed in every delivery.
	Token string `json:"token"`

	MsgID             string `json:"msgId"`
	MsgType           string `json:"msgtype"`
	CreateAt          int64  `json:"createAt"`
	ConversationID    string `json:"conversationId"`
	ConversationType  string `json:"conversationType"` // "1" direct, "2" group
	ConversationTitle string `json:"conversationTitle"`
	SenderID          string `json:"senderId"`
	SenderStaffID     string `json:"senderStaffId"`
	SenderNick        string `json:"senderNick"`

	SessionWebhook            string `json:"sessionWebhook"`
	SessionWebhookExpiredTime int64  `json:"sessionWebhookExpiredTime"` // epoch ms

	Text struct {
		Content string `json:"content"`
	} `json:"text"`
}

func (m *inboundMessage) senderID() string {
	if m.SenderStaffID != "" {
		return m.SenderStaffID
	}
	return m.SenderID
}

// processInbound runs the admission pipeline for one webhook delivery and,
// when the message is admitted, hands it to the host inbound sink.
func processInbound(ctx context.Context, deps channels.AccountDeps, s *sender, msg *inboundMessage) {
	cfg := deps.Cfg
	acct := resolveAccount(cfg, deps.AccountID)
	log := slog.With("channel", "dingtalk", "account", acct.id)

	senderID := msg.senderID()
	senderName := msg.SenderNick

	if msg.SessionWebhook != "" {
		s.rememberSession(msg.ConversationID, msg.SessionWebhook, time.UnixMilli(msg.SessionWebhookExpiredTime))
	}

	drop := func(reason string) {
		log.Info("inbound dropped", "reason", reason, "sender", senderID)
		if deps.Host != nil && deps.Host.Activity != nil {
			deps.Host.Activity.RecordDrop("dingtalk", acct.id, reason)
		}
	}

	// Canonical-field validation. Outgoing-webhook payloads vary, so
	// anything that is not a well-formed text message is discarded here.
	if strings.TrimSpace(msg.MsgType) != "text" {
		drop("non_text_message")
		return
	}
	text := strings.TrimSpace(msg.Text.Content)
	if text == "" {
		drop("empty_text")
		return
	}
	if strings.TrimSpace(msg.ConversationID) == "" {
		drop("missing_conversation_id")
		return
	}
	if senderID == "" {
		drop("missing_sender")
		return
	}

	timestamp := msg.CreateAt
	if timestamp <= 0 {
		timestamp = time.Now().UnixMilli()
	}

	// The message counts as seen once it canonicalizes, admitted or not.
	if deps.Host != nil && deps.Host.Activity != nil {
		deps.Host.Activity.RecordInbound("dingtalk", acct.id)
	}
	if deps.Status != nil {
		deps.Status(channels.StatusPatch{LastInboundAt: timestamp})
	}

	// Custom robots only exist inside group chats.
	if msg.ConversationType != "2" {
		drop("dm_unsupported")
		return
	}

	var dynamicAllow []string
	if deps.Host != nil && deps.Host.Pairing != nil {
		var err error
		dynamicAllow, err = deps.Host.Pairing.ReadAllowFrom(ctx, "dingtalk")
		if err != nil {
			log.Warn("pairing allowlist read failed", "error", err)
		}
	}
	effectiveGroup := effectiveGroupAllowFrom(acct, dynamicAllow)

	allowed, reason := groupAdmission(acct.groupPolicy, effectiveGroup, senderID, senderName)
	if !allowed {
		drop(reason)
		return
	}

	senderAllowed := allowlistMatches(effectiveGroup, senderID, senderName)
	gate := reply.ResolveControlCommandGate(reply.GateParams{
		UseAccessGroups: cfg.Commands.AccessGroupsEnabled(),
		Authorizers: []reply.Authorizer{
			{Configured: len(effectiveGroup) > 0, Allowed: senderAllowed},
		},
		AllowTextCommands: cfg.Commands.TextCommandsEnabled("dingtalk"),
		HasControlCommand: reply.HasControlCommand(text),
	})
	if gate.ShouldBlock {
		drop("command_not_authorized")
		return
	}

	route := routing.ResolveAgentRoute(cfg, "dingtalk", acct.id, routing.Peer{
		Kind: routing.PeerGroup,
		ID:   msg.ConversationID,
	})
	storePath := file.ResolveStorePath(cfg.Session.Store, route.AgentID)

	var prevAt int64
	if deps.Host != nil && deps.Host.Sessions != nil {
		prevAt, _ = deps.Host.Sessions.UpdatedAt(storePath, route.SessionKey)
		if err := deps.Host.Sessions.RecordInbound(storePath, route.SessionKey, store.SessionMeta{
			Channel:   "dingtalk",
			AccountID: acct.id,
			ChatType:  "group",
			UpdatedAt: timestamp,
		}); err != nil {
			log.Warn("session record failed", "error", err)
		}
	}

	displayName := senderName
	if displayName == "" {
		displayName = senderID
	}
	body := reply.FormatAgentEnvelope(reply.EnvelopeParams{
		Channel:           acct.name,
		From:              displayName,
		Timestamp:         timestamp,
		PreviousTimestamp: prevAt,
		Body:              text,
	})

	inbound := &reply.InboundContext{
		Body:               body,
		RawBody:            text,
		CommandBody:        text,
		From:               "dingtalk:" + senderID,
		To:                 "dingtalk:conversation:" + msg.ConversationID,
		SessionKey:         route.SessionKey,
		AccountID:          acct.id,
		ChatType:           "group",
		ConversationLabel:  msg.ConversationTitle,
		SenderID:           senderID,
		SenderName:         senderName,
		GroupSubject:       msg.ConversationTitle,
		Provider:           "dingtalk",
		Surface:            "dingtalk",
		MessageID:          msg.MsgID,
		Timestamp:          timestamp,
		OriginatingChannel: "dingtalk",
		OriginatingTo:      "conversation:" + msg.ConversationID,
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
			_, err := s.sendPayload(ctx, cfg, acct.id, inbound.OriginatingTo, p)
			if err == nil {
				if deps.Host != nil && deps.Host.Activity != nil {
					deps.Host.Activity.RecordOutbound("dingtalk", acct.id)
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
