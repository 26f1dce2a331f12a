package dingtalk

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/channels"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
	"github.com/nextlevelbuilder/clawbridge/internal/reply"
)

const processTimeout = 5 * time.Minute

// accountContext is the state a webhook handler resolves per request, so
// config reloads are picked up without re-registering routes.
type accountContext struct {
	acct           account
	deps           channels.AccountDeps
	sender         *sender
	processTimeout time.Duration
}

// New builds the DingTalk channel plugin.
func New() *channels.Plugin {
	s := newSender()

	return &channels.Plugin{
		Meta: channels.Meta{
			ID:      "dingtalk",
			Label:   "DingTalk",
			Blurb:   "DingTalk custom robot (group chats, outgoing webhook)",
			Aliases: []string{"dingding", "dd"},
		},
		Config: channels.ConfigOps{
			ListAccountIDs:     listAccountIDs,
			DescribeAccount:    describeAccount,
			UnconfiguredReason: "missing access_token (channels.dingtalk.access_token)",
			ResolveAllowFrom:   resolveAllowFrom,
		},
		Security: channels.SecurityOps{
			ResolveDMPolicy: resolveDMPolicy,
			NormalizeEntry:  normalizeEntry,
		},
		Messaging: channels.MessagingOps{
			NormalizeTarget: normalizeTarget,
			LooksLikeID:     looksLikeID,
			TargetHint:      "conversation:<openConversationId>",
		},
		Outbound: channels.OutboundOps{
			TextChunkLimit: reply.DefaultChunkLimit,
			SendText:       s.sendText,
			SendPayload:    s.sendPayload,
		},
		Status: channels.StatusOps{
			Probe: probe,
		},
		Gateway: channels.GatewayOps{
			StartAccount: func(ctx context.Context, deps channels.AccountDeps) (func(), error) {
				return startAccount(ctx, deps, s)
			},
		},
		// No DM surface, so approved senders cannot be notified directly.
		NotifyApproval: nil,
	}
}

func startAccount(_ context.Context, deps channels.AccountDeps, s *sender) (func(), error) {
	acct := resolveAccount(deps.Cfg, deps.AccountID)
	if !acct.enabled {
		return nil, fmt.Errorf("dingtalk account %s is disabled", acct.id)
	}
	if !acct.configured() {
		return nil, fmt.Errorf("dingtalk account %s missing access_token", acct.id)
	}

	handler := webhookHandler(func() accountContext {
		return accountContext{
			acct:           resolveAccount(deps.Cfg, deps.AccountID),
			deps:           deps,
			sender:         s,
			processTimeout: processTimeout,
		}
	})

	unregister, err := deps.Routes.RegisterRoute(acct.webhookPath, "dingtalk", acct.id, handler)
	if err != nil {
		return nil, fmt.Errorf("register dingtalk webhook: %w", err)
	}
	return unregister, nil
}

func probe(ctx context.Context, cfg *config.Config, accountID string) error {
	acct := resolveAccount(cfg, accountID)
	if !acct.enabled {
		return fmt.Errorf("account %s disabled", acct.id)
	}
	if !acct.configured() {
		return fmt.Errorf("account %s missing access_token", acct.id)
	}
	return nil
}
