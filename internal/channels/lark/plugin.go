package lark

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
	client         *client
	processTimeout time.Duration
}

// New builds the Lark channel plugin.
func New() *channels.Plugin {
	c := newClient()

	return &channels.Plugin{
		Meta: channels.Meta{
			ID:      "lark",
			Label:   "Lark",
			Blurb:   "Lark/Feishu bot (event subscription, DMs and group chats)",
			Aliases: []string{"feishu"},
		},
		Config: channels.ConfigOps{
			ListAccountIDs:     listAccountIDs,
			DescribeAccount:    describeAccount,
			UnconfiguredReason: "missing app_id/app_secret/verification_token (channels.lark)",
			ResolveAllowFrom:   resolveAllowFrom,
		},
		Security: channels.SecurityOps{
			ResolveDMPolicy: resolveDMPolicy,
			NormalizeEntry:  normalizeEntry,
		},
		Messaging: channels.MessagingOps{
			NormalizeTarget: normalizeTarget,
			LooksLikeID:     looksLikeID,
			TargetHint:      "user:<open_id> or chat:<chat_id>",
		},
		Outbound: channels.OutboundOps{
			TextChunkLimit: reply.DefaultChunkLimit,
			SendText:       c.sendText,
			SendPayload:    c.sendPayload,
		},
		Status: channels.StatusOps{
			Probe: c.probe,
		},
		Gateway: channels.GatewayOps{
			StartAccount: func(ctx context.Context, deps channels.AccountDeps) (func(), error) {
				return startAccount(ctx, deps, c)
			},
		},
		NotifyApproval: func(ctx context.Context, cfg *config.Config, senderID string) error {
			_, err := c.sendText(ctx, cfg, channels.DefaultAccountID, "user:"+senderID,
				"You are approved. Send a message to start chatting.")
			return err
		},
	}
}

func startAccount(_ context.Context, deps channels.AccountDeps, c *client) (func(), error) {
	acct := resolveAccount(deps.Cfg, deps.AccountID)
	if !acct.enabled {
		return nil, fmt.Errorf("lark account %s is disabled", acct.id)
	}
	if !acct.configured() {
		return nil, fmt.Errorf("lark account %s missing app credentials or verification token", acct.id)
	}

	handler := webhookHandler(func() accountContext {
		return accountContext{
			acct:           resolveAccount(deps.Cfg, deps.AccountID),
			deps:           deps,
			client:         c,
			processTimeout: processTimeout,
		}
	})

	unregister, err := deps.Routes.RegisterRoute(acct.webhookPath, "lark", acct.id, handler)
	if err != nil {
		return nil, fmt.Errorf("register lark webhook: %w", err)
	}
	return unregister, nil
}

// probe fetches a tenant token to verify the app credentials work.
func (c *client) probe(ctx context.Context, cfg *config.Config, accountID string) error {
	acct := resolveAccount(cfg, accountID)
	if !acct.enabled {
		return fmt.Errorf("account %s disabled", acct.id)
	}
	if !acct.configured() {
		return fmt.Errorf("account %s missing app credentials or verification token", acct.id)
	}
	if _, err := c.tenantToken(ctx, acct); err != nil {
		return fmt.Errorf("credential check: %w", err)
	}
	return nil
}
