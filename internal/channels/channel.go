// Package channels defines the contract between the gateway and a vendor
// channel plugin, plus the shared account/allowlist helpers.
//
// A plugin is one descriptor value composed of small capability groups
// (config, security, messaging, outbound, status, gateway) rather than a
// single wide interface. Each vendor package supplies exactly one Plugin.
package channels

import (
	"context"
	"net/http"

	"github.com/nextlevelbuilder/clawbridge/internal/config"
	"github.com/nextlevelbuilder/clawbridge/internal/reply"
)

// DMPolicy values control how direct messages from unknown senders are handled.
const (
	DMPolicyPairing   = "pairing"
	DMPolicyAllowlist = "allowlist"
	DMPolicyOpen      = "open"
	DMPolicyDisabled  = "disabled"
)

// GroupPolicy values control how group messages are handled.
const (
	GroupPolicyAllowlist = "allowlist"
	GroupPolicyOpen      = "open"
	GroupPolicyDisabled  = "disabled"
)

// Meta describes a plugin for listings and docs.
type Meta struct {
	ID      string
	Label   string
	Blurb   string
	Aliases []string
}

// AccountInfo is the externally visible description of a resolved account.
type AccountInfo struct {
	AccountID   string
	Name        string
	Enabled     bool
	Configured  bool
	WebhookPath string
}

// AccountSnapshot extends AccountInfo with runtime status.
type AccountSnapshot struct {
	AccountInfo
	Running        bool
	LastStartAt    int64
	LastStopAt     int64
	LastError      string
	LastInboundAt  int64
	LastOutboundAt int64
	ProbeOK        *bool
}

// ConfigOps resolves accounts out of the raw configuration tree.
type ConfigOps struct {
	ListAccountIDs     func(cfg *config.Config) []string
	DescribeAccount    func(cfg *config.Config, accountID string) AccountInfo
	UnconfiguredReason string
	ResolveAllowFrom   func(cfg *config.Config, accountID string) []string
}

// SecurityOps expose the DM admission policy of an account.
type SecurityOps struct {
	ResolveDMPolicy func(cfg *config.Config, accountID string) DMPolicyView
	NormalizeEntry  func(raw string) string
}

// DMPolicyView is the resolved DM policy of one account.
type DMPolicyView struct {
	Policy    string
	AllowFrom []string
}

// MessagingOps normalize outbound targets.
type MessagingOps struct {
	NormalizeTarget func(raw string) (string, bool)
	LooksLikeID     func(raw string) bool
	TargetHint      string
}

// SendResult reports the outcome of an outbound send.
type SendResult struct {
	MessageID string
}

// OutboundOps deliver replies through the vendor API.
type OutboundOps struct {
	TextChunkLimit int
	SendText       func(ctx context.Context, cfg *config.Config, accountID, target, text string) (SendResult, error)
	SendPayload    func(ctx context.Context, cfg *config.Config, accountID, target string, payload reply.Payload) (SendResult, error)
}

// StatusOps probe account health.
type StatusOps struct {
	Probe func(ctx context.Context, cfg *config.Config, accountID string) error
}

// GatewayOps own the webhook lifecycle of one account.
type GatewayOps struct {
	// StartAccount registers the account's webhook route and returns a stop
	// function. It fails when the account is not configured.
	StartAccount func(ctx context.Context, deps AccountDeps) (stop func(), err error)
}

// Plugin is one vendor channel, assembled from capability groups.
type Plugin struct {
	Meta      Meta
	Config    ConfigOps
	Security  SecurityOps
	Messaging MessagingOps
	Outbound  OutboundOps
	Status    StatusOps
	Gateway   GatewayOps

	// NotifyApproval informs a newly approved sender, when the vendor
	// supports DMs. Nil for group-only vendors.
	NotifyApproval func(ctx context.Context, cfg *config.Config, senderID string) error
}

// RouteRegistrar registers webhook routes keyed by path+plugin+account.
// Implemented by the gateway server.
type RouteRegistrar interface {
	RegisterRoute(path, pluginID, accountID string, handler http.HandlerFunc) (unregister func(), err error)
}

// StatusSink receives activity timestamps from a running account.
type StatusSink func(patch StatusPatch)

// StatusPatch updates runtime status fields; zero values mean "unchanged".
type StatusPatch struct {
	LastInboundAt  int64
	LastOutboundAt int64
}

// AccountDeps bundles the host collaborators handed to a starting account.
type AccountDeps struct {
	AccountID string
	Cfg       *config.Config
	Routes    RouteRegistrar
	Host      *Host
	Status    StatusSink
}
