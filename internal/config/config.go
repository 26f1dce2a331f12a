// Package config defines the clawbridge configuration tree.
// The file format is JSON5 (comments and trailing commas allowed), with
// env-var overrides layered on top. Channel accounts are resolved lazily
// by the channel packages; this package only carries the raw tree.
package config

import (
	"encoding/json"
	"sync"
)

// Config is the root configuration object.
type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	Commands  CommandsConfig  `json:"commands"`
	Session   SessionConfig   `json:"session"`
	Routing   RoutingConfig   `json:"routing"`
	Gateway   GatewayConfig   `json:"gateway"`
	State     StateConfig     `json:"state"`
	Telemetry TelemetryConfig `json:"telemetry"`

	mu sync.RWMutex `json:"-"`
}

// ChannelsConfig contains per-vendor channel configuration.
type ChannelsConfig struct {
	Defaults ChannelDefaults `json:"defaults"`
	DingTalk *DingTalkConfig `json:"dingtalk,omitempty"`
	Lark     *LarkConfig     `json:"lark,omitempty"`
}

// ChannelDefaults hold cross-channel fallbacks.
type ChannelDefaults struct {
	GroupPolicy string `json:"group_policy,omitempty"` // fallback when a channel leaves groupPolicy unset
}

// DingTalkConfig configures the DingTalk robot-webhook channel.
// The same shape nests under Accounts for per-account overrides.
type DingTalkConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Name    string `json:"name,omitempty"`

	// Custom robot webhook credential (the access_token query value).
	AccessToken string `json:"access_token,omitempty"`
	// Optional shared token from the outgoing-webhook settings.
	VerificationToken string `json:"verification_token,omitempty"`
	WebhookPath       string `json:"webhook_path,omitempty"`

	DMPolicy       string   `json:"dm_policy,omitempty"` // "pairing" (default), "allowlist", "open", "disabled"
	AllowFrom      []string `json:"allow_from,omitempty"`
	GroupPolicy    string   `json:"group_policy,omitempty"` // "allowlist" (default), "open", "disabled"
	GroupAllowFrom []string `json:"group_allow_from,omitempty"`

	// Opaque blobs consumed by the host runtime, passed through unmodified.
	Tools                  json.RawMessage `json:"tools,omitempty"`
	Markdown               json.RawMessage `json:"markdown,omitempty"`
	BlockStreamingCoalesce json.RawMessage `json:"block_streaming_coalesce,omitempty"`

	HistoryLimit   *int   `json:"history_limit,omitempty"`
	DMHistoryLimit *int   `json:"dm_history_limit,omitempty"`
	TextChunkLimit *int   `json:"text_chunk_limit,omitempty"`
	ChunkMode      string `json:"chunk_mode,omitempty"` // "length" or "newline"
	BlockStreaming *bool  `json:"block_streaming,omitempty"`

	Accounts map[string]*DingTalkConfig `json:"accounts,omitempty"`
}

// LarkConfig configures the Lark/Feishu event-subscription channel.
// The same shape nests under Accounts for per-account overrides.
type LarkConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Name    string `json:"name,omitempty"`

	AppID             string `json:"app_id,omitempty"`
	AppSecret         string `json:"app_secret,omitempty"`
	VerificationToken string `json:"verification_token,omitempty"`
	WebhookPath       string `json:"webhook_path,omitempty"`

	DMPolicy       string   `json:"dm_policy,omitempty"`
	AllowFrom      []string `json:"allow_from,omitempty"`
	GroupPolicy    string   `json:"group_policy,omitempty"`
	GroupAllowFrom []string `json:"group_allow_from,omitempty"`

	Tools                  json.RawMessage `json:"tools,omitempty"`
	Markdown               json.RawMessage `json:"markdown,omitempty"`
	BlockStreamingCoalesce json.RawMessage `json:"block_streaming_coalesce,omitempty"`

	HistoryLimit   *int   `json:"history_limit,omitempty"`
	DMHistoryLimit *int   `json:"dm_history_limit,omitempty"`
	TextChunkLimit *int   `json:"text_chunk_limit,omitempty"`
	ChunkMode      string `json:"chunk_mode,omitempty"`
	BlockStreaming *bool  `json:"block_streaming,omitempty"`

	Accounts map[string]*LarkConfig `json:"accounts,omitempty"`
}

// CommandsConfig controls control-command handling on chat surfaces.
type CommandsConfig struct {
	UseAccessGroups *bool    `json:"use_access_groups,omitempty"` // default true
	Text            *bool    `json:"text,omitempty"`              // handle text commands (default true)
	TextDisabledFor []string `json:"text_disabled_for,omitempty"` // surfaces with text commands off
}

// SessionConfig controls where session metadata lives.
type SessionConfig struct {
	Store string `json:"store,omitempty"` // directory template, {agentId} substituted
}

// RoutingConfig controls agent routing.
type RoutingConfig struct {
	DefaultAgentID string `json:"default_agent_id,omitempty"` // default "default"
}

// GatewayConfig controls the webhook HTTP server.
type GatewayConfig struct {
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	RateLimitRPM int    `json:"rate_limit_rpm,omitempty"` // per-key webhook rate limit (0 = default)
	Metrics      *bool  `json:"metrics,omitempty"`        // expose /metrics (default true)
}

// StateConfig controls local state (pairing DB).
type StateConfig struct {
	Dir string `json:"dir,omitempty"` // default ~/.clawbridge
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" or "http"
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}
