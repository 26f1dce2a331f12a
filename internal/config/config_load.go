package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         18891,
			RateLimitRPM: 60,
		},
		Routing: RoutingConfig{
			DefaultAgentID: "default",
		},
		Session: SessionConfig{
			Store: "~/.clawbridge/sessions/{agentId}",
		},
		State: StateConfig{
			Dir: "~/.clawbridge",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ensureDingTalk := func() *DingTalkConfig {
		if c.Channels.DingTalk == nil {
			c.Channels.DingTalk = &DingTalkConfig{}
		}
		return c.Channels.DingTalk
	}
	ensureLark := func() *LarkConfig {
		if c.Channels.Lark == nil {
			c.Channels.Lark = &LarkConfig{}
		}
		return c.Channels.Lark
	}

	if v := os.Getenv("CLAWBRIDGE_DINGTALK_ACCESS_TOKEN"); v != "" {
		ensureDingTalk().AccessToken = v
	}
	if v := os.Getenv("CLAWBRIDGE_DINGTALK_VERIFICATION_TOKEN"); v != "" {
		ensureDingTalk().VerificationToken = v
	}
	if v := os.Getenv("CLAWBRIDGE_LARK_APP_ID"); v != "" {
		ensureLark().AppID = v
	}
	if v := os.Getenv("CLAWBRIDGE_LARK_APP_SECRET"); v != "" {
		ensureLark().AppSecret = v
	}
	if v := os.Getenv("CLAWBRIDGE_LARK_VERIFICATION_TOKEN"); v != "" {
		ensureLark().VerificationToken = v
	}

	envStr("CLAWBRIDGE_HOST", &c.Gateway.Host)
	if v := os.Getenv("CLAWBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	envStr("CLAWBRIDGE_STATE_DIR", &c.State.Dir)
	envStr("CLAWBRIDGE_SESSION_STORE", &c.Session.Store)

	envStr("CLAWBRIDGE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CLAWBRIDGE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("CLAWBRIDGE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("CLAWBRIDGE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CLAWBRIDGE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// StateDir returns the expanded state directory.
func (c *Config) StateDir() string {
	return ExpandHome(c.State.Dir)
}

// UseAccessGroups reports whether command access groups are enabled (default true).
func (c *CommandsConfig) AccessGroupsEnabled() bool {
	return c.UseAccessGroups == nil || *c.UseAccessGroups
}

// TextCommandsEnabled reports whether text commands are handled on a surface.
func (c *CommandsConfig) TextCommandsEnabled(surface string) bool {
	if c.Text != nil && !*c.Text {
		return false
	}
	for _, s := range c.TextDisabledFor {
		if strings.EqualFold(strings.TrimSpace(s), surface) {
			return false
		}
	}
	return true
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
