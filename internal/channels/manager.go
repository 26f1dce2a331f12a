package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/config"
)

// Manager owns the lifecycle of every plugin account: it starts enabled
// configured accounts, tracks their runtime status, and stops them on
// shutdown or config reload.
type Manager struct {
	cfg     *config.Config
	routes  RouteRegistrar
	host    *Host
	plugins map[string]*Plugin

	mu      sync.Mutex
	running map[accountKey]*runningAccount
	status  map[accountKey]*runtimeStatus
}

type accountKey struct {
	pluginID  string
	accountID string
}

type runningAccount struct {
	stop func()
}

type runtimeStatus struct {
	lastStartAt    int64
	lastStopAt     int64
	lastError      string
	lastInboundAt  int64
	lastOutboundAt int64
}

// NewManager creates a Manager over the given plugins.
func NewManager(cfg *config.Config, routes RouteRegistrar, host *Host, plugins []*Plugin) *Manager {
	byID := make(map[string]*Plugin, len(plugins))
	for _, p := range plugins {
		byID[p.Meta.ID] = p
	}
	return &Manager{
		cfg:     cfg,
		routes:  routes,
		host:    host,
		plugins: byID,
		running: make(map[accountKey]*runningAccount),
		status:  make(map[accountKey]*runtimeStatus),
	}
}

// Plugins returns the registered plugins sorted by id.
func (m *Manager) Plugins() []*Plugin {
	out := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta.ID < out[j].Meta.ID })
	return out
}

// Plugin returns the plugin with the given id or alias.
func (m *Manager) Plugin(id string) (*Plugin, bool) {
	if p, ok := m.plugins[id]; ok {
		return p, true
	}
	for _, p := range m.plugins {
		for _, alias := range p.Meta.Aliases {
			if alias == id {
				return p, true
			}
		}
	}
	return nil, false
}

// config returns the current config. SwapConfig replaces it under the
// same lock during hot reload.
func (m *Manager) config() *config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// StartAll starts every enabled, configured account of every plugin.
// Individual account failures are logged and do not abort the rest.
func (m *Manager) StartAll(ctx context.Context) {
	cfg := m.config()
	for _, p := range m.Plugins() {
		for _, accountID := range p.Config.ListAccountIDs(cfg) {
			info := p.Config.DescribeAccount(cfg, accountID)
			if !info.Enabled {
				continue
			}
			if !info.Configured {
				slog.Warn("channel account not configured, skipping",
					"channel", p.Meta.ID, "account", accountID,
					"reason", p.Config.UnconfiguredReason)
				continue
			}
			if err := m.startAccount(ctx, p, accountID); err != nil {
				slog.Error("channel account start failed",
					"channel", p.Meta.ID, "account", accountID, "error", err)
			}
		}
	}
}

func (m *Manager) startAccount(ctx context.Context, p *Plugin, accountID string) error {
	key := accountKey{p.Meta.ID, accountID}

	m.mu.Lock()
	if _, ok := m.running[key]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	deps := AccountDeps{
		AccountID: accountID,
		Cfg:       m.config(),
		Routes:    m.routes,
		Host:      m.host,
		Status:    m.statusSink(key),
	}
	stop, err := p.Gateway.StartAccount(ctx, deps)
	if err != nil {
		m.mu.Lock()
		m.ensureStatus(key).lastError = err.Error()
		m.mu.Unlock()
		return fmt.Errorf("start %s/%s: %w", p.Meta.ID, accountID, err)
	}

	m.mu.Lock()
	m.running[key] = &runningAccount{stop: stop}
	st := m.ensureStatus(key)
	st.lastStartAt = time.Now().UnixMilli()
	st.lastError = ""
	m.mu.Unlock()

	slog.Info("channel account started", "channel", p.Meta.ID, "account", accountID)
	return nil
}

// StopAll stops every running account.
func (m *Manager) StopAll() {
	m.mu.Lock()
	stops := make(map[accountKey]func(), len(m.running))
	for key, acct := range m.running {
		stops[key] = acct.stop
		delete(m.running, key)
	}
	m.mu.Unlock()

	for key, stop := range stops {
		stop()
		m.mu.Lock()
		m.ensureStatus(key).lastStopAt = time.Now().UnixMilli()
		m.mu.Unlock()
		slog.Info("channel account stopped", "channel", key.pluginID, "account", key.accountID)
	}
}

// Restart stops everything and starts again from the current config.
// Used by the config hot-reload path.
func (m *Manager) Restart(ctx context.Context) {
	m.StopAll()
	m.StartAll(ctx)
}

// SwapConfig replaces the config used for subsequent starts and lookups.
// Call StopAll before and StartAll after, or just Restart.
func (m *Manager) SwapConfig(cfg *config.Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// Snapshots returns the current status of every account of a plugin.
func (m *Manager) Snapshots(p *Plugin) []AccountSnapshot {
	cfg := m.config()
	ids := p.Config.ListAccountIDs(cfg)
	out := make([]AccountSnapshot, 0, len(ids))
	for _, accountID := range ids {
		key := accountKey{p.Meta.ID, accountID}
		snap := AccountSnapshot{AccountInfo: p.Config.DescribeAccount(cfg, accountID)}

		m.mu.Lock()
		_, snap.Running = m.running[key]
		if st, ok := m.status[key]; ok {
			snap.LastStartAt = st.lastStartAt
			snap.LastStopAt = st.lastStopAt
			snap.LastError = st.lastError
			snap.LastInboundAt = st.lastInboundAt
			snap.LastOutboundAt = st.lastOutboundAt
		}
		m.mu.Unlock()

		if m.host != nil && m.host.Activity != nil {
			in, outAt := m.host.Activity.LastSeen(p.Meta.ID, accountID)
			if in > snap.LastInboundAt {
				snap.LastInboundAt = in
			}
			if outAt > snap.LastOutboundAt {
				snap.LastOutboundAt = outAt
			}
		}
		out = append(out, snap)
	}
	return out
}

func (m *Manager) statusSink(key accountKey) StatusSink {
	return func(patch StatusPatch) {
		m.mu.Lock()
		defer m.mu.Unlock()
		st := m.ensureStatus(key)
		if patch.LastInboundAt > 0 {
			st.lastInboundAt = patch.LastInboundAt
		}
		if patch.LastOutboundAt > 0 {
			st.lastOutboundAt = patch.LastOutboundAt
		}
	}
}

// ensureStatus returns the status record for key, creating it if needed.
// Callers must hold m.mu.
func (m *Manager) ensureStatus(key accountKey) *runtimeStatus {
	st, ok := m.status[key]
	if !ok {
		st = &runtimeStatus{}
		m.status[key] = st
	}
	return st
}
