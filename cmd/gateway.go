package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawbridge/internal/activity"
	"github.com/nextlevelbuilder/clawbridge/internal/channels"
	"github.com/nextlevelbuilder/clawbridge/internal/channels/dingtalk"
	"github.com/nextlevelbuilder/clawbridge/internal/channels/lark"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
	"github.com/nextlevelbuilder/clawbridge/internal/gateway"
	"github.com/nextlevelbuilder/clawbridge/internal/reply"
	"github.com/nextlevelbuilder/clawbridge/internal/store/file"
	"github.com/nextlevelbuilder/clawbridge/internal/store/sqlite"
	"github.com/nextlevelbuilder/clawbridge/internal/telemetry"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the webhook gateway",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func buildPlugins() []*channels.Plugin {
	return []*channels.Plugin{
		dingtalk.New(),
		lark.New(),
	}
}

func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	pairing, err := sqlite.Open(cfg.StateDir())
	if err != nil {
		slog.Error("pairing store open failed", "error", err)
		os.Exit(1)
	}
	defer pairing.Close()

	registry := prometheus.NewRegistry()
	recorder := activity.NewRecorder(registry)

	var metricsRegistry *prometheus.Registry
	if cfg.Gateway.Metrics == nil || *cfg.Gateway.Metrics {
		metricsRegistry = registry
	}
	server := gateway.NewServer(gateway.Options{
		Host:          cfg.Gateway.Host,
		Port:          cfg.Gateway.Port,
		RatePerMinute: cfg.Gateway.RateLimitRPM,
		Registry:      metricsRegistry,
	})

	host := &channels.Host{
		Pairing:  pairing,
		Sessions: file.NewSessionStore(),
		Activity: recorder,
	}
	mgr := channels.NewManager(cfg, server, host, buildPlugins())
	host.Inbound = controlSink(mgr)

	mgr.StartAll(ctx)
	defer mgr.StopAll()

	go watchConfig(ctx, cfgPath, mgr)

	if err := server.Start(ctx); err != nil {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

// watchConfig restarts channel accounts when the config file changes.
func watchConfig(ctx context.Context, cfgPath string, mgr *channels.Manager) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config watch unavailable", "error", err)
		return
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file, which drops a
	// watch set on the file itself.
	if err := watcher.Add(filepath.Dir(cfgPath)); err != nil {
		slog.Warn("config watch failed", "error", err)
		return
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(cfgPath) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, func() {
				reloadConfig(ctx, cfgPath, mgr)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watch error", "error", err)
		}
	}
}

func reloadConfig(ctx context.Context, cfgPath string, mgr *channels.Manager) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("config reload rejected", "error", err)
		return
	}
	slog.Info("config changed, restarting channel accounts")
	mgr.StopAll()
	mgr.SwapConfig(cfg)
	mgr.StartAll(ctx)
}

// controlSink answers authorized control commands inline. Everything else
// is logged for the host agent runtime, which sits outside this bridge.
func controlSink(mgr *channels.Manager) channels.InboundSink {
	return func(ctx context.Context, msg *reply.InboundContext, out *reply.Dispatcher) {
		if !reply.HasControlCommand(msg.RawBody) {
			slog.Info("inbound message",
				"channel", msg.Provider, "account", msg.AccountID,
				"session", msg.SessionKey, "from", msg.From)
			return
		}
		if !msg.CommandAuthorized {
			slog.Info("control command ignored, sender not authorized",
				"channel", msg.Provider, "from", msg.From)
			return
		}

		word := strings.Fields(strings.TrimSpace(msg.RawBody))[0]
		if idx := strings.IndexByte(word, '@'); idx > 0 {
			word = word[:idx]
		}
		switch strings.ToLower(word) {
		case "/status":
			out.Flush(ctx, reply.Payload{Text: statusText(mgr)})
		case "/help":
			out.Flush(ctx, reply.Payload{Text: "Commands: /status, /help"})
		default:
			out.Flush(ctx, reply.Payload{Text: fmt.Sprintf("Unknown command %s. Try /help.", word)})
		}
	}
}

func statusText(mgr *channels.Manager) string {
	var b strings.Builder
	for _, p := range mgr.Plugins() {
		for _, snap := range mgr.Snapshots(p) {
			state := "stopped"
			if snap.Running {
				state = "running"
			}
			if !snap.Configured {
				state = "not configured"
			}
			fmt.Fprintf(&b, "%s/%s: %s\n", p.Meta.ID, snap.AccountID, state)
		}
	}
	if b.Len() == 0 {
		return "No channel accounts configured."
	}
	return strings.TrimRight(b.String(), "\n")
}
