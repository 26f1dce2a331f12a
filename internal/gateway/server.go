// Package gateway runs the HTTP front door: the dynamic webhook route
// registry channel accounts plug into, plus health and metrics endpoints.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("clawbridge/gateway")

// Options configure a Server.
type Options struct {
	Host          string
	Port          int
	RatePerMinute int
	// Registry receives the /metrics collectors. Nil uses the default.
	Registry *prometheus.Registry
}

type routeEntry struct {
	pluginID  string
	accountID string
	handler   http.HandlerFunc
}

// Server is the gateway HTTP server. Webhook routes are registered and
// unregistered at runtime as channel accounts start and stop.
type Server struct {
	opts    Options
	limiter *ipLimiter

	mu     sync.RWMutex
	routes map[string]*routeEntry

	srv *http.Server
}

// NewServer creates a Server. It does not listen until Start.
func NewServer(opts Options) *Server {
	s := &Server{
		opts:    opts,
		limiter: newIPLimiter(opts.RatePerMinute),
		routes:  make(map[string]*routeEntry),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
	if opts.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/", s.dispatch)

	s.srv = &http.Server{
		Addr:              net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// RegisterRoute adds a webhook route. It fails when the path is already
// owned by a different plugin account. The returned function removes the
// route; calling it more than once is harmless.
func (s *Server) RegisterRoute(path, pluginID, accountID string, handler http.HandlerFunc) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.routes[path]; ok {
		if existing.pluginID == pluginID && existing.accountID == accountID {
			return nil, fmt.Errorf("route %s already registered for %s/%s", path, pluginID, accountID)
		}
		return nil, fmt.Errorf("route %s already owned by %s/%s", path, existing.pluginID, existing.accountID)
	}
	entry := &routeEntry{pluginID: pluginID, accountID: accountID, handler: handler}
	s.routes[path] = entry
	slog.Info("webhook route registered", "path", path, "channel", pluginID, "account", accountID)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.routes[path] == entry {
				delete(s.routes, path)
			}
			s.mu.Unlock()
			slog.Info("webhook route removed", "path", path, "channel", pluginID, "account", accountID)
		})
	}, nil
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	entry, ok := s.routes[r.URL.Path]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	if !s.limiter.allow(remoteIP(r)) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	ctx, span := tracer.Start(r.Context(), "gateway.webhook",
		trace.WithAttributes(
			attribute.String("channel", entry.pluginID),
			attribute.String("account", entry.accountID),
			attribute.String("http.path", r.URL.Path),
		))
	defer span.End()

	entry.handler(w, r.WithContext(ctx))
}

// Start listens and serves until the context is canceled, then drains.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
