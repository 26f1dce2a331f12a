// Package activity tracks per-account message traffic: Prometheus counters
// for scraping plus in-memory last-seen timestamps for status snapshots.
package activity

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder counts inbound and outbound messages per channel account.
type Recorder struct {
	inbound  *prometheus.CounterVec
	outbound *prometheus.CounterVec
	dropped  *prometheus.CounterVec

	mu   sync.Mutex
	last map[activityKey]lastSeen
}

type activityKey struct {
	channel   string
	accountID string
}

type lastSeen struct {
	inboundAt  int64
	outboundAt int64
}

// NewRecorder creates a Recorder and registers its collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clawbridge",
			Name:      "inbound_messages_total",
			Help:      "Inbound messages accepted per channel account.",
		}, []string{"channel", "account"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clawbridge",
			Name:      "outbound_messages_total",
			Help:      "Outbound messages sent per channel account.",
		}, []string{"channel", "account"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clawbridge",
			Name:      "dropped_messages_total",
			Help:      "Inbound messages dropped by admission policy.",
		}, []string{"channel", "account", "reason"}),
		last: make(map[activityKey]lastSeen),
	}
	if reg != nil {
		reg.MustRegister(r.inbound, r.outbound, r.dropped)
	}
	return r
}

// RecordInbound notes one accepted inbound message.
func (r *Recorder) RecordInbound(channel, accountID string) {
	r.inbound.WithLabelValues(channel, accountID).Inc()
	r.mu.Lock()
	key := activityKey{channel, accountID}
	entry := r.last[key]
	entry.inboundAt = time.Now().UnixMilli()
	r.last[key] = entry
	r.mu.Unlock()
}

// RecordOutbound notes one delivered outbound message.
func (r *Recorder) RecordOutbound(channel, accountID string) {
	r.outbound.WithLabelValues(channel, accountID).Inc()
	r.mu.Lock()
	key := activityKey{channel, accountID}
	entry := r.last[key]
	entry.outboundAt = time.Now().UnixMilli()
	r.last[key] = entry
	r.mu.Unlock()
}

// RecordDrop notes one message rejected by admission policy.
func (r *Recorder) RecordDrop(channel, accountID, reason string) {
	r.dropped.WithLabelValues(channel, accountID, reason).Inc()
}

// LastSeen returns the last inbound/outbound timestamps (epoch ms) for an
// account. Zero means never.
func (r *Recorder) LastSeen(channel, accountID string) (inboundAt, outboundAt int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.last[activityKey{channel, accountID}]
	return entry.inboundAt, entry.outboundAt
}
