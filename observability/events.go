package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"vertix/core/events"
)

type settlementMetrics struct {
	lifecycle *prometheus.CounterVec
}

var (
	settlementOnce     sync.Once
	settlementRegistry *settlementMetrics
)

// Settlement returns the metrics registry tracking escrow lifecycle events.
func Settlement() *settlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &settlementMetrics{
			lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vertix",
				Subsystem: "escrow",
				Name:      "events_total",
				Help:      "Count of escrow lifecycle notifications segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(settlementRegistry.lifecycle)
	})
	return settlementRegistry
}

// RecordEvent increments the lifecycle counter for the supplied event type.
func (m *settlementMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.lifecycle.WithLabelValues(normalized).Inc()
}

// Emitter wraps a downstream emitter and records each event in prometheus
// before forwarding it.
type Emitter struct {
	next events.Emitter
}

// NewEmitter wraps the supplied emitter; a nil next discards after counting.
func NewEmitter(next events.Emitter) *Emitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &Emitter{next: next}
}

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	Settlement().RecordEvent(evt.EventType())
	e.next.Emit(evt)
}
