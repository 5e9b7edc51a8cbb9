// Package metrics provides the Prometheus metrics of the notification engine.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the engine records into.
type Metrics struct {
	NotificationsCreated *prometheus.CounterVec   // rows inserted by type and target
	DispatchRuns         *prometheus.CounterVec   // processPending passes by result
	DispatchTransitions  *prometheus.CounterVec   // per-record outcome: delivered, skipped, unresolved
	PushAttempts         *prometheus.CounterVec   // per-token attempts by platform and status
	DispatchDuration     prometheus.Histogram     // wall time of one pass
	TokenRegistrations   *prometheus.CounterVec   // registry outcomes: created, reactivated, rotated
	HistoryQueries       prometheus.Counter       // admin history reads
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NotificationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notification rows inserted, by type and target",
		}, []string{"type", "target"}),
		DispatchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_dispatch_runs_total",
			Help: "processPending passes, by result",
		}, []string{"result"}), // result: ok, error
		DispatchTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_dispatch_transitions_total",
			Help: "Due notifications handled by the dispatcher, by outcome",
		}, []string{"outcome"}),
		PushAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_push_attempts_total",
			Help: "Per-token push delivery attempts, by platform and status",
		}, []string{"platform", "status"}), // status: success, error, timeout, unregistered
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notification_dispatch_duration_seconds",
			Help:    "Time taken by one processPending pass",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		TokenRegistrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "push_token_registrations_total",
			Help: "Push token registrations, by outcome",
		}, []string{"outcome"}),
		HistoryQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_history_queries_total",
			Help: "Administrative history page reads",
		}),
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// NewUnregistered returns collectors attached to a private registry. Used by tests and
// by binaries that do not expose /metrics.
func NewUnregistered() *Metrics {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.NotificationsCreated,
		m.DispatchRuns,
		m.DispatchTransitions,
		m.PushAttempts,
		m.DispatchDuration,
		m.TokenRegistrations,
		m.HistoryQueries,
	}
}
