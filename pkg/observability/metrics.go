package observability

import (
	"context"
	"sync"

	"github.com/aretw0/troupe/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "troupe"

// Metrics holds the Prometheus collectors fed by the runtime hooks.
type Metrics struct {
	ActorStarts  *prometheus.CounterVec
	ActorStops   *prometheus.CounterVec
	ActorErrors  *prometheus.CounterVec
	ActiveActors prometheus.Gauge
	Events       *prometheus.CounterVec
	EventLatency *prometheus.HistogramVec
	Transitions  *prometheus.CounterVec

	// running tracks actors whose start was counted, so a failure before
	// start does not drive the gauge negative.
	running sync.Map
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActorStarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actor_starts_total",
				Help:      "Total number of actors started",
			},
			[]string{"logic"},
		),
		ActorStops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actor_stops_total",
				Help:      "Total number of actors stopped, by final snapshot status",
			},
			[]string{"logic", "status"},
		),
		ActorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actor_errors_total",
				Help:      "Total number of actors that failed",
			},
			[]string{"logic"},
		),
		ActiveActors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_actors",
				Help:      "Number of actors currently running",
			},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_processed_total",
				Help:      "Total number of events processed",
			},
			[]string{"event", "status"},
		),
		EventLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_duration_seconds",
				Help:      "Duration of event processing (one macrostep)",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"event"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of transitions taken",
			},
			[]string{"source"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.ActorStarts,
			m.ActorStops,
			m.ActorErrors,
			m.ActiveActors,
			m.Events,
			m.EventLatency,
			m.Transitions,
		)
	}
	return m
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnActorStart: func(_ context.Context, e *domain.ActorEvent) {
			m.ActorStarts.WithLabelValues(e.Logic).Inc()
			if _, loaded := m.running.LoadOrStore(actorKey(e), struct{}{}); !loaded {
				m.ActiveActors.Inc()
			}
		},
		OnActorStop: func(_ context.Context, e *domain.ActorEvent) {
			m.ActorStops.WithLabelValues(e.Logic, string(e.Status)).Inc()
			m.release(e)
		},
		OnActorError: func(_ context.Context, e *domain.ActorEvent) {
			m.ActorErrors.WithLabelValues(e.Logic).Inc()
			m.release(e)
		},
		OnEvent: func(_ context.Context, e *domain.MessageEvent) {
			m.Events.WithLabelValues(e.Event.Type, string(e.Status)).Inc()
			m.EventLatency.WithLabelValues(e.Event.Type).Observe(e.Duration.Seconds())
		},
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.Transitions.WithLabelValues(e.Source).Inc()
		},
	}
}

func (m *Metrics) release(e *domain.ActorEvent) {
	if _, loaded := m.running.LoadAndDelete(actorKey(e)); loaded {
		m.ActiveActors.Dec()
	}
}

func actorKey(e *domain.ActorEvent) string {
	return e.SessionID + "/" + e.ActorID
}
