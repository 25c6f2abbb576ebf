package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventsTotal counts events by type, source, and severity in the default
// prometheus registry.
var EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "backlog_events_total",
	Help: "Observability events by type, source, and severity",
}, []string{"type", "source", "level"})

// MetricsObserver increments EventsTotal for every event. It keeps no
// per-instance state, so all instances share the same series.
type MetricsObserver struct{}

// NewMetricsObserver creates a MetricsObserver.
func NewMetricsObserver() MetricsObserver {
	return MetricsObserver{}
}

func (MetricsObserver) OnEvent(_ context.Context, event Event) {
	EventsTotal.WithLabelValues(string(event.Type), event.Source, event.Level.String()).Inc()
}
