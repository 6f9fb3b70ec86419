package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playback bridge.
// A nil *Metrics records nothing, so components can run without it in tests.
type Metrics struct {
	registry                *prometheus.Registry
	requestsTotal           prometheus.Counter
	errorsTotal             prometheus.Counter
	commandsTotal           *prometheus.CounterVec
	handleErrorsTotal       *prometheus.CounterVec
	eventsEmittedTotal      *prometheus.CounterVec
	projectionFailuresTotal *prometheus.CounterVec
	activePlayers           prometheus.Gauge
	eventSubscribers        prometheus.Gauge
}

// New creates and registers Prometheus metrics for the bridge.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bridge_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bridge_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	commandsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_commands_total",
		Help: "Total number of player commands dispatched to a resolved handle",
	}, []string{"command"})
	handleErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_handle_errors_total",
		Help: "Total number of commands rejected because the handle did not resolve to a player",
	}, []string{"reason"})
	eventsEmittedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_events_emitted_total",
		Help: "Total number of canonical events delivered to the host",
	}, []string{"kind"})
	projectionFailuresTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_projection_failures_total",
		Help: "Total number of event payloads that failed to build and were emitted degraded",
	}, []string{"kind"})
	activePlayers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_active_players",
		Help: "Number of registered players",
	})
	eventSubscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_event_subscribers",
		Help: "Number of connected event stream subscribers",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		commandsTotal,
		handleErrorsTotal,
		eventsEmittedTotal,
		projectionFailuresTotal,
		activePlayers,
		eventSubscribers,
	)

	return &Metrics{
		registry:                registry,
		requestsTotal:           requestsTotal,
		errorsTotal:             errorsTotal,
		commandsTotal:           commandsTotal,
		handleErrorsTotal:       handleErrorsTotal,
		eventsEmittedTotal:      eventsEmittedTotal,
		projectionFailuresTotal: projectionFailuresTotal,
		activePlayers:           activePlayers,
		eventSubscribers:        eventSubscribers,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// IncCommands counts one dispatched command.
func (m *Metrics) IncCommands(command string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command).Inc()
}

// IncHandleErrors counts one command rejected for an unusable handle.
func (m *Metrics) IncHandleErrors(reason string) {
	if m == nil {
		return
	}
	m.handleErrorsTotal.WithLabelValues(reason).Inc()
}

// IncEventsEmitted counts one emitted canonical event.
func (m *Metrics) IncEventsEmitted(kind string) {
	if m == nil {
		return
	}
	m.eventsEmittedTotal.WithLabelValues(kind).Inc()
}

// IncProjectionFailures counts one payload that failed to build.
func (m *Metrics) IncProjectionFailures(kind string) {
	if m == nil {
		return
	}
	m.projectionFailuresTotal.WithLabelValues(kind).Inc()
}

// SetActivePlayers sets the active players gauge.
func (m *Metrics) SetActivePlayers(n int) {
	if m == nil {
		return
	}
	m.activePlayers.Set(float64(n))
}

// SetEventSubscribers sets the event subscribers gauge.
func (m *Metrics) SetEventSubscribers(n int) {
	if m == nil {
		return
	}
	m.eventSubscribers.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active players).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
