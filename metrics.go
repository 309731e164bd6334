package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives command instrumentation.
type Metrics interface {
	ObserveCommand(command string, kind ErrorKind, elapsed time.Duration)
	AccountLocked()
	RefreshRotated()
	RefreshRejected(reason string)
	EventsDropped(n uint64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCommand(string, ErrorKind, time.Duration) {}
func (noopMetrics) AccountLocked()                                  {}
func (noopMetrics) RefreshRotated()                                 {}
func (noopMetrics) RefreshRejected(string)                          {}
func (noopMetrics) EventsDropped(uint64)                            {}

func normalizeMetrics(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

const outcomeOK = "ok"

// PrometheusMetrics implements Metrics with client_golang collectors.
type PrometheusMetrics struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	lockoutsTotal   prometheus.Counter
	refreshTotal    *prometheus.CounterVec
	eventsDropped   prometheus.Counter
}

// NewPrometheusMetrics builds the collectors and registers them with reg.
// A nil registerer skips registration.
func NewPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_commands_total",
				Help:      "Total number of auth commands by outcome.",
			},
			[]string{"command", "outcome"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "auth_command_duration_seconds",
				Help:      "Auth command latencies in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		lockoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_account_lockouts_total",
			Help:      "Accounts locked after repeated failed logins.",
		}),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_refresh_rotations_total",
				Help:      "Refresh token rotations by result.",
			},
			[]string{"result"},
		),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_dropped_total",
			Help:      "Activity events dropped by the dispatcher.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.commandsTotal, m.commandDuration, m.lockoutsTotal, m.refreshTotal, m.eventsDropped)
	}

	return m
}

func (m *PrometheusMetrics) ObserveCommand(command string, kind ErrorKind, elapsed time.Duration) {
	outcome := outcomeOK
	if kind != "" {
		outcome = string(kind)
	}
	m.commandsTotal.WithLabelValues(command, outcome).Inc()
	m.commandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) AccountLocked() { m.lockoutsTotal.Inc() }

func (m *PrometheusMetrics) RefreshRotated() {
	m.refreshTotal.WithLabelValues("rotated").Inc()
}

func (m *PrometheusMetrics) RefreshRejected(reason string) {
	m.refreshTotal.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) EventsDropped(n uint64) {
	if n > 0 {
		m.eventsDropped.Add(float64(n))
	}
}
