package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "keyhub"

// Auth methods.
const (
	MethodLogin   = "login"
	MethodSession = "session"
	MethodAPIKey  = "api_key"
)

// Metrics holds all Prometheus collectors for the server. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	AuthAttempts  *prometheus.CounterVec
	KeyEvents     *prometheus.CounterVec
	CustomerSyncs *prometheus.CounterVec
	RateLimited   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Authentication attempts by method and outcome.",
		}, []string{"method", "outcome"}), // outcome: ok, or the rejection reason
		KeyEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api_keys",
			Name:      "events_total",
			Help:      "API key lifecycle events by type.",
		}, []string{"event"}),
		CustomerSyncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "customers",
			Name:      "syncs_total",
			Help:      "Customer sync calls by result.",
		}, []string{"result"}), // result: created, updated, error
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-key rate limiter.",
		}),
	}
}

func (m *Metrics) AuthAttempt(method, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) KeyEvent(event string) {
	if m == nil {
		return
	}
	m.KeyEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) CustomerSync(result string) {
	if m == nil {
		return
	}
	m.CustomerSyncs.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimit() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
