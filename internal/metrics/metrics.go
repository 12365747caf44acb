package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultDenied    = "denied"
	ResultDuplicate = "duplicate"
	ResultStale     = "stale"
)

// Metrics provides observability for the session lifecycle.
// Tracks code exchanges, refreshes and provider call latency.
type Metrics struct {
	Exchanges         *prometheus.CounterVec
	Refreshes         *prometheus.CounterVec
	RefreshCoalesced  prometheus.Counter
	SignOuts          *prometheus.CounterVec
	ProviderDurations *prometheus.HistogramVec
}

// New creates a Metrics instance registered with reg.
// A nil registerer creates unregistered collectors, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Exchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authsession_code_exchanges_total",
			Help: "Authorization code exchanges by result",
		}, []string{"result"}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authsession_refreshes_total",
			Help: "Refresh token exchanges by result",
		}, []string{"result"}),
		RefreshCoalesced: factory.NewCounter(prometheus.CounterOpts{
			Name: "authsession_refresh_coalesced_total",
			Help: "Refresh requests served by an in-flight refresh for the same session",
		}),
		SignOuts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authsession_sign_outs_total",
			Help: "Sign outs by mode (local or sso)",
		}, []string{"mode"}),
		ProviderDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authsession_provider_request_duration_seconds",
			Help:    "Duration of identity provider calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
	}
}

// IncExchange records a code exchange outcome.
func (m *Metrics) IncExchange(result string) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(result).Inc()
}

// IncRefresh records a refresh outcome.
func (m *Metrics) IncRefresh(result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

// IncRefreshCoalesced records a refresh that piggybacked on another caller's call.
func (m *Metrics) IncRefreshCoalesced() {
	if m == nil {
		return
	}
	m.RefreshCoalesced.Inc()
}

// IncSignOut records a sign out.
func (m *Metrics) IncSignOut(mode string) {
	if m == nil {
		return
	}
	m.SignOuts.WithLabelValues(mode).Inc()
}

// ObserveProvider records the duration of a provider call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveProvider(op string, start time.Time) {
	if m == nil {
		return
	}
	m.ProviderDurations.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
