package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Callback outcome labels
const (
	OutcomeSuccess       = "success"
	OutcomeProviderError = "provider_error"
	OutcomeInvalidState  = "invalid_state"
	OutcomeInvalidNonce  = "invalid_nonce"
	OutcomeExchangeError = "exchange_failed"
	OutcomeMalformed     = "malformed_token"
	OutcomeDenied        = "access_denied"
	OutcomeDuplicate     = "duplicate"
	OutcomeOther         = "error"
)

// Metrics holds the login flow instruments on a private registry
type Metrics struct {
	registry *prometheus.Registry

	LoginsStarted    prometheus.Counter
	CallbackOutcomes *prometheus.CounterVec
	ExchangeDuration *prometheus.HistogramVec
	SessionsExpired  prometheus.Counter
	Logouts          prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LoginsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pingdaily_login_initiations_total",
			Help: "Authorization redirects issued",
		}),
		CallbackOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pingdaily_callback_outcomes_total",
			Help: "OAuth callback results by outcome",
		}, []string{"outcome"}),
		ExchangeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pingdaily_token_exchange_duration_seconds",
			Help:    "Latency of code-for-token exchanges with the provider",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"result"}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "pingdaily_sessions_expired_total",
			Help: "Sessions ended because the backend rejected the access token",
		}),
		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "pingdaily_logouts_total",
			Help: "Explicit logouts",
		}),
	}
}

// ObserveExchange records one exchange duration
func (m *Metrics) ObserveExchange(start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ExchangeDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

func (m *Metrics) LoginStarted() {
	m.LoginsStarted.Inc()
}

// SessionExpired counts a session ended by a backend 401
func (m *Metrics) SessionExpired() {
	m.SessionsExpired.Inc()
}

func (m *Metrics) LoggedOut() {
	m.Logouts.Inc()
}

func (m *Metrics) Callback(outcome string) {
	m.CallbackOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
