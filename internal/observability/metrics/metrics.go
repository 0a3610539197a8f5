// Package metrics exposes Prometheus instrumentation for the
// authentication flow.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	authAttemptsTotal *prometheus.CounterVec
	authResultsTotal  *prometheus.CounterVec
	providerDuration  *prometheus.HistogramVec
)

// Register initializes the collectors against the registry (default
// registerer when nil) and returns the /metrics handler.
func Register(registry prometheus.Registerer) http.Handler {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	once.Do(func() {
		authAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siwe_auth_attempts_total",
			Help: "Authentication attempts reaching the callback, per provider.",
		}, []string{"provider"})

		authResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siwe_auth_results_total",
			Help: "Authentication outcomes per provider and result code.",
		}, []string{"provider", "result"})

		providerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "siwe_provider_request_duration_seconds",
			Help:    "Latency of outbound provider calls (exchange plus profile fetch).",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"})

		registry.MustRegister(authAttemptsTotal, authResultsTotal, providerDuration)
	})
	return promhttp.Handler()
}

// AuthAttempt counts one callback reaching the exchange stage.
func AuthAttempt(provider string) {
	if authAttemptsTotal != nil {
		authAttemptsTotal.WithLabelValues(provider).Inc()
	}
}

// AuthResult counts one outcome; result is "success" or the stable error
// code sent back to the browser.
func AuthResult(provider, result string) {
	if authResultsTotal != nil {
		authResultsTotal.WithLabelValues(provider, result).Inc()
	}
}

// ObserveProviderCall records the wall time of the provider round trips.
func ObserveProviderCall(provider string, d time.Duration) {
	if providerDuration != nil {
		providerDuration.WithLabelValues(provider).Observe(d.Seconds())
	}
}
