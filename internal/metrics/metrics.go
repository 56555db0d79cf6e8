// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcome labels recorded by the auth flow.
const (
	LoginSuccess         = "success"
	LoginBadRequest      = "bad_request"
	LoginProviderError   = "provider_error"
	LoginEmailUnverified = "email_unverified"
	LoginStoreError      = "store_error"
)

// Collector holds the process's Prometheus metrics. One instance is created
// at startup and shared by the auth flow and the weather client.
type Collector struct {
	loginOutcomes    *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	weatherRequests  *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherhub_login_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherhub_provider_requests_total",
			Help: "Identity provider requests by step and result",
		}, []string{"step", "result"}),
		weatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherhub_weather_requests_total",
			Help: "Geocoder and weather API requests by operation and result",
		}, []string{"op", "result"}),
	}

	reg.MustRegister(
		c.loginOutcomes,
		c.providerRequests,
		c.weatherRequests,
	)

	return c
}

// RecordLoginOutcome counts a finished login attempt (see Login* labels).
func (c *Collector) RecordLoginOutcome(outcome string) {
	c.loginOutcomes.WithLabelValues(outcome).Inc()
}

// RecordProviderRequest counts one call to the identity provider.
// step is "discovery", "token_exchange" or "userinfo".
func (c *Collector) RecordProviderRequest(step string, err error) {
	c.providerRequests.WithLabelValues(step, result(err)).Inc()
}

// RecordWeatherRequest counts one call to the geocoder or weather API.
// op is "geocode", "forecast" or "history".
func (c *Collector) RecordWeatherRequest(op string, err error) {
	c.weatherRequests.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler returns the /metrics endpoint for the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
