// Package metrics holds the Prometheus collectors recorded by the account
// service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Federated resolution outcomes.
const (
	OutcomeExisting = "existing"
	OutcomeLinked   = "linked"
	OutcomeCreated  = "created"
)

// Metrics contains the custom collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	AccountsCreated      *prometheus.CounterVec
	Logins               *prometheus.CounterVec
	FederatedResolutions *prometheus.CounterVec
	Provisioning         *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AccountsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photokeeper_accounts_created_total",
				Help: "Accounts created by primary auth mode",
			},
			[]string{"auth_mode"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photokeeper_logins_total",
				Help: "Login attempts by method and result",
			},
			[]string{"method", "result"},
		),
		FederatedResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photokeeper_federated_resolutions_total",
				Help: "Federated identity resolutions by outcome",
			},
			[]string{"outcome"},
		),
		Provisioning: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photokeeper_namespace_provisioning_total",
				Help: "Storage namespace provisioning attempts by result",
			},
			[]string{"result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photokeeper_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "photokeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(m.AccountsCreated, m.Logins, m.FederatedResolutions, m.Provisioning, m.HTTPRequests, m.HTTPDuration)

	return m
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

func (m *Metrics) AccountCreated(mode string) {
	if m == nil {
		return
	}
	m.AccountsCreated.WithLabelValues(mode).Inc()
}

func (m *Metrics) Login(method string, ok bool) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(method, result(ok)).Inc()
}

func (m *Metrics) FederatedResolved(outcome string) {
	if m == nil {
		return
	}
	m.FederatedResolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Provisioned(ok bool) {
	if m == nil {
		return
	}
	m.Provisioning.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) HTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}
