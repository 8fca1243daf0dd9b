// Package metrics collects and exposes prometheus metrics for the auth flows.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services and middleware depend on.
type Recorder interface {
	RecordOTPIssued()
	RecordOTPVerification(outcome string)
	RecordResetCompleted()
	RecordGuardDecision(decision string)
	RecordLogin(outcome string)
}

// Collector is the prometheus-backed Recorder.
type Collector struct {
	otpIssued      prometheus.Counter
	otpVerified    *prometheus.CounterVec
	resetCompleted prometheus.Counter
	guardDecisions *prometheus.CounterVec
	logins         *prometheus.CounterVec
}

// NewCollector creates the collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		otpIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_otp_issued_total",
			Help: "One-time codes issued.",
		}),
		otpVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_otp_verifications_total",
			Help: "One-time code verification attempts by outcome.",
		}, []string{"outcome"}),
		resetCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_password_resets_completed_total",
			Help: "Password resets completed.",
		}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_route_guard_decisions_total",
			Help: "Route guard decisions by kind.",
		}, []string{"decision"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_logins_total",
			Help: "Credential logins by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.otpIssued,
		c.otpVerified,
		c.resetCompleted,
		c.guardDecisions,
		c.logins,
	)

	return c
}

func (c *Collector) RecordOTPIssued() {
	c.otpIssued.Inc()
}

func (c *Collector) RecordOTPVerification(outcome string) {
	c.otpVerified.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordResetCompleted() {
	c.resetCompleted.Inc()
}

func (c *Collector) RecordGuardDecision(decision string) {
	c.guardDecisions.WithLabelValues(decision).Inc()
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// Nop discards everything. Used when no registry is wired, mostly in tests.
type Nop struct{}

func (Nop) RecordOTPIssued() {}
func (Nop) RecordOTPVerification(string) {}
func (Nop) RecordResetCompleted() {}
func (Nop) RecordGuardDecision(string) {}
func (Nop) RecordLogin(string) {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
