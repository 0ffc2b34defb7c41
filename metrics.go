package ethauth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Metrics holds the auth counters. A nil *Metrics records nothing, so
// components work without a registry.
type Metrics struct {
	loginAttempts  *prometheus.CounterVec
	registrations  *prometheus.CounterVec
	nonceRotations *prometheus.CounterVec
	passwordResets *prometheus.CounterVec
	confirmations  *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethauth_login_attempts_total",
				Help: "Total number of login attempts",
			},
			[]string{"provider", "outcome", "kind"},
		),
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethauth_registrations_total",
				Help: "Total number of registration attempts",
			},
			[]string{"outcome", "kind"},
		),
		nonceRotations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethauth_nonce_rotations_total",
				Help: "Total number of nonce rotations by result",
			},
			[]string{"outcome"},
		),
		passwordResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethauth_password_resets_total",
				Help: "Total number of password reset requests and completions",
			},
			[]string{"stage", "outcome"},
		),
		confirmations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethauth_email_confirmations_total",
				Help: "Total number of email confirmation events",
			},
			[]string{"stage", "outcome"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.loginAttempts,
			m.registrations,
			m.nonceRotations,
			m.passwordResets,
			m.confirmations,
		)
	}

	return m
}

func (m *Metrics) loginAttempt(provider string, err error) {
	if m == nil {
		return
	}
	outcome, kind := outcomeOf(err)
	m.loginAttempts.WithLabelValues(provider, outcome, kind).Inc()
}

func (m *Metrics) registration(err error) {
	if m == nil {
		return
	}
	outcome, kind := outcomeOf(err)
	m.registrations.WithLabelValues(outcome, kind).Inc()
}

func (m *Metrics) nonceRotation(outcome string) {
	if m == nil {
		return
	}
	m.nonceRotations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) passwordReset(stage string, err error) {
	if m == nil {
		return
	}
	outcome, _ := outcomeOf(err)
	m.passwordResets.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) emailConfirmation(stage string, err error) {
	if m == nil {
		return
	}
	outcome, _ := outcomeOf(err)
	m.confirmations.WithLabelValues(stage, outcome).Inc()
}

func outcomeOf(err error) (string, string) {
	if err == nil {
		return OutcomeSuccess, ""
	}
	kind := KindOf(err)
	if kind == KindDownstreamFailure {
		return OutcomeError, string(kind)
	}
	return OutcomeFailure, string(kind)
}
