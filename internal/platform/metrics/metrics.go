// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package metrics owns the Prometheus collectors exported by Warden.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warden"

// # Label Values

const (
	OutcomeSucceeded       = "succeeded"
	OutcomeFailed          = "failed"
	OutcomeLocked          = "locked"
	OutcomeTwoFactorNeeded = "two_factor_required"
	OutcomeError           = "error"

	ReasonLogin         = "login"
	ReasonTwoFactor     = "two_factor"
	ReasonRefresh       = "refresh"
	ReasonImpersonation = "impersonation"
	ReasonRestore       = "restore"
)

// Auth groups the counters written by the authentication core.
type Auth struct {
	LoginTotal      *prometheus.CounterVec
	SessionsCreated *prometheus.CounterVec
	AuditFailures   prometheus.Counter
}

// NewAuth creates the collectors and registers them with registerer.
func NewAuth(registerer prometheus.Registerer) (*Auth, error) {
	auth := &Auth{
		LoginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		SessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "sessions_created_total",
			Help:      "Sessions created by reason.",
		}, []string{"reason"}),
		AuditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "audit_failures_total",
			Help:      "Audit events that the sink refused.",
		}),
	}

	for _, collector := range []prometheus.Collector{auth.LoginTotal, auth.SessionsCreated, auth.AuditFailures} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}

	return auth, nil
}

// NewNopAuth returns unregistered collectors. Used by tests and tools that do not export metrics.
func NewNopAuth() *Auth {
	auth, _ := NewAuth(prometheus.NewRegistry())
	return auth
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler serves the text exposition format for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
