// Package metrics defines the counters/gauges the debug server exposes
// (SPEC_FULL.md domain stack: prometheus/client_golang for the control
// loop's observable state). These are purely diagnostic — no invariant in
// spec §3/§8 depends on them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the collectors the control loop updates. A single
// instance is owned by the Client and wired into internal/debugsrv.
type Registry struct {
	reg *prometheus.Registry

	KeepAlivesSent   prometheus.Counter
	KeepAlivesAcked  prometheus.Counter
	CredUpdatesSent  prometheus.Counter
	CredUpdatesAcked prometheus.Counter
	RequestRetries   prometheus.Counter
	ManyFailedReqs   prometheus.Counter
	ConnectAttempts  prometheus.Counter
	ConnectFailures  prometheus.Counter

	ReqRetryIntervalSeconds prometheus.Gauge
	ClientState             *prometheus.GaugeVec
}

// New builds a Registry with every collector registered against a fresh
// prometheus.Registry, so internal/debugsrv can serve it without pulling in
// the global DefaultRegisterer (and its runtime/go_build_info collectors
// the teacher's other services don't expose here either).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		KeepAlivesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdpc",
			Name:      "keep_alives_sent_total",
			Help:      "Keep-alive requests sent to the controller.",
		}),
		KeepAlivesAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdpc",
			Name:      "keep_alives_acked_total",
			Help:      "Keep-alive replies received from the controller.",
		}),
		CredUpdatesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdpc",
			Name:      "cred_updates_sent_total",
			Help:      "Credential-update requests sent to the controller.",
		}),
		CredUpdatesAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdpc",
			Name:      "cred_updates_applied_total",
			Help:      "Credential bundles successfully applied to disk.",
		}),
		RequestRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdpc",
			Name:      "request_retries_total",
			Help:      "Retries sent for an unfulfilled keep-alive or cred-update request.",
		}),
		ManyFailedReqs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdpc",
			Name:      "many_failed_reqs_total",
			Help:      "Times the loop reached TimeToQuit after exhausting max_request_attempts.",
		}),
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdpc",
			Name:      "connect_attempts_total",
			Help:      "TLS connect attempts made by the transport facade.",
		}),
		ConnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdpc",
			Name:      "connect_failures_total",
			Help:      "TLS connect attempts that failed.",
		}),
		ReqRetryIntervalSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sdpc",
			Name:      "req_retry_interval_seconds",
			Help:      "Current req_retry_interval, in seconds.",
		}),
		ClientState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sdpc",
			Name:      "client_state",
			Help:      "1 for the state the client currently occupies, 0 otherwise.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		r.KeepAlivesSent, r.KeepAlivesAcked,
		r.CredUpdatesSent, r.CredUpdatesAcked,
		r.RequestRetries, r.ManyFailedReqs,
		r.ConnectAttempts, r.ConnectFailures,
		r.ReqRetryIntervalSeconds, r.ClientState,
	)
	return r
}

// Gatherer exposes the underlying registry to internal/debugsrv without
// letting callers register arbitrary additional collectors through it.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// SetState zeroes every state gauge except the one named, which it sets to
// 1 — a one-hot encoding of client_state for Grafana/PromQL convenience.
func (r *Registry) SetState(states []string, current string) {
	for _, s := range states {
		if s == current {
			r.ClientState.WithLabelValues(s).Set(1)
		} else {
			r.ClientState.WithLabelValues(s).Set(0)
		}
	}
}
