// Package statsx implements SPEC_FULL.md domain stack item 1: a Prometheus
// registry exposed on a loopback-only admin endpoint, mirroring the way
// stats/common_prom.go wires aistore's node metrics into a
// client_golang registry rather than hand-rolled counters.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package statsx

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the fixed set of counters/gauges this server exports. Every
// field here is incremented from the dispatcher's own goroutine (session
// and cgisession callbacks), so plain prometheus types are safe without
// any extra locking on this module's side.
type Metrics struct {
	RequestsServed  *prometheus.CounterVec
	CGIInvocations  prometheus.Counter
	CGITimeouts     prometheus.Counter
	BytesUploaded   prometheus.Counter
	OpenDispatchFds prometheus.Gauge

	registry *prometheus.Registry
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webs3rv_requests_served_total",
			Help: "Total HTTP responses produced, by status class.",
		}, []string{"status_class"}),
		CGIInvocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webs3rv_cgi_invocations_total",
			Help: "Total CGI subprocesses spawned.",
		}),
		CGITimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webs3rv_cgi_timeouts_total",
			Help: "Total CGI subprocesses killed for exceeding the timeout.",
		}),
		BytesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webs3rv_bytes_uploaded_total",
			Help: "Total bytes accepted via upload routes.",
		}),
		OpenDispatchFds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webs3rv_dispatcher_open_fds",
			Help: "Client connections currently subscribed to the event dispatcher.",
		}),
	}
	reg.MustRegister(m.RequestsServed, m.CGIInvocations, m.CGITimeouts, m.BytesUploaded, m.OpenDispatchFds)
	return m
}

// Handler returns the /metrics http.Handler, bound by the caller to a
// loopback-only listener outside the dispatcher (spec.md's readiness loop
// is for client/CGI fds only; the admin surface runs its own tiny
// net/http server, same as aistore runs a side-channel stats endpoint).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StatusClass buckets an HTTP status into Prometheus's conventional
// "2xx"/"4xx"/"5xx" label value.
func StatusClass(status int) string {
	switch {
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
