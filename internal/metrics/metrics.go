// Package metrics bundles the Prometheus collectors the daemon exposes on
// /metrics. All collectors live on a private registry so the endpoint never
// leaks metrics from linked-in libraries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds every collector the daemon updates. A nil *Metrics disables
// instrumentation; callers guard their updates.
type Metrics struct {
	Registry *prometheus.Registry

	Requests      prometheus.Counter
	Replies       prometheus.Counter
	ForcedIdle    prometheus.Counter
	BusyConns     prometheus.Gauge
	Publishes     prometheus.Counter
	PublishErrors prometheus.Counter
	LinkUp        *prometheus.GaugeVec
	Reconnects    prometheus.Counter
}

// New builds the collectors and registers them, together with the standard
// Go and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busyline",
			Subsystem: "conn",
			Name:      "requests_total",
			Help:      "Requests issued through the transport",
		}),
		Replies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busyline",
			Subsystem: "conn",
			Name:      "replies_total",
			Help:      "Replies that answered a request",
		}),
		ForcedIdle: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busyline",
			Subsystem: "conn",
			Name:      "forced_idle_total",
			Help:      "Busy flags cleared by a stop-all reset",
		}),
		BusyConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "busyline",
			Subsystem: "conn",
			Name:      "busy",
			Help:      "Connections currently marked busy",
		}),
		Publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busyline",
			Subsystem: "publish",
			Name:      "total",
			Help:      "Status line publishes attempted",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busyline",
			Subsystem: "publish",
			Name:      "errors_total",
			Help:      "Status line publishes that failed",
		}),
		LinkUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "busyline",
			Subsystem: "link",
			Name:      "up",
			Help:      "Whether the transport link for a connection is established",
		}, []string{"conn"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busyline",
			Subsystem: "link",
			Name:      "reconnects_total",
			Help:      "Transport link reconnect attempts",
		}),
	}
	m.Registry.MustRegister(
		m.Requests,
		m.Replies,
		m.ForcedIdle,
		m.BusyConns,
		m.Publishes,
		m.PublishErrors,
		m.LinkUp,
		m.Reconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
