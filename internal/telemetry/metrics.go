package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency. Shared across API and worker.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "kuberdock",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// PodTransitionsTotal counts pod lifecycle transitions by target state.
var PodTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kuberdock",
		Subsystem: "pod",
		Name:      "transitions_total",
		Help:      "Total number of pod lifecycle transitions.",
	},
	[]string{"to_state"},
)

// PodCommandDuration tracks how long pod commands (start/stop/resize/redeploy)
// take end to end, including the Kubernetes API round trip.
var PodCommandDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "kuberdock",
		Subsystem: "pod",
		Name:      "command_duration_seconds",
		Help:      "Pod command processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"command"},
)

// IPPoolAllocationsTotal counts IP allocations and releases by pool network.
var IPPoolAllocationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kuberdock",
		Subsystem: "ippool",
		Name:      "allocations_total",
		Help:      "Total number of IP allocations and releases.",
	},
	[]string{"network", "action"},
)

// IPPoolFreeAddresses reports the current number of free addresses per pool.
var IPPoolFreeAddresses = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "kuberdock",
		Subsystem: "ippool",
		Name:      "free_addresses",
		Help:      "Number of free addresses remaining in a pool.",
	},
	[]string{"network"},
)

// PDBackendOperationsTotal counts persistent-disk backend operations by
// backend name and outcome.
var PDBackendOperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kuberdock",
		Subsystem: "pd",
		Name:      "backend_operations_total",
		Help:      "Total number of persistent disk backend operations.",
	},
	[]string{"backend", "operation", "outcome"},
)

// ReconcilerEventsTotal counts events consumed off each watch stream.
var ReconcilerEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kuberdock",
		Subsystem: "reconciler",
		Name:      "events_total",
		Help:      "Total number of Kubernetes watch events processed.",
	},
	[]string{"resource", "event_type"},
)

// ReconcilerWatchLag reports the time since the last event observed on a
// watch stream, used to detect a stalled/disconnected watcher.
var ReconcilerWatchLag = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "kuberdock",
		Subsystem: "reconciler",
		Name:      "watch_lag_seconds",
		Help:      "Seconds since the last event observed on a watch stream.",
	},
	[]string{"resource"},
)

// ReconcilerReconnectsTotal counts watch-stream reconnect attempts.
var ReconcilerReconnectsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kuberdock",
		Subsystem: "reconciler",
		Name:      "reconnects_total",
		Help:      "Total number of watch stream reconnect attempts.",
	},
	[]string{"resource"},
)

// ImageProbeCacheTotal counts registry image probe cache hits and misses.
var ImageProbeCacheTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kuberdock",
		Subsystem: "imageprobe",
		Name:      "cache_total",
		Help:      "Total number of registry image probe cache hits and misses.",
	},
	[]string{"outcome"},
)

// AdminNotificationsTotal counts Slack admin-channel notifications sent.
var AdminNotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kuberdock",
		Subsystem: "adminnotify",
		Name:      "sent_total",
		Help:      "Total number of admin-channel notifications sent, by kind.",
	},
	[]string{"kind"},
)

// All returns the KuberDock-specific collectors for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PodTransitionsTotal,
		PodCommandDuration,
		IPPoolAllocationsTotal,
		IPPoolFreeAddresses,
		PDBackendOperationsTotal,
		ReconcilerEventsTotal,
		ReconcilerWatchLag,
		ReconcilerReconnectsTotal,
		ImageProbeCacheTotal,
		AdminNotificationsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
