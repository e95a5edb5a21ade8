package telemetry

import "github.com/prometheus/client_golang/prometheus"

// These collectors are registered against an in-process prometheus.Registry
// (see NewMetricsRegistry) but deliberately not exposed over HTTP — scraping
// exporters are an out-of-scope external collaborator per the specification.
// A host embedding this module can still read them programmatically.

var RegisteredAgentsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "arcp",
	Subsystem: "registry",
	Name:      "agents_total",
	Help:      "Current number of agents with a live registry record.",
})

var RegistrationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arcp",
		Subsystem: "registry",
		Name:      "registrations_total",
		Help:      "Total registration attempts by outcome.",
	},
	[]string{"outcome"},
)

var CleanupRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "arcp",
	Subsystem: "lifecycle",
	Name:      "cleanup_removed_total",
	Help:      "Total agents removed by the staleness cleanup loop.",
})

var SearchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "arcp",
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "Semantic search request duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	},
	[]string{"mode"}, // "vector" or "lexical"
)

var RateLimitLockoutsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arcp",
		Subsystem: "ratelimit",
		Name:      "lockouts_total",
		Help:      "Total lockouts entered by bucket.",
	},
	[]string{"bucket"},
)

var NotifyDroppedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arcp",
		Subsystem: "notify",
		Name:      "subscribers_dropped_total",
		Help:      "Total subscribers dropped for backpressure, by topic.",
	},
	[]string{"topic"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "arcp",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds, by method/route/status.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// All returns every ARCP-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		RegisteredAgentsGauge,
		RegistrationsTotal,
		CleanupRemovedTotal,
		SearchDuration,
		RateLimitLockoutsTotal,
		NotifyDroppedTotal,
		HTTPRequestDuration,
	}
}

// NewMetricsRegistry creates a prometheus.Registry with the given collectors
// plus Go runtime/process collectors, mirroring the teacher's
// coretelemetry.NewMetricsRegistry helper.
func NewMetricsRegistry(collectors ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	for _, c := range collectors {
		reg.MustRegister(c)
	}
	return reg
}
