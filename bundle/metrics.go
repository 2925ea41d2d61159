package bundle

import "github.com/prometheus/client_golang/prometheus"

var BundleBuilds = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "folio",
	Subsystem: "bundle",
	Name:      "bundle_builds",
}, []string{"type"})

var ManifestBuilds = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "folio",
	Subsystem: "bundle",
	Name:      "manifest_builds",
})

var StaleMarks = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "folio",
	Subsystem: "bundle",
	Name:      "stale_marks",
})

var FallbackReads = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "folio",
	Subsystem: "bundle",
	Name:      "fallback_reads",
}, []string{"kind", "result"})

var BuildDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "folio",
	Subsystem: "bundle",
	Name:      "build_duration_seconds",
	Buckets:   prometheus.DefBuckets,
}, []string{"kind"})

// Collectors returns the metrics of this package, for registering.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{BundleBuilds, ManifestBuilds, StaleMarks, FallbackReads, BuildDuration}
}
