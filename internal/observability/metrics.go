package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for flood mapping requests.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec // labels: mode={decision,probability}, outcome={success,error}
	RequestDuration *prometheus.HistogramVec
	StageDuration   *prometheus.HistogramVec // labels: stage={align,fuse,classify,filter,speckle,reproject}
	ItemsLoaded     *prometheus.CounterVec   // labels: collection
	FloodedPixels   prometheus.Gauge
	CatalogRequests *prometheus.CounterVec // labels: outcome={success,retry,error}
}

var (
	requestDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600}
	stageDurationBuckets   = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30}
)

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.StageDuration,
		m.ItemsLoaded,
		m.FloodedPixels,
		m.CatalogRequests,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// create as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodmapper",
			Name:      "requests_total",
			Help:      "Flood mapping requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "floodmapper",
			Name:      "request_duration_seconds",
			Help:      "End to end duration of a flood mapping request.",
			Buckets:   requestDurationBuckets,
		}, []string{"mode"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "floodmapper",
			Name:      "stage_duration_seconds",
			Help:      "Duration of a single pipeline stage.",
			Buckets:   stageDurationBuckets,
		}, []string{"stage"}),
		ItemsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodmapper",
			Name:      "items_loaded_total",
			Help:      "Catalog items loaded into cubes, by collection.",
		}, []string{"collection"}),
		FloodedPixels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floodmapper",
			Name:      "last_flooded_pixels",
			Help:      "Flooded pixels in the most recent step of the last request.",
		}),
		CatalogRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodmapper",
			Name:      "catalog_requests_total",
			Help:      "STAC search page requests by outcome.",
		}, []string{"outcome"}),
	}
}
