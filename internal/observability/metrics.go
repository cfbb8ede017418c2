package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wind_harvest"

// Metrics holds the Prometheus collectors for ingestion runs and the read API.
type Metrics struct {
	StationFetches *prometheus.CounterVec   // labels: group, outcome={ok,nodata,failed,skipped}
	RunDuration    *prometheus.HistogramVec // labels: job
	FlagsRaised    *prometheus.CounterVec   // labels: flag={offline,error}
	AlertsSent     *prometheus.CounterVec   // labels: type
	Images         *prometheus.CounterVec   // labels: outcome={stored,duplicate,unchanged,nodata,failed}
	APIRequests    *prometheus.CounterVec   // labels: route, status
}

// NewMetrics creates and registers all collectors with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := NewMetricsForTesting()
	prometheus.MustRegister(
		m.StationFetches,
		m.RunDuration,
		m.FlagsRaised,
		m.AlertsSent,
		m.Images,
		m.APIRequests,
	)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build
// as many as they like.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		StationFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_fetches_total",
			Help:      "Station adapter calls by source group and outcome.",
		}, []string{"group", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of scheduled runs by job.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"job"}),
		FlagsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_flags_raised_total",
			Help:      "Health flag transitions raised by the offline detector.",
		}, []string{"flag"}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "Offline alert notifications by provider type.",
		}, []string{"type"}),
		Images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webcam_images_total",
			Help:      "Webcam fetches by outcome.",
		}, []string{"outcome"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Public API requests by route and status.",
		}, []string{"route", "status"}),
	}
}
