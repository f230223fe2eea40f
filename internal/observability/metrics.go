package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for searches, downloads and analyses.
type Metrics struct {
	SearchRequests *prometheus.CounterVec // labels: outcome={success,error,cached}
	SearchDuration prometheus.Histogram

	BandDownloads *prometheus.CounterVec // labels: mode={clip,full}, outcome={success,error}
	BandBytes     prometheus.Counter
	BandDuration  prometheus.Histogram

	Analyses        *prometheus.CounterVec   // labels: outcome={success,no_scenes,error}
	StageDuration   *prometheus.HistogramVec // labels: stage
	WaterPercentage *prometheus.GaugeVec     // labels: location
}

// NewMetrics creates all collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ndwi",
			Name:      "stac_search_requests_total",
			Help:      "STAC searches by outcome.",
		}, []string{"outcome"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ndwi",
			Name:      "stac_search_duration_seconds",
			Help:      "Duration of a complete STAC search including pagination.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BandDownloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ndwi",
			Name:      "band_downloads_total",
			Help:      "Band downloads by mode and outcome.",
		}, []string{"mode", "outcome"}),
		BandBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ndwi",
			Name:      "band_bytes_total",
			Help:      "Bytes written to local band files.",
		}),
		BandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ndwi",
			Name:      "band_download_duration_seconds",
			Help:      "Duration of a single band download or clip.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ndwi",
			Name:      "analyses_total",
			Help:      "Completed analyses by outcome.",
		}, []string{"outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ndwi",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each analysis stage.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"stage"}),
		WaterPercentage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ndwi",
			Name:      "water_percentage",
			Help:      "Water percentage of the last analysis per location.",
		}, []string{"location"}),
	}

	reg.MustRegister(
		m.SearchRequests,
		m.SearchDuration,
		m.BandDownloads,
		m.BandBytes,
		m.BandDuration,
		m.Analyses,
		m.StageDuration,
		m.WaterPercentage,
	)

	return m
}

// NewMetricsForTesting returns metrics on a throwaway registry.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
