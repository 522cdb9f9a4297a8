package batch

import "github.com/prometheus/client_golang/prometheus"

var (
	imagesCaptionedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "captiond",
			Subsystem: "batch",
			Name:      "images_captioned_total",
			Help:      "Images successfully captioned",
		},
	)

	imagesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "captiond",
			Subsystem: "batch",
			Name:      "images_skipped_total",
			Help:      "Images skipped because a caption file already existed",
		},
	)

	imagesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "captiond",
			Subsystem: "batch",
			Name:      "images_failed_total",
			Help:      "Per-image failures (read, inference, or write)",
		},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captiond",
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Batch runs by outcome",
		},
		[]string{"outcome"},
	)

	captionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "captiond",
			Subsystem: "batch",
			Name:      "caption_duration_seconds",
			Help:      "Wall time of one caption inference call",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
)

func init() {
	prometheus.MustRegister(imagesCaptionedTotal, imagesSkippedTotal, imagesFailedTotal, runsTotal, captionDuration)
}
