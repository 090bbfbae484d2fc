package diff

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var diffDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "verso",
		Subsystem: "diff",
		Name:      "duration_seconds",
		Help:      "Time spent computing diffs, by scope (field, record).",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
	},
	[]string{"scope"},
)
