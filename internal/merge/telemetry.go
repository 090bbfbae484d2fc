package merge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var submissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "verso",
		Subsystem: "merge",
		Name:      "submissions_total",
		Help:      "Edit submissions by outcome (clean, merged, conflict, failed).",
	},
	[]string{"outcome"},
)

var tracer = otel.Tracer("github.com/roach88/verso/internal/merge")
