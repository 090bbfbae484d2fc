package history

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	snapshotsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verso",
			Subsystem: "history",
			Name:      "snapshots_recorded_total",
			Help:      "Snapshots appended to history logs, by entity type and change kind.",
		},
		[]string{"entity_type", "change_kind"},
	)

	revertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verso",
			Subsystem: "history",
			Name:      "reverts_total",
			Help:      "Reverts by outcome (updated, recreated, deleted, noop, failed).",
		},
		[]string{"outcome"},
	)
)

var (
	tracer     trace.Tracer
	tracerOnce sync.Once
)

func getTracer() trace.Tracer {
	tracerOnce.Do(func() {
		tracer = otel.Tracer("github.com/roach88/verso/internal/history")
	})
	return tracer
}

func spanAttrs(ref interface{ String() string }, id int64) []trace.SpanStartOption {
	return []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("entity", ref.String()),
			attribute.Int64("snapshot_id", id),
		),
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
