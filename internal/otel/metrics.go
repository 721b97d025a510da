package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/hirelens/assessment-api"

// ScoringMetrics counts scoring outcomes and the spread of overall scores
type ScoringMetrics struct {
	outcomes metric.Int64Counter
	overall  metric.Float64Histogram
}

var (
	scoringOnce    sync.Once
	scoringMetrics *ScoringMetrics
)

// Scoring returns instruments bound to the global meter provider. Call it after SetupOTelSDK.
func Scoring() *ScoringMetrics {
	scoringOnce.Do(func() {
		meter := otel.Meter(meterName)

		// instrument errors only happen for invalid names, the noop instrument is kept then
		outcomes, _ := meter.Int64Counter(
			"assessment.scoring.outcomes",
			metric.WithDescription("Finished scoring runs by outcome"),
		)
		overall, _ := meter.Float64Histogram(
			"assessment.scoring.overall_score",
			metric.WithDescription("Overall score of scored submissions"),
			metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5, 6, 7, 8, 9, 10),
		)

		scoringMetrics = &ScoringMetrics{outcomes: outcomes, overall: overall}
	})
	return scoringMetrics
}

// Scored records a successful run with its recommendation
func (m *ScoringMetrics) Scored(ctx context.Context, overall float64, recommendation string) {
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", "scored"),
		attribute.String("recommendation", recommendation),
	))
	m.overall.Record(ctx, overall)
}

func (m *ScoringMetrics) Failed(ctx context.Context) {
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
}
