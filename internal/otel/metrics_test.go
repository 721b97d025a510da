package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestScoringMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	ctx := context.Background()
	m := Scoring()
	m.Scored(ctx, 7.5, "advance")
	m.Scored(ctx, 4, "reject")
	m.Failed(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			found[metric.Name] = metric.Data
		}
	}

	outcomes, ok := found["assessment.scoring.outcomes"].(metricdata.Sum[int64])
	require.True(t, ok, "outcome counter should be exported")
	var total int64
	for _, dp := range outcomes.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)

	overall, ok := found["assessment.scoring.overall_score"].(metricdata.Histogram[float64])
	require.True(t, ok, "overall score histogram should be exported")
	require.Len(t, overall.DataPoints, 1)
	assert.Equal(t, uint64(2), overall.DataPoints[0].Count)
	assert.InDelta(t, 11.5, overall.DataPoints[0].Sum, 0.001)
}
