// Package trend classifies a metric series as rising, falling, or stable from
// the least-squares slope of its recent history.
package trend

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/gridsight/infra-analytics/internal/model"
)

// Trend is the classification result.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// HistorySource supplies the recent same-type records for an entity,
// ascending by timestamp.
type HistorySource interface {
	HistoryForEntity(ctx context.Context, entityID string, dt model.DataType, limit int) ([]model.AnalyticsRecord, error)
}

// Estimator fits a linear trend over an entity's recent primary-metric
// history. Window and epsilon are configuration, not constants: the right
// sensitivity is a product decision, so both are injected.
type Estimator struct {
	source  HistorySource
	window  int
	epsilon float64
}

// New creates an Estimator. window is how many recent records to fit over;
// epsilon is the slope magnitude below which the series counts as stable.
func New(source HistorySource, window int, epsilon float64) (*Estimator, error) {
	if window < 2 {
		return nil, eris.Errorf("trend: window must be at least 2, got %d", window)
	}
	if epsilon < 0 {
		return nil, eris.Errorf("trend: epsilon must be non-negative, got %v", epsilon)
	}
	return &Estimator{source: source, window: window, epsilon: epsilon}, nil
}

// Classify fetches the most recent window records for the entity and data
// type and classifies the least-squares slope of the primary metric. Fewer
// than two points is stable by definition: insufficient data, not an error.
func (e *Estimator) Classify(ctx context.Context, entityID string, dt model.DataType) (Trend, error) {
	if entityID == "" {
		return "", model.NewMalformedQueryError("entity_id", "is required")
	}
	if !dt.Valid() {
		return "", model.NewMalformedQueryError("data_type", "unknown data type "+string(dt))
	}

	recs, err := e.source.HistoryForEntity(ctx, entityID, dt, e.window)
	if err != nil {
		return "", eris.Wrapf(err, "trend: history for %s", entityID)
	}

	var ys []float64
	for _, r := range recs {
		if r.Payload == nil {
			continue
		}
		y, _ := r.Payload.PrimaryMetric().Float64()
		ys = append(ys, y)
	}
	if len(ys) < 2 {
		return TrendStable, nil
	}

	slope := leastSquaresSlope(ys)
	switch {
	case slope > e.epsilon:
		return TrendRising, nil
	case slope < -e.epsilon:
		return TrendFalling, nil
	default:
		return TrendStable, nil
	}
}

// leastSquaresSlope fits y = a + b*x over x = 0..n-1 and returns b, the
// per-step change in the metric.
func leastSquaresSlope(ys []float64) float64 {
	n := float64(len(ys))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
