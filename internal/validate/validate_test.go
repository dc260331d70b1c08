package validate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsight/infra-analytics/internal/model"
)

func validRecord(t *testing.T) *model.AnalyticsRecord {
	t.Helper()
	loc, err := model.NewPoint(-74.0060, 40.7128)
	require.NoError(t, err)
	return &model.AnalyticsRecord{
		ID:               "rec-1",
		DataType:         model.DataTypeCostAnalysis,
		Location:         loc,
		Timestamp:        time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		TimePeriod:       model.PeriodMonthly,
		InfrastructureID: "plant-7",
		Version:          1,
		Metadata: model.Metadata{
			Source:      "finance",
			Quality:     model.QualityHigh,
			LastUpdated: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		CreatedBy: "etl",
		Payload: &model.CostAnalysis{
			OperationalCosts: decimal.RequireFromString("120.50"),
			MaintenanceCosts: decimal.RequireFromString("30"),
			EnergyCosts:      decimal.RequireFromString("55.25"),
			CostPerUnit:      decimal.RequireFromString("4.10"),
		},
	}
}

func fields(errs []model.ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Field
	}
	return out
}

func TestValidRecordPasses(t *testing.T) {
	assert.Empty(t, Validate(validRecord(t)))
}

func TestNegativeOperationalCostsRejected(t *testing.T) {
	rec := validRecord(t)
	rec.Payload = &model.CostAnalysis{
		OperationalCosts: decimal.RequireFromString("-10"),
	}

	errs := Validate(rec)
	require.Len(t, errs, 1)
	assert.Equal(t, "cost_analysis.operational_costs", errs[0].Field)
	assert.Equal(t, "-10", errs[0].ActualValue)
}

func TestAllViolationsCollected(t *testing.T) {
	loc, err := model.NewPoint(0, 0)
	require.NoError(t, err)
	rec := &model.AnalyticsRecord{
		DataType:   model.DataType("wind_speed"),
		TimePeriod: model.TimePeriod("decade"),
		Location:   loc,
		Version:    0,
		Metadata:   model.Metadata{Quality: model.Quality("excellent")},
	}

	errs := Validate(rec)
	got := fields(errs)
	for _, want := range []string{"data_type", "time_period", "metadata.quality", "timestamp", "created_by", "version", "payload"} {
		assert.Contains(t, got, want)
	}
}

func TestMissingLocationRejected(t *testing.T) {
	rec := validRecord(t)
	rec.Location = model.Geometry{}

	errs := Validate(rec)
	assert.Contains(t, fields(errs), "location")
}

func TestPayloadTypeMismatchRejected(t *testing.T) {
	rec := validRecord(t)
	rec.Payload = &model.DemandForecast{
		PredictedDemand: decimal.RequireFromString("10"),
	}

	errs := Validate(rec)
	require.Len(t, errs, 1)
	assert.Equal(t, "payload", errs[0].Field)
	assert.Equal(t, "demand_forecast", errs[0].ActualValue)
}

func TestRatioConstraints(t *testing.T) {
	rec := validRecord(t)
	rec.DataType = model.DataTypeCapacityUtilization
	rec.Payload = &model.CapacityUtilization{
		CurrentUtilization: decimal.RequireFromString("1.5"),
		PeakUtilization:    decimal.RequireFromString("0.9"),
		AverageUtilization: decimal.RequireFromString("-0.1"),
	}

	errs := Validate(rec)
	got := fields(errs)
	assert.Contains(t, got, "capacity_utilization.current_utilization")
	assert.Contains(t, got, "capacity_utilization.average_utilization")
	assert.NotContains(t, got, "capacity_utilization.peak_utilization")
}

func TestConfidenceIntervalOrdering(t *testing.T) {
	rec := validRecord(t)
	rec.DataType = model.DataTypeDemandForecast
	rec.Payload = &model.DemandForecast{
		PredictedDemand: decimal.RequireFromString("100"),
		ConfidenceInterval: model.ConfidenceInterval{
			Lower: decimal.RequireFromString("110"),
			Upper: decimal.RequireFromString("90"),
		},
	}

	errs := Validate(rec)
	require.Len(t, errs, 1)
	assert.Equal(t, "demand_forecast.confidence_interval", errs[0].Field)
}

func TestBoundaryRatiosAccepted(t *testing.T) {
	rec := validRecord(t)
	rec.DataType = model.DataTypeRenewableIntegration
	rec.Payload = &model.RenewableIntegration{
		RenewablePercentage: decimal.Zero,
		Intermittency:       decimal.RequireFromString("1"),
		StorageRequirements: decimal.RequireFromString("250"),
		GridStability:       decimal.RequireFromString("0.5"),
	}

	assert.Empty(t, Validate(rec))
}
