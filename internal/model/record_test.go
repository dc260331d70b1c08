package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypeValid(t *testing.T) {
	for _, dt := range DataTypes {
		assert.True(t, dt.Valid(), string(dt))
	}
	assert.False(t, DataType("electricity").Valid())
	assert.False(t, DataType("").Valid())
}

func TestTimePeriodValid(t *testing.T) {
	assert.True(t, PeriodHourly.Valid())
	assert.True(t, PeriodYearly.Valid())
	assert.False(t, TimePeriod("decade").Valid())
}

func TestQualityValid(t *testing.T) {
	assert.True(t, QualityVerified.Valid())
	assert.False(t, Quality("excellent").Valid())
}

func TestRecordJSONRoundTrip(t *testing.T) {
	loc, err := NewPoint(-74.0060, 40.7128)
	require.NoError(t, err)

	rec := AnalyticsRecord{
		ID:               "rec-1",
		DataType:         DataTypeCostAnalysis,
		Location:         loc,
		Timestamp:        time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		TimePeriod:       PeriodMonthly,
		InfrastructureID: "plant-7",
		Version:          2,
		ScenarioID:       "base-case",
		Metadata: Metadata{
			Source:      "finance",
			Quality:     QualityHigh,
			LastUpdated: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		},
		CreatedBy: "etl",
		Payload: &CostAnalysis{
			OperationalCosts: decimal.RequireFromString("120.50"),
			MaintenanceCosts: decimal.RequireFromString("30"),
			EnergyCosts:      decimal.RequireFromString("55.25"),
			CostPerUnit:      decimal.RequireFromString("4.10"),
			Currency:         "USD",
		},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	// The payload block is keyed by the data type.
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "cost_analysis")
	assert.NotContains(t, m, "demand_forecast")

	var back AnalyticsRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec.ID, back.ID)
	assert.Equal(t, rec.DataType, back.DataType)
	assert.Equal(t, rec.Version, back.Version)

	costs, ok := back.Payload.(*CostAnalysis)
	require.True(t, ok)
	assert.True(t, costs.OperationalCosts.Equal(decimal.RequireFromString("120.50")))
	assert.Equal(t, "USD", costs.Currency)
}

func TestRecordUnmarshalMissingPayloadBlock(t *testing.T) {
	var rec AnalyticsRecord
	require.NoError(t, json.Unmarshal([]byte(`{
	  "id": "rec-2",
	  "data_type": "demand_forecast",
	  "timestamp": "2026-01-01T00:00:00Z",
	  "time_period": "daily",
	  "version": 1
	}`), &rec))
	assert.Nil(t, rec.Payload)
}

func TestRecordUnmarshalRejectsOutOfRangeLocation(t *testing.T) {
	// An out-of-range coordinate must never survive decode: a record carrying
	// one would persist with a representative point no spatial query can reach.
	var rec AnalyticsRecord
	err := json.Unmarshal([]byte(`{
	  "id": "rec-3",
	  "data_type": "capacity_utilization",
	  "location": {"type": "Point", "coordinates": [500, 100]},
	  "timestamp": "2026-01-01T00:00:00Z",
	  "time_period": "daily",
	  "version": 1,
	  "capacity_utilization": {"current_utilization": "0.5"}
	}`), &rec)
	require.Error(t, err)
	var gme *GeometryMismatchError
	assert.ErrorAs(t, err, &gme)
}

func TestRecordUnmarshalUnknownDataType(t *testing.T) {
	// An unknown data type leaves the payload nil for the validator to flag.
	var rec AnalyticsRecord
	require.NoError(t, json.Unmarshal([]byte(`{"data_type":"mystery","version":1}`), &rec))
	assert.Nil(t, rec.Payload)
	assert.False(t, rec.DataType.Valid())
}

func TestEntityIDPrefersProject(t *testing.T) {
	rec := AnalyticsRecord{ProjectID: "proj-1", InfrastructureID: "asset-1"}
	assert.Equal(t, "proj-1", rec.EntityID())

	rec.ProjectID = ""
	assert.Equal(t, "asset-1", rec.EntityID())
}

func TestEmptyPayloadEveryType(t *testing.T) {
	for _, dt := range DataTypes {
		p, err := EmptyPayload(dt)
		require.NoError(t, err, string(dt))
		assert.Equal(t, dt, p.PayloadType())
	}
	_, err := EmptyPayload(DataType("bogus"))
	assert.Error(t, err)
}

func TestPrimaryMetric(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    string
	}{
		{"demand forecast", &DemandForecast{PredictedDemand: decimal.RequireFromString("42")}, "42"},
		{"capacity utilization", &CapacityUtilization{CurrentUtilization: decimal.RequireFromString("0.8")}, "0.8"},
		{"cost analysis", &CostAnalysis{OperationalCosts: decimal.RequireFromString("100")}, "100"},
		{"environmental impact", &EnvironmentalImpact{CarbonEmissions: decimal.RequireFromString("12.5")}, "12.5"},
		{"network performance", &NetworkPerformance{Reliability: decimal.RequireFromString("0.99")}, "0.99"},
		{"renewable integration", &RenewableIntegration{RenewablePercentage: decimal.RequireFromString("0.4")}, "0.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.payload.PrimaryMetric().String())
		})
	}
}
