package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsight/infra-analytics/internal/model"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadRecordsJSON(t *testing.T) {
	path := writeTemp(t, "records.json", `[
	  {
	    "data_type": "cost_analysis",
	    "timestamp": "2026-01-01T00:00:00Z",
	    "time_period": "monthly",
	    "version": 1,
	    "created_by": "cli",
	    "location": {"type": "Point", "coordinates": [-74.0, 40.7]},
	    "metadata": {"source": "finance", "quality": "high", "last_updated": "2026-01-01T00:00:00Z"},
	    "cost_analysis": {
	      "operational_costs": "120.50",
	      "maintenance_costs": "30",
	      "energy_costs": "55.25",
	      "cost_per_unit": "4.10"
	    }
	  }
	]`)

	recs, err := loadRecords(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, model.DataTypeCostAnalysis, rec.DataType)
	assert.Equal(t, model.PeriodMonthly, rec.TimePeriod)

	costs, ok := rec.Payload.(*model.CostAnalysis)
	require.True(t, ok)
	assert.Equal(t, "120.5", costs.OperationalCosts.String())
}

func TestLoadRecordsYAML(t *testing.T) {
	path := writeTemp(t, "records.yaml", `
- data_type: cost_analysis
  timestamp: 2026-01-01T00:00:00Z
  time_period: monthly
  version: 1
  created_by: cli
  location:
    type: Point
    coordinates: [-74.0, 40.7]
  metadata:
    source: finance
    quality: high
    last_updated: 2026-01-01T00:00:00Z
  cost_analysis:
    operational_costs: "120.50"
    maintenance_costs: "30"
    energy_costs: "55.25"
    cost_per_unit: "4.10"
`)

	recs, err := loadRecords(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, model.DataTypeCostAnalysis, rec.DataType)

	costs, ok := rec.Payload.(*model.CostAnalysis)
	require.True(t, ok)
	assert.Equal(t, "4.1", costs.CostPerUnit.String())
}

func TestLoadRecordsEmpty(t *testing.T) {
	path := writeTemp(t, "records.json", `[]`)
	_, err := loadRecords(path)
	assert.Error(t, err)
}

func TestLoadRecordsMissingFile(t *testing.T) {
	_, err := loadRecords(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
