// Package model defines the analytics record, its payload variants, and the
// error taxonomy shared across the store and query engine.
package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// DataType identifies which metric family a record carries. It also selects
// the payload variant: a record holds exactly one payload block, keyed by its
// data type.
type DataType string

const (
	DataTypeDemandForecast       DataType = "demand_forecast"
	DataTypeCapacityUtilization  DataType = "capacity_utilization"
	DataTypeCostAnalysis         DataType = "cost_analysis"
	DataTypeEnvironmentalImpact  DataType = "environmental_impact"
	DataTypeNetworkPerformance   DataType = "network_performance"
	DataTypeRenewableIntegration DataType = "renewable_integration"
)

// DataTypes lists all valid data types.
var DataTypes = []DataType{
	DataTypeDemandForecast,
	DataTypeCapacityUtilization,
	DataTypeCostAnalysis,
	DataTypeEnvironmentalImpact,
	DataTypeNetworkPerformance,
	DataTypeRenewableIntegration,
}

// Valid reports whether d is a known data type. Unknown values are rejected
// by the validator, never coerced.
func (d DataType) Valid() bool {
	for _, t := range DataTypes {
		if d == t {
			return true
		}
	}
	return false
}

// TimePeriod is the aggregation granularity of a metric.
type TimePeriod string

const (
	PeriodHourly    TimePeriod = "hourly"
	PeriodDaily     TimePeriod = "daily"
	PeriodWeekly    TimePeriod = "weekly"
	PeriodMonthly   TimePeriod = "monthly"
	PeriodQuarterly TimePeriod = "quarterly"
	PeriodYearly    TimePeriod = "yearly"
)

// TimePeriods lists all valid aggregation periods.
var TimePeriods = []TimePeriod{
	PeriodHourly, PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly,
}

// Valid reports whether p is a known time period.
func (p TimePeriod) Valid() bool {
	for _, tp := range TimePeriods {
		if p == tp {
			return true
		}
	}
	return false
}

// Quality is the categorical data-quality label attached to a record.
type Quality string

const (
	QualityLow      Quality = "low"
	QualityMedium   Quality = "medium"
	QualityHigh     Quality = "high"
	QualityVerified Quality = "verified"
)

// Qualities lists all valid quality labels.
var Qualities = []Quality{QualityLow, QualityMedium, QualityHigh, QualityVerified}

// Valid reports whether q is a known quality label.
func (q Quality) Valid() bool {
	for _, ql := range Qualities {
		if q == ql {
			return true
		}
	}
	return false
}

// Metadata describes the provenance of a record.
type Metadata struct {
	Source          string    `json:"source"`
	Quality         Quality   `json:"quality"`
	LastUpdated     time.Time `json:"last_updated"`
	UpdateFrequency string    `json:"update_frequency,omitempty"`
}

// AnalyticsRecord is the sole persisted entity: one metric observation tagged
// with a location, a timestamp, and an aggregation period.
//
// InfrastructureID and ProjectID are weak references to externally owned
// entities; the store never verifies they resolve. ScenarioID plus Version
// support branching what-if projections of the same series: a correction is a
// new version, never an in-place mutation.
type AnalyticsRecord struct {
	ID               string     `json:"id"`
	DataType         DataType   `json:"data_type"`
	Location         Geometry   `json:"location"`
	Timestamp        time.Time  `json:"timestamp"`
	TimePeriod       TimePeriod `json:"time_period"`
	InfrastructureID string     `json:"infrastructure_id,omitempty"`
	ProjectID        string     `json:"project_id,omitempty"`
	Payload          Payload    `json:"-"`
	ScenarioID       string     `json:"scenario_id,omitempty"`
	Version          int        `json:"version"`
	Metadata         Metadata   `json:"metadata"`
	CreatedBy        string     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// recordAlias avoids MarshalJSON recursion.
type recordAlias AnalyticsRecord

// MarshalJSON writes the record with its single payload block keyed by the
// data type, e.g. {"data_type":"cost_analysis",...,"cost_analysis":{...}}.
func (r AnalyticsRecord) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(recordAlias(r))
	if err != nil {
		return nil, eris.Wrap(err, "model: marshal record")
	}
	if r.Payload == nil {
		return base, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, eris.Wrap(err, "model: remarshal record")
	}
	pb, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, eris.Wrap(err, "model: marshal payload")
	}
	m[string(r.Payload.PayloadType())] = pb
	return json.Marshal(m)
}

// UnmarshalJSON reads the record and decodes the payload block matching its
// data type. A missing block leaves Payload nil; the validator rejects that.
func (r *AnalyticsRecord) UnmarshalJSON(data []byte) error {
	var base recordAlias
	if err := json.Unmarshal(data, &base); err != nil {
		return eris.Wrap(err, "model: unmarshal record")
	}
	*r = AnalyticsRecord(base)

	if !r.DataType.Valid() {
		// Leave payload nil; enum membership is reported by the validator.
		return nil
	}

	var blocks map[string]json.RawMessage
	if err := json.Unmarshal(data, &blocks); err != nil {
		return eris.Wrap(err, "model: unmarshal record blocks")
	}
	raw, ok := blocks[string(r.DataType)]
	if !ok {
		return nil
	}

	p, err := EmptyPayload(r.DataType)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return eris.Wrapf(err, "model: unmarshal %s payload", r.DataType)
	}
	r.Payload = p
	return nil
}

// EntityID returns the entity reference for "latest" and history lookups:
// the project if set, otherwise the infrastructure asset.
func (r *AnalyticsRecord) EntityID() string {
	if r.ProjectID != "" {
		return r.ProjectID
	}
	return r.InfrastructureID
}
