package model

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Payload is the tagged union of the six metric variants. Exactly one concrete
// payload exists per record, keyed by its data type.
type Payload interface {
	// PayloadType returns the data type this payload belongs to.
	PayloadType() DataType
	// PrimaryMetric returns the variant's headline numeric field, used by
	// trend estimation and range aggregates.
	PrimaryMetric() decimal.Decimal
}

// ConfidenceInterval bounds a forecast value.
type ConfidenceInterval struct {
	Lower decimal.Decimal `json:"lower"`
	Upper decimal.Decimal `json:"upper"`
}

// DemandForecast predicts demand for an asset or region.
type DemandForecast struct {
	PredictedDemand    decimal.Decimal            `json:"predicted_demand"`
	ConfidenceInterval ConfidenceInterval         `json:"confidence_interval"`
	Factors            map[string]decimal.Decimal `json:"factors,omitempty"`
}

func (p *DemandForecast) PayloadType() DataType          { return DataTypeDemandForecast }
func (p *DemandForecast) PrimaryMetric() decimal.Decimal { return p.PredictedDemand }

// CapacityUtilization reports how loaded an asset is. Utilization figures are
// ratios in [0,1].
type CapacityUtilization struct {
	CurrentUtilization decimal.Decimal `json:"current_utilization"`
	PeakUtilization    decimal.Decimal `json:"peak_utilization"`
	AverageUtilization decimal.Decimal `json:"average_utilization"`
	Bottlenecks        []string        `json:"bottlenecks,omitempty"`
}

func (p *CapacityUtilization) PayloadType() DataType          { return DataTypeCapacityUtilization }
func (p *CapacityUtilization) PrimaryMetric() decimal.Decimal { return p.CurrentUtilization }

// CostAnalysis breaks down operating costs. CostPerUnit is the LCOE-style
// normalized figure ($/kg for hydrogen assets).
type CostAnalysis struct {
	OperationalCosts decimal.Decimal `json:"operational_costs"`
	MaintenanceCosts decimal.Decimal `json:"maintenance_costs"`
	EnergyCosts      decimal.Decimal `json:"energy_costs"`
	CostPerUnit      decimal.Decimal `json:"cost_per_unit"`
	Currency         string          `json:"currency,omitempty"`
}

func (p *CostAnalysis) PayloadType() DataType          { return DataTypeCostAnalysis }
func (p *CostAnalysis) PrimaryMetric() decimal.Decimal { return p.OperationalCosts }

// EnvironmentalImpact reports emissions and resource use. Efficiency is a
// ratio in [0,1]; the rest are absolute quantities.
type EnvironmentalImpact struct {
	CarbonEmissions decimal.Decimal `json:"carbon_emissions"`
	WaterUsage      decimal.Decimal `json:"water_usage"`
	LandUse         decimal.Decimal `json:"land_use"`
	Efficiency      decimal.Decimal `json:"efficiency"`
}

func (p *EnvironmentalImpact) PayloadType() DataType          { return DataTypeEnvironmentalImpact }
func (p *EnvironmentalImpact) PrimaryMetric() decimal.Decimal { return p.CarbonEmissions }

// NetworkPerformance reports distribution-network health. Reliability and
// Congestion are ratios in [0,1].
type NetworkPerformance struct {
	Reliability decimal.Decimal `json:"reliability"`
	LatencyMS   decimal.Decimal `json:"latency_ms"`
	Throughput  decimal.Decimal `json:"throughput"`
	Congestion  decimal.Decimal `json:"congestion"`
}

func (p *NetworkPerformance) PayloadType() DataType          { return DataTypeNetworkPerformance }
func (p *NetworkPerformance) PrimaryMetric() decimal.Decimal { return p.Reliability }

// RenewableIntegration reports how much of an asset's supply is renewable.
// All fields except StorageRequirements are ratios in [0,1].
type RenewableIntegration struct {
	RenewablePercentage decimal.Decimal `json:"renewable_percentage"`
	Intermittency       decimal.Decimal `json:"intermittency"`
	StorageRequirements decimal.Decimal `json:"storage_requirements"`
	GridStability       decimal.Decimal `json:"grid_stability"`
}

func (p *RenewableIntegration) PayloadType() DataType          { return DataTypeRenewableIntegration }
func (p *RenewableIntegration) PrimaryMetric() decimal.Decimal { return p.RenewablePercentage }

// EmptyPayload returns a zero-valued payload for the given data type, ready
// to unmarshal into.
func EmptyPayload(dt DataType) (Payload, error) {
	switch dt {
	case DataTypeDemandForecast:
		return &DemandForecast{}, nil
	case DataTypeCapacityUtilization:
		return &CapacityUtilization{}, nil
	case DataTypeCostAnalysis:
		return &CostAnalysis{}, nil
	case DataTypeEnvironmentalImpact:
		return &EnvironmentalImpact{}, nil
	case DataTypeNetworkPerformance:
		return &NetworkPerformance{}, nil
	case DataTypeRenewableIntegration:
		return &RenewableIntegration{}, nil
	default:
		return nil, eris.Errorf("model: unknown data type %q", dt)
	}
}
