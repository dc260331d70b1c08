// Package validate checks structural and range constraints on analytics
// records before acceptance. Validation is pure: it collects every violation
// and never touches storage.
package validate

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/gridsight/infra-analytics/internal/model"
	"github.com/gridsight/infra-analytics/internal/numeric"
)

// Validate returns all constraint violations for a record. An empty slice
// means the record is acceptable. Weak entity references (project,
// infrastructure) are deliberately not resolved here: reference integrity is
// the caller's concern, which keeps the write path decoupled from other
// subsystems.
func Validate(rec *model.AnalyticsRecord) []model.ValidationError {
	var errs []model.ValidationError

	if !rec.DataType.Valid() {
		errs = append(errs, model.ValidationError{
			Field:       "data_type",
			Constraint:  "must be one of the six metric types",
			ActualValue: string(rec.DataType),
		})
	}
	if !rec.TimePeriod.Valid() {
		errs = append(errs, model.ValidationError{
			Field:       "time_period",
			Constraint:  "must be hourly, daily, weekly, monthly, quarterly, or yearly",
			ActualValue: string(rec.TimePeriod),
		})
	}
	if !rec.Metadata.Quality.Valid() {
		errs = append(errs, model.ValidationError{
			Field:       "metadata.quality",
			Constraint:  "must be low, medium, high, or verified",
			ActualValue: string(rec.Metadata.Quality),
		})
	}
	if rec.Timestamp.IsZero() {
		errs = append(errs, model.ValidationError{
			Field:      "timestamp",
			Constraint: "is required",
		})
	}
	if rec.CreatedBy == "" {
		errs = append(errs, model.ValidationError{
			Field:      "created_by",
			Constraint: "is required",
		})
	}
	if rec.Version < 1 {
		errs = append(errs, model.ValidationError{
			Field:       "version",
			Constraint:  "must be at least 1",
			ActualValue: strconv.Itoa(rec.Version),
		})
	}

	if rec.Location.IsZero() {
		errs = append(errs, model.ValidationError{
			Field:      "location",
			Constraint: "is required",
		})
	}

	errs = append(errs, validatePayload(rec)...)

	return errs
}

func validatePayload(rec *model.AnalyticsRecord) []model.ValidationError {
	if rec.Payload == nil {
		return []model.ValidationError{{
			Field:      "payload",
			Constraint: "exactly one payload block matching data_type is required",
		}}
	}
	if rec.DataType.Valid() && rec.Payload.PayloadType() != rec.DataType {
		return []model.ValidationError{{
			Field:       "payload",
			Constraint:  "payload block must match data_type",
			ActualValue: string(rec.Payload.PayloadType()),
		}}
	}

	var errs []model.ValidationError
	ratio := func(field string, d decimal.Decimal) {
		if !numeric.IsRatio(d) {
			errs = append(errs, model.ValidationError{
				Field:       field,
				Constraint:  "must be in [0,1]",
				ActualValue: d.String(),
			})
		}
	}
	nonNeg := func(field string, d decimal.Decimal) {
		if !numeric.IsNonNegative(d) {
			errs = append(errs, model.ValidationError{
				Field:       field,
				Constraint:  "must be >= 0",
				ActualValue: d.String(),
			})
		}
	}

	switch p := rec.Payload.(type) {
	case *model.DemandForecast:
		nonNeg("demand_forecast.predicted_demand", p.PredictedDemand)
		nonNeg("demand_forecast.confidence_interval.lower", p.ConfidenceInterval.Lower)
		nonNeg("demand_forecast.confidence_interval.upper", p.ConfidenceInterval.Upper)
		if p.ConfidenceInterval.Upper.Cmp(p.ConfidenceInterval.Lower) < 0 {
			errs = append(errs, model.ValidationError{
				Field:       "demand_forecast.confidence_interval",
				Constraint:  "upper must be >= lower",
				ActualValue: p.ConfidenceInterval.Upper.String(),
			})
		}
	case *model.CapacityUtilization:
		ratio("capacity_utilization.current_utilization", p.CurrentUtilization)
		ratio("capacity_utilization.peak_utilization", p.PeakUtilization)
		ratio("capacity_utilization.average_utilization", p.AverageUtilization)
	case *model.CostAnalysis:
		nonNeg("cost_analysis.operational_costs", p.OperationalCosts)
		nonNeg("cost_analysis.maintenance_costs", p.MaintenanceCosts)
		nonNeg("cost_analysis.energy_costs", p.EnergyCosts)
		nonNeg("cost_analysis.cost_per_unit", p.CostPerUnit)
	case *model.EnvironmentalImpact:
		nonNeg("environmental_impact.carbon_emissions", p.CarbonEmissions)
		nonNeg("environmental_impact.water_usage", p.WaterUsage)
		nonNeg("environmental_impact.land_use", p.LandUse)
		ratio("environmental_impact.efficiency", p.Efficiency)
	case *model.NetworkPerformance:
		ratio("network_performance.reliability", p.Reliability)
		nonNeg("network_performance.latency_ms", p.LatencyMS)
		nonNeg("network_performance.throughput", p.Throughput)
		ratio("network_performance.congestion", p.Congestion)
	case *model.RenewableIntegration:
		ratio("renewable_integration.renewable_percentage", p.RenewablePercentage)
		ratio("renewable_integration.intermittency", p.Intermittency)
		nonNeg("renewable_integration.storage_requirements", p.StorageRequirements)
		ratio("renewable_integration.grid_stability", p.GridStability)
	}

	return errs
}
