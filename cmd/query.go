package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/gridsight/infra-analytics/internal/model"
	"github.com/gridsight/infra-analytics/internal/store"
)

var (
	qDataType string
	qStart    string
	qEnd      string
	qSWLon    float64
	qSWLat    float64
	qNELon    float64
	qNELat    float64
	qLon      float64
	qLat      float64
	qMaxKm    float64
	qEntityID string
	qScenario string
	qAsOf     string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run read queries against the store",
}

var queryRangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Records of one type within a time range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		start, end, err := parseRange()
		if err != nil {
			return err
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Engine.ByTypeAndTimeRange(cmd.Context(), model.DataType(qDataType), start, end)
		if err != nil {
			return err
		}
		return printJSON(recs)
	},
}

var queryBBoxCmd = &cobra.Command{
	Use:   "bbox",
	Short: "Records inside a bounding box",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		bbox := store.BBox{SWLon: qSWLon, SWLat: qSWLat, NELon: qNELon, NELat: qNELat}
		recs, err := env.Engine.WithinBounds(cmd.Context(), bbox, model.DataType(qDataType))
		if err != nil {
			return err
		}
		return printJSON(recs)
	},
}

var queryNearCmd = &cobra.Command{
	Use:   "near",
	Short: "Records near a point, closest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := env.Engine.NearPoint(cmd.Context(), qLon, qLat, qMaxKm, model.DataType(qDataType))
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

var queryLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Most recent record for an entity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Engine.LatestForEntity(cmd.Context(), qEntityID, model.DataType(qDataType))
		if err != nil {
			return err
		}
		if rec == nil {
			return eris.Errorf("no record for entity %q", qEntityID)
		}
		return printJSON(rec)
	},
}

var queryResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a scenario to its record at a point in time",
	RunE: func(cmd *cobra.Command, _ []string) error {
		asOf, err := time.Parse(time.RFC3339, qAsOf)
		if err != nil {
			return eris.Wrapf(err, "parse as-of %q", qAsOf)
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Engine.ResolveScenario(cmd.Context(), qScenario, asOf)
		if err != nil {
			return err
		}
		if rec == nil {
			return eris.Errorf("scenario %q has no record at %s", qScenario, qAsOf)
		}
		return printJSON(rec)
	},
}

var queryAggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Sum/mean/min/max of the primary metric over a time range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		start, end, err := parseRange()
		if err != nil {
			return err
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		agg, err := env.Engine.AggregateRange(cmd.Context(), model.DataType(qDataType), start, end)
		if err != nil {
			return err
		}
		return printJSON(agg)
	},
}

var queryTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Classify the recent metric trend for an entity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Trends.Classify(cmd.Context(), qEntityID, model.DataType(qDataType))
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"entity_id": qEntityID,
			"data_type": qDataType,
			"trend":     result,
		})
	},
}

func parseRange() (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, qStart)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "parse start %q", qStart)
	}
	end, err := time.Parse(time.RFC3339, qEnd)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "parse end %q", qEnd)
	}
	return start, end, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode output")
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	queryCmd.PersistentFlags().StringVar(&qDataType, "data-type", "", "metric family filter")

	queryRangeCmd.Flags().StringVar(&qStart, "start", "", "range start, RFC 3339 (required)")
	queryRangeCmd.Flags().StringVar(&qEnd, "end", "", "range end, RFC 3339 (required)")
	_ = queryRangeCmd.MarkFlagRequired("start")
	_ = queryRangeCmd.MarkFlagRequired("end")

	queryBBoxCmd.Flags().Float64Var(&qSWLon, "sw-lon", 0, "southwest longitude")
	queryBBoxCmd.Flags().Float64Var(&qSWLat, "sw-lat", 0, "southwest latitude")
	queryBBoxCmd.Flags().Float64Var(&qNELon, "ne-lon", 0, "northeast longitude")
	queryBBoxCmd.Flags().Float64Var(&qNELat, "ne-lat", 0, "northeast latitude")

	queryNearCmd.Flags().Float64Var(&qLon, "lon", 0, "query longitude")
	queryNearCmd.Flags().Float64Var(&qLat, "lat", 0, "query latitude")
	queryNearCmd.Flags().Float64Var(&qMaxKm, "max-km", 0, "maximum distance in kilometers")

	queryLatestCmd.Flags().StringVar(&qEntityID, "entity", "", "project or infrastructure ID (required)")
	_ = queryLatestCmd.MarkFlagRequired("entity")

	queryResolveCmd.Flags().StringVar(&qScenario, "scenario", "", "scenario ID (required)")
	queryResolveCmd.Flags().StringVar(&qAsOf, "as-of", "", "resolution time, RFC 3339 (required)")
	_ = queryResolveCmd.MarkFlagRequired("scenario")
	_ = queryResolveCmd.MarkFlagRequired("as-of")

	queryAggregateCmd.Flags().StringVar(&qStart, "start", "", "range start, RFC 3339 (required)")
	queryAggregateCmd.Flags().StringVar(&qEnd, "end", "", "range end, RFC 3339 (required)")
	_ = queryAggregateCmd.MarkFlagRequired("start")
	_ = queryAggregateCmd.MarkFlagRequired("end")

	queryTrendCmd.Flags().StringVar(&qEntityID, "entity", "", "project or infrastructure ID (required)")
	_ = queryTrendCmd.MarkFlagRequired("entity")

	queryCmd.AddCommand(queryRangeCmd, queryBBoxCmd, queryNearCmd, queryLatestCmd,
		queryResolveCmd, queryAggregateCmd, queryTrendCmd)
	rootCmd.AddCommand(queryCmd)
}
