package main

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridsight/infra-analytics/internal/model"
	"github.com/gridsight/infra-analytics/internal/shapefile"
)

var (
	shpPath      string
	shpDataType  string
	shpPeriod    string
	shpQuality   string
	shpTimestamp string
	shpSource    string
	shpScenario  string
	shpIDField   string
	shpFields    []string
)

var importShpCmd = &cobra.Command{
	Use:   "import-shp",
	Short: "Import asset footprints from a shapefile",
	Long:  "Reads a .shp/.dbf pair, converts shapes to record geometries, maps DBF columns into the chosen payload, and ingests the results.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		opts := shapefile.LoadOptions{
			DataType:   model.DataType(shpDataType),
			TimePeriod: model.TimePeriod(shpPeriod),
			Quality:    model.Quality(shpQuality),
			Source:     shpSource,
			ScenarioID: shpScenario,
			IDField:    shpIDField,
			FieldMap:   make(map[string]string, len(shpFields)),
		}
		for _, mapping := range shpFields {
			field, col, ok := strings.Cut(mapping, "=")
			if !ok {
				return eris.Errorf("bad field mapping %q, want payload_field=DBF_COLUMN", mapping)
			}
			opts.FieldMap[field] = col
		}
		if shpTimestamp != "" {
			ts, err := time.Parse(time.RFC3339, shpTimestamp)
			if err != nil {
				return eris.Wrapf(err, "parse timestamp %q", shpTimestamp)
			}
			opts.Timestamp = ts
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := shapefile.Load(shpPath, opts)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return eris.Errorf("no usable shapes in %s", shpPath)
		}

		ptrs := make([]*model.AnalyticsRecord, len(recs))
		for i := range recs {
			ptrs[i] = &recs[i]
		}
		results := env.Ingestor.IngestBatch(ctx, ptrs)

		var accepted int
		for _, res := range results {
			if res.Accepted {
				accepted++
			}
		}
		zap.L().Info("shapefile import complete",
			zap.String("shapefile", shpPath),
			zap.Int("accepted", accepted),
			zap.Int("rejected", len(results)-accepted),
		)
		return nil
	},
}

func init() {
	importShpCmd.Flags().StringVar(&shpPath, "shp", "", "path to .shp file (required)")
	importShpCmd.Flags().StringVar(&shpDataType, "data-type", "", "metric family for imported records (required)")
	importShpCmd.Flags().StringVar(&shpPeriod, "period", "", "time period label (default yearly)")
	importShpCmd.Flags().StringVar(&shpQuality, "quality", "", "quality label (default medium)")
	importShpCmd.Flags().StringVar(&shpTimestamp, "timestamp", "", "record timestamp, RFC 3339 (default now)")
	importShpCmd.Flags().StringVar(&shpSource, "source", "", "metadata source (default shapefile name)")
	importShpCmd.Flags().StringVar(&shpScenario, "scenario", "", "scenario ID for imported records")
	importShpCmd.Flags().StringVar(&shpIDField, "id-field", "", "DBF column carrying the asset ID")
	importShpCmd.Flags().StringArrayVar(&shpFields, "field", nil, "payload_field=DBF_COLUMN mapping (repeatable)")
	_ = importShpCmd.MarkFlagRequired("shp")
	_ = importShpCmd.MarkFlagRequired("data-type")
	rootCmd.AddCommand(importShpCmd)
}
