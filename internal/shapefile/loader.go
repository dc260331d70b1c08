// Package shapefile imports asset footprints from ESRI shapefiles, converting
// shapes and DBF attributes into analytics records ready for ingestion.
package shapefile

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gridsight/infra-analytics/internal/model"
	"github.com/gridsight/infra-analytics/internal/numeric"
	"github.com/gridsight/infra-analytics/internal/validate"
)

// LoadOptions configures a shapefile import. FieldMap routes DBF columns into
// the payload: keys are payload JSON field names, values are DBF column names
// (matched case-insensitively).
type LoadOptions struct {
	DataType   model.DataType
	TimePeriod model.TimePeriod
	Timestamp  time.Time
	Quality    model.Quality
	Source     string
	CreatedBy  string
	ScenarioID string

	// IDField names the DBF column carrying the infrastructure asset ID.
	// When empty, each record gets a fresh UUID and no asset reference.
	IDField string

	FieldMap map[string]string
}

func (o *LoadOptions) applyDefaults(path string) {
	if o.TimePeriod == "" {
		o.TimePeriod = model.PeriodYearly
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	if o.Quality == "" {
		o.Quality = model.QualityMedium
	}
	if o.Source == "" {
		o.Source = filepath.Base(path)
	}
	if o.CreatedBy == "" {
		o.CreatedBy = "shapefile-import"
	}
}

// Load reads the shapefile at path and returns one validated record per
// usable shape. Shapes with unsupported or degenerate geometry, unparseable
// numeric attributes, or validation failures are skipped with a debug log;
// Load only fails on I/O or an unknown data type.
func Load(path string, opts LoadOptions) ([]model.AnalyticsRecord, error) {
	opts.applyDefaults(path)
	log := zap.L().With(zap.String("component", "shapefile.loader"), zap.String("path", path))

	if _, err := model.EmptyPayload(opts.DataType); err != nil {
		return nil, err
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int, len(reader.Fields()))
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	var records []model.AnalyticsRecord
	var skipped int

	for n := 0; reader.Next(); n++ {
		_, shape := reader.Shape()

		loc, ok := convertShape(shape)
		if !ok {
			log.Debug("skipping unsupported or degenerate shape", zap.Int("index", n))
			skipped++
			continue
		}

		payload, err := buildPayload(opts.DataType, opts.FieldMap, reader, fieldIdx)
		if err != nil {
			log.Debug("skipping shape with bad attributes", zap.Int("index", n), zap.Error(err))
			skipped++
			continue
		}

		rec := model.AnalyticsRecord{
			ID:         uuid.NewString(),
			DataType:   opts.DataType,
			Location:   loc,
			Timestamp:  opts.Timestamp,
			TimePeriod: opts.TimePeriod,
			ScenarioID: opts.ScenarioID,
			Version:    1,
			Metadata: model.Metadata{
				Source:      opts.Source,
				Quality:     opts.Quality,
				LastUpdated: opts.Timestamp,
			},
			CreatedBy: opts.CreatedBy,
			Payload:   payload,
		}
		if opts.IDField != "" {
			if idx, ok := fieldIdx[strings.ToLower(opts.IDField)]; ok {
				rec.InfrastructureID = attribute(reader, idx)
			}
		}

		if violations := validate.Validate(&rec); len(violations) > 0 {
			log.Debug("skipping invalid shape record",
				zap.Int("index", n), zap.String("first_violation", violations[0].Error()))
			skipped++
			continue
		}
		records = append(records, rec)
	}

	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", path)
	}

	log.Info("shapefile parsed", zap.Int("records", len(records)), zap.Int("skipped", skipped))
	return records, nil
}

// attribute reads a trimmed DBF attribute value.
func attribute(reader *shp.Reader, idx int) string {
	val := strings.TrimRight(reader.Attribute(idx), "\x00")
	return strings.TrimSpace(val)
}

// buildPayload assembles the payload variant from mapped DBF columns. Mapped
// columns that are absent or empty leave the field at zero; values that exist
// but do not parse as decimals fail the shape.
func buildPayload(dt model.DataType, fieldMap map[string]string, reader *shp.Reader, fieldIdx map[string]int) (model.Payload, error) {
	values := make(map[string]decimal.Decimal, len(fieldMap))
	for field, col := range fieldMap {
		idx, ok := fieldIdx[strings.ToLower(col)]
		if !ok {
			continue
		}
		raw := attribute(reader, idx)
		if raw == "" {
			continue
		}
		d, err := numeric.Parse(raw)
		if err != nil {
			return nil, err
		}
		values[field] = d
	}

	payload, err := model.EmptyPayload(dt)
	if err != nil {
		return nil, err
	}
	blob, err := json.Marshal(values)
	if err != nil {
		return nil, eris.Wrap(err, "shapefile: encode attributes")
	}
	if err := json.Unmarshal(blob, payload); err != nil {
		return nil, eris.Wrapf(err, "shapefile: map attributes into %s payload", dt)
	}
	return payload, nil
}

// convertShape maps a shapefile shape onto the supported geometry set. Points
// map directly, single-part polylines become linestrings, and polygons become
// multipolygons with one single-ring polygon per valid part.
func convertShape(shape shp.Shape) (model.Geometry, bool) {
	switch s := shape.(type) {
	case *shp.Point:
		g, err := model.NewPoint(s.X, s.Y)
		if err != nil {
			return model.Geometry{}, false
		}
		return g, true

	case *shp.PolyLine:
		return polyLineToLineString(s)

	case *shp.Polygon:
		return polygonToMultiPolygon(s)

	default:
		return model.Geometry{}, false
	}
}

func polyLineToLineString(pl *shp.PolyLine) (model.Geometry, bool) {
	// Multi-part polylines have no representation in the geometry set.
	if pl == nil || pl.NumParts != 1 || len(pl.Points) < 2 {
		return model.Geometry{}, false
	}
	coords := make([][]float64, 0, len(pl.Points))
	for _, p := range pl.Points {
		coords = append(coords, []float64{p.X, p.Y})
	}
	g, err := model.NewLineString(coords)
	if err != nil {
		return model.Geometry{}, false
	}
	return g, true
}

func polygonToMultiPolygon(p *shp.Polygon) (model.Geometry, bool) {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return model.Geometry{}, false
	}

	var polys [][][][]float64
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		ring := make([][]float64, 0, end-start+1)
		for j := start; j < end; j++ {
			ring = append(ring, []float64{p.Points[j].X, p.Points[j].Y})
		}
		if len(ring) < 3 {
			continue
		}
		first, last := ring[0], ring[len(ring)-1]
		if first[0] != last[0] || first[1] != last[1] {
			ring = append(ring, []float64{first[0], first[1]})
		}
		if len(ring) < 4 {
			continue
		}
		polys = append(polys, [][][]float64{ring})
	}
	if len(polys) == 0 {
		return model.Geometry{}, false
	}

	g, err := model.NewMultiPolygon(polys)
	if err != nil {
		return model.Geometry{}, false
	}
	return g, true
}
