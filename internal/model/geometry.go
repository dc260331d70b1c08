package model

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// GeometryKind discriminates the geometry variant. Values match GeoJSON type
// names so the wire format carries the discriminator directly.
type GeometryKind string

const (
	GeometryPoint        GeometryKind = "Point"
	GeometryLineString   GeometryKind = "LineString"
	GeometryPolygon      GeometryKind = "Polygon"
	GeometryMultiPolygon GeometryKind = "MultiPolygon"
)

const earthRadiusKm = 6371.0

// Geometry is a tagged geometry variant. The kind is checked against the
// coordinate shape at construction time, not at read time; a Geometry that
// exists is consistent.
type Geometry struct {
	kind GeometryKind
	g    geom.T
}

// NewPoint builds a point geometry from a lon/lat pair.
func NewPoint(lon, lat float64) (Geometry, error) {
	if err := checkCoord(GeometryPoint, lon, lat); err != nil {
		return Geometry{}, err
	}
	p := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
	return Geometry{kind: GeometryPoint, g: p}, nil
}

// NewLineString builds a linestring from [lon,lat] pairs. At least two
// positions are required.
func NewLineString(coords [][]float64) (Geometry, error) {
	if len(coords) < 2 {
		return Geometry{}, NewGeometryMismatchError(GeometryLineString, "needs at least 2 positions, got %d", len(coords))
	}
	flat, err := flatten(GeometryLineString, coords)
	if err != nil {
		return Geometry{}, err
	}
	ls := geom.NewLineStringFlat(geom.XY, flat).SetSRID(4326)
	return Geometry{kind: GeometryLineString, g: ls}, nil
}

// NewPolygon builds a polygon from rings of [lon,lat] pairs. Every ring must
// be closed (first position equals last) and carry at least 4 positions.
func NewPolygon(rings [][][]float64) (Geometry, error) {
	poly, err := buildPolygon(GeometryPolygon, rings)
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{kind: GeometryPolygon, g: poly.SetSRID(4326)}, nil
}

// NewMultiPolygon builds a multipolygon from a list of polygons, each a list
// of rings.
func NewMultiPolygon(polys [][][][]float64) (Geometry, error) {
	if len(polys) == 0 {
		return Geometry{}, NewGeometryMismatchError(GeometryMultiPolygon, "needs at least one polygon")
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for i, rings := range polys {
		poly, err := buildPolygon(GeometryMultiPolygon, rings)
		if err != nil {
			return Geometry{}, err
		}
		if err := mp.Push(poly); err != nil {
			return Geometry{}, NewGeometryMismatchError(GeometryMultiPolygon, "polygon %d: %v", i, err)
		}
	}
	return Geometry{kind: GeometryMultiPolygon, g: mp.SetSRID(4326)}, nil
}

func buildPolygon(kind GeometryKind, rings [][][]float64) (*geom.Polygon, error) {
	if len(rings) == 0 {
		return nil, NewGeometryMismatchError(kind, "needs at least one ring")
	}
	poly := geom.NewPolygon(geom.XY)
	for i, ring := range rings {
		if len(ring) < 4 {
			return nil, NewGeometryMismatchError(kind, "ring %d needs at least 4 positions, got %d", i, len(ring))
		}
		first, last := ring[0], ring[len(ring)-1]
		if len(first) < 2 || len(last) < 2 || first[0] != last[0] || first[1] != last[1] {
			return nil, NewGeometryMismatchError(kind, "ring %d is not closed", i)
		}
		flat, err := flatten(kind, ring)
		if err != nil {
			return nil, err
		}
		lr := geom.NewLinearRingFlat(geom.XY, flat)
		if err := poly.Push(lr); err != nil {
			return nil, NewGeometryMismatchError(kind, "ring %d: %v", i, err)
		}
	}
	return poly, nil
}

func flatten(kind GeometryKind, coords [][]float64) ([]float64, error) {
	flat := make([]float64, 0, len(coords)*2)
	for i, c := range coords {
		if len(c) != 2 {
			return nil, NewGeometryMismatchError(kind, "position %d has %d ordinates, want 2", i, len(c))
		}
		if err := checkCoord(kind, c[0], c[1]); err != nil {
			return nil, err
		}
		flat = append(flat, c[0], c[1])
	}
	return flat, nil
}

func checkCoord(kind GeometryKind, lon, lat float64) error {
	if lon < -180 || lon > 180 {
		return NewGeometryMismatchError(kind, "longitude %v out of range [-180,180]", lon)
	}
	if lat < -90 || lat > 90 {
		return NewGeometryMismatchError(kind, "latitude %v out of range [-90,90]", lat)
	}
	return nil
}

// Kind returns the geometry discriminator.
func (gm Geometry) Kind() GeometryKind { return gm.kind }

// Geom returns the underlying geometry, or nil for the zero value.
func (gm Geometry) Geom() geom.T { return gm.g }

// IsZero reports whether the geometry is unset.
func (gm Geometry) IsZero() bool { return gm.g == nil }

// Representative returns the lon/lat used for planar containment tests and
// distance ordering: the point itself, or the bounds center for shapes.
func (gm Geometry) Representative() (lon, lat float64) {
	if gm.g == nil {
		return 0, 0
	}
	if p, ok := gm.g.(*geom.Point); ok {
		return p.X(), p.Y()
	}
	b := gm.g.Bounds()
	return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2
}

// MarshalJSON encodes the geometry as GeoJSON.
func (gm Geometry) MarshalJSON() ([]byte, error) {
	if gm.g == nil {
		return []byte("null"), nil
	}
	return geojson.Marshal(gm.g)
}

// UnmarshalJSON decodes GeoJSON, rejecting kinds outside the supported set.
// The decoded coordinates go back through the constructors, so a geometry that
// arrives over the wire passes the same range and ring checks as one built in
// process.
func (gm *Geometry) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*gm = Geometry{}
		return nil
	}
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return NewGeometryMismatchError("", "decode geojson: %v", err)
	}

	var rebuilt Geometry
	var err error
	switch t := g.(type) {
	case *geom.Point:
		rebuilt, err = NewPoint(t.X(), t.Y())
	case *geom.LineString:
		rebuilt, err = NewLineString(coordPairs(t.Coords()))
	case *geom.Polygon:
		rebuilt, err = NewPolygon(coordRings(t.Coords()))
	case *geom.MultiPolygon:
		polys := make([][][][]float64, len(t.Coords()))
		for i, rings := range t.Coords() {
			polys[i] = coordRings(rings)
		}
		rebuilt, err = NewMultiPolygon(polys)
	default:
		return NewGeometryMismatchError("", "unsupported geometry type %T", g)
	}
	if err != nil {
		return err
	}
	*gm = rebuilt
	return nil
}

func coordPairs(cs []geom.Coord) [][]float64 {
	out := make([][]float64, len(cs))
	for i, c := range cs {
		out[i] = []float64{c.X(), c.Y()}
	}
	return out
}

func coordRings(rings [][]geom.Coord) [][][]float64 {
	out := make([][][]float64, len(rings))
	for i, ring := range rings {
		out[i] = coordPairs(ring)
	}
	return out
}

// HaversineKm returns the great-circle distance in kilometers between two
// lon/lat positions.
func HaversineKm(lon1, lat1, lon2, lat2 float64) float64 {
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
