package store

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/gridsight/infra-analytics/internal/db"
	"github.com/gridsight/infra-analytics/internal/model"
)

// PostgresStore implements Store on PostgreSQL with PostGIS. The geometry
// lands both as GeoJSON (round-trip source of truth) and as an EWKB-encoded
// geom column, so radius queries run as true geodesic ST_DWithin scans over a
// GIST index while bounding-box containment stays planar, matching the
// SQLite backend.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE SCHEMA IF NOT EXISTS analytics;

CREATE TABLE IF NOT EXISTS analytics.records (
	id                TEXT PRIMARY KEY,
	data_type         TEXT NOT NULL,
	geometry          JSONB NOT NULL,
	geom              geometry(Geometry, 4326) NOT NULL,
	rep_lon           DOUBLE PRECISION NOT NULL,
	rep_lat           DOUBLE PRECISION NOT NULL,
	ts                TIMESTAMPTZ NOT NULL,
	time_period       TEXT NOT NULL,
	infrastructure_id TEXT NOT NULL DEFAULT '',
	project_id        TEXT NOT NULL DEFAULT '',
	scenario_id       TEXT NOT NULL DEFAULT '',
	version           INTEGER NOT NULL DEFAULT 1,
	payload           JSONB NOT NULL,
	metadata          JSONB NOT NULL,
	created_by        TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_geom ON analytics.records USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_records_type_ts ON analytics.records(data_type, ts DESC);
CREATE INDEX IF NOT EXISTS idx_records_project ON analytics.records(project_id, data_type, ts DESC);
CREATE INDEX IF NOT EXISTS idx_records_infra ON analytics.records(infrastructure_id, data_type, ts DESC);
CREATE INDEX IF NOT EXISTS idx_records_scenario ON analytics.records(scenario_id, version DESC, ts DESC);
CREATE INDEX IF NOT EXISTS idx_records_rep ON analytics.records(rep_lon, rep_lat);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgRecordColumns = `id, data_type, geometry, ts, time_period, infrastructure_id, project_id,
	scenario_id, version, payload, metadata, created_by, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, rec *model.AnalyticsRecord) error {
	geomJSON, err := json.Marshal(rec.Location)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal geometry")
	}
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal payload")
	}
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metadata")
	}
	wkb, err := ewkb.Marshal(rec.Location.Geom(), ewkb.NDR)
	if err != nil {
		return eris.Wrap(err, "postgres: encode EWKB")
	}
	lon, lat := rec.Location.Representative()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin insert")
	}
	defer tx.Rollback(ctx)

	// Versions are monotonically non-decreasing within a scenario. The
	// advisory lock serializes concurrent inserts for the same scenario so
	// two writers cannot both read the same MAX and commit out of order.
	if rec.ScenarioID != "" {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`, rec.ScenarioID,
		); err != nil {
			return eris.Wrapf(err, "postgres: lock scenario %s", rec.ScenarioID)
		}
		var maxVersion int
		err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM analytics.records WHERE scenario_id = $1`,
			rec.ScenarioID,
		).Scan(&maxVersion)
		if err != nil {
			return eris.Wrapf(err, "postgres: max version for scenario %s", rec.ScenarioID)
		}
		if rec.Version < maxVersion {
			return model.ValidationError{
				Field:       "version",
				Constraint:  "must not be lower than the scenario's current version",
				ActualValue: strconv.Itoa(rec.Version),
			}
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO analytics.records (id, data_type, geometry, geom, rep_lon, rep_lat, ts, time_period,
			infrastructure_id, project_id, scenario_id, version, payload, metadata, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, ST_SetSRID(ST_GeomFromEWKB($4), 4326), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rec.ID, string(rec.DataType), geomJSON, wkb, lon, lat, rec.Timestamp.UTC(), string(rec.TimePeriod),
		rec.InfrastructureID, rec.ProjectID, rec.ScenarioID, rec.Version,
		payloadJSON, metaJSON, rec.CreatedBy, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert record %s", rec.ID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit insert")
}

func (s *PostgresStore) ByTypeAndTimeRange(ctx context.Context, dt model.DataType, start, end time.Time) ([]model.AnalyticsRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRecordColumns+` FROM analytics.records
		 WHERE data_type = $1 AND ts >= $2 AND ts <= $3
		 ORDER BY ts ASC`,
		string(dt), start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query time range")
	}
	return collectPgRecords(rows)
}

func (s *PostgresStore) WithinBounds(ctx context.Context, bbox BBox, dt model.DataType) ([]model.AnalyticsRecord, error) {
	query := `SELECT ` + pgRecordColumns + ` FROM analytics.records
		WHERE rep_lon >= $1 AND rep_lon <= $2 AND rep_lat >= $3 AND rep_lat <= $4`
	args := []any{bbox.SWLon, bbox.NELon, bbox.SWLat, bbox.NELat}
	if dt != "" {
		query += ` AND data_type = $5`
		args = append(args, string(dt))
	}
	query += ` ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query bbox")
	}
	return collectPgRecords(rows)
}

func (s *PostgresStore) NearPoint(ctx context.Context, lon, lat, maxKm float64, dt model.DataType) ([]RecordDistance, error) {
	query := `SELECT ` + pgRecordColumns + `,
		ST_Distance(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS meters
		FROM analytics.records
		WHERE ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)`
	args := []any{lon, lat, maxKm * 1000}
	if dt != "" {
		query += ` AND data_type = $4`
		args = append(args, string(dt))
	}
	query += ` ORDER BY meters ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query near point")
	}
	defer rows.Close()

	var results []RecordDistance
	for rows.Next() {
		rec, meters, err := scanPgRecordWithDistance(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, RecordDistance{Record: *rec, DistanceKm: meters / 1000})
	}
	return results, eris.Wrap(rows.Err(), "postgres: iterate near point")
}

func (s *PostgresStore) LatestForEntity(ctx context.Context, entityID string, dt model.DataType) (*model.AnalyticsRecord, error) {
	if entityID == "" {
		return nil, nil
	}
	query := `SELECT ` + pgRecordColumns + ` FROM analytics.records
		WHERE (project_id = $1 OR infrastructure_id = $1)`
	args := []any{entityID}
	if dt != "" {
		query += ` AND data_type = $2`
		args = append(args, string(dt))
	}
	query += ` ORDER BY ts DESC LIMIT 1`

	rec, err := scanPgRecord(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: latest for entity %s", entityID)
	}
	return rec, nil
}

func (s *PostgresStore) ResolveScenario(ctx context.Context, scenarioID string, asOf time.Time) (*model.AnalyticsRecord, error) {
	rec, err := scanPgRecord(s.pool.QueryRow(ctx,
		`SELECT `+pgRecordColumns+` FROM analytics.records
		 WHERE scenario_id = $1 AND ts <= $2
		 ORDER BY version DESC, ts DESC LIMIT 1`,
		scenarioID, asOf.UTC(),
	))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: resolve scenario %s", scenarioID)
	}
	return rec, nil
}

func (s *PostgresStore) HistoryForEntity(ctx context.Context, entityID string, dt model.DataType, limit int) ([]model.AnalyticsRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRecordColumns+` FROM analytics.records
		 WHERE (project_id = $1 OR infrastructure_id = $1) AND data_type = $2
		 ORDER BY ts DESC LIMIT $3`,
		entityID, string(dt), limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: history for entity %s", entityID)
	}
	recs, err := collectPgRecords(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (s *PostgresStore) CountByType(ctx context.Context) (map[model.DataType]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data_type, COUNT(*) FROM analytics.records GROUP BY data_type`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by type")
	}
	defer rows.Close()

	counts := make(map[model.DataType]int64)
	for rows.Next() {
		var dt string
		var n int64
		if err := rows.Scan(&dt, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.DataType(dt)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate counts")
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM analytics.records WHERE id IN (
			SELECT id FROM analytics.records WHERE ts < $1 ORDER BY ts ASC LIMIT $2
		)`,
		cutoff.UTC(), limit,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete older than")
	}
	return tag.RowsAffected(), nil
}

func scanPgRecord(row pgx.Row) (*model.AnalyticsRecord, error) {
	var (
		rec                  model.AnalyticsRecord
		dataType, timePeriod string
		geomJSON             []byte
		payloadJSON          []byte
		metaJSON             []byte
	)
	if err := row.Scan(
		&rec.ID, &dataType, &geomJSON, &rec.Timestamp, &timePeriod,
		&rec.InfrastructureID, &rec.ProjectID, &rec.ScenarioID, &rec.Version,
		&payloadJSON, &metaJSON, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeRecord(&rec, dataType, timePeriod, string(geomJSON), string(payloadJSON), string(metaJSON)); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanPgRecordWithDistance(rows pgx.Rows) (*model.AnalyticsRecord, float64, error) {
	var (
		rec                  model.AnalyticsRecord
		dataType, timePeriod string
		geomJSON             []byte
		payloadJSON          []byte
		metaJSON             []byte
		meters               float64
	)
	if err := rows.Scan(
		&rec.ID, &dataType, &geomJSON, &rec.Timestamp, &timePeriod,
		&rec.InfrastructureID, &rec.ProjectID, &rec.ScenarioID, &rec.Version,
		&payloadJSON, &metaJSON, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt,
		&meters,
	); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: scan record with distance")
	}
	if err := decodeRecord(&rec, dataType, timePeriod, string(geomJSON), string(payloadJSON), string(metaJSON)); err != nil {
		return nil, 0, err
	}
	if math.IsNaN(meters) {
		meters = 0
	}
	return &rec, meters, nil
}

func collectPgRecords(rows pgx.Rows) ([]model.AnalyticsRecord, error) {
	defer rows.Close()

	var recs []model.AnalyticsRecord
	for rows.Next() {
		rec, err := scanPgRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: iterate records")
}
