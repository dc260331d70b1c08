package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/gridsight/infra-analytics/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Geometry and payload
// blocks are stored as JSON; the representative coordinate is extracted into
// indexed rep_lon/rep_lat columns so bounding-box and proximity scans are
// range scans, not JSON walks.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode, which keeps range scans readable while inserts land.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// The index set mirrors the four read patterns: each query below is a
// range-or-prefix scan against exactly one of these compound keys. Extra
// write amplification is the right trade for a read-heavy, append-mostly
// workload.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analytics_records (
	id                TEXT PRIMARY KEY,
	data_type         TEXT NOT NULL,
	geometry          TEXT NOT NULL,
	rep_lon           REAL NOT NULL,
	rep_lat           REAL NOT NULL,
	ts                DATETIME NOT NULL,
	time_period       TEXT NOT NULL,
	infrastructure_id TEXT NOT NULL DEFAULT '',
	project_id        TEXT NOT NULL DEFAULT '',
	scenario_id       TEXT NOT NULL DEFAULT '',
	version           INTEGER NOT NULL DEFAULT 1,
	payload           TEXT NOT NULL,
	metadata          TEXT NOT NULL,
	created_by        TEXT NOT NULL,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_type_ts ON analytics_records(data_type, ts DESC);
CREATE INDEX IF NOT EXISTS idx_records_project ON analytics_records(project_id, data_type, ts DESC);
CREATE INDEX IF NOT EXISTS idx_records_infra ON analytics_records(infrastructure_id, data_type, ts DESC);
CREATE INDEX IF NOT EXISTS idx_records_scenario ON analytics_records(scenario_id, version DESC, ts DESC);
CREATE INDEX IF NOT EXISTS idx_records_rep ON analytics_records(rep_lon, rep_lat);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `id, data_type, geometry, ts, time_period, infrastructure_id, project_id,
	scenario_id, version, payload, metadata, created_by, created_at, updated_at`

func (s *SQLiteStore) Insert(ctx context.Context, rec *model.AnalyticsRecord) error {
	geomJSON, err := json.Marshal(rec.Location)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal geometry")
	}
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal payload")
	}
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metadata")
	}
	lon, lat := rec.Location.Representative()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert")
	}
	defer tx.Rollback()

	// Versions are monotonically non-decreasing within a scenario.
	if rec.ScenarioID != "" {
		var maxVersion int
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM analytics_records WHERE scenario_id = ?`,
			rec.ScenarioID,
		).Scan(&maxVersion)
		if err != nil {
			return eris.Wrapf(err, "sqlite: max version for scenario %s", rec.ScenarioID)
		}
		if rec.Version < maxVersion {
			return model.ValidationError{
				Field:       "version",
				Constraint:  "must not be lower than the scenario's current version",
				ActualValue: strconv.Itoa(rec.Version),
			}
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO analytics_records (id, data_type, geometry, rep_lon, rep_lat, ts, time_period,
			infrastructure_id, project_id, scenario_id, version, payload, metadata, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.DataType), string(geomJSON), lon, lat, rec.Timestamp.UTC(), string(rec.TimePeriod),
		rec.InfrastructureID, rec.ProjectID, rec.ScenarioID, rec.Version,
		string(payloadJSON), string(metaJSON), rec.CreatedBy, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert record %s", rec.ID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit insert")
}

func (s *SQLiteStore) ByTypeAndTimeRange(ctx context.Context, dt model.DataType, start, end time.Time) ([]model.AnalyticsRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM analytics_records
		 WHERE data_type = ? AND ts >= ? AND ts <= ?
		 ORDER BY ts ASC`,
		string(dt), start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query time range")
	}
	return collectRecords(rows)
}

func (s *SQLiteStore) WithinBounds(ctx context.Context, bbox BBox, dt model.DataType) ([]model.AnalyticsRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM analytics_records
		WHERE rep_lon >= ? AND rep_lon <= ? AND rep_lat >= ? AND rep_lat <= ?`
	args := []any{bbox.SWLon, bbox.NELon, bbox.SWLat, bbox.NELat}
	if dt != "" {
		query += ` AND data_type = ?`
		args = append(args, string(dt))
	}
	query += ` ORDER BY ts ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query bbox")
	}
	return collectRecords(rows)
}

func (s *SQLiteStore) NearPoint(ctx context.Context, lon, lat, maxKm float64, dt model.DataType) ([]RecordDistance, error) {
	// Coarse degree-window prefilter over the (rep_lon, rep_lat) index, then
	// exact haversine in process. Near the poles the longitude window
	// degenerates, so fall back to a full longitude span there.
	dLat := maxKm / 111.0
	cosLat := math.Cos(lat * math.Pi / 180)
	dLon := 180.0
	if cosLat > 1e-6 {
		dLon = math.Min(180.0, maxKm/(111.0*cosLat))
	}

	query := `SELECT ` + recordColumns + `, rep_lon, rep_lat FROM analytics_records
		WHERE rep_lon >= ? AND rep_lon <= ? AND rep_lat >= ? AND rep_lat <= ?`
	args := []any{lon - dLon, lon + dLon, lat - dLat, lat + dLat}
	if dt != "" {
		query += ` AND data_type = ?`
		args = append(args, string(dt))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query near point")
	}
	defer rows.Close()

	var results []RecordDistance
	for rows.Next() {
		rec, repLon, repLat, err := scanRecordWithCoords(rows)
		if err != nil {
			return nil, err
		}
		km := model.HaversineKm(lon, lat, repLon, repLat)
		if km > maxKm {
			continue
		}
		results = append(results, RecordDistance{Record: *rec, DistanceKm: km})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate near point")
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].DistanceKm < results[j].DistanceKm
	})
	return results, nil
}

func (s *SQLiteStore) LatestForEntity(ctx context.Context, entityID string, dt model.DataType) (*model.AnalyticsRecord, error) {
	if entityID == "" {
		return nil, nil
	}
	query := `SELECT ` + recordColumns + ` FROM analytics_records
		WHERE (project_id = ? OR infrastructure_id = ?)`
	args := []any{entityID, entityID}
	if dt != "" {
		query += ` AND data_type = ?`
		args = append(args, string(dt))
	}
	query += ` ORDER BY ts DESC LIMIT 1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: latest for entity %s", entityID)
	}
	return rec, nil
}

func (s *SQLiteStore) ResolveScenario(ctx context.Context, scenarioID string, asOf time.Time) (*model.AnalyticsRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM analytics_records
		 WHERE scenario_id = ? AND ts <= ?
		 ORDER BY version DESC, ts DESC LIMIT 1`,
		scenarioID, asOf.UTC(),
	))
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: resolve scenario %s", scenarioID)
	}
	return rec, nil
}

func (s *SQLiteStore) HistoryForEntity(ctx context.Context, entityID string, dt model.DataType, limit int) ([]model.AnalyticsRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM analytics_records
		 WHERE (project_id = ? OR infrastructure_id = ?) AND data_type = ?
		 ORDER BY ts DESC LIMIT ?`,
		entityID, entityID, string(dt), limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: history for entity %s", entityID)
	}
	recs, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	// Newest-first from the index; callers want ascending time.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (s *SQLiteStore) CountByType(ctx context.Context) (map[model.DataType]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data_type, COUNT(*) FROM analytics_records GROUP BY data_type`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by type")
	}
	defer rows.Close()

	counts := make(map[model.DataType]int64)
	for rows.Next() {
		var dt string
		var n int64
		if err := rows.Scan(&dt, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.DataType(dt)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate counts")
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM analytics_records WHERE id IN (
			SELECT id FROM analytics_records WHERE ts < ? ORDER BY ts ASC LIMIT ?
		)`,
		cutoff.UTC(), limit,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete older than")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: delete rows affected")
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.AnalyticsRecord, error) {
	var (
		rec                              model.AnalyticsRecord
		dataType, timePeriod             string
		geomJSON, payloadJSON, metaJSON  string
	)
	if err := row.Scan(
		&rec.ID, &dataType, &geomJSON, &rec.Timestamp, &timePeriod,
		&rec.InfrastructureID, &rec.ProjectID, &rec.ScenarioID, &rec.Version,
		&payloadJSON, &metaJSON, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeRecord(&rec, dataType, timePeriod, geomJSON, payloadJSON, metaJSON); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanRecordWithCoords(rows *sql.Rows) (*model.AnalyticsRecord, float64, float64, error) {
	var (
		rec                             model.AnalyticsRecord
		dataType, timePeriod            string
		geomJSON, payloadJSON, metaJSON string
		repLon, repLat                  float64
	)
	if err := rows.Scan(
		&rec.ID, &dataType, &geomJSON, &rec.Timestamp, &timePeriod,
		&rec.InfrastructureID, &rec.ProjectID, &rec.ScenarioID, &rec.Version,
		&payloadJSON, &metaJSON, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt,
		&repLon, &repLat,
	); err != nil {
		return nil, 0, 0, eris.Wrap(err, "sqlite: scan record with coords")
	}
	if err := decodeRecord(&rec, dataType, timePeriod, geomJSON, payloadJSON, metaJSON); err != nil {
		return nil, 0, 0, err
	}
	return &rec, repLon, repLat, nil
}

func decodeRecord(rec *model.AnalyticsRecord, dataType, timePeriod, geomJSON, payloadJSON, metaJSON string) error {
	rec.DataType = model.DataType(dataType)
	rec.TimePeriod = model.TimePeriod(timePeriod)

	if err := json.Unmarshal([]byte(geomJSON), &rec.Location); err != nil {
		return eris.Wrapf(err, "sqlite: decode geometry for %s", rec.ID)
	}
	if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
		return eris.Wrapf(err, "sqlite: decode metadata for %s", rec.ID)
	}

	p, err := model.EmptyPayload(rec.DataType)
	if err != nil {
		return eris.Wrapf(err, "sqlite: payload type for %s", rec.ID)
	}
	if err := json.Unmarshal([]byte(payloadJSON), p); err != nil {
		return eris.Wrapf(err, "sqlite: decode payload for %s", rec.ID)
	}
	rec.Payload = p

	rec.Timestamp = rec.Timestamp.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return nil
}

func collectRecords(rows *sql.Rows) ([]model.AnalyticsRecord, error) {
	defer rows.Close()

	var recs []model.AnalyticsRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

