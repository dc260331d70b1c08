// Package api exposes the analytics store over HTTP.
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/gridsight/infra-analytics/internal/ingest"
	"github.com/gridsight/infra-analytics/internal/model"
	"github.com/gridsight/infra-analytics/internal/monitoring"
	"github.com/gridsight/infra-analytics/internal/query"
	"github.com/gridsight/infra-analytics/internal/store"
	"github.com/gridsight/infra-analytics/internal/trend"
)

// Router wires the query engine, ingestor, trend estimator, and monitoring
// collector into an HTTP handler.
type Router struct {
	engine    *query.Engine
	ingestor  *ingest.Ingestor
	trends    *trend.Estimator
	collector *monitoring.Collector
}

// NewRouter builds the HTTP handler. trends and collector may be nil; their
// endpoints then answer 404.
func NewRouter(engine *query.Engine, ingestor *ingest.Ingestor, trends *trend.Estimator, collector *monitoring.Collector) http.Handler {
	r := &Router{engine: engine, ingestor: ingestor, trends: trends, collector: collector}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Post("/records", r.wrap(r.handleIngest))
	mux.Get("/records/range", r.wrap(r.handleRange))
	mux.Get("/records/bbox", r.wrap(r.handleBBox))
	mux.Get("/records/near", r.wrap(r.handleNear))
	mux.Get("/records/latest", r.wrap(r.handleLatest))
	mux.Get("/records/resolve", r.wrap(r.handleResolve))
	mux.Get("/records/aggregate", r.wrap(r.handleAggregate))
	if trends != nil {
		mux.Get("/trend", r.wrap(r.handleTrend))
	}
	if collector != nil {
		mux.Get("/stats", r.wrap(r.handleStats))
	}

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps handler failures onto status codes using the error taxonomy.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		switch {
		case model.IsMalformedQuery(err):
			writeJSON(w, http.StatusBadRequest, errorBody(err))
		case model.IsTimeout(err):
			writeJSON(w, http.StatusGatewayTimeout, errorBody(err))
		case model.IsUnavailable(err):
			writeJSON(w, http.StatusServiceUnavailable, errorBody(err))
		default:
			zap.L().Error("api: handler failed",
				zap.String("path", req.URL.Path),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
	}
}

// handleIngest accepts a single record object or an array of records. A batch
// always answers 200 with per-record results; a single record answers 201 or
// 422 depending on acceptance.
func (r *Router) handleIngest(w http.ResponseWriter, req *http.Request) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, req.Body, 32<<20)); err != nil {
		return model.NewMalformedQueryError("body", "unreadable request body")
	}
	body := bytes.TrimSpace(buf.Bytes())
	if len(body) == 0 {
		return model.NewMalformedQueryError("body", "empty request body")
	}

	if body[0] == '[' {
		var recs []*model.AnalyticsRecord
		if err := json.Unmarshal(body, &recs); err != nil {
			return model.NewMalformedQueryError("body", "invalid record array: "+err.Error())
		}
		results := r.ingestor.IngestBatch(req.Context(), recs)
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
		return nil
	}

	var rec model.AnalyticsRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return model.NewMalformedQueryError("body", "invalid record: "+err.Error())
	}
	result, err := r.ingestor.Ingest(req.Context(), &rec)
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if !result.Accepted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
	return nil
}

// handleRange serves GET /records/range?data_type=&start=&end=
func (r *Router) handleRange(w http.ResponseWriter, req *http.Request) error {
	dt := model.DataType(req.URL.Query().Get("data_type"))
	start, err := parseTime(req, "start")
	if err != nil {
		return err
	}
	end, err := parseTime(req, "end")
	if err != nil {
		return err
	}

	recs, err := r.engine.ByTypeAndTimeRange(req.Context(), dt, start, end)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs, "count": len(recs)})
	return nil
}

// handleBBox serves GET /records/bbox?sw_lon=&sw_lat=&ne_lon=&ne_lat=&data_type=
func (r *Router) handleBBox(w http.ResponseWriter, req *http.Request) error {
	var bbox store.BBox
	var err error
	if bbox.SWLon, err = parseFloat(req, "sw_lon"); err != nil {
		return err
	}
	if bbox.SWLat, err = parseFloat(req, "sw_lat"); err != nil {
		return err
	}
	if bbox.NELon, err = parseFloat(req, "ne_lon"); err != nil {
		return err
	}
	if bbox.NELat, err = parseFloat(req, "ne_lat"); err != nil {
		return err
	}
	dt := model.DataType(req.URL.Query().Get("data_type"))

	recs, err := r.engine.WithinBounds(req.Context(), bbox, dt)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs, "count": len(recs)})
	return nil
}

// handleNear serves GET /records/near?lon=&lat=&max_km=&data_type=
func (r *Router) handleNear(w http.ResponseWriter, req *http.Request) error {
	lon, err := parseFloat(req, "lon")
	if err != nil {
		return err
	}
	lat, err := parseFloat(req, "lat")
	if err != nil {
		return err
	}
	maxKm, err := parseFloat(req, "max_km")
	if err != nil {
		return err
	}
	dt := model.DataType(req.URL.Query().Get("data_type"))

	results, err := r.engine.NearPoint(req.Context(), lon, lat, maxKm, dt)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": results, "count": len(results)})
	return nil
}

// handleLatest serves GET /records/latest?entity_id=&data_type=
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	entityID := req.URL.Query().Get("entity_id")
	dt := model.DataType(req.URL.Query().Get("data_type"))

	rec, err := r.engine.LatestForEntity(req.Context(), entityID, dt)
	if err != nil {
		return err
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no record for entity"})
		return nil
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}

// handleResolve serves GET /records/resolve?scenario_id=&as_of=
func (r *Router) handleResolve(w http.ResponseWriter, req *http.Request) error {
	scenarioID := req.URL.Query().Get("scenario_id")
	asOf, err := parseTime(req, "as_of")
	if err != nil {
		return err
	}

	rec, err := r.engine.ResolveScenario(req.Context(), scenarioID, asOf)
	if err != nil {
		return err
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no record for scenario at this time"})
		return nil
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}

// handleAggregate serves GET /records/aggregate?data_type=&start=&end=
func (r *Router) handleAggregate(w http.ResponseWriter, req *http.Request) error {
	dt := model.DataType(req.URL.Query().Get("data_type"))
	start, err := parseTime(req, "start")
	if err != nil {
		return err
	}
	end, err := parseTime(req, "end")
	if err != nil {
		return err
	}

	agg, err := r.engine.AggregateRange(req.Context(), dt, start, end)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, agg)
	return nil
}

// handleTrend serves GET /trend?entity_id=&data_type=
func (r *Router) handleTrend(w http.ResponseWriter, req *http.Request) error {
	entityID := req.URL.Query().Get("entity_id")
	dt := model.DataType(req.URL.Query().Get("data_type"))

	result, err := r.trends.Classify(req.Context(), entityID, dt)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": entityID,
		"data_type": dt,
		"trend":     result,
	})
	return nil
}

// handleStats serves GET /stats
func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) error {
	snap, err := r.collector.Collect(req.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, snap)
	return nil
}

func parseTime(req *http.Request, name string) (time.Time, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, model.NewMalformedQueryError(name, "is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, model.NewMalformedQueryError(name, "must be RFC 3339, got "+raw)
	}
	return t, nil
}

func parseFloat(req *http.Request, name string) (float64, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return 0, model.NewMalformedQueryError(name, "is required")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, model.NewMalformedQueryError(name, "must be a number, got "+raw)
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response failed", zap.Error(err))
	}
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
