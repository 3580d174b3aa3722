// File path: internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/common/telemetry"
	"github.com/nicodishanthj/vitaplan/internal/plan"
	"github.com/nicodishanthj/vitaplan/internal/profile"
	"github.com/nicodishanthj/vitaplan/internal/records"
	"github.com/nicodishanthj/vitaplan/internal/reference"
)

// PlanBuilder produces treatment plans. careplan.Service satisfies it.
type PlanBuilder interface {
	BuildTreatmentPlan(ctx context.Context, raw profile.RawInput) (plan.TreatmentPlan, error)
	ComputeBMI(feet, inches, weightKG float64) (float64, profile.BMICategory, error)
}

// RecordStore is the read side of the survey record store.
type RecordStore interface {
	ByCriteria(ctx context.Context, c records.Criteria) ([]records.PatientRecord, error)
	Stats(ctx context.Context) (records.Stats, error)
	Random(ctx context.Context) (records.PatientRecord, error)
	RecentUsage(ctx context.Context, limit int) ([]records.UsageEntry, error)
}

type Server struct {
	router  chi.Router
	plans   PlanBuilder
	table   *reference.Table
	records RecordStore
	config  Config
}

// Config controls request handling limits.
type Config struct {
	PlanTimeout  time.Duration
	MaxBodyBytes int64
}

// DefaultConfig returns the standard configuration used when no overrides are
// provided.
func DefaultConfig() Config {
	return Config{
		PlanTimeout:  5 * time.Minute,
		MaxBodyBytes: 64 << 10,
	}
}

// Merge overlays non-zero values from the override onto the base configuration.
func (c Config) Merge(override Config) Config {
	result := c
	if override.PlanTimeout > 0 {
		result.PlanTimeout = override.PlanTimeout
	}
	if override.MaxBodyBytes > 0 {
		result.MaxBodyBytes = override.MaxBodyBytes
	}
	return result
}

// NewServer wires the HTTP routes. The record store is optional; its routes answer
// 503 when it is nil.
func NewServer(plans PlanBuilder, table *reference.Table, store RecordStore, cfg *Config) (*Server, error) {
	logger := common.Logger()
	if plans == nil {
		return nil, fmt.Errorf("plan builder required")
	}
	if table == nil {
		return nil, fmt.Errorf("reference table required")
	}
	configuration := DefaultConfig()
	if cfg != nil {
		configuration = configuration.Merge(*cfg)
	}
	srv := &Server{
		router:  chi.NewRouter(),
		plans:   plans,
		table:   table,
		records: store,
		config:  configuration,
	}
	srv.routes()
	logger.Info().
		Int("regions", len(table.Regions())).
		Bool("records", store != nil).
		Dur("plan_timeout", configuration.PlanTimeout).
		Msg("api: server ready")
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("dur", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/plans", s.handlePlan)
		r.Get("/bmi", s.handleBMIQuery)
		r.Post("/bmi", s.handleBMI)
		r.Get("/regions", s.handleRegions)
		r.Get("/regions/{region}/guide", s.handleRegionGuide)
		r.Get("/costs", s.handleCosts)
		r.Get("/records", s.handleRecords)
		r.Get("/records/stats", s.handleRecordStats)
		r.Get("/records/random", s.handleRandomRecord)
		r.Get("/usage", s.handleUsage)
		r.Get("/logs", s.handleLogs)
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) error {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error().Int("status", status).Err(err).Msg("request failed")
	} else {
		logger.Warn().Int("status", status).Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
