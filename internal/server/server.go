// Package server exposes the loan approval predictor over HTTP and websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"loan-approval/internal/loan"
	"loan-approval/internal/ml"
	"loan-approval/internal/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// Metrics defines the metrics methods needed by the server.
type Metrics interface {
	ml.PredictionMetrics
	ValidationRejectionsInc()
	HTTPRequestInc(route string, code int)
}

// Registry receives the prediction audit trail and supplies run history.
type Registry interface {
	StorePrediction(record storage.PredictionRecord) error
	LatestRun() (*ml.TrainReport, error)
}

// Config contains configuration for the server.
type Config struct {
	Port           int
	RequestTimeout time.Duration
	// CacheModel keeps the predictor's pipeline between requests. When false
	// every request loads the artifact afresh.
	CacheModel bool
	// MetricsHandler serves /metrics; nil uses the default Prometheus registry.
	MetricsHandler http.Handler
}

// Server provides the HTTP API for loan approval predictions.
type Server struct {
	predictor *ml.Predictor
	config    Config
	metrics   Metrics
	registry  Registry
	drift     *ml.DriftMonitor
	upgrader  websocket.Upgrader
	handler   http.Handler
	server    *http.Server
}

// Envelope is the body of every prediction response.
type Envelope struct {
	Success bool       `json:"success"`
	Result  *ml.Result `json:"result,omitempty"`
	Error   string     `json:"error,omitempty"`
	Details []string   `json:"details,omitempty"`
}

// HealthResponse is the body of GET /health. The process is live whenever it
// answers; Predictor says whether a pipeline is loaded.
type HealthResponse struct {
	Status     string          `json:"status"`
	CacheModel bool            `json:"cache_model"`
	Predictor  ml.HealthStatus `json:"predictor"`
}

// ModelInfo is the body of GET /model/info.
type ModelInfo struct {
	ModelPath    string          `json:"model_path"`
	RunID        string          `json:"run_id"`
	Model        string          `json:"model"`
	TrainedAt    time.Time       `json:"trained_at"`
	HoldoutAUC   float64         `json:"holdout_auc"`
	Features     []string        `json:"features"`
	TrainingRows int             `json:"training_rows"`
	HoldoutRows  int             `json:"holdout_rows"`
	LatestRun    *ml.TrainReport `json:"latest_run,omitempty"`
}

// ReloadResponse is the body of a successful POST /model/reload.
type ReloadResponse struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id"`
	Model   string `json:"model"`
}

// New creates a server around predictor. metrics may be nil.
func New(predictor *ml.Predictor, config Config, metrics Metrics) *Server {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.MetricsHandler == nil {
		config.MetricsHandler = promhttp.Handler()
	}

	s := &Server{
		predictor: predictor,
		config:    config,
		metrics:   metrics,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}

	r := mux.NewRouter()
	r.Handle("/", s.instrument("/", s.handleRoot)).Methods(http.MethodGet)
	r.Handle("/predict", s.instrument("/predict", s.handlePredict)).Methods(http.MethodPost)
	r.Handle("/health", s.instrument("/health", s.handleHealth)).Methods(http.MethodGet)
	r.Handle("/model/info", s.instrument("/model/info", s.handleModelInfo)).Methods(http.MethodGet)
	r.Handle("/model/reload", s.instrument("/model/reload", s.handleModelReload)).Methods(http.MethodPost)
	r.Handle("/model/drift", s.instrument("/model/drift", s.handleModelDrift)).Methods(http.MethodGet)
	r.Handle("/metrics", config.MetricsHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws/predict", s.handleWebSocket).Methods(http.MethodGet)
	r.NotFoundHandler = s.instrument("not_found", http.NotFound)
	r.MethodNotAllowedHandler = s.instrument("method_not_allowed", methodNotAllowed)
	s.handler = withCORS(r)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      config.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// SetRegistry enables the prediction audit trail and run history.
func (s *Server) SetRegistry(r Registry) {
	s.registry = r
}

// SetDriftMonitor enables drift tracking of served applicants.
func (s *Server) SetDriftMonitor(m *ml.DriftMonitor) {
	s.drift = m
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.server.Addr).
		Bool("cache_model", s.config.CacheModel).
		Str("model_path", s.predictor.Path()).
		Msg("Starting prediction server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// score runs one prediction against the cached predictor or a fresh one.
func (s *Server) score(a loan.Applicant) (ml.Result, ml.Metadata, error) {
	p := s.predictor
	if !s.config.CacheModel {
		p = ml.NewPredictor(s.predictor.Path(), s.metrics)
	}
	res, err := p.Predict(a)
	meta, _ := p.Metadata()
	return res, meta, err
}

type outcome struct {
	res  ml.Result
	meta ml.Metadata
	err  error
}

// predict scores a within the request timeout and records the audit trail.
func (s *Server) predict(ctx context.Context, a loan.Applicant, source string) (ml.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		res, meta, err := s.score(a)
		done <- outcome{res: res, meta: meta, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		return ml.Result{}, ctx.Err()
	}
	if o.err != nil {
		return ml.Result{}, o.err
	}

	if s.drift != nil {
		s.drift.Observe(o.meta, a)
	}
	if s.registry != nil {
		record := storage.PredictionRecord{
			Timestamp:   time.Now(),
			RunID:       o.meta.RunID,
			Model:       o.meta.Model,
			Source:      source,
			Applicant:   a,
			Prediction:  o.res.Prediction,
			Probability: o.res.Probability,
			LatencyMs:   float64(time.Since(start).Microseconds()) / 1000,
		}
		if err := s.registry.StorePrediction(record); err != nil {
			log.Warn().Err(err).Msg("Failed to store prediction audit record")
		}
	}
	return o.res, nil
}

// errorStatus maps a prediction error to an HTTP status and envelope.
func (s *Server) errorStatus(err error) (int, Envelope) {
	env := Envelope{Success: false, Error: err.Error()}

	var verr *loan.ValidationError
	var lerr *ml.ArtifactLoadError
	switch {
	case errors.As(err, &verr):
		if s.metrics != nil {
			s.metrics.ValidationRejectionsInc()
		}
		env.Error = "validation failed"
		env.Details = verr.Problems
		return http.StatusBadRequest, env
	case errors.As(err, &lerr):
		return http.StatusServiceUnavailable, env
	case errors.Is(err, context.DeadlineExceeded):
		env.Error = "prediction timed out"
		return http.StatusGatewayTimeout, env
	}
	return http.StatusInternalServerError, env
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	a, err := loan.DecodeApplicant(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil {
		var res ml.Result
		res, err = s.predict(r.Context(), a, "http")
		if err == nil {
			writeJSON(w, http.StatusOK, Envelope{Success: true, Result: &res})
			return
		}
	}

	status, env := s.errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Prediction failed")
	}
	writeJSON(w, status, env)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Loan approval prediction API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		CacheModel: s.config.CacheModel,
		Predictor:  s.predictor.Health(),
	})
}

// currentMetadata reads metadata from the cached predictor, or from the
// artifact on disk when caching is off.
func (s *Server) currentMetadata() (ml.Metadata, error) {
	if !s.config.CacheModel {
		pl, err := ml.LoadPipeline(s.predictor.Path())
		if err != nil {
			return ml.Metadata{}, err
		}
		return pl.Metadata, nil
	}
	if err := s.predictor.Load(); err != nil {
		return ml.Metadata{}, err
	}
	meta, _ := s.predictor.Metadata()
	return meta, nil
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	meta, err := s.currentMetadata()
	if err != nil {
		status, env := s.errorStatus(err)
		writeJSON(w, status, env)
		return
	}

	info := ModelInfo{
		ModelPath:    s.predictor.Path(),
		RunID:        meta.RunID,
		Model:        meta.Model,
		TrainedAt:    meta.TrainedAt,
		HoldoutAUC:   meta.HoldoutAUC,
		Features:     meta.Features,
		TrainingRows: meta.TrainingRows,
		HoldoutRows:  meta.HoldoutRows,
	}
	if s.registry != nil {
		if run, err := s.registry.LatestRun(); err == nil {
			info.LatestRun = run
		}
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleModelReload(w http.ResponseWriter, r *http.Request) {
	if err := s.predictor.Reload(); err != nil {
		status, env := s.errorStatus(err)
		writeJSON(w, status, env)
		return
	}
	meta, _ := s.predictor.Metadata()
	log.Info().Str("run_id", meta.RunID).Str("model", meta.Model).Msg("Pipeline reloaded via API")
	writeJSON(w, http.StatusOK, ReloadResponse{Success: true, RunID: meta.RunID, Model: meta.Model})
}

func (s *Server) handleModelDrift(w http.ResponseWriter, r *http.Request) {
	if s.drift == nil {
		writeJSON(w, http.StatusNotFound, Envelope{Success: false, Error: "drift monitoring is disabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.drift.Report())
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
