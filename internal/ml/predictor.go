package ml

import (
	"sync"
	"sync/atomic"
	"time"

	"loan-approval/internal/loan"

	"github.com/rs/zerolog/log"
)

// Predictor owns a loaded pipeline and scores applicants against it. It
// starts unloaded; Load or the first Predict moves it to ready. Reload
// re-reads the artifact and swaps it in only once fully decoded, so a failed
// reload keeps serving the previous pipeline. Safe for concurrent use.
type Predictor struct {
	path    string
	metrics PredictionMetrics

	loadMu   sync.Mutex
	mu       sync.RWMutex
	pipeline *Pipeline
	loadedAt time.Time
	lastErr  string

	started      time.Time
	predictions  atomic.Int64
	errors       atomic.Int64
	totalLatency atomic.Int64
}

// HealthStatus reports the predictor's state for health endpoints.
type HealthStatus struct {
	Healthy         bool      `json:"healthy"`
	ModelLoaded     bool      `json:"model_loaded"`
	ModelPath       string    `json:"model_path"`
	Model           string    `json:"model,omitempty"`
	RunID           string    `json:"run_id,omitempty"`
	LoadedAt        time.Time `json:"loaded_at,omitempty"`
	PredictionCount int64     `json:"prediction_count"`
	ErrorRate       float64   `json:"error_rate"`
	AverageLatency  float64   `json:"average_latency_ms"`
	LastError       string    `json:"last_error,omitempty"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
}

// NewPredictor creates an unloaded predictor for the artifact at path.
// metrics may be nil.
func NewPredictor(path string, metrics PredictionMetrics) *Predictor {
	return &Predictor{path: path, metrics: metrics, started: time.Now()}
}

// Path returns the artifact path.
func (p *Predictor) Path() string {
	return p.path
}

// Ready reports whether a pipeline is loaded.
func (p *Predictor) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pipeline != nil
}

// Metadata returns the loaded pipeline's metadata.
func (p *Predictor) Metadata() (Metadata, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pipeline == nil {
		return Metadata{}, false
	}
	return p.pipeline.Metadata, true
}

// Load reads the artifact unless a pipeline is already loaded.
func (p *Predictor) Load() error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if p.Ready() {
		return nil
	}
	return p.load()
}

// Reload reads the artifact again and replaces the loaded pipeline.
func (p *Predictor) Reload() error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	return p.load()
}

func (p *Predictor) load() error {
	pl, err := LoadPipeline(p.path)
	if err != nil {
		if p.metrics != nil {
			p.metrics.ArtifactLoadFailuresInc()
		}
		p.mu.Lock()
		p.lastErr = err.Error()
		p.mu.Unlock()
		log.Warn().Err(err).Str("model_path", p.path).Msg("Failed to load pipeline")
		return err
	}

	p.mu.Lock()
	p.pipeline = pl
	p.loadedAt = time.Now()
	p.lastErr = ""
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.ArtifactLoadsInc()
	}
	log.Info().
		Str("model_path", p.path).
		Str("model", pl.Metadata.Model).
		Str("run_id", pl.Metadata.RunID).
		Float64("holdout_auc", pl.Metadata.HoldoutAUC).
		Msg("Pipeline loaded")
	return nil
}

func (p *Predictor) current() (*Pipeline, error) {
	p.mu.RLock()
	pl := p.pipeline
	p.mu.RUnlock()
	if pl != nil {
		return pl, nil
	}
	if err := p.Load(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pipeline, nil
}

// Predict validates, engineers and scores one applicant, loading the
// artifact first when the predictor is not ready.
func (p *Predictor) Predict(a loan.Applicant) (Result, error) {
	start := time.Now()
	res, err := p.predict(a)
	elapsed := time.Since(start)

	p.totalLatency.Add(int64(elapsed))
	p.predictions.Add(1)
	if err != nil {
		p.errors.Add(1)
	}

	if p.metrics != nil {
		p.metrics.MLLatencyObserve(elapsed.Seconds())
		if err != nil {
			p.metrics.MLFailuresInc()
		} else {
			p.metrics.MLPredictionsInc()
			if res.Probability != nil {
				p.metrics.MLPredictionScoresObserve(*res.Probability)
			}
		}
	}
	return res, err
}

func (p *Predictor) predict(a loan.Applicant) (Result, error) {
	if err := a.Validate(); err != nil {
		return Result{}, &StageError{Stage: StageValidate, Err: err}
	}
	pl, err := p.current()
	if err != nil {
		return Result{}, &StageError{Stage: StageLoad, Err: err}
	}
	return pl.PredictApplicant(a)
}

// Health returns a snapshot of the predictor's state.
func (p *Predictor) Health() HealthStatus {
	p.mu.RLock()
	status := HealthStatus{
		ModelLoaded:   p.pipeline != nil,
		ModelPath:     p.path,
		LoadedAt:      p.loadedAt,
		LastError:     p.lastErr,
		UptimeSeconds: time.Since(p.started).Seconds(),
	}
	if p.pipeline != nil {
		status.Model = p.pipeline.Metadata.Model
		status.RunID = p.pipeline.Metadata.RunID
	}
	p.mu.RUnlock()

	predictions := p.predictions.Load()
	status.PredictionCount = predictions
	if predictions > 0 {
		status.ErrorRate = float64(p.errors.Load()) / float64(predictions)
		status.AverageLatency = float64(time.Duration(p.totalLatency.Load()).Milliseconds()) / float64(predictions)
	}
	status.Healthy = status.ModelLoaded
	return status
}

// PredictFromFile loads the artifact at path and scores one applicant with
// it. Nothing is cached between calls.
func PredictFromFile(path string, a loan.Applicant) (Result, error) {
	if err := a.Validate(); err != nil {
		return Result{}, &StageError{Stage: StageValidate, Err: err}
	}
	pl, err := LoadPipeline(path)
	if err != nil {
		return Result{}, &StageError{Stage: StageLoad, Err: err}
	}
	return pl.PredictApplicant(a)
}
