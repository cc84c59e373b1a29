package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"loan-approval/internal/dataset"
	"loan-approval/internal/features"
	"loan-approval/internal/preprocess"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Candidate is one model family competing in a training run.
type Candidate struct {
	Name string
	New  func() Classifier
}

// DefaultSeed seeds the holdout split and the random forest unless
// configured otherwise.
const DefaultSeed = 42

// DefaultCandidates returns the candidate set in declaration order. Earlier
// candidates win ties.
func DefaultCandidates(seed uint64) []Candidate {
	return []Candidate{
		{Name: "log_reg", New: func() Classifier { return NewLogisticRegression() }},
		{Name: "random_forest", New: func() Classifier { return NewRandomForest(seed) }},
		{Name: "gradient_boosting", New: func() Classifier { return NewGradientBoosting() }},
	}
}

// TrainerConfig contains configuration for the trainer.
type TrainerConfig struct {
	ModelPath  string
	TestSize   float64
	Seed       uint64
	Candidates []Candidate
}

// CandidateScore is the holdout outcome of one candidate.
type CandidateScore struct {
	Name          string        `json:"name"`
	Kind          string        `json:"kind,omitempty"`
	Fitted        bool          `json:"fitted"`
	Scored        bool          `json:"scored"`
	AUC           float64       `json:"auc"`
	Probabilistic bool          `json:"probabilistic"`
	FitDuration   time.Duration `json:"fit_duration"`
	Error         string        `json:"error,omitempty"`
}

// Score is the selection key. Candidates without a holdout AUC get the
// worst possible score but still take part in selection.
func (c CandidateScore) Score() float64 {
	if !c.Scored {
		return math.Inf(-1)
	}
	return c.AUC
}

// FeatureImportance is the holdout AUC lost when one input column is shuffled.
type FeatureImportance struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
}

// TrainReport describes a completed training run.
type TrainReport struct {
	RunID       string              `json:"run_id"`
	StartedAt   time.Time           `json:"started_at"`
	Duration    time.Duration       `json:"duration"`
	ModelPath   string              `json:"model_path"`
	Selected    string              `json:"selected"`
	Candidates  []CandidateScore    `json:"candidates"`
	Metrics     ModelMetrics        `json:"metrics"`
	Importances []FeatureImportance `json:"importances,omitempty"`
}

// RunRecorder persists training reports.
type RunRecorder interface {
	RecordRun(report *TrainReport) error
}

// Trainer fits every candidate, keeps the best by holdout AUC and persists it.
type Trainer struct {
	config   TrainerConfig
	metrics  TrainingMetrics
	recorder RunRecorder
}

// NewTrainer creates a trainer. metrics may be nil. Seed is used as given,
// zero included; callers wanting the usual split pass DefaultSeed.
func NewTrainer(config TrainerConfig, metrics TrainingMetrics) *Trainer {
	if config.TestSize == 0 {
		config.TestSize = 0.2
	}
	if len(config.Candidates) == 0 {
		config.Candidates = DefaultCandidates(config.Seed)
	}
	return &Trainer{config: config, metrics: metrics}
}

// SetRecorder sets the registry that receives each successful run report.
func (t *Trainer) SetRecorder(r RunRecorder) {
	t.recorder = r
}

// TrainFromCSV loads a training file and runs Train on it.
func (t *Trainer) TrainFromCSV(ctx context.Context, path string) (*TrainReport, error) {
	ds, err := dataset.LoadCSV(path)
	if err != nil {
		t.recordFailure()
		return nil, &TrainingError{Stage: StageData, Err: err}
	}
	return t.Train(ctx, ds)
}

// Train runs one training job. On success exactly one artifact is written
// to the configured path; on failure nothing is written.
func (t *Trainer) Train(ctx context.Context, ds *dataset.Dataset) (*TrainReport, error) {
	start := time.Now()
	report, err := t.train(ctx, ds, start)
	if err != nil {
		t.recordFailure()
		log.Error().Err(err).Msg("Training run failed")
		return nil, err
	}

	report.Duration = time.Since(start)
	if t.metrics != nil {
		t.metrics.TrainingRunsInc()
		t.metrics.TrainingDurationObserve(report.Duration.Seconds())
		t.metrics.ModelAUCSet(report.Metrics.AUCScore)
	}

	if t.recorder != nil {
		if err := t.recorder.RecordRun(report); err != nil {
			log.Warn().Err(err).Str("run_id", report.RunID).Msg("Failed to record training run")
		}
	}

	log.Info().
		Str("run_id", report.RunID).
		Str("selected", report.Selected).
		Float64("auc", report.Metrics.AUCScore).
		Dur("duration", report.Duration).
		Str("model_path", report.ModelPath).
		Msg("Saved trained pipeline")

	return report, nil
}

func (t *Trainer) train(ctx context.Context, ds *dataset.Dataset, start time.Time) (*TrainReport, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, &TrainingError{Stage: StageData, Err: errors.New("no training rows")}
	}
	if len(ds.Labels) != ds.Len() {
		return nil, &TrainingError{Stage: StageData, Err: dataset.ErrMissingTarget}
	}

	rows, err := features.EngineerAll(ds.Rows)
	if err != nil {
		return nil, &TrainingError{Stage: StageFeatures, Err: err}
	}
	split, err := dataset.StratifiedSplit(&dataset.Dataset{Rows: rows, Labels: ds.Labels}, t.config.TestSize, t.config.Seed)
	if err != nil {
		return nil, &TrainingError{Stage: StageSplit, Err: err}
	}
	train, holdout := split.Train, split.Holdout

	log.Info().
		Int("train_rows", train.Len()).
		Int("holdout_rows", holdout.Len()).
		Int("train_positives", train.Positives()).
		Msg("Data split")

	report := &TrainReport{
		RunID:      uuid.NewString(),
		StartedAt:  start,
		ModelPath:  t.config.ModelPath,
		Candidates: make([]CandidateScore, len(t.config.Candidates)),
	}
	pipelines := make([]*Pipeline, len(t.config.Candidates))
	var fitErrs []error

	for i, c := range t.config.Candidates {
		if err := ctx.Err(); err != nil {
			return nil, &TrainingError{Stage: StageFit, Err: err}
		}
		score, pl, err := t.evaluate(c, train, holdout)
		report.Candidates[i] = score
		if err != nil {
			fitErrs = append(fitErrs, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		pipelines[i] = pl
	}

	best := selectBest(report.Candidates)
	if best < 0 {
		return nil, &TrainingError{Stage: StageFit, Err: errors.Join(fitErrs...)}
	}
	winner := pipelines[best]
	chosen := report.Candidates[best]
	report.Selected = chosen.Name

	log.Info().Str("model", chosen.Name).Float64("auc", chosen.Score()).Msg("Best model selected")

	preds, proba, err := winner.Predict(holdout.Rows)
	if err != nil {
		return nil, &TrainingError{Stage: StagePredict, Err: err}
	}
	report.Metrics = classificationReport(holdout.Labels, preds)
	report.Metrics.TrainingSamples = train.Len()
	if chosen.Scored {
		report.Metrics.AUCScore = chosen.AUC
	}

	log.Info().
		Float64("accuracy", report.Metrics.Accuracy).
		Float64("precision", report.Metrics.Precision).
		Float64("recall", report.Metrics.Recall).
		Float64("f1", report.Metrics.F1Score).
		Float64("approval_rate", report.Metrics.ApprovalRate).
		Msg("Holdout evaluation")

	if proba != nil && chosen.Scored {
		imp, err := permutationImportance(winner, holdout, chosen.AUC, t.config.Seed)
		if err != nil {
			log.Warn().Err(err).Msg("Permutation importance failed")
		}
		report.Importances = imp
	}

	baseline, err := NewDriftBaseline(train.Rows, preprocess.NumericColumns, 0)
	if err != nil {
		log.Warn().Err(err).Msg("Drift baseline not computed")
	}

	winner.Metadata = Metadata{
		RunID:        report.RunID,
		Model:        chosen.Name,
		TrainedAt:    time.Now().UTC(),
		HoldoutAUC:   report.Metrics.AUCScore,
		Features:     winner.Preprocessor.FeatureNames(),
		TrainingRows: train.Len(),
		HoldoutRows:  holdout.Len(),
		Baseline:     baseline,
	}
	if err := winner.Save(t.config.ModelPath); err != nil {
		return nil, &TrainingError{Stage: StagePersist, Err: err}
	}

	return report, nil
}

// evaluate fits one candidate on the training split and scores it on the
// holdout split. An error means the candidate could not be fitted.
func (t *Trainer) evaluate(c Candidate, train, holdout *dataset.Dataset) (CandidateScore, *Pipeline, error) {
	clf := c.New()
	score := CandidateScore{Name: c.Name, Kind: clf.Kind()}
	_, score.Probabilistic = clf.(ProbabilisticClassifier)

	log.Info().Str("model", c.Name).Msg("Training model")

	pl := &Pipeline{Preprocessor: preprocess.New(), Classifier: clf}
	fitStart := time.Now()
	err := pl.Fit(train.Rows, train.Labels)
	score.FitDuration = time.Since(fitStart)
	if err != nil {
		score.Error = err.Error()
		log.Warn().Err(err).Str("model", c.Name).Msg("Model failed to fit")
		return score, nil, err
	}
	score.Fitted = true

	_, proba, err := pl.Predict(holdout.Rows)
	switch {
	case err != nil:
		score.Error = err.Error()
		log.Warn().Err(err).Str("model", c.Name).Msg("Model failed to score holdout")
	case proba == nil:
		log.Warn().Str("model", c.Name).Msg("Model has no probability output, scoring as worst")
	default:
		auc, err := ROCAUC(holdout.Labels, proba)
		if err != nil {
			score.Error = err.Error()
			log.Warn().Err(err).Str("model", c.Name).Msg("Holdout AUC unavailable")
			break
		}
		score.AUC, score.Scored = auc, true
		if t.metrics != nil {
			t.metrics.CandidateAUCSet(c.Name, auc)
		}
	}

	log.Info().
		Str("model", c.Name).
		Float64("auc", score.Score()).
		Dur("fit_duration", score.FitDuration).
		Msg("Model evaluated")

	return score, pl, nil
}

// selectBest returns the index of the fitted candidate with the strictly
// highest score, or -1 when none was fitted. Ties keep the earlier one.
func selectBest(scores []CandidateScore) int {
	best := -1
	for i, s := range scores {
		if !s.Fitted {
			continue
		}
		if best < 0 || s.Score() > scores[best].Score() {
			best = i
		}
	}
	return best
}

func (t *Trainer) recordFailure() {
	if t.metrics != nil {
		t.metrics.TrainingFailuresInc()
	}
}
