package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"loan-approval/internal/features"
	"loan-approval/internal/loan"
	"loan-approval/internal/preprocess"

	"gonum.org/v1/gonum/mat"
)

// ArtifactFormatVersion is bumped whenever the persisted layout changes.
const ArtifactFormatVersion = 1

// Metadata describes how a pipeline was trained.
type Metadata struct {
	RunID        string    `json:"run_id"`
	Model        string    `json:"model"`
	TrainedAt    time.Time `json:"trained_at"`
	HoldoutAUC   float64   `json:"holdout_auc"`
	Features     []string  `json:"features"`
	TrainingRows int       `json:"training_rows"`
	HoldoutRows  int       `json:"holdout_rows"`

	Baseline *DriftBaseline `json:"drift_baseline,omitempty"`
}

// Pipeline is a fitted preprocessor followed by a fitted classifier.
type Pipeline struct {
	Preprocessor *preprocess.Preprocessor
	Classifier   Classifier
	Metadata     Metadata
}

// Result is the outcome of scoring one applicant. Probability is nil when
// the classifier cannot estimate one.
type Result struct {
	Prediction  int      `json:"prediction"`
	Probability *float64 `json:"probability"`
}

// Fit fits the preprocessor and then the classifier on engineered rows.
func (p *Pipeline) Fit(rows []features.Row, labels []int) error {
	if err := p.Preprocessor.Fit(rows); err != nil {
		return err
	}
	x, err := p.Preprocessor.Transform(rows)
	if err != nil {
		return err
	}
	return p.Classifier.Fit(x, labels)
}

// Predict scores engineered rows. The returned probabilities are nil when
// the classifier lacks the capability.
func (p *Pipeline) Predict(rows []features.Row) ([]int, []float64, error) {
	x, err := p.Preprocessor.Transform(rows)
	if err != nil {
		return nil, nil, &StageError{Stage: StageTransform, Err: err}
	}
	preds, err := p.Classifier.Predict(x)
	if err != nil {
		return nil, nil, &StageError{Stage: StagePredict, Err: err}
	}
	pc, ok := p.Classifier.(ProbabilisticClassifier)
	if !ok {
		return preds, nil, nil
	}
	proba, err := pc.PredictProba(x)
	if err != nil {
		return nil, nil, &StageError{Stage: StagePredict, Err: err}
	}
	return preds, proba, nil
}

// PredictApplicant validates, engineers and scores a single applicant.
func (p *Pipeline) PredictApplicant(a loan.Applicant) (Result, error) {
	if err := a.Validate(); err != nil {
		return Result{}, &StageError{Stage: StageValidate, Err: err}
	}
	row, err := features.Engineer(a.Row())
	if err != nil {
		return Result{}, &StageError{Stage: StageFeatures, Err: err}
	}
	preds, proba, err := p.Predict([]features.Row{row})
	if err != nil {
		return Result{}, err
	}
	res := Result{Prediction: preds[0]}
	if proba != nil {
		v := proba[0]
		res.Probability = &v
	}
	return res, nil
}

type artifact struct {
	FormatVersion int                      `json:"format_version"`
	Metadata      Metadata                 `json:"metadata"`
	Preprocessor  *preprocess.Preprocessor `json:"preprocessor"`
	Model         artifactModel            `json:"model"`
}

type artifactModel struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// Save writes the pipeline to path as a single JSON document. The file is
// written to a temporary sibling and renamed into place, so a failed save
// leaves any existing artifact untouched.
func (p *Pipeline) Save(path string) error {
	params, err := json.Marshal(p.Classifier)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	data, err := json.Marshal(artifact{
		FormatVersion: ArtifactFormatVersion,
		Metadata:      p.Metadata,
		Preprocessor:  p.Preprocessor,
		Model:         artifactModel{Kind: p.Classifier.Kind(), Params: params},
	})
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}

// LoadPipeline reads an artifact written by Save. Every failure is an
// *ArtifactLoadError.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: fmt.Errorf("corrupt artifact: %w", err)}
	}
	if a.FormatVersion != ArtifactFormatVersion {
		return nil, &ArtifactLoadError{Path: path, Err: fmt.Errorf("unsupported artifact format %d", a.FormatVersion)}
	}
	if a.Preprocessor == nil || !a.Preprocessor.Fitted {
		return nil, &ArtifactLoadError{Path: path, Err: errors.New("artifact has no fitted preprocessor")}
	}
	if err := a.Preprocessor.Check(); err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: fmt.Errorf("invalid preprocessor: %w", err)}
	}
	if a.Metadata.Baseline != nil {
		if err := a.Metadata.Baseline.check(); err != nil {
			return nil, &ArtifactLoadError{Path: path, Err: err}
		}
	}

	clf, err := newByKind(a.Model.Kind)
	if err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	if err := json.Unmarshal(a.Model.Params, clf); err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: fmt.Errorf("decode %s model: %w", a.Model.Kind, err)}
	}

	// Decoded parameters are checked before anything is scored with them.
	if sc, ok := clf.(stateChecker); ok {
		if err := sc.checkState(a.Preprocessor.Width()); err != nil {
			return nil, &ArtifactLoadError{Path: path, Err: fmt.Errorf("invalid %s model: %w", a.Model.Kind, err)}
		}
	}

	// A model that cannot score a row of the preprocessor's width does not
	// belong to this preprocessor.
	probe := mat.NewDense(1, a.Preprocessor.Width(), nil)
	if _, err := clf.Predict(probe); err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: fmt.Errorf("incompatible %s model: %w", a.Model.Kind, err)}
	}

	return &Pipeline{Preprocessor: a.Preprocessor, Classifier: clf, Metadata: a.Metadata}, nil
}
