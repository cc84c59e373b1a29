package ml

import "fmt"

// Pipeline stages named in errors.
const (
	StageValidate  = "validate"
	StageFeatures  = "feature engineering"
	StageLoad      = "load"
	StageTransform = "transform"
	StagePredict   = "predict"
	StageData      = "load data"
	StageSplit     = "split"
	StageFit       = "fit"
	StagePersist   = "persist"
)

// StageError attaches the failing pipeline stage to an error.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ArtifactLoadError means the pipeline artifact is absent, unreadable or
// incompatible. It fails the current request, not the process.
type ArtifactLoadError struct {
	Path string
	Err  error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("load artifact %s: %v", e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error {
	return e.Err
}

// TrainingError aborts a training run. A run that fails never touches the
// previously persisted artifact.
type TrainingError struct {
	Stage string
	Err   error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training failed at %s: %v", e.Stage, e.Err)
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}
