// Package ml provides the loan approval classifiers, the persisted
// preprocessing+model pipeline, the batch trainer that selects between
// candidate models, and the predictor that serves the selected pipeline.
//
// Probability support is a capability: a Classifier may also implement
// ProbabilisticClassifier, and callers check for it with a type assertion
// instead of attempting the call and discarding failures.
package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Classifier is a binary classifier over a dense design matrix.
type Classifier interface {
	// Kind names the model family; it selects the decoder when an artifact is loaded.
	Kind() string
	Fit(x *mat.Dense, y []int) error
	Predict(x *mat.Dense) ([]int, error)
}

// ProbabilisticClassifier is a Classifier that can estimate P(label = 1).
type ProbabilisticClassifier interface {
	Classifier
	PredictProba(x *mat.Dense) ([]float64, error)
}

// Model kinds persisted in artifacts.
const (
	KindLogisticRegression = "logistic_regression"
	KindRandomForest       = "random_forest"
	KindGradientBoosting   = "gradient_boosting"
)

// ErrNotFitted is returned by Predict calls on an untrained model.
var ErrNotFitted = errors.New("model is not fitted")

// newByKind returns an empty model for decoding an artifact.
func newByKind(kind string) (Classifier, error) {
	switch kind {
	case KindLogisticRegression:
		return &LogisticRegression{}, nil
	case KindRandomForest:
		return &RandomForest{}, nil
	case KindGradientBoosting:
		return &GradientBoosting{}, nil
	}
	return nil, fmt.Errorf("unknown model kind %q", kind)
}

// stateChecker is implemented by models whose decoded parameters can be
// verified before the first prediction.
type stateChecker interface {
	checkState(width int) error
}

func checkTrees(trees []*Tree, width int) error {
	if len(trees) == 0 {
		return ErrNotFitted
	}
	for i, t := range trees {
		if err := t.check(width); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// checkTrainingData verifies shapes and that both labels are present.
func checkTrainingData(x *mat.Dense, y []int) error {
	if x == nil {
		return errors.New("nil design matrix")
	}
	r, c := x.Dims()
	if r != len(y) {
		return fmt.Errorf("design matrix has %d rows but %d labels", r, len(y))
	}
	if c == 0 {
		return errors.New("design matrix has no columns")
	}
	var pos int
	for i, v := range y {
		if v != 0 && v != 1 {
			return fmt.Errorf("label %d at row %d is not binary", v, i)
		}
		pos += v
	}
	if pos == 0 || pos == len(y) {
		return errors.New("training labels contain a single class")
	}
	return nil
}

func checkWidth(x *mat.Dense, want int) error {
	if want == 0 {
		return ErrNotFitted
	}
	if _, c := x.Dims(); c != want {
		return fmt.Errorf("expected %d features, got %d", want, c)
	}
	return nil
}

// threshold turns probabilities into hard labels.
func threshold(proba []float64) []int {
	out := make([]int, len(proba))
	for i, p := range proba {
		if p > 0.5 {
			out[i] = 1
		}
	}
	return out
}
