package ml

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ErrSingleClass means AUC is undefined because only one label is present.
var ErrSingleClass = errors.New("roc auc is undefined for a single class")

// ROCAUC returns the area under the ROC curve of scores against binary labels.
func ROCAUC(labels []int, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, fmt.Errorf("roc auc: %d labels but %d scores", len(labels), len(scores))
	}
	var pos int
	for _, y := range labels {
		pos += y
	}
	if pos == 0 || pos == len(labels) {
		return 0, ErrSingleClass
	}

	y := slices.Clone(scores)
	classes := make([]bool, len(labels))
	for i, l := range labels {
		if math.IsNaN(y[i]) {
			return 0, errors.New("roc auc: NaN score")
		}
		classes[i] = l == 1
	}
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// ModelMetrics summarizes a model's holdout performance.
type ModelMetrics struct {
	AUCScore        float64 `json:"auc_score"`
	Accuracy        float64 `json:"accuracy"`
	F1Score         float64 `json:"f1_score"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	ApprovalRate    float64 `json:"approval_rate"`
	TrainingSamples int     `json:"training_samples"`
	HoldoutSamples  int     `json:"holdout_samples"`
}

// classificationReport fills the label-based fields of ModelMetrics for the
// positive class.
func classificationReport(labels, preds []int) ModelMetrics {
	var tp, fp, fn, tn int
	for i, y := range labels {
		switch {
		case y == 1 && preds[i] == 1:
			tp++
		case y == 0 && preds[i] == 1:
			fp++
		case y == 1 && preds[i] == 0:
			fn++
		default:
			tn++
		}
	}
	n := float64(len(labels))
	m := ModelMetrics{HoldoutSamples: len(labels)}
	if n > 0 {
		m.Accuracy = float64(tp+tn) / n
		m.ApprovalRate = float64(tp+fp) / n
	}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1Score = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}
