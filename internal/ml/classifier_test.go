package ml

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func smallForest() *RandomForest {
	rf := NewRandomForest(42)
	rf.NTrees = 30
	return rf
}

func smallBoosting() *GradientBoosting {
	gb := NewGradientBoosting()
	gb.NRounds = 50
	gb.MaxDepth = 3
	return gb
}

func TestClassifiers_LearnLinearSignal(t *testing.T) {
	x, y := linearData(400, 5, 1)
	xt, yt := linearData(200, 5, 2)

	models := []ProbabilisticClassifier{
		NewLogisticRegression(),
		smallForest(),
		smallBoosting(),
	}
	for _, m := range models {
		t.Run(m.Kind(), func(t *testing.T) {
			require.NoError(t, m.Fit(x, y))

			proba, err := m.PredictProba(xt)
			require.NoError(t, err)
			require.Len(t, proba, 200)
			for _, p := range proba {
				assert.GreaterOrEqual(t, p, 0.0)
				assert.LessOrEqual(t, p, 1.0)
			}

			auc, err := ROCAUC(yt, proba)
			require.NoError(t, err)
			assert.Greater(t, auc, 0.85, "holdout AUC for %s", m.Kind())

			preds, err := m.Predict(xt)
			require.NoError(t, err)
			assert.Equal(t, threshold(proba), preds)
		})
	}
}

func TestClassifiers_RejectBadTrainingData(t *testing.T) {
	x, _ := linearData(20, 3, 1)
	oneClass := make([]int, 20)
	nonBinary := make([]int, 20)
	nonBinary[3] = 2

	for _, m := range []Classifier{NewLogisticRegression(), smallForest(), smallBoosting()} {
		assert.Error(t, m.Fit(x, oneClass), m.Kind())
		assert.Error(t, m.Fit(x, nonBinary), m.Kind())
		assert.Error(t, m.Fit(x, make([]int, 5)), m.Kind())
	}
}

func TestClassifiers_NotFitted(t *testing.T) {
	x, _ := linearData(5, 3, 1)
	for _, m := range []Classifier{NewLogisticRegression(), NewRandomForest(1), NewGradientBoosting()} {
		_, err := m.Predict(x)
		assert.ErrorIs(t, err, ErrNotFitted, m.Kind())
	}
}

func TestClassifiers_WidthMismatch(t *testing.T) {
	x, y := linearData(100, 4, 1)
	wide := mat.NewDense(2, 5, nil)
	for _, m := range []Classifier{NewLogisticRegression(), smallForest(), smallBoosting()} {
		require.NoError(t, m.Fit(x, y))
		_, err := m.Predict(wide)
		assert.Error(t, err, m.Kind())
	}
}

func TestLogisticRegression_Converges(t *testing.T) {
	x, y := linearData(300, 3, 5)
	m := NewLogisticRegression()
	require.NoError(t, m.Fit(x, y))

	assert.Len(t, m.Weights, 3)
	assert.Less(t, m.Iterations, m.MaxIter)
	// The first column carries the largest true coefficient.
	assert.Greater(t, m.Weights[0], m.Weights[2])
	assert.Greater(t, m.Weights[2], 0.0)
}

func TestLogisticRegression_StrongerPenaltyShrinksWeights(t *testing.T) {
	x, y := linearData(300, 3, 5)
	loose := NewLogisticRegression()
	tight := NewLogisticRegression()
	tight.C = 0.01
	require.NoError(t, loose.Fit(x, y))
	require.NoError(t, tight.Fit(x, y))

	assert.Less(t, floats.Norm(tight.Weights, 2), floats.Norm(loose.Weights, 2))
}

func TestRandomForest_DeterministicAcrossWorkers(t *testing.T) {
	x, y := linearData(150, 4, 9)
	xt, _ := linearData(50, 4, 10)

	serial := smallForest()
	serial.Workers = 1
	parallel := smallForest()
	parallel.Workers = 8
	require.NoError(t, serial.Fit(x, y))
	require.NoError(t, parallel.Fit(x, y))

	a, err := serial.PredictProba(xt)
	require.NoError(t, err)
	b, err := parallel.PredictProba(xt)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGradientBoosting_RespectsMaxDepth(t *testing.T) {
	x, y := linearData(200, 4, 3)
	m := smallBoosting()
	require.NoError(t, m.Fit(x, y))

	require.Len(t, m.Trees, 50)
	for _, tree := range m.Trees {
		assert.LessOrEqual(t, tree.Depth(), 3)
	}
}

func TestClassifiers_SurviveArtifactEncoding(t *testing.T) {
	x, y := linearData(120, 3, 4)
	for _, m := range []ProbabilisticClassifier{NewLogisticRegression(), smallForest(), smallBoosting()} {
		t.Run(m.Kind(), func(t *testing.T) {
			require.NoError(t, m.Fit(x, y))
			want, err := m.PredictProba(x)
			require.NoError(t, err)

			data, err := json.Marshal(m)
			require.NoError(t, err)
			decoded, err := newByKind(m.Kind())
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(data, decoded))

			got, err := decoded.(ProbabilisticClassifier).PredictProba(x)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, got, 1e-12)
		})
	}
}

func TestNewByKind_Unknown(t *testing.T) {
	_, err := newByKind("svm")
	assert.Error(t, err)
}

func TestTree_Eval(t *testing.T) {
	tree := &Tree{Nodes: []Node{
		{Feature: 0, Threshold: 0.5, Left: 1, Right: 2},
		{Feature: -1, Value: 0.1},
		{Feature: -1, Value: 0.9},
	}}
	assert.Equal(t, 0.1, tree.Eval([]float64{0.5}))
	assert.Equal(t, 0.9, tree.Eval([]float64{0.6}))
	assert.Equal(t, 1, tree.Depth())
}
