package ml

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"loan-approval/internal/features"
	"loan-approval/internal/loan"
	"loan-approval/internal/preprocess"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func examplePipelineApplicant() loan.Applicant {
	return loan.Applicant{
		Age:                   30,
		YearsEmployed:         4,
		AnnualIncome:          50000,
		CreditScore:           700,
		CreditHistoryYears:    6,
		SavingsAssets:         10000,
		CurrentDebt:           5000,
		DefaultsOnFile:        0,
		DelinquenciesLast2Yrs: 0,
		DerogatoryMarks:       0,
		LoanAmount:            10000,
		InterestRate:          10.5,
		OccupationStatus:      "Salaried",
		LoanIntent:            "Education",
		ProductType:           "Personal Loan",
	}
}

// fittedPipeline trains a logistic regression pipeline on synthetic data.
func fittedPipeline(t *testing.T) *Pipeline {
	t.Helper()
	ds := syntheticDataset(300, 1)
	rows, err := features.EngineerAll(ds.Rows)
	require.NoError(t, err)

	pl := &Pipeline{Preprocessor: preprocess.New(), Classifier: NewLogisticRegression()}
	require.NoError(t, pl.Fit(rows, ds.Labels))
	pl.Metadata = Metadata{RunID: "run-1", Model: "log_reg", Features: pl.Preprocessor.FeatureNames()}
	return pl
}

func TestPipeline_PredictApplicant(t *testing.T) {
	pl := fittedPipeline(t)

	res, err := pl.PredictApplicant(examplePipelineApplicant())
	require.NoError(t, err)
	assert.Contains(t, []int{0, 1}, res.Prediction)
	require.NotNil(t, res.Probability)
	assert.GreaterOrEqual(t, *res.Probability, 0.0)
	assert.LessOrEqual(t, *res.Probability, 1.0)
}

func TestPipeline_ValidatesBeforeScoring(t *testing.T) {
	pl := fittedPipeline(t)
	a := examplePipelineApplicant()
	a.Age = 15

	_, err := pl.PredictApplicant(a)
	var verr *loan.ValidationError
	require.ErrorAs(t, err, &verr)
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageValidate, serr.Stage)
}

func TestPipeline_UnseenCategoryScores(t *testing.T) {
	pl := fittedPipeline(t)
	a := examplePipelineApplicant()
	a.LoanIntent = "Wedding"

	res, err := pl.PredictApplicant(a)
	require.NoError(t, err)
	assert.NotNil(t, res.Probability)
}

func TestPipeline_NonProbabilisticHasNilProbability(t *testing.T) {
	ds := syntheticDataset(50, 2)
	rows, err := features.EngineerAll(ds.Rows)
	require.NoError(t, err)
	pl := &Pipeline{Preprocessor: preprocess.New(), Classifier: hardClassifier{}}
	require.NoError(t, pl.Fit(rows, ds.Labels))

	res, err := pl.PredictApplicant(examplePipelineApplicant())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Prediction)
	assert.Nil(t, res.Probability)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prediction":0,"probability":null}`, string(data))
}

func TestPipeline_SaveLoad(t *testing.T) {
	pl := fittedPipeline(t)
	path := filepath.Join(t.TempDir(), "nested", "dir", "model.json")
	require.NoError(t, pl.Save(path))

	loaded, err := LoadPipeline(path)
	require.NoError(t, err)
	assert.Equal(t, pl.Metadata.RunID, loaded.Metadata.RunID)
	assert.Equal(t, pl.Preprocessor.FeatureNames(), loaded.Preprocessor.FeatureNames())

	want, err := pl.PredictApplicant(examplePipelineApplicant())
	require.NoError(t, err)
	got, err := loaded.PredictApplicant(examplePipelineApplicant())
	require.NoError(t, err)
	assert.Equal(t, want.Prediction, got.Prediction)
	assert.InDelta(t, *want.Probability, *got.Probability, 1e-12)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

// artifactDoc saves pl and returns the artifact as a generic JSON document.
func artifactDoc(t *testing.T, dir string, pl *Pipeline) map[string]any {
	t.Helper()
	path := filepath.Join(dir, "source-"+pl.Classifier.Kind()+".json")
	require.NoError(t, pl.Save(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

// fittedForestPipeline trains a small random forest pipeline.
func fittedForestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	ds := syntheticDataset(200, 3)
	rows, err := features.EngineerAll(ds.Rows)
	require.NoError(t, err)

	pl := &Pipeline{Preprocessor: preprocess.New(), Classifier: &RandomForest{NTrees: 3, MaxDepth: 3, MinSamplesLeaf: 1, Seed: 1}}
	require.NoError(t, pl.Fit(rows, ds.Labels))
	pl.Metadata = Metadata{RunID: "run-rf", Model: "random_forest"}
	return pl
}

func TestLoadPipeline_Errors(t *testing.T) {
	dir := t.TempDir()
	linear := artifactDoc(t, dir, fittedPipeline(t))
	forest := artifactDoc(t, dir, fittedForestPipeline(t))

	rewrite := func(name string, doc map[string]any, mutate func(map[string]any)) string {
		clone := map[string]any{}
		b, _ := json.Marshal(doc)
		require.NoError(t, json.Unmarshal(b, &clone))
		mutate(clone)
		out, err := json.Marshal(clone)
		require.NoError(t, err)
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, out, 0o644))
		return path
	}
	preprocessor := func(m map[string]any) map[string]any {
		return m["preprocessor"].(map[string]any)
	}
	params := func(m map[string]any) map[string]any {
		return m["model"].(map[string]any)["params"].(map[string]any)
	}
	firstTree := func(nodes ...map[string]any) func(map[string]any) {
		return func(m map[string]any) {
			trees := params(m)["trees"].([]any)
			trees[0].(map[string]any)["nodes"] = nodes
		}
	}
	leaf := map[string]any{"f": -1, "v": 0.5}

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "absent.json")},
		{"corrupt file", corrupt},
		{"future format", rewrite("version.json", linear, func(m map[string]any) { m["format_version"] = 99 })},
		{"unknown model kind", rewrite("kind.json", linear, func(m map[string]any) {
			m["model"].(map[string]any)["kind"] = "svm"
		})},
		{"no preprocessor", rewrite("nopre.json", linear, func(m map[string]any) { delete(m, "preprocessor") })},
		{"model width mismatch", rewrite("width.json", linear, func(m map[string]any) {
			params(m)["weights"] = []float64{1, 2}
		})},
		{"preprocessor without columns", rewrite("nocols.json", linear, func(m map[string]any) {
			preprocessor(m)["encoders"] = []any{}
			preprocessor(m)["scalers"] = []any{}
			params(m)["weights"] = []float64{}
		})},
		{"unsorted categories", rewrite("unsorted.json", linear, func(m map[string]any) {
			enc := preprocessor(m)["encoders"].([]any)[0].(map[string]any)
			enc["categories"] = []string{"b", "a"}
		})},
		{"zero scale", rewrite("scale.json", linear, func(m map[string]any) {
			preprocessor(m)["scalers"].([]any)[0].(map[string]any)["scale"] = 0
		})},
		{"drift baseline shape", rewrite("baseline.json", linear, func(m map[string]any) {
			m["metadata"].(map[string]any)["drift_baseline"] = map[string]any{
				"features": []any{map[string]any{"column": "age", "edges": []float64{30, 40}, "expected": []float64{0.5, 0.5}}},
			}
		})},
		{"forest without trees", rewrite("notrees.json", forest, func(m map[string]any) {
			params(m)["trees"] = []any{}
		})},
		{"empty tree", rewrite("emptytree.json", forest, firstTree())},
		{"split feature out of range", rewrite("feature.json", forest, firstTree(
			map[string]any{"f": 999, "t": 0, "l": 1, "r": 2}, leaf, leaf,
		))},
		{"child out of range", rewrite("child.json", forest, firstTree(
			map[string]any{"f": 0, "t": 0, "l": 1, "r": 7}, leaf,
		))},
		{"self-referencing node", rewrite("cycle.json", forest, firstTree(
			map[string]any{"f": 0, "t": 0, "l": 0, "r": 0},
		))},
		{"forest width mismatch", rewrite("forestwidth.json", forest, func(m map[string]any) {
			params(m)["width"] = 3
		})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = LoadPipeline(tc.path) })
			var lerr *ArtifactLoadError
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, tc.path, lerr.Path)
		})
	}

	_, err := LoadPipeline(filepath.Join(dir, "absent.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadPipeline_ForestRoundTrip(t *testing.T) {
	pl := fittedForestPipeline(t)
	path := filepath.Join(t.TempDir(), "forest.json")
	require.NoError(t, pl.Save(path))

	loaded, err := LoadPipeline(path)
	require.NoError(t, err)

	want, err := pl.PredictApplicant(examplePipelineApplicant())
	require.NoError(t, err)
	got, err := loaded.PredictApplicant(examplePipelineApplicant())
	require.NoError(t, err)
	assert.Equal(t, want.Prediction, got.Prediction)
	assert.InDelta(t, *want.Probability, *got.Probability, 1e-12)
}

func TestTree_Check(t *testing.T) {
	tests := []struct {
		name    string
		tree    *Tree
		wantErr bool
	}{
		{"single leaf", &Tree{Nodes: []Node{{Feature: -1, Value: 1}}}, false},
		{"split", &Tree{Nodes: []Node{{Feature: 1, Left: 1, Right: 2}, {Feature: -1}, {Feature: -1, Value: 1}}}, false},
		{"nil", nil, true},
		{"no nodes", &Tree{}, true},
		{"feature past width", &Tree{Nodes: []Node{{Feature: 2, Left: 1, Right: 2}, {Feature: -1}, {Feature: -1}}}, true},
		{"child before parent", &Tree{Nodes: []Node{{Feature: -1}, {Feature: 0, Left: 0, Right: 2}, {Feature: -1}}}, true},
		{"child past end", &Tree{Nodes: []Node{{Feature: 0, Left: 1, Right: 3}, {Feature: -1}, {Feature: -1}}}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tree.check(2)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPipeline_SaveFailureKeepsExistingArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	// A directory where the parent should be makes the write fail.
	blocked := filepath.Join(dir, "model.json", "child.json")
	pl := fittedPipeline(t)
	assert.Error(t, pl.Save(blocked))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}
