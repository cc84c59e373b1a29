package ml

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"loan-approval/internal/loan"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func savedPipeline(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loan_model.json")
	require.NoError(t, fittedPipeline(t).Save(path))
	return path
}

func TestPredictFromFile_ExampleRecord(t *testing.T) {
	path := savedPipeline(t)

	res, err := PredictFromFile(path, examplePipelineApplicant())
	require.NoError(t, err)
	assert.Contains(t, []int{0, 1}, res.Prediction)
	if res.Probability != nil {
		assert.GreaterOrEqual(t, *res.Probability, 0.0)
		assert.LessOrEqual(t, *res.Probability, 1.0)
	}
}

func TestPredictFromFile_MissingArtifact(t *testing.T) {
	_, err := PredictFromFile(filepath.Join(t.TempDir(), "absent.json"), examplePipelineApplicant())

	var lerr *ArtifactLoadError
	require.ErrorAs(t, err, &lerr)
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageLoad, serr.Stage)
}

func TestPredictFromFile_AgeBounds(t *testing.T) {
	path := savedPipeline(t)

	young := examplePipelineApplicant()
	young.Age = 15
	_, err := PredictFromFile(path, young)
	var verr *loan.ValidationError
	assert.ErrorAs(t, err, &verr)

	adult := examplePipelineApplicant()
	adult.Age = 30
	_, err = PredictFromFile(path, adult)
	assert.NoError(t, err)
}

func TestPredictor_LoadsLazily(t *testing.T) {
	metrics := &MockMetrics{}
	p := NewPredictor(savedPipeline(t), metrics)
	assert.False(t, p.Ready())

	res, err := p.Predict(examplePipelineApplicant())
	require.NoError(t, err)
	assert.True(t, p.Ready())
	require.NotNil(t, res.Probability)

	meta, ok := p.Metadata()
	require.True(t, ok)
	assert.Equal(t, "run-1", meta.RunID)

	assert.Equal(t, 1, metrics.artifactLoads)
	assert.Equal(t, 1, metrics.predictions)
	assert.Len(t, metrics.predictionScores, 1)

	_, err = p.Predict(examplePipelineApplicant())
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.artifactLoads, "ready predictor must not reload")
}

func TestPredictor_MissingArtifact(t *testing.T) {
	metrics := &MockMetrics{}
	p := NewPredictor(filepath.Join(t.TempDir(), "absent.json"), metrics)

	err := p.Load()
	var lerr *ArtifactLoadError
	require.ErrorAs(t, err, &lerr)
	assert.False(t, p.Ready())

	_, err = p.Predict(examplePipelineApplicant())
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 2, metrics.artifactFailures)
	assert.Equal(t, 1, metrics.failures)

	health := p.Health()
	assert.False(t, health.Healthy)
	assert.NotEmpty(t, health.LastError)
}

func TestPredictor_ValidationBeforeLoad(t *testing.T) {
	metrics := &MockMetrics{}
	p := NewPredictor(filepath.Join(t.TempDir(), "absent.json"), metrics)
	a := examplePipelineApplicant()
	a.CreditScore = 900

	_, err := p.Predict(a)
	var verr *loan.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, metrics.artifactFailures, "invalid input must not touch the artifact")
}

func TestPredictor_FailedReloadKeepsPipeline(t *testing.T) {
	path := savedPipeline(t)
	p := NewPredictor(path, nil)
	require.NoError(t, p.Load())
	before, err := p.Predict(examplePipelineApplicant())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	err = p.Reload()
	var lerr *ArtifactLoadError
	require.ErrorAs(t, err, &lerr)
	assert.True(t, p.Ready())

	after, err := p.Predict(examplePipelineApplicant())
	require.NoError(t, err)
	assert.Equal(t, *before.Probability, *after.Probability)
}

func TestPredictor_ReloadPicksUpNewArtifact(t *testing.T) {
	path := savedPipeline(t)
	p := NewPredictor(path, nil)
	require.NoError(t, p.Load())

	next := fittedPipeline(t)
	next.Metadata.RunID = "run-2"
	require.NoError(t, next.Save(path))

	meta, _ := p.Metadata()
	assert.Equal(t, "run-1", meta.RunID, "load must not re-read a ready artifact")
	require.NoError(t, p.Load())
	meta, _ = p.Metadata()
	assert.Equal(t, "run-1", meta.RunID)

	require.NoError(t, p.Reload())
	meta, _ = p.Metadata()
	assert.Equal(t, "run-2", meta.RunID)
}

func TestPredictor_ConcurrentPredictAndReload(t *testing.T) {
	p := NewPredictor(savedPipeline(t), &MockMetrics{})

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Predict(examplePipelineApplicant()); err != nil {
				errs <- err
			}
		}()
		if i%8 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := p.Reload(); err != nil {
					errs <- err
				}
			}()
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	health := p.Health()
	assert.True(t, health.Healthy)
	assert.Equal(t, int64(32), health.PredictionCount)
	assert.Zero(t, health.ErrorRate)
}
