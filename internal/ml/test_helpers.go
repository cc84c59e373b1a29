package ml

import "sync"

// MockMetrics implements PredictionMetrics and TrainingMetrics for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	failures         int
	latencySum       float64
	predictionScores []float64
	artifactLoads    int
	artifactFailures int
	trainingRuns     int
	trainingFailures int
	trainingSeconds  float64
	candidateAUC     map[string]float64
	modelAUC         float64
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLPredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

func (m *MockMetrics) ArtifactLoadsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifactLoads++
}

func (m *MockMetrics) ArtifactLoadFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifactFailures++
}

func (m *MockMetrics) TrainingRunsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingRuns++
}

func (m *MockMetrics) TrainingFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingFailures++
}

func (m *MockMetrics) TrainingDurationObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingSeconds += v
}

func (m *MockMetrics) CandidateAUCSet(candidate string, auc float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.candidateAUC == nil {
		m.candidateAUC = make(map[string]float64)
	}
	m.candidateAUC[candidate] = auc
}

func (m *MockMetrics) ModelAUCSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAUC = v
}
