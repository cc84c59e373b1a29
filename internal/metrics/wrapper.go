package metrics

import "strconv"

// MetricsWrapper exposes Metrics through the method sets the ml package and
// the serving layer expect, so neither imports Prometheus directly.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLPredictionsInc() {
	w.m.MLPredictions.Inc()
}

func (w *MetricsWrapper) MLFailuresInc() {
	w.m.MLFailures.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(v float64) {
	w.m.MLLatency.Observe(v)
}

func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) {
	w.m.MLPredictionScores.Observe(v)
}

func (w *MetricsWrapper) ArtifactLoadsInc() {
	w.m.ArtifactLoads.Inc()
}

func (w *MetricsWrapper) ArtifactLoadFailuresInc() {
	w.m.ArtifactLoadFailures.Inc()
}

func (w *MetricsWrapper) ValidationRejectionsInc() {
	w.m.ValidationRejections.Inc()
}

func (w *MetricsWrapper) TrainingRunsInc() {
	w.m.TrainingRuns.Inc()
}

func (w *MetricsWrapper) TrainingFailuresInc() {
	w.m.TrainingFailures.Inc()
}

func (w *MetricsWrapper) TrainingDurationObserve(v float64) {
	w.m.TrainingDuration.Observe(v)
}

func (w *MetricsWrapper) CandidateAUCSet(candidate string, auc float64) {
	w.m.CandidateAUC.WithLabelValues(candidate).Set(auc)
}

func (w *MetricsWrapper) ModelAUCSet(v float64) {
	w.m.ModelAUC.Set(v)
}

func (w *MetricsWrapper) HTTPRequestInc(route string, code int) {
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (w *MetricsWrapper) FeatureDriftSet(column string, psi float64) {
	w.m.FeatureDrift.WithLabelValues(column).Set(psi)
}
