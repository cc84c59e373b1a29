package ml

// PredictionMetrics defines the metrics methods needed by the predictor.
type PredictionMetrics interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLPredictionScoresObserve(float64)
	ArtifactLoadsInc()
	ArtifactLoadFailuresInc()
}

// TrainingMetrics defines the metrics methods needed by the trainer.
type TrainingMetrics interface {
	TrainingRunsInc()
	TrainingFailuresInc()
	TrainingDurationObserve(float64)
	CandidateAUCSet(candidate string, auc float64)
	ModelAUCSet(float64)
}
