// Package metrics provides Prometheus metrics collection for the loan approval
// service. It defines the training, artifact and prediction metrics that are
// exposed via the Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Prediction metrics
	MLPredictions        prometheus.Counter   // Total number of successful predictions
	MLFailures           prometheus.Counter   // Total number of failed predictions
	ValidationRejections prometheus.Counter   // Requests rejected before scoring
	MLLatency            prometheus.Histogram // Prediction latency in seconds
	MLPredictionScores   prometheus.Histogram // Distribution of approval probabilities

	// Artifact metrics
	ArtifactLoads        prometheus.Counter // Successful pipeline artifact loads
	ArtifactLoadFailures prometheus.Counter // Failed pipeline artifact loads

	// Training metrics
	TrainingRuns     prometheus.Counter   // Completed training runs
	TrainingFailures prometheus.Counter   // Aborted training runs
	TrainingDuration prometheus.Histogram // Training run duration in seconds
	CandidateAUC     *prometheus.GaugeVec // Holdout AUC per candidate model
	ModelAUC         prometheus.Gauge     // Holdout AUC of the selected model

	// Serving metrics
	HTTPRequests *prometheus.CounterVec // Requests served, by route and status code
	FeatureDrift *prometheus.GaugeVec   // PSI of live traffic against the training baseline
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of loan approval predictions made",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of loan approval prediction failures",
		}),
		ValidationRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "validation_rejections_total",
			Help: "Total number of applicant records rejected by validation",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of approval probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ArtifactLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "artifact_loads_total",
			Help: "Total number of successful pipeline artifact loads",
		}),
		ArtifactLoadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "artifact_load_failures_total",
			Help: "Total number of failed pipeline artifact loads",
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of completed training runs",
		}),
		TrainingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_failures_total",
			Help: "Total number of aborted training runs",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Duration of training runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		CandidateAUC: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candidate_auc",
			Help: "Holdout ROC AUC of each candidate model in the last run",
		}, []string{"model"}),
		ModelAUC: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_auc",
			Help: "Holdout ROC AUC of the selected model",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served",
		}, []string{"route", "code"}),
		FeatureDrift: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feature_drift_psi",
			Help: "Population stability index of served applicants per feature",
		}, []string{"feature"}),
	}
}
