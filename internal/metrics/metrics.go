// Package metrics provides Prometheus metrics for the direction predictor.
// It covers model inference, feature calculation, history fetches and
// request outcomes, all exposed through the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the predictor.
type Metrics struct {
	// ML and prediction metrics
	MLPredictions      prometheus.Counter   // Total number of predictions made
	MLFailures         prometheus.Counter   // Total number of prediction failures
	MLModelAge         prometheus.Gauge     // Age of the loaded model artifact in seconds
	MLLatency          prometheus.Histogram // Prediction latency in seconds
	MLPredictionScores prometheus.Histogram // Distribution of prediction confidence
	MLTimeouts         prometheus.Counter   // Total number of inference timeouts
	MLFallbackUse      prometheus.Counter   // Total number of fallback classifier predictions

	// Feature calculation metrics
	FeatureCalculations prometheus.Counter   // Total number of feature vectors built
	FeatureErrors       prometheus.Counter   // Total number of feature calculation errors
	FeatureCalcDuration prometheus.Histogram // Feature calculation duration in seconds

	// History metrics
	HistoryFetches     prometheus.Counter // Total number of history fetches
	HistoryFetchErrors prometheus.Counter // Total number of failed history fetches
	HistoryPoints      prometheus.Gauge   // Observations returned by the last fetch

	// Requests by outcome kind ("ok", "malformed_date", ...)
	ForecastRequests *prometheus.CounterVec
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of ML predictions made",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of ML prediction failures",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "ML prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of ML prediction confidence scores",
			Buckets: prometheus.LinearBuckets(0.5, 0.05, 11),
		}),
		MLTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_timeouts_total",
			Help: "Total number of ML prediction timeouts",
		}),
		MLFallbackUse: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_fallback_use_total",
			Help: "Total number of predictions served by the fallback classifier",
		}),
		FeatureCalculations: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_calculations_total",
			Help: "Total number of feature vectors built",
		}),
		FeatureErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_errors_total",
			Help: "Total number of feature calculation errors",
		}),
		FeatureCalcDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feature_calc_duration_seconds",
			Help:    "Feature calculation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
		HistoryFetches: factory.NewCounter(prometheus.CounterOpts{
			Name: "history_fetches_total",
			Help: "Total number of price history fetches",
		}),
		HistoryFetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "history_fetch_errors_total",
			Help: "Total number of failed price history fetches",
		}),
		HistoryPoints: factory.NewGauge(prometheus.GaugeOpts{
			Name: "history_points",
			Help: "Number of observations returned by the last history fetch",
		}),
		ForecastRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_requests_total",
			Help: "Total number of forecast requests by outcome",
		}, []string{"outcome"}),
	}
}
