package metrics

import "time"

// MetricsWrapper adapts Metrics to the narrow tracker interfaces declared by
// the ml, features, history and forecast packages.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Metrics returns the underlying collectors.
func (w *MetricsWrapper) Metrics() *Metrics {
	return w.m
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

func (w *MetricsWrapper) MLModelAgeSet(v float64) {
	w.m.MLModelAge.Set(v)
}

func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) {
	w.m.MLPredictionScores.Observe(v)
}

func (w *MetricsWrapper) MLTimeoutsInc() {
	w.m.MLTimeouts.Inc()
}

func (w *MetricsWrapper) MLFallbackUseInc() {
	w.m.MLFallbackUse.Inc()
}

func (w *MetricsWrapper) FeatureErrorsInc() {
	w.m.FeatureErrors.Inc()
}

// FeatureCalcDuration also counts the calculation.
func (w *MetricsWrapper) FeatureCalcDuration(d time.Duration) {
	w.m.FeatureCalculations.Inc()
	w.m.FeatureCalcDuration.Observe(d.Seconds())
}

func (w *MetricsWrapper) HistoryFetchInc() {
	w.m.HistoryFetches.Inc()
}

func (w *MetricsWrapper) HistoryFetchErrorInc() {
	w.m.HistoryFetchErrors.Inc()
}

func (w *MetricsWrapper) HistoryPointsSet(n int) {
	w.m.HistoryPoints.Set(float64(n))
}

func (w *MetricsWrapper) ForecastRequestInc(outcome string) {
	w.m.ForecastRequests.WithLabelValues(outcome).Inc()
}
