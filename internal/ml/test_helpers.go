package ml

import (
	"context"
	"sync"

	"btc-direction/internal/features"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	failures         int
	latencySum       float64
	latencyCount     int
	timeouts         int
	fallbackUse      int
	modelAge         float64
	predictionScores []float64
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
	m.latencyCount++
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLPredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

func (m *MockMetrics) MLTimeoutsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts++
}

func (m *MockMetrics) MLFallbackUseInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbackUse++
}

// StaticClassifier returns fixed probabilities. Other packages use it to
// build a Predictor without a model artifact.
type StaticClassifier struct {
	Probabilities []float64
	Err           error
	FeatureSchema features.Schema
	HealthErr     error

	mu    sync.Mutex
	calls [][]float64
}

func (s *StaticClassifier) Name() string { return "static" }

func (s *StaticClassifier) Healthy(context.Context) error { return s.HealthErr }

func (s *StaticClassifier) Schema() features.Schema {
	if s.FeatureSchema != nil {
		return s.FeatureSchema
	}
	return features.DefaultSchema()
}

func (s *StaticClassifier) PredictProba(_ context.Context, values []float64) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := make([]float64, len(values))
	copy(row, values)
	s.calls = append(s.calls, row)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Probabilities, nil
}

// Calls returns the rows passed to PredictProba.
func (s *StaticClassifier) Calls() [][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
