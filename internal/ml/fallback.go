package ml

import (
	"context"
	"fmt"
	"math"

	"btc-direction/internal/features"
)

// DefaultFallbackThreshold is the dead zone below which the heuristic
// declines to lean either way.
const DefaultFallbackThreshold = 0.05

// FallbackClassifier implements a simple heuristic when the trained model is
// unavailable: short-term momentum from pct_change, tempered by mean
// reversion of lag_1 around the 3-day rolling mean.
type FallbackClassifier struct {
	threshold float64
}

func NewFallbackClassifier(threshold float64) *FallbackClassifier {
	return &FallbackClassifier{threshold: threshold}
}

func (f *FallbackClassifier) Name() string { return "fallback" }

func (f *FallbackClassifier) Schema() features.Schema {
	return features.DefaultSchema()
}

func (f *FallbackClassifier) PredictProba(_ context.Context, values []float64) ([]float64, error) {
	if len(values) != len(features.DefaultSchema()) {
		return nil, fmt.Errorf("expected %d features, got %d", len(features.DefaultSchema()), len(values))
	}

	score := f.calculateScore(values[0], values[2], values[3], values[4])
	prob := sigmoid(score)
	return []float64{1.0 - prob, prob}, nil
}

func (f *FallbackClassifier) calculateScore(last, pctChange, mean, std float64) float64 {
	momentumWeight := 0.6
	reversionWeight := 0.4

	// a 2% daily move saturates to about tanh(1)
	momentum := math.Tanh(pctChange * 50)

	var reversion float64
	if std > 0 {
		reversion = -math.Tanh((last - mean) / std)
	}

	score := momentumWeight*momentum + reversionWeight*reversion
	if math.Abs(score) < f.threshold {
		score = 0
	}
	return score
}

// sigmoid converts a score to a probability
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
