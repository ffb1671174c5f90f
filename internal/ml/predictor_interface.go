// Package ml wraps the pre-trained direction classifier behind an explicit,
// immutable Predictor.
//
// A Predictor is built once at startup from a Classifier (the long-lived
// Python worker serving the trained artifact, or the heuristic fallback when
// configuration allows it). Every prediction checks the incoming feature
// vector against the schema the classifier reported at load time.
package ml

import (
	"context"

	"btc-direction/internal/features"
)

// Classifier is a binary classifier over an ordered feature schema.
type Classifier interface {
	// Name identifies the implementation in logs and model info.
	Name() string

	// Schema returns the feature names, in order, the model was trained on.
	Schema() features.Schema

	// PredictProba returns per-class probabilities [P(down), P(up)] for a
	// single row of values ordered as Schema.
	PredictProba(ctx context.Context, values []float64) ([]float64, error)
}
