package ml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"btc-direction/internal/features"

	"github.com/rs/zerolog/log"
)

var (
	ErrSchemaMismatch   = errors.New("feature schema mismatch")
	ErrPredictionFailed = errors.New("prediction failed")
	ErrModelLoadFailed  = errors.New("model load failed")
)

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLModelAgeSet(float64)
	MLPredictionScoresObserve(float64)
	MLTimeoutsInc()
	MLFallbackUseInc()
}

// Direction is the predicted label. Up means the next value is expected to
// be higher than the current one.
type Direction int

const (
	Down Direction = 0
	Up   Direction = 1
)

func (d Direction) String() string {
	if d == Up {
		return "UP"
	}
	return "DOWN"
}

// Result is a single-step prediction.
type Result struct {
	Label         Direction `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
}

// ModelInfo describes the loaded artifact.
type ModelInfo struct {
	Path       string          `json:"path,omitempty"`
	Classifier string          `json:"classifier"`
	Schema     features.Schema `json:"schema"`
	ModifiedAt time.Time       `json:"modified_at,omitempty"`
	SizeBytes  int64           `json:"size_bytes,omitempty"`
	LoadedAt   time.Time       `json:"loaded_at"`
}

// Predictor turns feature vectors into direction predictions. It is safe for
// concurrent use and never changes after construction.
type Predictor struct {
	classifier Classifier
	schema     features.Schema
	info       ModelInfo
	metrics    MetricsInterface
	fallback   bool
}

// New wraps an already loaded classifier.
func New(c Classifier, metrics MetricsInterface) (*Predictor, error) {
	return newPredictor(c, ModelInfo{}, metrics)
}

func newPredictor(c Classifier, info ModelInfo, metrics MetricsInterface) (*Predictor, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: classifier is nil", ErrModelLoadFailed)
	}
	schema := c.Schema()
	if len(schema) == 0 {
		return nil, fmt.Errorf("%w: classifier %s reported an empty schema", ErrModelLoadFailed, c.Name())
	}

	info.Classifier = c.Name()
	info.Schema = schema
	info.LoadedAt = time.Now()

	_, fallback := c.(*FallbackClassifier)
	p := &Predictor{
		classifier: c,
		schema:     schema,
		info:       info,
		metrics:    metrics,
		fallback:   fallback,
	}

	if p.metrics != nil && !info.ModifiedAt.IsZero() {
		p.metrics.MLModelAgeSet(time.Since(info.ModifiedAt).Seconds())
	}
	return p, nil
}

// Config controls how Load obtains the classifier.
type Config struct {
	ModelPath     string
	PythonPath    string
	ScriptPath    string
	Timeout       time.Duration
	AllowFallback bool
}

// Load starts the inference worker for cfg.ModelPath and wraps it in a
// Predictor. When the artifact cannot be served and cfg.AllowFallback is set,
// the heuristic FallbackClassifier is used instead; otherwise the error wraps
// ErrModelLoadFailed.
func Load(ctx context.Context, cfg Config, metrics MetricsInterface) (*Predictor, error) {
	info := ModelInfo{Path: cfg.ModelPath}

	st, err := os.Stat(cfg.ModelPath)
	if err == nil {
		info.ModifiedAt = st.ModTime()
		info.SizeBytes = st.Size()

		var c *PythonClassifier
		c, err = NewPythonClassifier(ctx, cfg)
		if err == nil {
			log.Info().
				Str("model_path", cfg.ModelPath).
				Str("schema", c.Schema().String()).
				Msg("model loaded")
			return newPredictor(c, info, metrics)
		}
	}

	if !cfg.AllowFallback {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoadFailed, cfg.ModelPath, err)
	}

	log.Warn().Err(err).Str("model_path", cfg.ModelPath).Msg("model unavailable, using fallback heuristics")
	return newPredictor(NewFallbackClassifier(DefaultFallbackThreshold), ModelInfo{}, metrics)
}

// Schema returns the schema the loaded model expects.
func (p *Predictor) Schema() features.Schema {
	out := make(features.Schema, len(p.schema))
	copy(out, p.schema)
	return out
}

func (p *Predictor) Info() ModelInfo {
	info := p.info
	info.Schema = p.Schema()
	return info
}

// Predict classifies v. The label is the argmax of the class probabilities
// and the confidence is the probability of that label.
func (p *Predictor) Predict(ctx context.Context, v features.Vector) (Result, error) {
	if p == nil {
		return Result{}, fmt.Errorf("%w: predictor is nil", ErrPredictionFailed)
	}

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	if got := v.Schema(); !got.Equal(p.schema) {
		if p.metrics != nil {
			p.metrics.MLFailuresInc()
		}
		return Result{}, fmt.Errorf("%w: model expects %s, got %s", ErrSchemaMismatch, p.schema, got)
	}

	res, err := p.predict(ctx, v)
	if err != nil {
		if p.metrics != nil {
			p.metrics.MLFailuresInc()
		}
		log.Error().
			Err(err).
			Str("classifier", p.classifier.Name()).
			Interface("features", v.Map()).
			Msg("prediction failed")
		return Result{}, err
	}

	if p.metrics != nil {
		p.metrics.MLPredictionsInc()
		p.metrics.MLPredictionScoresObserve(res.Confidence)
		if p.fallback {
			p.metrics.MLFallbackUseInc()
		}
	}

	log.Debug().
		Interface("features", v.Map()).
		Floats64("probabilities", res.Probabilities).
		Stringer("label", res.Label).
		Msg("prediction successful")

	return res, nil
}

func (p *Predictor) predict(ctx context.Context, v features.Vector) (Result, error) {
	if !v.Finite() {
		return Result{}, fmt.Errorf("%w: feature vector contains NaN or Inf", ErrPredictionFailed)
	}

	probs, err := p.classifier.PredictProba(ctx, v.Values())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && p.metrics != nil {
			p.metrics.MLTimeoutsInc()
		}
		return Result{}, fmt.Errorf("%w: %w", ErrPredictionFailed, err)
	}

	if len(probs) != 2 {
		return Result{}, fmt.Errorf("%w: expected 2 probabilities, got %d", ErrPredictionFailed, len(probs))
	}
	for i, prob := range probs {
		if math.IsNaN(prob) || prob < 0 || prob > 1 {
			return Result{}, fmt.Errorf("%w: invalid probability %d: %f", ErrPredictionFailed, i, prob)
		}
	}

	label := argmax(probs)
	out := make([]float64, len(probs))
	copy(out, probs)

	return Result{
		Label:         Direction(label),
		Confidence:    probs[label],
		Probabilities: out,
	}, nil
}

// Healthy reports whether the classifier can currently serve predictions.
// Classifiers without a liveness check are always healthy.
func (p *Predictor) Healthy(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("%w: predictor is nil", ErrPredictionFailed)
	}
	h, ok := p.classifier.(interface{ Healthy(context.Context) error })
	if !ok {
		return nil
	}
	return h.Healthy(ctx)
}

// Close releases the classifier's resources.
func (p *Predictor) Close() error {
	if p == nil {
		return nil
	}
	if c, ok := p.classifier.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// argmax returns the index of the largest value; ties go to the lower index.
func argmax(xs []float64) int {
	best := 0
	for i := 1; i < len(xs); i++ {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}
