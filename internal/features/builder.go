package features

import (
	"errors"
	"fmt"
	"time"

	"btc-direction/internal/market"
)

var (
	// ErrInsufficientHistory is returned when the series is shorter than WindowSize.
	ErrInsufficientHistory = errors.New("insufficient price history")
	// ErrDivisionByZero is returned when the previous price is zero.
	ErrDivisionByZero = errors.New("division by zero in pct_change")
)

// MetricsTracker receives feature calculation telemetry.
type MetricsTracker interface {
	FeatureErrorsInc()
	FeatureCalcDuration(time.Duration)
}

// Builder turns a price series into the feature vector for its latest point.
// It holds no state besides the optional metrics sink.
type Builder struct {
	metrics MetricsTracker
}

func NewBuilder() *Builder {
	return &Builder{}
}

func NewBuilderWithMetrics(m MetricsTracker) *Builder {
	return &Builder{metrics: m}
}

// Schema returns the schema of vectors produced by Build.
func (b *Builder) Schema() Schema {
	return DefaultSchema()
}

// Build computes lag_1, lag_2, pct_change, rolling_mean_3 and rolling_std_3
// for the most recent observation. series must be ordered by timestamp
// ascending and is not modified.
func (b *Builder) Build(series []market.Observation) (Vector, error) {
	start := time.Now()
	v, err := b.build(series)
	if b != nil && b.metrics != nil {
		b.metrics.FeatureCalcDuration(time.Since(start))
		if err != nil {
			b.metrics.FeatureErrorsInc()
		}
	}
	return v, err
}

func (b *Builder) build(series []market.Observation) (Vector, error) {
	if len(series) < WindowSize {
		return Vector{}, fmt.Errorf("%w: need at least %d observations, got %d",
			ErrInsufficientHistory, WindowSize, len(series))
	}

	window := make([]float64, WindowSize)
	for i, o := range series[len(series)-WindowSize:] {
		window[i] = o.Price
	}

	curr := window[WindowSize-1]
	prev := window[WindowSize-2]
	if prev == 0 {
		return Vector{}, fmt.Errorf("%w: price at %s is zero",
			ErrDivisionByZero, series[len(series)-2].Time().Format("2006-01-02"))
	}

	mean, std := windowStats(window)

	return Vector{
		schema: DefaultSchema(),
		values: []float64{
			curr,
			prev,
			(curr - prev) / prev,
			mean,
			std,
		},
	}, nil
}
