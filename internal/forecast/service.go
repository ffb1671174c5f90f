// Package forecast ties the pipeline together for a single request: validate
// the requested date, read the price history, build the feature vector,
// predict and render the answer.
//
// The requested date only gates the request. The prediction is always the
// next step after the latest available observation, however far ahead the
// requested date is.
package forecast

import (
	"context"
	"fmt"
	"time"

	"btc-direction/internal/features"
	"btc-direction/internal/history"
	"btc-direction/internal/market"
	"btc-direction/internal/ml"

	"github.com/rs/zerolog/log"
)

// FeatureBuilder derives the feature vector for the latest observation.
type FeatureBuilder interface {
	Build(series []market.Observation) (features.Vector, error)
}

// Predictor classifies a feature vector.
type Predictor interface {
	Predict(ctx context.Context, v features.Vector) (ml.Result, error)
}

// MetricsTracker counts requests by outcome kind.
type MetricsTracker interface {
	ForecastRequestInc(outcome string)
}

// Outcome is a successful forecast.
type Outcome struct {
	TargetDate time.Time       `json:"target_date"`
	AsOf       time.Time       `json:"as_of"`
	Features   features.Vector `json:"-"`
	Result     ml.Result       `json:"result"`
}

type Service struct {
	source    history.Source
	builder   FeatureBuilder
	predictor Predictor
	metrics   MetricsTracker
}

func NewService(source history.Source, builder FeatureBuilder, predictor Predictor) *Service {
	return &Service{source: source, builder: builder, predictor: predictor}
}

func NewServiceWithMetrics(source history.Source, builder FeatureBuilder, predictor Predictor, m MetricsTracker) *Service {
	s := NewService(source, builder, predictor)
	s.metrics = m
	return s
}

// Forecast runs one request. Date errors are returned before any history is
// read.
func (s *Service) Forecast(ctx context.Context, input string, today time.Time) (Outcome, error) {
	out, err := s.forecast(ctx, input, today)
	if s.metrics != nil {
		s.metrics.ForecastRequestInc(ErrorKind(err))
	}
	return out, err
}

func (s *Service) forecast(ctx context.Context, input string, today time.Time) (Outcome, error) {
	check := ValidateDate(input, today)
	if err := check.Err(); err != nil {
		log.Debug().Str("input", input).Stringer("status", check.Status).Msg("date rejected")
		return Outcome{}, fmt.Errorf("%w: %q", err, input)
	}

	series, err := s.source.History(ctx)
	if err != nil {
		return Outcome{}, err
	}

	vec, err := s.builder.Build(series)
	if err != nil {
		return Outcome{}, err
	}

	res, err := s.predictor.Predict(ctx, vec)
	if err != nil {
		return Outcome{}, err
	}

	last, _ := market.Latest(series)
	log.Info().
		Str("target_date", check.Date.Format(DateLayout)).
		Time("as_of", last.Time()).
		Stringer("label", res.Label).
		Float64("confidence", res.Confidence).
		Msg("forecast")

	return Outcome{
		TargetDate: check.Date,
		AsOf:       last.Time(),
		Features:   vec,
		Result:     res,
	}, nil
}
