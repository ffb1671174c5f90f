// Package history provides the historical daily price series the feature
// builder consumes. Sources are read fresh on every call; nothing is cached.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"btc-direction/internal/market"

	"github.com/rs/zerolog/log"
)

// ErrDataSourceUnavailable wraps every failure to obtain a price series.
var ErrDataSourceUnavailable = errors.New("data source unavailable")

// Source returns the full available history, ordered by timestamp ascending.
type Source interface {
	History(ctx context.Context) ([]market.Observation, error)
}

// MetricsTracker receives data source telemetry.
type MetricsTracker interface {
	HistoryFetchInc()
	HistoryFetchErrorInc()
	HistoryPointsSet(int)
}

// Source kinds accepted by Options.Kind.
const (
	KindYahoo = "yahoo"
	KindCSV   = "csv"
	KindBolt  = "bolt"
)

// Options selects and configures a Source.
type Options struct {
	Kind     string
	Symbol   string
	BaseURL  string
	CSVPath  string
	DataPath string
	Timeout  time.Duration
}

// NewSource builds the source named by opts.Kind.
func NewSource(opts Options) (Source, error) {
	switch strings.ToLower(opts.Kind) {
	case KindYahoo, "":
		return NewYahoo(opts.Symbol, opts.BaseURL, opts.Timeout), nil
	case KindCSV:
		if opts.CSVPath == "" {
			return nil, fmt.Errorf("csv source requires a file path")
		}
		return NewCSV(opts.CSVPath), nil
	case KindBolt:
		if opts.DataPath == "" {
			return nil, fmt.Errorf("bolt source requires a data path")
		}
		return NewStoreSource(opts.DataPath, opts.Symbol), nil
	default:
		return nil, fmt.Errorf("unknown history source %q", opts.Kind)
	}
}

// Instrumented logs and counts every fetch of the wrapped source.
type Instrumented struct {
	src     Source
	name    string
	metrics MetricsTracker
}

func WithMetrics(src Source, name string, m MetricsTracker) *Instrumented {
	return &Instrumented{src: src, name: name, metrics: m}
}

func (i *Instrumented) History(ctx context.Context) ([]market.Observation, error) {
	start := time.Now()
	obs, err := i.src.History(ctx)
	if i.metrics != nil {
		i.metrics.HistoryFetchInc()
	}
	if err != nil {
		if i.metrics != nil {
			i.metrics.HistoryFetchErrorInc()
		}
		log.Error().Err(err).Str("source", i.name).Msg("history fetch failed")
		return nil, err
	}
	if i.metrics != nil {
		i.metrics.HistoryPointsSet(len(obs))
	}

	ev := log.Debug().
		Str("source", i.name).
		Int("points", len(obs)).
		Dur("elapsed", time.Since(start))
	if last, ok := market.Latest(obs); ok {
		ev = ev.Time("latest", last.Time())
	}
	ev.Msg("history fetched")
	return obs, nil
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataSourceUnavailable, fmt.Sprintf(format, args...))
}
