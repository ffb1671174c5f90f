package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"btc-direction/internal/history"
	"btc-direction/internal/market"
	"btc-direction/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// priceRecord is one NDJSON line.
type priceRecord struct {
	Timestamp int64   `json:"timestamp"`
	Date      string  `json:"date"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
}

type options struct {
	dataPath   string
	symbol     string
	outputPath string
	format     string
	days       int
}

func main() {
	var opts options
	flag.StringVar(&opts.dataPath, "data", "data", "Data directory holding prices.db")
	flag.StringVar(&opts.symbol, "symbol", "BTC-USD", "Symbol to export")
	flag.StringVar(&opts.outputPath, "output", "", "Output file (stdout when empty)")
	flag.StringVar(&opts.format, "format", "csv", "Output format: csv, json")
	flag.IntVar(&opts.days, "days", 0, "Number of most recent days to export (0 for all)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(opts, os.Stdout); err != nil {
		log.Fatal().Err(err).Str("symbol", opts.symbol).Msg("export failed")
	}
}

// run does the export and returns instead of exiting so deferred closes
// always run.
func run(opts options, stdout io.Writer) (err error) {
	switch opts.format {
	case "csv", "json":
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}

	store, err := storage.New(opts.dataPath)
	if err != nil {
		return fmt.Errorf("failed to open storage at %s: %w", opts.dataPath, err)
	}
	defer store.Close()

	obs, err := store.GetPrices(opts.symbol)
	if err != nil {
		return fmt.Errorf("failed to read prices: %w", err)
	}

	if opts.days > 0 {
		obs = lastDays(obs, opts.days)
	}
	if len(obs) == 0 {
		log.Warn().Str("symbol", opts.symbol).Msg("no observations found matching criteria")
	}

	out := stdout
	if opts.outputPath != "" {
		f, err := os.Create(opts.outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close output file: %w", cerr)
			}
		}()
		out = f
	}

	if opts.format == "json" {
		err = writeNDJSON(out, opts.symbol, obs)
	} else {
		err = history.WriteCSV(out, obs)
	}
	if err != nil {
		return err
	}

	ev := log.Info().Str("symbol", opts.symbol).Int("observations", len(obs))
	if len(obs) > 0 {
		ev = ev.Time("from", obs[0].Time()).Time("to", obs[len(obs)-1].Time())
	}
	ev.Msg("export complete")
	return nil
}

func lastDays(obs []market.Observation, days int) []market.Observation {
	latest, ok := market.Latest(obs)
	if !ok {
		return obs
	}
	cutoff := latest.Time().AddDate(0, 0, -days).Unix()
	for i, o := range obs {
		if o.Timestamp > cutoff {
			return obs[i:]
		}
	}
	return nil
}

// writeNDJSON writes newline-delimited JSON, one observation per line.
func writeNDJSON(w io.Writer, symbol string, obs []market.Observation) error {
	enc := json.NewEncoder(w)
	for _, o := range obs {
		rec := priceRecord{
			Timestamp: o.Timestamp,
			Date:      o.Time().Format(time.DateOnly),
			Symbol:    symbol,
			Price:     o.Price,
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
