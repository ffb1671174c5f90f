package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"btc-direction/internal/cfg"
	"btc-direction/internal/history"
	"btc-direction/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		symbol   = flag.String("symbol", "", "Ticker to snapshot (overrides SYMBOL)")
		dataPath = flag.String("data", "", "Data directory holding prices.db (overrides DATA_PATH)")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(*symbol, *dataPath); err != nil {
		log.Fatal().Err(err).Msg("snapshot failed")
	}
}

// run fetches and stores the snapshot. Errors are returned rather than fatal
// so the deferred store close always runs.
func run(symbol, dataPath string) error {
	c, err := cfg.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if symbol != "" {
		c.Symbol = symbol
	}
	if dataPath != "" {
		c.DataPath = dataPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*c.RESTTimeout)
	defer cancel()

	obs, err := history.NewYahoo(c.Symbol, c.HistoryURL, c.RESTTimeout).History(ctx)
	if err != nil {
		return fmt.Errorf("history fetch for %s failed: %w", c.Symbol, err)
	}

	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", c.DataPath, err)
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	defer store.Close()

	if err := store.StorePrices(c.Symbol, obs); err != nil {
		return fmt.Errorf("failed to store prices: %w", err)
	}

	latest, ok, err := store.LatestTimestamp(c.Symbol)
	if err != nil {
		return fmt.Errorf("failed to read back snapshot: %w", err)
	}
	if !ok {
		return fmt.Errorf("snapshot for %s is empty after write", c.Symbol)
	}

	log.Info().
		Str("symbol", c.Symbol).
		Int("observations", len(obs)).
		Time("latest", time.Unix(latest, 0).UTC()).
		Msg("snapshot stored")
	fmt.Printf("stored %d observations for %s\n", len(obs), c.Symbol)
	return nil
}
