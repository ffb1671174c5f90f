package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"btc-direction/internal/cfg"
	"btc-direction/internal/common"
	"btc-direction/internal/features"
	"btc-direction/internal/forecast"
	"btc-direction/internal/history"
	"btc-direction/internal/metrics"
	"btc-direction/internal/ml"
	"btc-direction/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		date       = flag.String("date", time.Now().Format(forecast.DateLayout), "Target date (YYYY-MM-DD), must be after today")
		configPath = flag.String("config", "", "Path to YAML config (overrides CONFIG_FILE)")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
		serve      = flag.Bool("serve", false, "Run the HTTP server instead of a single prediction")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *configPath != "" {
		os.Setenv(common.EnvConfigFile, *configPath)
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if *logLevel != "" {
		c.LogLevel = *logLevel
	}
	setupLogging(c.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mw := metrics.NewWrapper(metrics.NewWithRegistry(registry))

	predictor, err := ml.Load(ctx, ml.Config{
		ModelPath:     c.ModelPath,
		PythonPath:    c.PythonPath,
		ScriptPath:    c.InferenceScript,
		Timeout:       c.InferenceTimeout,
		AllowFallback: c.AllowFallback,
	}, mw)
	if err != nil {
		log.Fatal().Err(err).Msg(common.ErrMsgModelLoadFailed)
	}
	defer predictor.Close()

	src, err := history.NewSource(history.Options{
		Kind:     c.HistorySource,
		Symbol:   c.Symbol,
		BaseURL:  c.HistoryURL,
		CSVPath:  c.HistoryCSV,
		DataPath: c.DataPath,
		Timeout:  c.RESTTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("history source init failed")
	}

	svc := forecast.NewServiceWithMetrics(
		history.WithMetrics(src, c.HistorySource, mw),
		features.NewBuilderWithMetrics(mw),
		predictor,
		mw,
	)

	if *serve {
		runServer(ctx, svc, predictor, registry, c.ServerPort)
		return
	}

	out, err := svc.Forecast(ctx, *date, time.Now())
	if err != nil {
		log.Debug().Err(err).Msg("forecast failed")
		fmt.Println(forecast.RenderError(err))
		predictor.Close()
		os.Exit(1)
	}
	fmt.Println(forecast.Render(out))
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func runServer(ctx context.Context, svc *forecast.Service, predictor *ml.Predictor, registry *prometheus.Registry, port int) {
	srv := server.New(svc, predictor, registry, port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
		return
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
	}
}
