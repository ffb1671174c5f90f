// Package server exposes the forecast service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"btc-direction/internal/features"
	"btc-direction/internal/forecast"
	"btc-direction/internal/history"
	"btc-direction/internal/ml"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-ID"

// Forecaster answers a single forecast request.
type Forecaster interface {
	Forecast(ctx context.Context, input string, today time.Time) (forecast.Outcome, error)
}

// ModelInfoProvider describes the loaded model and whether it can serve.
type ModelInfoProvider interface {
	Info() ml.ModelInfo
	Healthy(ctx context.Context) error
}

// Server serves /predict, /health, /model/info and /metrics.
type Server struct {
	forecaster Forecaster
	model      ModelInfoProvider
	gatherer   prometheus.Gatherer
	router     *mux.Router
	server     *http.Server
	now        func() time.Time
}

// PredictionResponse is the body of a successful /predict call.
type PredictionResponse struct {
	RequestID     string    `json:"request_id"`
	Date          string    `json:"date"`
	Direction     string    `json:"direction"`
	Label         int       `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
	Message       string    `json:"message"`
	AsOf          time.Time `json:"as_of"`
	LatencyMS     float64   `json:"latency_ms"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

// New wires the routes. gatherer backs /metrics; nil uses the default registry.
func New(f Forecaster, model ModelInfoProvider, gatherer prometheus.Gatherer, port int) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		forecaster: f,
		model:      model,
		gatherer:   gatherer,
		now:        time.Now,
	}

	r := mux.NewRouter()
	r.HandleFunc("/predict", s.handlePredict).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/model/info", s.handleModelInfo).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router = r

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown; http.ErrServerClosed is not reported.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting forecast server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := requestIDFrom(r)
	date := r.URL.Query().Get("date")

	out, err := s.forecaster.Forecast(r.Context(), date, s.now())
	if err != nil {
		status := statusFor(err)
		ev := log.Warn()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Err(err).Str("request_id", requestID).Str("date", date).Int("status", status).Msg("forecast failed")

		writeJSON(w, status, requestID, ErrorResponse{
			RequestID: requestID,
			Error:     forecast.ErrorKind(err),
			Message:   forecast.RenderError(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, requestID, PredictionResponse{
		RequestID:     requestID,
		Date:          out.TargetDate.Format(forecast.DateLayout),
		Direction:     out.Result.Label.String(),
		Label:         int(out.Result.Label),
		Confidence:    out.Result.Confidence,
		Probabilities: out.Result.Probabilities,
		Message:       forecast.Render(out),
		AsOf:          out.AsOf,
		LatencyMS:     float64(time.Since(start).Microseconds()) / 1000,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	info := s.model.Info()
	body := map[string]interface{}{
		"status":     "ok",
		"classifier": info.Classifier,
		"loaded_at":  info.LoadedAt,
	}

	status := http.StatusOK
	if err := s.model.Healthy(r.Context()); err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("model unhealthy")
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
		body["error"] = err.Error()
	}
	writeJSON(w, status, requestID, body)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, requestIDFrom(r), s.model.Info())
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, forecast.ErrMalformedDate), errors.Is(err, forecast.ErrDateNotInFuture):
		return http.StatusBadRequest
	case errors.Is(err, features.ErrInsufficientHistory), errors.Is(err, features.ErrDivisionByZero):
		return http.StatusUnprocessableEntity
	case errors.Is(err, history.ErrDataSourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requestIDFrom(r *http.Request) string {
	if id := r.Header.Get(requestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, requestID string, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(requestIDHeader, requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("failed to write response")
	}
}
