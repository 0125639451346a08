package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/confidence"
	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/discovery"
	"github.com/leadscout/leadscout/internal/dispatcher"
	"github.com/leadscout/leadscout/internal/keypool"
	"github.com/leadscout/leadscout/internal/metrics"
)

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router     chi.Router
	runs       discovery.RunStore
	dispatcher *dispatcher.Dispatcher
	feedback   *confidence.Loop
	keys       *keypool.Pool
	idGen      discovery.IDGenerator
	clock      discovery.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runs discovery.RunStore,
	dispatcher *dispatcher.Dispatcher,
	feedback *confidence.Loop,
	keys *keypool.Pool,
	idGen discovery.IDGenerator,
	clock discovery.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		runs:       runs,
		dispatcher: dispatcher,
		feedback:   feedback,
		keys:       keys,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.ServerTimeout()))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/searches", func(r chi.Router) {
			r.Post("/", s.submitSearch)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getSearchStatus)
				r.Get("/results", s.getSearchResults)
				r.Post("/cancel", s.cancelSearch)
			})
		})
		r.Post("/feedback", s.submitFeedback)
		r.Post("/bounces", s.submitBounce)
		r.Get("/quota", s.getQuota)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// A probe read against the run store verifies the backing store answers.
	if _, _, _, err := s.runs.GetStatus(r.Context(), "readiness-probe"); err != nil {
		writeError(w, http.StatusServiceUnavailable, "run store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchRequestBody struct {
	Query      string                `json:"query"`
	Location   string                `json:"location"`
	MaxResults int                   `json:"max_results"`
	Priority   int                   `json:"priority"`
	Filters    *discovery.B2BFilters `json:"filters"`
}

func (s *Server) submitSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := s.toSearchRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.enqueueRun(r.Context(), req); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": req.ID})
}

func (s *Server) getSearchStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	status, errText, found, err := s.runs.GetStatus(r.Context(), runID)
	if err != nil {
		s.logger.Error("run status lookup failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run status")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	payload := map[string]any{"run_id": runID, "status": string(status)}
	if errText != "" {
		payload["error"] = errText
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) getSearchResults(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	result, found, err := s.runs.GetResult(r.Context(), runID)
	if err != nil {
		s.logger.Error("run result lookup failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run result")
		return
	}
	if !found {
		status, _, exists, statusErr := s.runs.GetStatus(r.Context(), runID)
		if statusErr == nil && exists {
			writeJSON(w, http.StatusAccepted, map[string]string{
				"run_id": runID,
				"status": string(status),
			})
			return
		}
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) cancelSearch(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	err := s.runs.UpdateRunStatus(r.Context(), runID, discovery.RunStatusCanceled, "canceled via API")
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"run_id": runID,
		"status": string(discovery.RunStatusCanceled),
	})
}

type feedbackRequestBody struct {
	BusinessID     string `json:"business_id"`
	Type           string `json:"feedback_type"`
	Field          string `json:"field"`
	OriginalValue  string `json:"original_value"`
	CorrectedValue string `json:"corrected_value"`
}

func (s *Server) submitFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback loop unavailable")
		return
	}
	var body feedbackRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	record, err := s.feedback.ApplyFeedback(r.Context(), discovery.FeedbackRecord{
		BusinessID:     body.BusinessID,
		Type:           discovery.FeedbackType(body.Type),
		Field:          body.Field,
		OriginalValue:  body.OriginalValue,
		CorrectedValue: body.CorrectedValue,
	})
	if err != nil {
		if discovery.KindOf(err) == discovery.KindValidation {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("apply feedback failed", zap.String("business_id", body.BusinessID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to apply feedback")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type bounceRequestBody struct {
	Email      string `json:"email"`
	Type       string `json:"bounce_type"`
	Reason     string `json:"reason"`
	BusinessID string `json:"business_id"`
}

func (s *Server) submitBounce(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback loop unavailable")
		return
	}
	var body bounceRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	err := s.feedback.RecordBounce(r.Context(), discovery.BounceRecord{
		Email:      body.Email,
		Type:       discovery.BounceType(body.Type),
		Reason:     body.Reason,
		BusinessID: body.BusinessID,
	})
	if err != nil {
		if discovery.KindOf(err) == discovery.KindValidation {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("record bounce failed", zap.String("email", body.Email), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to record bounce")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) getQuota(w http.ResponseWriter, _ *http.Request) {
	if s.keys == nil {
		writeJSON(w, http.StatusOK, map[string]keypool.Quota{})
		return
	}
	quotas := make(map[string]keypool.Quota)
	for _, provider := range s.keys.Providers() {
		q := s.keys.CheckQuota(provider)
		quotas[provider] = q
		metrics.SetKeyPoolRemaining(provider, q.Remaining)
	}
	writeJSON(w, http.StatusOK, quotas)
}

func (s *Server) toSearchRequest(body searchRequestBody) (discovery.SearchRequest, error) {
	if body.Query == "" {
		return discovery.SearchRequest{}, errors.New("query is required")
	}
	maxResults := body.MaxResults
	if maxResults <= 0 {
		maxResults = s.cfg.Discovery.MaxResultsDefault
	}
	id, err := s.idGen.NewID()
	if err != nil {
		return discovery.SearchRequest{}, fmt.Errorf("generate run id: %w", err)
	}
	return discovery.SearchRequest{
		ID:          id,
		Query:       body.Query,
		Location:    body.Location,
		MaxResults:  maxResults,
		Priority:    body.Priority,
		Filters:     body.Filters,
		SubmittedAt: s.clock.Now(),
	}, nil
}

func (s *Server) enqueueRun(ctx context.Context, req discovery.SearchRequest) error {
	if err := s.runs.CreateRun(ctx, req); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := discovery.QueueItem{
		Request:   req,
		Attempt:   1,
		Submitted: req.SubmittedAt.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		return fmt.Errorf("enqueue run: %w", err)
	}
	return nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		d = 60 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
