package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"callwatch/internal/config"
	"callwatch/internal/logging"
	"callwatch/internal/records"
	"callwatch/internal/services"
)

const (
	headerSignature = "X-Webhook-Signature"
	headerTimestamp = "X-Webhook-Timestamp"

	maxEventBody = 1 << 20
)

// Server receives provider recording events and persists them as call records.
type Server struct {
	bind             string
	secret           string
	requireSignature bool
	replayTolerance  time.Duration
	store            *records.Store
	dedup            *DedupCache
	logger           *slog.Logger

	listener net.Listener
	server   *http.Server
}

// NewServer wires the ingress endpoint from configuration. The store must be
// open; the logger may be nil.
func NewServer(cfg *config.Config, store *records.Store, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("webhook: config is required")
	}
	if store == nil {
		return nil, errors.New("webhook: store is required")
	}
	bind := strings.TrimSpace(cfg.Webhook.Bind)
	if bind == "" {
		return nil, errors.New("webhook: bind address is required")
	}

	srv := &Server{
		bind:             bind,
		secret:           cfg.Webhook.SecretToken,
		requireSignature: cfg.Webhook.RequireSignature,
		replayTolerance:  time.Duration(cfg.Webhook.ReplayToleranceSeconds) * time.Second,
		store:            store,
		dedup:            NewDedupCache(time.Duration(cfg.Webhook.DedupTTLSeconds) * time.Second),
		logger:           logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/recordings", srv.handleRecordings)
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/config", srv.handleConfig)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Start binds the listener and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("webhook listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("webhook server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("webhook server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts down the server, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound address, empty until Start succeeds.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := services.WithRequestID(r.Context(), uuid.NewString())
	logger := logging.WithContext(ctx, s.log())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	var event envelope
	if err := json.Unmarshal(body, &event); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed event payload")
		return
	}

	// Endpoint validation happens before the provider knows the shared
	// secret works, so it bypasses signature and replay checks.
	if event.Event == eventURLValidation {
		s.handleValidation(w, logger, event.Payload)
		return
	}

	timestamp := strings.TrimSpace(r.Header.Get(headerTimestamp))
	if s.requireSignature {
		if err := CheckTimestamp(timestamp, time.Now(), s.replayTolerance); err != nil {
			logger.Warn("rejected stale webhook delivery", logging.Error(err))
			s.writeError(w, http.StatusUnauthorized, "timestamp outside tolerance")
			return
		}
		if !VerifySignature(s.secret, timestamp, body, r.Header.Get(headerSignature)) {
			logger.Warn("rejected webhook delivery with bad signature")
			s.writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	if s.dedup.Seen(timestamp, body) {
		logger.Info("duplicate webhook delivery ignored")
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	if event.Event != eventRecordingCompleted {
		s.writeJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"event":  event.Event,
		})
		return
	}

	params, err := extractCallParams(event.Payload)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed recording payload")
		return
	}

	record, err := s.store.Insert(ctx, params)
	if err != nil {
		if errors.Is(err, records.ErrDuplicateCall) {
			logger.Info("call already recorded", logging.String("call_id", params.CallID))
			s.writeJSON(w, http.StatusOK, map[string]string{
				"status":  "skipped",
				"message": "Call already processed",
			})
			return
		}
		// The provider retries failed deliveries; the retry must reach the
		// store again instead of being answered as a duplicate.
		s.dedup.Forget(timestamp, body)
		logger.Error("failed to persist call record", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to record call")
		return
	}

	logger.Info("call recorded",
		logging.Int64("record_id", record.ID),
		logging.String("call_id", record.CallID))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"call_id": record.CallID,
	})
}

func (s *Server) handleValidation(w http.ResponseWriter, logger *slog.Logger, raw json.RawMessage) {
	var payload validationPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.PlainToken == "" {
		s.writeError(w, http.StatusBadRequest, "missing plainToken")
		return
	}
	logger.Info("answered endpoint validation challenge")
	s.writeJSON(w, http.StatusOK, map[string]string{
		"plainToken":     payload.PlainToken,
		"encryptedToken": ChallengeResponse(s.secret, payload.PlainToken),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary, err := s.store.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"records": map[string]int{
			"total":             summary.Total,
			"analysis_pending":  summary.AnalysisPending,
			"analysis_running":  summary.AnalysisRunning,
			"analysis_failed":   summary.AnalysisFailed,
			"analysis_complete": summary.AnalysisComplete,
			"non_agent_calls":   summary.NonAgentCalls,
			"alerts_pending":    summary.AlertsPending,
			"alerts_sent":       summary.AlertsSent,
			"alerts_failed":     summary.AlertsFailed,
		},
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"bind":                     s.bind,
		"require_signature":        s.requireSignature,
		"secret_configured":        s.secret != "",
		"replay_tolerance_seconds": int(s.replayTolerance / time.Second),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "webhook-server"))
	}
	return logging.NewNop()
}
