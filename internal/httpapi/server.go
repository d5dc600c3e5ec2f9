package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/callrelay/internal/callflow"
	"github.com/antoniostano/callrelay/internal/config"
	"github.com/antoniostano/callrelay/internal/conversation"
	"github.com/antoniostano/callrelay/internal/directive"
	"github.com/antoniostano/callrelay/internal/observability"
	"github.com/antoniostano/callrelay/internal/registry"
)

// Calls is the call orchestration surface the HTTP layer drives.
type Calls interface {
	StartCall(ctx context.Context, ev callflow.CallStarted) directive.Document
	HandleSpeech(ctx context.Context, ev callflow.SpeechEvent) directive.Document
	HandleStatus(ev callflow.StatusUpdate) error
	EndCall(ctx context.Context, callID string) error
	PlaceCall(ctx context.Context, req callflow.OutboundRequest) (string, error)
	Transcript(callID string) ([]conversation.TranscriptEntry, error)
	Phase(callID string) callflow.Phase
	CallControlEnabled() bool
}

type Server struct {
	cfg      config.Config
	calls    Calls
	registry *registry.Registry
	metrics  *observability.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, calls Calls, reg *registry.Registry, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		calls:    calls,
		registry: reg,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may watch call events.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			http.NotFound(w, r)
			return
		}
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/webhook", func(r chi.Router) {
		r.Post("/voice", s.handleVoiceWebhook)
		r.Post("/speech", s.handleSpeechWebhook)
		r.Post("/status", s.handleStatusWebhook)
		r.Post("/recording", s.handleRecordingWebhook)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/make-call", s.handleMakeCall)
		r.Post("/end-call", s.handleEndCall)
		r.Get("/active-calls", s.handleActiveCalls)
		r.Get("/incoming-calls", s.handleIncomingCalls)
		r.Get("/calls", s.handleListCalls)
		r.Get("/calls/events", s.handleCallEvents)
		r.Get("/call-transcript", s.handleCallTranscript)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":               "ready",
		"call_control_enabled": s.calls.CallControlEnabled(),
		"active_calls":         s.registry.ActiveCount(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
