package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ent0n29/solace/internal/config"
	"github.com/ent0n29/solace/internal/memory"
	"github.com/ent0n29/solace/internal/observability"
	"github.com/ent0n29/solace/internal/turn"
)

// TurnService is the conversation core exposed over HTTP.
type TurnService interface {
	HandleTurn(ctx context.Context, actorID, sessionID, message string) (turn.Result, error)
	History(ctx context.Context, actorID, sessionID string, limit int) ([]memory.Turn, error)
}

type Server struct {
	cfg      config.Config
	turns    TurnService
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New builds the HTTP surface. gatherer may be nil to serve the default registry.
func New(cfg config.Config, turns TurnService, metrics *observability.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		turns:    turns,
		metrics:  metrics,
		gatherer: gatherer,
		logger:   logger.Named("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browser sockets only from the same origin unless explicitly opened up.
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
	r.Use(middleware.Recoverer)
	r.Use(s.countRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Get("/v1/sessions/{id}/turns", s.handleListTurns)
	r.Post("/v1/turns", s.handleTurn)
	r.Get("/v1/chat/ws", s.handleChatWS)

	return r
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.IncHTTPRequest(route, status)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"memory_backend": s.cfg.MemoryBackend,
		"alert_channel":  s.cfg.AlertChannel,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.turns == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "turn service not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"completion_mode": s.cfg.CompletionMode,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.gatherer != nil {
		observability.MetricsHandlerFor(s.gatherer).ServeHTTP(w, r)
		return
	}
	observability.MetricsHandler().ServeHTTP(w, r)
}

type createSessionRequest struct {
	ActorID string `json:"actor_id"`
}

type createSessionResponse struct {
	SessionID string    `json:"session_id"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ActorID) == "" {
		req.ActorID = turn.AnonymousActor
	}
	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: uuid.NewString(),
		ActorID:   strings.TrimSpace(req.ActorID),
		CreatedAt: time.Now().UTC(),
	})
}

type turnRequest struct {
	ActorID   string `json:"actor_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	if s.turns == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "turn service not configured")
		return
	}
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_input", "message is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.turns.HandleTurn(r.Context(), req.ActorID, req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, turn.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid_input", "message must not be empty")
			return
		}
		s.logger.Error("turn failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal", "turn failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type listTurnsResponse struct {
	SessionID string        `json:"session_id"`
	ActorID   string        `json:"actor_id"`
	Turns     []memory.Turn `json:"turns"`
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	if s.turns == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "turn service not configured")
		return
	}
	sessionID := strings.TrimSpace(chi.URLParam(r, "id"))
	actorID := strings.TrimSpace(r.URL.Query().Get("actor_id"))
	if actorID == "" {
		actorID = turn.AnonymousActor
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	turns, err := s.turns.History(r.Context(), actorID, sessionID, limit)
	if err != nil {
		s.logger.Warn("list turns failed", zap.String("session_id", sessionID), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable", "conversation history is temporarily unavailable")
		return
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	respondJSON(w, http.StatusOK, listTurnsResponse{
		SessionID: sessionID,
		ActorID:   actorID,
		Turns:     turns,
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
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
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
