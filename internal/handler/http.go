package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/globle-leaderboard/internal/discord"
	"github.com/globle-leaderboard/internal/domain"
	"github.com/globle-leaderboard/internal/outbound"
	"github.com/globle-leaderboard/internal/websocket"
)

// Engine is what the HTTP transport needs from the game engine
type Engine interface {
	Dispatch(ctx context.Context, ev domain.Event) ([]domain.Intent, error)
	Standings(ctx context.Context) (domain.Leaderboard, error)
	Best(ctx context.Context, userID string) (int, bool, error)
}

// ReadyCheck reports whether a dependency is usable
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler provides HTTP handlers for the chat transports and the read API
type Handler struct {
	engine  Engine
	hub     *websocket.Hub
	prefix  string
	replies outbound.Publisher
	checks  []ReadyCheck
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler. Replies to webhook callbacks go to
// replies; hub may be nil when the gateway is disabled.
func NewHandler(engine Engine, hub *websocket.Hub, prefix string, replies outbound.Publisher, checks []ReadyCheck, logger *slog.Logger) *Handler {
	return &Handler{
		engine:  engine,
		hub:     hub,
		prefix:  prefix,
		replies: replies,
		checks:  checks,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ScoreResponse is a user's best score for the current day
type ScoreResponse struct {
	UserID  string `json:"user_id"`
	Date    string `json:"date"`
	Guesses int    `json:"guesses"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// Chat transports
	r.Post("/webhook", h.HandleWebhook)
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/events", h.PostEvent)
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/players/{userID}/score", h.GetPlayerScore)
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrNotFound)
		return
	}
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeSuccess(w, map[string]interface{}{"enabled": false})
		return
	}
	h.writeSuccess(w, map[string]interface{}{
		"enabled":                 true,
		"total_connections":       h.hub.GetTotalConnections(),
		"leaderboard_subscribers": h.hub.GetSubscriberCount(websocket.TopicLeaderboard),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck runs every registered dependency check
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for _, c := range h.checks {
		if err := c.Check(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "check", c.Name, "error", err)
			failed[c.Name] = err.Error()
		}
	}

	if len(failed) > 0 {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    failed,
			Error:   "not ready",
		})
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// HandleWebhook receives Discord-style message callbacks. Pings are answered
// with a pong; replies to messages are delivered through the outbound publisher.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload discord.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if payload.Type == discord.PayloadPing {
		h.writeJSON(w, http.StatusOK, map[string]int{"type": discord.PayloadPing})
		return
	}

	ev, ok := payload.Event(h.prefix)
	if !ok {
		h.writeSuccess(w, map[string]string{"status": "ignored"})
		return
	}

	intents, err := h.engine.Dispatch(r.Context(), ev)
	if err != nil {
		h.logger.Error("failed to handle webhook event", "type", ev.EventType(), "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	if h.replies != nil && len(intents) > 0 {
		if err := outbound.PublishAll(r.Context(), h.replies, intents); err != nil {
			h.logger.Error("failed to deliver replies", "count", len(intents), "error", err)
		}
	}

	h.writeSuccess(w, map[string]interface{}{
		"status":  "ok",
		"replies": len(intents),
	})
}

// PostEvent runs an event envelope through the engine and returns the intents
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var env domain.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	ev, err := env.Event(h.prefix)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	intents, err := h.engine.Dispatch(r.Context(), ev)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEvent) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to handle event", "type", env.Type, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	if intents == nil {
		intents = []domain.Intent{}
	}
	h.writeSuccess(w, intents)
}

// GetLeaderboard returns today's ranked standings
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.engine.Standings(r.Context())
	if err != nil {
		h.logger.Error("failed to get leaderboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	if board.Entries == nil {
		board.Entries = []domain.LeaderboardEntry{}
	}

	h.writeSuccess(w, board)
}

// GetPlayerScore returns a user's best score for today
func (h *Handler) GetPlayerScore(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	best, ok, err := h.engine.Best(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get player score", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	if !ok {
		h.writeError(w, http.StatusNotFound, domain.ErrNotFound)
		return
	}

	board, err := h.engine.Standings(r.Context())
	if err != nil {
		h.logger.Error("failed to get leaderboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, ScoreResponse{UserID: userID, Date: board.Date, Guesses: best})
}
