package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/metrics"
	"github.com/myhorsefarm/farmops/internal/ratelimit"
	"github.com/myhorsefarm/farmops/internal/service"
)

const maxChatBodyBytes = 32 * 1024

// maxChatMessageLength bounds a single user message.
const maxChatMessageLength = 4000

// ChatHandler handles the conversational quoting endpoints.
type ChatHandler struct {
	chatService    *service.ChatService
	costLimiter    *ratelimit.QuoteLimiter
	sessionLimiter *ratelimit.UserRateLimiter
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// ChatHandlerConfig holds configuration for ChatHandler.
type ChatHandlerConfig struct {
	ChatService *service.ChatService
	// CostLimiter caps global model spend; SessionLimiter caps one
	// visitor's turn rate. Both are optional.
	CostLimiter    *ratelimit.QuoteLimiter
	SessionLimiter *ratelimit.UserRateLimiter
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

// NewChatHandler creates a new ChatHandler with all required dependencies.
func NewChatHandler(cfg ChatHandlerConfig) *ChatHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &ChatHandler{
		chatService:    cfg.ChatService,
		costLimiter:    cfg.CostLimiter,
		sessionLimiter: cfg.SessionLimiter,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}
}

// RegisterRoutes registers chat routes on the router.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat/session", h.HandleCreateSession)
	r.Post("/api/chat", h.HandleMessage)
}

// HandleCreateSession opens a new chat session.
func (h *ChatHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatService.CreateSession(r.Context())
	if err != nil {
		DomainError(w, r, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordChatSessionCreated()
	}
	JSONWithRequest(w, r, http.StatusCreated, map[string]interface{}{
		"session_id": session.ID,
		"status":     session.Status,
	})
}

// chatMessageRequest is the payload for one chat turn.
type chatMessageRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`
}

// HandleMessage runs one chat turn and streams progress as server-sent
// events. Each event is a JSON ChatEvent on a `data:` line; the stream ends
// after a "done" or "error" event.
func (h *ChatHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := DecodeJSON(w, r, &req, maxChatBodyBytes); err != nil {
		APIError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	message := strings.TrimSpace(req.Message)
	if req.SessionID == uuid.Nil || message == "" {
		APIError(w, http.StatusBadRequest, "session_id and message are required")
		return
	}
	if len(message) > maxChatMessageLength {
		APIError(w, http.StatusBadRequest, "message is too long")
		return
	}

	if h.sessionLimiter != nil {
		if err := h.sessionLimiter.Allow(r.Context(), req.SessionID); err != nil {
			if h.metrics != nil {
				h.metrics.RecordRateLimitHit("chat")
			}
			APIError(w, http.StatusTooManyRequests, "Too many messages, please slow down")
			return
		}
	}
	if h.costLimiter != nil {
		if err := h.costLimiter.Acquire(r.Context()); err != nil {
			if h.metrics != nil {
				h.metrics.RecordRateLimitHit("chat_cost")
			}
			APIError(w, http.StatusServiceUnavailable, "Chat is busy right now, please try again shortly")
			return
		}
		defer h.costLimiter.Release()
	}

	// Resolve the session before committing to the event stream so an
	// unknown session still gets a proper status code.
	if _, err := h.chatService.GetSession(r.Context(), req.SessionID); err != nil {
		DomainError(w, r, h.logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		APIError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(event service.ChatEvent) {
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		w.Write([]byte("data: "))
		w.Write(payload)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	err := h.chatService.ProcessMessage(r.Context(), req.SessionID, message, emit)
	if h.metrics != nil {
		h.metrics.RecordChatMessage(err == nil)
	}
	if err != nil {
		// The error event has already been streamed; the status line is
		// long gone, so just log.
		h.logger.Warn("chat turn failed",
			zap.String("session_id", req.SessionID.String()),
			zap.Error(err),
		)
	}
}
