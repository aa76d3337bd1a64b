package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/audit"
	"github.com/myhorsefarm/farmops/internal/metrics"
	"github.com/myhorsefarm/farmops/internal/middleware"
	"github.com/myhorsefarm/farmops/internal/service"
	"github.com/myhorsefarm/farmops/internal/square"
)

// squareSignatureHeader carries the HMAC signature Square computes over the
// notification URL plus raw body.
const squareSignatureHeader = "x-square-hmacsha256-signature"

const maxWebhookBodyBytes = 256 * 1024

// SignatureVerifier validates a webhook body against its signature header.
type SignatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// EventReconciler processes a verified webhook event against the CRM.
type EventReconciler interface {
	HandleEvent(ctx context.Context, event *square.WebhookEvent) *service.ReconcileResult
}

// WebhookHandler handles incoming payment webhooks from Square.
type WebhookHandler struct {
	verifier   SignatureVerifier
	reconciler EventReconciler
	audit      *audit.Logger
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// WebhookHandlerConfig holds configuration for WebhookHandler.
type WebhookHandlerConfig struct {
	Verifier   SignatureVerifier
	Reconciler EventReconciler
	// Audit records webhook security events. Optional.
	Audit   *audit.Logger
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// NewWebhookHandler creates a new WebhookHandler with all required dependencies.
func NewWebhookHandler(cfg WebhookHandlerConfig) *WebhookHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &WebhookHandler{
		verifier:   cfg.Verifier,
		reconciler: cfg.Reconciler,
		audit:      cfg.Audit,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// RegisterRoutes registers webhook routes on the router.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/webhooks/square", h.HandleSquareWebhook)
}

// HandleSquareWebhook verifies and processes a Square payment notification.
// Once an event is authenticated and parsed it is always acknowledged with
// 200, even when reconciliation fails: a non-2xx response would make Square
// redeliver an event we have already routed, and the note-based idempotency
// tags make redelivery safe but pointless.
func (h *WebhookHandler) HandleSquareWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.Warn("failed to read webhook body", zap.Error(err))
		APIError(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	signature := r.Header.Get(squareSignatureHeader)
	if signature == "" || !h.verifier.VerifyWebhookSignature(body, signature) {
		h.logger.Warn("webhook signature verification failed",
			zap.Bool("signature_present", signature != ""),
		)
		if h.metrics != nil {
			h.metrics.RecordWebhookRejected("invalid_signature")
		}
		if h.audit != nil {
			h.audit.WebhookValidationFailed(r.Context(), "square", clientIP(r),
				middleware.GetRequestID(r.Context()), "signature mismatch")
		}
		APIError(w, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	var event square.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("failed to parse webhook payload", zap.Error(err))
		if h.metrics != nil {
			h.metrics.RecordWebhookRejected("parse_error")
		}
		APIError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	if h.audit != nil {
		objectID := ""
		if p := event.Data.Object.Payment; p != nil {
			objectID = p.ID
		} else if rf := event.Data.Object.Refund; rf != nil {
			objectID = rf.ID
		}
		h.audit.WebhookReceived(r.Context(), "square", event.Type, objectID,
			clientIP(r), middleware.GetRequestID(r.Context()))
	}

	result := h.reconciler.HandleEvent(r.Context(), &event)

	outcome := "processed"
	switch {
	case result.Error != "":
		outcome = "error"
	case result.Skipped != "":
		outcome = "skipped"
	}
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(event.Type, outcome, time.Since(start))
	}

	h.logger.Info("webhook event handled",
		zap.String("type", event.Type),
		zap.String("outcome", outcome),
	)

	JSONWithRequest(w, r, http.StatusOK, result)
}
