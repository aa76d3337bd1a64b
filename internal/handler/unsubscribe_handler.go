package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/audit"
	"github.com/myhorsefarm/farmops/internal/metrics"
	"github.com/myhorsefarm/farmops/internal/middleware"
)

// UnsubscribeVerifier validates the signed unsubscribe link parameters.
type UnsubscribeVerifier interface {
	VerifyUnsubscribeSignature(email, sig string) bool
}

// Unsubscriber records an opt-out in the CRM.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, email string) error
}

// UnsubscribeHandler handles one-click unsubscribe links from campaign email.
type UnsubscribeHandler struct {
	verifier UnsubscribeVerifier
	crm      Unsubscriber
	events   *metrics.BusinessEventLogger
	audit    *audit.Logger
	logger   *zap.Logger
}

// UnsubscribeHandlerConfig holds configuration for UnsubscribeHandler.
type UnsubscribeHandlerConfig struct {
	Verifier UnsubscribeVerifier
	CRM      Unsubscriber
	Events   *metrics.BusinessEventLogger
	Logger   *zap.Logger

	// Audit records unsubscribe outcomes. Optional.
	Audit *audit.Logger
}

// NewUnsubscribeHandler creates a new UnsubscribeHandler.
func NewUnsubscribeHandler(cfg UnsubscribeHandlerConfig) *UnsubscribeHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &UnsubscribeHandler{
		verifier: cfg.Verifier,
		crm:      cfg.CRM,
		events:   cfg.Events,
		audit:    cfg.Audit,
		logger:   cfg.Logger,
	}
}

// RegisterRoutes registers unsubscribe routes on the router.
func (h *UnsubscribeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/unsubscribe", h.HandleConfirmPage)
	r.Post("/api/unsubscribe", h.HandleUnsubscribe)
}

// HandleConfirmPage serves a confirmation page instead of unsubscribing on
// GET. Mail clients prefetch links, so the actual opt-out requires the form
// POST a scanner will never issue.
func (h *UnsubscribeHandler) HandleConfirmPage(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	sig := r.URL.Query().Get("sig")

	if email == "" || sig == "" || !h.verifier.VerifyUnsubscribeSignature(email, sig) {
		h.renderPage(w, http.StatusBadRequest, invalidLinkHTML)
		return
	}

	h.renderPage(w, http.StatusOK, confirmPageHTML(email, sig))
}

// HandleUnsubscribe performs the opt-out after the visitor confirms.
func (h *UnsubscribeHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderPage(w, http.StatusBadRequest, invalidLinkHTML)
		return
	}

	email := r.PostFormValue("email")
	sig := r.PostFormValue("sig")
	if email == "" || sig == "" || !h.verifier.VerifyUnsubscribeSignature(email, sig) {
		h.logger.Warn("unsubscribe signature verification failed")
		if h.audit != nil {
			h.audit.Unsubscribe(r.Context(), clientIP(r), middleware.GetRequestID(r.Context()), "denied")
		}
		h.renderPage(w, http.StatusBadRequest, invalidLinkHTML)
		return
	}

	if err := h.crm.Unsubscribe(r.Context(), email); err != nil {
		h.logger.Error("unsubscribe failed", zap.Error(err))
		h.renderPage(w, http.StatusInternalServerError, unsubscribeErrorHTML)
		return
	}

	if h.events != nil {
		h.events.Unsubscribed(r.Context(), email)
	}
	if h.audit != nil {
		h.audit.Unsubscribe(r.Context(), clientIP(r), middleware.GetRequestID(r.Context()), "success")
	}
	h.renderPage(w, http.StatusOK, unsubscribedHTML)
}

func (h *UnsubscribeHandler) renderPage(w http.ResponseWriter, status int, html string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(html))
}
