package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/audit"
	"github.com/myhorsefarm/farmops/internal/domain"
	"github.com/myhorsefarm/farmops/internal/metrics"
	"github.com/myhorsefarm/farmops/internal/middleware"
	"github.com/myhorsefarm/farmops/internal/service"
)

const maxQuoteBodyBytes = 64 * 1024

// QuoteHandler handles public quote endpoints.
type QuoteHandler struct {
	quoteService *service.QuoteService
	logger       *zap.Logger
	metrics      *metrics.Metrics
	audit        *audit.Logger
}

// QuoteHandlerConfig holds configuration for QuoteHandler.
type QuoteHandlerConfig struct {
	QuoteService *service.QuoteService
	Logger       *zap.Logger
	Metrics      *metrics.Metrics

	// Audit records quote generation events. Optional.
	Audit *audit.Logger
}

// NewQuoteHandler creates a new QuoteHandler with all required dependencies.
func NewQuoteHandler(cfg QuoteHandlerConfig) *QuoteHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &QuoteHandler{
		quoteService: cfg.QuoteService,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		audit:        cfg.Audit,
	}
}

// RegisterRoutes registers quote routes on the router.
func (h *QuoteHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/quote", h.HandleCreate)
	r.Get("/api/quote/{id}", h.HandleGet)
	r.Post("/api/quote/{id}/accept", h.HandleAccept)
}

// HandleCreate generates a quote from the public quote form.
func (h *QuoteHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input service.CreateQuoteInput
	if err := DecodeJSON(w, r, &input, maxQuoteBodyBytes); err != nil {
		APIError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	input.Source = domain.QuoteSourceForm

	quote, err := h.quoteService.Create(r.Context(), &input)
	if err != nil {
		DomainError(w, r, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordQuoteCreated(string(quote.Source), string(quote.Status))
	}
	if h.audit != nil {
		h.audit.QuoteGenerated(r.Context(), quote.ID.String(), quote.QuoteNumber,
			middleware.GetRequestID(r.Context()))
	}
	JSONWithRequest(w, r, http.StatusCreated, quote)
}

// HandleGet returns a quote by ID, lazily expiring it when past its window.
func (h *QuoteHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		APIError(w, http.StatusBadRequest, "Invalid quote ID")
		return
	}

	quote, err := h.quoteService.GetByID(r.Context(), id)
	if err != nil {
		DomainError(w, r, h.logger, err)
		return
	}
	JSONWithRequest(w, r, http.StatusOK, quote)
}

// HandleAccept accepts a pending quote. Accepting an already-accepted quote
// is a no-op success.
func (h *QuoteHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		APIError(w, http.StatusBadRequest, "Invalid quote ID")
		return
	}

	quote, err := h.quoteService.Accept(r.Context(), id)
	if err != nil {
		DomainError(w, r, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordQuoteAccepted()
	}
	JSONWithRequest(w, r, http.StatusOK, quote)
}
