package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/audit"
	"github.com/myhorsefarm/farmops/internal/availability"
	"github.com/myhorsefarm/farmops/internal/metrics"
	"github.com/myhorsefarm/farmops/internal/middleware"
	"github.com/myhorsefarm/farmops/internal/service"
)

// maxAvailabilityHorizonDays caps how far ahead the calendar endpoint looks.
const maxAvailabilityHorizonDays = 90

// BookingHandler handles public booking and availability endpoints.
type BookingHandler struct {
	bookingService *service.BookingService
	availability   *availability.Engine
	logger         *zap.Logger
	metrics        *metrics.Metrics
	audit          *audit.Logger
}

// BookingHandlerConfig holds configuration for BookingHandler.
type BookingHandlerConfig struct {
	BookingService *service.BookingService
	Availability   *availability.Engine
	Logger         *zap.Logger
	Metrics        *metrics.Metrics

	// Audit records booking creation events. Optional.
	Audit *audit.Logger
}

// NewBookingHandler creates a new BookingHandler with all required dependencies.
func NewBookingHandler(cfg BookingHandlerConfig) *BookingHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &BookingHandler{
		bookingService: cfg.BookingService,
		availability:   cfg.Availability,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		audit:          cfg.Audit,
	}
}

// RegisterRoutes registers booking routes on the router.
func (h *BookingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/booking", h.HandleCreate)
	r.Get("/api/booking/{id}", h.HandleGet)
	r.Get("/api/availability", h.HandleAvailability)
}

// HandleCreate schedules a booking, either from an accepted quote or directly.
func (h *BookingHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input service.CreateBookingInput
	if err := DecodeJSON(w, r, &input, maxQuoteBodyBytes); err != nil {
		APIError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	booking, err := h.bookingService.Create(r.Context(), &input)
	if err != nil {
		DomainError(w, r, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordBookingCreated(input.QuoteID != nil)
	}
	if h.audit != nil {
		h.audit.BookingCreated(r.Context(), booking.ID.String(), booking.BookingNumber,
			middleware.GetRequestID(r.Context()))
	}
	JSONWithRequest(w, r, http.StatusCreated, booking)
}

// HandleGet returns a booking by ID.
func (h *BookingHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		APIError(w, http.StatusBadRequest, "Invalid booking ID")
		return
	}

	booking, err := h.bookingService.GetByID(r.Context(), id)
	if err != nil {
		DomainError(w, r, h.logger, err)
		return
	}
	JSONWithRequest(w, r, http.StatusOK, booking)
}

// HandleAvailability returns the bookable calendar for the next N days.
func (h *BookingHandler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	days := availability.DefaultHorizonDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			APIError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}
	if days > maxAvailabilityHorizonDays {
		days = maxAvailabilityHorizonDays
	}

	dates, err := h.availability.AvailableDates(r.Context(), days)
	if err != nil {
		DomainError(w, r, h.logger, err)
		return
	}

	JSONWithRequest(w, r, http.StatusOK, map[string]interface{}{
		"days":  days,
		"dates": dates,
	})
}
