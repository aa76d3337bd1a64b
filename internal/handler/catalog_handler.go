package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/domain"
)

// CatalogHandler serves the public service catalog.
type CatalogHandler struct {
	services domain.ServiceRepository
	logger   *zap.Logger
}

// CatalogHandlerConfig holds configuration for CatalogHandler.
type CatalogHandlerConfig struct {
	Services domain.ServiceRepository
	Logger   *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(cfg CatalogHandlerConfig) *CatalogHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &CatalogHandler{
		services: cfg.Services,
		logger:   cfg.Logger,
	}
}

// RegisterRoutes registers catalog routes on the router.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/services", h.HandleList)
}

// HandleList returns the active service catalog for the quote form and
// chatbot front ends.
func (h *CatalogHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	services, err := h.services.ListActive(r.Context())
	if err != nil {
		DomainError(w, r, h.logger, err)
		return
	}
	if services == nil {
		services = []*domain.Service{}
	}
	JSONWithRequest(w, r, http.StatusOK, map[string]interface{}{
		"services": services,
	})
}
