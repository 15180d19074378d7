package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

// LookupService answers price lookups.
type LookupService interface {
	Lookup(ctx context.Context, req *domain.LookupRequest) (*domain.LookupResult, error)
	Stats(ctx context.Context) (*domain.LookupStats, error)
	Domain(ctx context.Context, raw string) (*domain.Domain, error)
}

type LookupHandler struct {
	service LookupService
	logger  logger.Logger
}

func NewLookupHandler(service LookupService, log logger.Logger) *LookupHandler {
	return &LookupHandler{service: service, logger: log}
}

// Lookup handles POST /api/v1/lookup.
func (h *LookupHandler) Lookup(c *gin.Context) {
	var req domain.LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	result, err := h.service.Lookup(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, "Lookup failed", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Stats handles GET /api/v1/lookup/stats.
func (h *LookupHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Failed to load stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Domain handles GET /api/v1/domains/:domain.
func (h *LookupHandler) Domain(c *gin.Context) {
	d, err := h.service.Domain(c.Request.Context(), c.Param("domain"))
	if err != nil {
		respondError(c, h.logger, "Domain not found", err)
		return
	}
	c.JSON(http.StatusOK, d)
}
