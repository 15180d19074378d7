package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/ingest"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/jonesrussell/backlink-checker/internal/repository"
)

const defaultPageSize = 50

// MarketplaceStore is the marketplace table.
type MarketplaceStore interface {
	Create(ctx context.Context, m *domain.Marketplace) error
	GetByID(ctx context.Context, id int64) (*domain.Marketplace, error)
	Count(ctx context.Context, filter repository.ListFilter) (int, error)
	List(ctx context.Context, filter repository.ListFilter) ([]domain.Marketplace, error)
	Update(ctx context.Context, m *domain.Marketplace) error
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context, id int64) (*domain.MarketplaceStats, error)
}

type MarketplaceHandler struct {
	store  MarketplaceStore
	logger logger.Logger
}

func NewMarketplaceHandler(store MarketplaceStore, log logger.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{store: store, logger: log}
}

// marketplaceRequest is the body of create and update calls.
type marketplaceRequest struct {
	Name   string  `json:"name"   binding:"required"`
	Slug   string  `json:"slug"   binding:"required"`
	Region *string `json:"region"`
	Notes  *string `json:"notes"`
}

func (r *marketplaceRequest) toMarketplace() (*domain.Marketplace, bool) {
	m := &domain.Marketplace{
		Name:   strings.TrimSpace(r.Name),
		Slug:   strings.ToLower(strings.TrimSpace(r.Slug)),
		Region: r.Region,
		Notes:  r.Notes,
	}
	return m, m.Name != "" && ingest.ValidSlug(m.Slug)
}

func (h *MarketplaceHandler) Create(c *gin.Context) {
	var req marketplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	m, ok := req.toMarketplace()
	if !ok {
		badRequest(c, "Invalid marketplace", nil)
		return
	}

	if err := h.store.Create(c.Request.Context(), m); err != nil {
		respondError(c, h.logger, "Failed to create marketplace", err)
		return
	}

	h.logger.Info("Marketplace created",
		logger.Int64("marketplace_id", m.ID),
		logger.String("slug", m.Slug),
	)
	c.JSON(http.StatusCreated, m)
}

func (h *MarketplaceHandler) GetByID(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	m, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "Marketplace not found", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *MarketplaceHandler) List(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultPageSize)
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset", 0)
	if !ok {
		return
	}

	filter := repository.ListFilter{
		Limit:     limit,
		Offset:    offset,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
		Search:    strings.TrimSpace(c.Query("search")),
	}

	ctx := c.Request.Context()
	marketplaces, err := h.store.List(ctx, filter)
	if err != nil {
		respondError(c, h.logger, "Failed to list marketplaces", err)
		return
	}
	total, err := h.store.Count(ctx, filter)
	if err != nil {
		respondError(c, h.logger, "Failed to count marketplaces", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"marketplaces": marketplaces,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

func (h *MarketplaceHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req marketplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	m, valid := req.toMarketplace()
	if !valid {
		badRequest(c, "Invalid marketplace", nil)
		return
	}
	m.ID = id

	if err := h.store.Update(c.Request.Context(), m); err != nil {
		respondError(c, h.logger, "Failed to update marketplace", err)
		return
	}

	h.logger.Info("Marketplace updated", logger.Int64("marketplace_id", id))
	c.JSON(http.StatusOK, m)
}

func (h *MarketplaceHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "Failed to delete marketplace", err)
		return
	}

	h.logger.Info("Marketplace deleted", logger.Int64("marketplace_id", id))
	c.Status(http.StatusNoContent)
}

func (h *MarketplaceHandler) Stats(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.store.Stats(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "Failed to load marketplace stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
