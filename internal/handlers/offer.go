package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// OfferHistorySource returns the observed prices of an offer, newest first.
type OfferHistorySource interface {
	History(ctx context.Context, offerID int64, limit int) ([]domain.PriceHistory, error)
}

type OfferHandler struct {
	history OfferHistorySource
	logger  logger.Logger
}

func NewOfferHandler(history OfferHistorySource, log logger.Logger) *OfferHandler {
	return &OfferHandler{history: history, logger: log}
}

// History handles GET /api/v1/offers/:id/history.
func (h *OfferHandler) History(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", defaultHistoryLimit)
	if !ok {
		return
	}
	switch {
	case limit == 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	entries, err := h.history.History(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, h.logger, "Failed to load price history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"offer_id": id,
		"history":  entries,
		"count":    len(entries),
	})
}
