package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/handlers"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

type historyFunc func(ctx context.Context, offerID int64, limit int) ([]domain.PriceHistory, error)

func (f historyFunc) History(ctx context.Context, offerID int64, limit int) ([]domain.PriceHistory, error) {
	return f(ctx, offerID, limit)
}

func TestOfferHandler_History(t *testing.T) {
	t.Parallel()

	var gotLimit int
	source := historyFunc(func(_ context.Context, offerID int64, limit int) ([]domain.PriceHistory, error) {
		gotLimit = limit
		if offerID != 9 {
			return nil, fmt.Errorf("offer %d: %w", offerID, domain.ErrNotFound)
		}
		return []domain.PriceHistory{
			{ID: 2, OfferID: 9, PriceAmount: decimal.RequireFromString("12.00"), PriceCurrency: "EUR"},
			{ID: 1, OfferID: 9, PriceAmount: decimal.RequireFromString("10.00"), PriceCurrency: "EUR"},
		}, nil
	})

	h := handlers.NewOfferHandler(source, logger.NewNop())
	router := gin.New()
	router.GET("/offers/:id/history", h.History)

	w := doJSON(t, router, http.MethodGet, "/offers/9/history", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, gotLimit)
	assert.InDelta(t, 2, decode(t, w)["count"], 0)

	doJSON(t, router, http.MethodGet, "/offers/9/history?limit=10000", nil)
	assert.Equal(t, 500, gotLimit)

	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, "/offers/10/history", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodGet, "/offers/0/history", nil).Code)
}
