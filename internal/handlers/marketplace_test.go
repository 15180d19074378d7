package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/handlers"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/jonesrussell/backlink-checker/internal/repository"
)

type MockMarketplaceStore struct {
	mock.Mock
}

func (m *MockMarketplaceStore) Create(ctx context.Context, mp *domain.Marketplace) error {
	return m.Called(ctx, mp).Error(0)
}

func (m *MockMarketplaceStore) GetByID(ctx context.Context, id int64) (*domain.Marketplace, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Marketplace), args.Error(1)
}

func (m *MockMarketplaceStore) Count(ctx context.Context, filter repository.ListFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *MockMarketplaceStore) List(ctx context.Context, filter repository.ListFilter) ([]domain.Marketplace, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Marketplace), args.Error(1)
}

func (m *MockMarketplaceStore) Update(ctx context.Context, mp *domain.Marketplace) error {
	return m.Called(ctx, mp).Error(0)
}

func (m *MockMarketplaceStore) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockMarketplaceStore) Stats(ctx context.Context, id int64) (*domain.MarketplaceStats, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MarketplaceStats), args.Error(1)
}

func marketplaceRouter(store handlers.MarketplaceStore) *gin.Engine {
	h := handlers.NewMarketplaceHandler(store, logger.NewNop())
	router := gin.New()
	g := router.Group("/marketplaces")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.GetByID)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.GET("/:id/stats", h.Stats)
	return router
}

func TestMarketplaceHandler_Create(t *testing.T) {
	t.Parallel()

	store := &MockMarketplaceStore{}
	store.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Marketplace) bool {
		return m.Name == "Link House" && m.Slug == "link-house"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Marketplace).ID = 7
	}).Return(nil)

	w := doJSON(t, marketplaceRouter(store), http.MethodPost, "/marketplaces", map[string]any{
		"name": " Link House ",
		"slug": "Link-House",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.InDelta(t, 7, body["id"], 0)
	assert.Equal(t, "link-house", body["slug"])
	store.AssertExpectations(t)
}

func TestMarketplaceHandler_CreateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing slug", map[string]any{"name": "Link House"}},
		{"bad slug", map[string]any{"name": "Link House", "slug": "link house!"}},
		{"blank name", map[string]any{"name": "   ", "slug": "link-house"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &MockMarketplaceStore{}
			w := doJSON(t, marketplaceRouter(store), http.MethodPost, "/marketplaces", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestMarketplaceHandler_CreateSlugTaken(t *testing.T) {
	t.Parallel()

	store := &MockMarketplaceStore{}
	store.On("Create", mock.Anything, mock.Anything).Return(domain.ErrSlugTaken)

	w := doJSON(t, marketplaceRouter(store), http.MethodPost, "/marketplaces", map[string]any{
		"name": "Link House", "slug": "link-house",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Failed to create marketplace", decode(t, w)["error"])
}

func TestMarketplaceHandler_GetByID(t *testing.T) {
	t.Parallel()

	store := &MockMarketplaceStore{}
	store.On("GetByID", mock.Anything, int64(3)).Return(&domain.Marketplace{ID: 3, Name: "Adsy", Slug: "adsy"}, nil)
	store.On("GetByID", mock.Anything, int64(4)).Return(nil, fmt.Errorf("marketplace 4: %w", domain.ErrNotFound))
	router := marketplaceRouter(store)

	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodGet, "/marketplaces/3", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, "/marketplaces/4", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodGet, "/marketplaces/abc", nil).Code)
}

func TestMarketplaceHandler_List(t *testing.T) {
	t.Parallel()

	filter := repository.ListFilter{Limit: 10, Offset: 20, SortBy: "created_at", SortOrder: "desc", Search: "link"}
	store := &MockMarketplaceStore{}
	store.On("List", mock.Anything, filter).Return([]domain.Marketplace{{ID: 1, Slug: "link-house"}}, nil)
	store.On("Count", mock.Anything, filter).Return(21, nil)

	w := doJSON(t, marketplaceRouter(store), http.MethodGet,
		"/marketplaces?limit=10&offset=20&sort_by=created_at&sort_order=desc&search=link", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.InDelta(t, 21, body["total"], 0)
	assert.Len(t, body["marketplaces"], 1)
	store.AssertExpectations(t)
}

func TestMarketplaceHandler_ListRejectsBadPaging(t *testing.T) {
	t.Parallel()

	w := doJSON(t, marketplaceRouter(&MockMarketplaceStore{}), http.MethodGet, "/marketplaces?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarketplaceHandler_Update(t *testing.T) {
	t.Parallel()

	store := &MockMarketplaceStore{}
	store.On("Update", mock.Anything, mock.MatchedBy(func(m *domain.Marketplace) bool {
		return m.ID == 5 && m.Slug == "adsy"
	})).Return(nil)
	store.On("Update", mock.Anything, mock.MatchedBy(func(m *domain.Marketplace) bool {
		return m.ID == 6
	})).Return(fmt.Errorf("marketplace 6: %w", domain.ErrNotFound))
	router := marketplaceRouter(store)

	body := map[string]any{"name": "Adsy", "slug": "adsy", "region": "EU"}
	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPut, "/marketplaces/5", body).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodPut, "/marketplaces/6", body).Code)
}

func TestMarketplaceHandler_Delete(t *testing.T) {
	t.Parallel()

	store := &MockMarketplaceStore{}
	store.On("Delete", mock.Anything, int64(5)).Return(nil)
	store.On("Delete", mock.Anything, int64(6)).Return(errors.New("connection reset"))
	router := marketplaceRouter(store)

	assert.Equal(t, http.StatusNoContent, doJSON(t, router, http.MethodDelete, "/marketplaces/5", nil).Code)

	w := doJSON(t, router, http.MethodDelete, "/marketplaces/6", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestMarketplaceHandler_Stats(t *testing.T) {
	t.Parallel()

	store := &MockMarketplaceStore{}
	store.On("Stats", mock.Anything, int64(2)).Return(&domain.MarketplaceStats{MarketplaceID: 2, TotalOffers: 9, UniqueDomains: 8}, nil)

	w := doJSON(t, marketplaceRouter(store), http.MethodGet, "/marketplaces/2/stats", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.InDelta(t, 9, body["total_offers"], 0)
	assert.Nil(t, body["avg_price_usd"])
}
