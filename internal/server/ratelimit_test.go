package server_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/backlink-checker/internal/server"
)

func TestRateLimiter_PerClientBuckets(t *testing.T) {
	t.Parallel()

	limiter := server.NewRateLimiter(1, 2)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	assert.True(t, limiter.Allow("10.0.0.2"), "other clients keep their own bucket")
}

func TestRateLimiter_Middleware(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.POST("/lookup", server.NewRateLimiter(1, 1).Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	first := serve(router, httptest.NewRequest(http.MethodPost, "/lookup", http.NoBody))
	second := serve(router, httptest.NewRequest(http.MethodPost, "/lookup", http.NoBody))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), "rate limit exceeded")
}
