package server_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/jonesrussell/backlink-checker/internal/server"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	router := gin.New()
	router.Use(server.RequestIDLoggerMiddleware(logger.NewNop()))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequestIDLoggerMiddleware_GeneratesID(t *testing.T) {
	t.Parallel()

	w := serve(newTestRouter(t), httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	assert.Len(t, w.Header().Get(server.RequestIDHeader), 32)
}

func TestRequestIDLoggerMiddleware_PreservesInboundID(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(server.RequestIDLoggerMiddleware(logger.NewNop()))

	var seen string
	router.GET("/test", func(c *gin.Context) {
		seen = server.RequestID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set(server.RequestIDHeader, "upstream-abc123")
	w := serve(router, req)

	assert.Equal(t, "upstream-abc123", w.Header().Get(server.RequestIDHeader))
	assert.Equal(t, "upstream-abc123", seen)
}

func TestRequestIDLoggerMiddleware_ReplacesOversizedID(t *testing.T) {
	t.Parallel()

	oversized := strings.Repeat("x", 200)
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set(server.RequestIDHeader, oversized)
	w := serve(newTestRouter(t), req)

	got := w.Header().Get(server.RequestIDHeader)
	assert.NotEmpty(t, got)
	assert.NotEqual(t, oversized, got)
}

func TestRequestIDLoggerMiddleware_UniqueIDs(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	seen := make(map[string]bool)
	for range 100 {
		id := serve(router, httptest.NewRequest(http.MethodGet, "/test", http.NoBody)).Header().Get(server.RequestIDHeader)
		require.False(t, seen[id], "duplicate request id %s", id)
		seen[id] = true
	}
}

func TestRequestIDLoggerMiddleware_StoresLoggerInContext(t *testing.T) {
	t.Parallel()

	base := logger.NewNop()
	router := gin.New()
	router.Use(server.RequestIDLoggerMiddleware(base))

	var got logger.Logger
	router.GET("/test", func(c *gin.Context) {
		got = logger.FromContext(c.Request.Context(), nil)
		c.Status(http.StatusOK)
	})

	serve(router, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
	require.NotNil(t, got)
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(server.RecoveryMiddleware(logger.NewNop()))
	router.GET("/boom", func(*gin.Context) {
		panic("boom")
	})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/boom", http.NoBody))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
}

type httpObservation struct {
	method, route string
	status        int
}

type recordingRecorder struct {
	mu   sync.Mutex
	seen []httpObservation
}

func (r *recordingRecorder) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, httpObservation{method, route, status})
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	t.Parallel()

	rec := &recordingRecorder{}
	router := gin.New()
	router.Use(server.MetricsMiddleware(rec))
	router.GET("/api/v1/marketplaces/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/marketplaces/42", http.NoBody))
	serve(router, httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody))

	require.Len(t, rec.seen, 2)
	assert.Equal(t, httpObservation{http.MethodGet, "/api/v1/marketplaces/:id", http.StatusNoContent}, rec.seen[0])
	assert.Equal(t, httpObservation{http.MethodGet, "unmatched", http.StatusNotFound}, rec.seen[1])
}

func TestMetricsMiddleware_NilRecorder(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(server.MetricsMiddleware(nil))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/test", http.NoBody)).Code)
}

func corsRouter(cfg server.CORSConfig) *gin.Engine {
	router := gin.New()
	router.Use(server.CORSMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()

	cfg := server.CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
	}

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"allowed origin", http.MethodGet, "http://localhost:3000", "http://localhost:3000", http.StatusOK},
		{"unknown origin", http.MethodGet, "http://evil.example", "", http.StatusOK},
		{"same origin", http.MethodGet, "", "", http.StatusOK},
		{"preflight", http.MethodOptions, "http://localhost:3000", "http://localhost:3000", http.StatusNoContent},
	}

	router := corsRouter(cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/test", http.NoBody)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := serve(router, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
				assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}

func TestCORSMiddleware_WildcardNeverSendsCredentials(t *testing.T) {
	t.Parallel()

	router := corsRouter(server.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowCredentials: true})
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Origin", "http://anything.example")
	w := serve(router, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "false", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSMiddleware_Disabled(t *testing.T) {
	t.Parallel()

	router := corsRouter(server.CORSConfig{AllowedOrigins: []string{"*"}})
	req := httptest.NewRequest(http.MethodOptions, "/test", http.NoBody)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(router, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
