package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/backlink-checker/internal/config"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/jonesrussell/backlink-checker/internal/server"
)

func TestFromServiceConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Debug:   true,
		Service: config.ServiceConfig{Name: "backlink-checker", Version: "1.2.3"},
		Server: config.ServerConfig{
			Host:        "127.0.0.1",
			Port:        8060,
			CORSOrigins: []string{"http://localhost:3000"},
		},
	}

	got := server.FromServiceConfig(cfg)

	assert.Equal(t, server.DefaultReadTimeout, got.ReadTimeout)
	assert.Equal(t, server.DefaultShutdownTimeout, got.ShutdownTimeout)
	assert.True(t, got.CORS.Enabled)
	assert.Equal(t, "1.2.3", got.ServiceVersion)
}

func TestNew_AppliesMiddlewareAndRoutes(t *testing.T) {
	t.Parallel()

	cfg := &server.Config{Host: "127.0.0.1", Port: 0, ServiceName: "backlink-checker"}
	rec := &recordingRecorder{}
	srv := server.New(cfg, logger.NewNop(), rec, func(r *gin.Engine) {
		r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	})

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))

	assert.Equal(t, "pong", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(server.RequestIDHeader))
	require.Len(t, rec.seen, 1)
	assert.Equal(t, "/ping", rec.seen[0].route)
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
}

func TestRun_StopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	srv := server.New(&server.Config{Host: "127.0.0.1", Port: 0}, logger.NewNop(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}
