// Package api wires the HTTP handlers onto gin routes.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/backlink-checker/internal/handlers"
	"github.com/jonesrussell/backlink-checker/internal/server"
)

// Routes holds everything the router mounts. A nil Metrics handler leaves
// the metrics endpoint unmounted.
type Routes struct {
	Lookup       *handlers.LookupHandler
	Ingest       *handlers.IngestHandler
	Marketplaces *handlers.MarketplaceHandler
	Offers       *handlers.OfferHandler
	FX           *handlers.FXHandler

	Health        server.HealthOptions
	Metrics       http.Handler
	MetricsPath   string
	JWTSecret     string
	LookupLimiter *server.RateLimiter
}

// Setup returns the route setup function passed to server.New.
func Setup(r Routes) func(*gin.Engine) {
	return func(router *gin.Engine) {
		server.RegisterHealthRoutes(router, r.Health)
		if r.Metrics != nil && r.MetricsPath != "" {
			router.GET(r.MetricsPath, gin.WrapH(r.Metrics))
		}

		v1 := router.Group("/api/v1")
		v1.Use(server.JWTMiddleware(r.JWTSecret))

		lookupChain := []gin.HandlerFunc{r.Lookup.Lookup}
		if r.LookupLimiter != nil {
			lookupChain = append([]gin.HandlerFunc{r.LookupLimiter.Middleware()}, lookupChain...)
		}
		v1.POST("/lookup", lookupChain...)
		v1.GET("/lookup/stats", r.Lookup.Stats)
		v1.GET("/domains/:domain", r.Lookup.Domain)

		v1.POST("/ingest", r.Ingest.Ingest)

		marketplaces := v1.Group("/marketplaces")
		marketplaces.GET("", r.Marketplaces.List)
		marketplaces.POST("", r.Marketplaces.Create)
		marketplaces.GET("/:id", r.Marketplaces.GetByID)
		marketplaces.PUT("/:id", r.Marketplaces.Update)
		marketplaces.DELETE("/:id", r.Marketplaces.Delete)
		marketplaces.GET("/:id/stats", r.Marketplaces.Stats)

		v1.GET("/offers/:id/history", r.Offers.History)

		fx := v1.Group("/fx")
		fx.GET("/rates/:currency", r.FX.History)
		fx.PUT("/rates", r.FX.Upsert)
		fx.GET("/convert", r.FX.Convert)
	}
}
