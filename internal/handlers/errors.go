// Package handlers implements the HTTP handlers of the backlink API.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

// respondError writes the {"error", "details"} body for err. Unexpected
// errors are logged and their details withheld.
func respondError(c *gin.Context, log logger.Logger, msg string, err error) {
	switch {
	case domain.IsRequestError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": msg, "details": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msg, "details": err.Error()})
	case errors.Is(err, domain.ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"error": msg, "details": err.Error()})
	case errors.Is(err, domain.ErrNoRateAvailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msg, "details": err.Error()})
	default:
		_ = c.Error(err)
		logger.FromContext(c.Request.Context(), log).Error(msg, logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

// idParam parses a positive integer path parameter.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name, nil)
		return 0, false
	}
	return id, true
}

// intQuery reads an integer query parameter, returning def when absent.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "Invalid "+name, nil)
		return 0, false
	}
	return n, true
}
