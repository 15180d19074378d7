package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	fx "github.com/jonesrussell/backlink-checker/internal/currency"
	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 3650
)

// RateStore is the fx_rates table.
type RateStore interface {
	fx.RateSource
	Upsert(ctx context.Context, rate *domain.FxRate) (bool, error)
	History(ctx context.Context, currency string, since time.Time) ([]domain.FxRate, error)
}

type FXHandler struct {
	rates     RateStore
	converter *fx.Converter
	logger    logger.Logger
	now       func() time.Time
}

func NewFXHandler(rates RateStore, log logger.Logger) *FXHandler {
	return &FXHandler{
		rates:     rates,
		converter: fx.NewConverter(rates),
		logger:    log,
		now:       time.Now,
	}
}

// parseCode validates an ISO 4217 code.
func parseCode(raw string) (string, bool) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(raw)))
	if err != nil {
		return "", false
	}
	return unit.String(), true
}

func parseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, strings.TrimSpace(raw), time.UTC)
}

func (h *FXHandler) today() time.Time {
	now := h.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// History handles GET /api/v1/fx/rates/:currency?days=30.
func (h *FXHandler) History(c *gin.Context) {
	code, ok := parseCode(c.Param("currency"))
	if !ok {
		badRequest(c, "Invalid currency", nil)
		return
	}
	days, ok := intQuery(c, "days", defaultHistoryDays)
	if !ok {
		return
	}
	if days == 0 || days > maxHistoryDays {
		badRequest(c, "days must be between 1 and 3650", nil)
		return
	}

	since := h.today().AddDate(0, 0, -days)
	rates, err := h.rates.History(c.Request.Context(), code, since)
	if err != nil {
		respondError(c, h.logger, "Failed to load rates", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"currency": code,
		"since":    since.Format(time.DateOnly),
		"rates":    rates,
	})
}

type rateRequest struct {
	Currency      string          `json:"currency"       binding:"required"`
	RateToUSD     decimal.Decimal `json:"rate_to_usd"`
	EffectiveDate string          `json:"effective_date"`
	Source        string          `json:"source"`
}

// Upsert handles PUT /api/v1/fx/rates. The effective date defaults to today.
func (h *FXHandler) Upsert(c *gin.Context) {
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	code, ok := parseCode(req.Currency)
	if !ok || code == domain.CurrencyUSD {
		badRequest(c, "Invalid currency", nil)
		return
	}
	if !req.RateToUSD.IsPositive() {
		badRequest(c, "rate_to_usd must be positive", nil)
		return
	}

	effective := h.today()
	if req.EffectiveDate != "" {
		parsed, err := parseDate(req.EffectiveDate)
		if err != nil {
			badRequest(c, "Invalid effective_date", err)
			return
		}
		effective = parsed
	}

	rate := &domain.FxRate{
		Currency:      code,
		RateToUSD:     req.RateToUSD,
		EffectiveDate: effective,
		Source:        strings.TrimSpace(req.Source),
	}
	created, err := h.rates.Upsert(c.Request.Context(), rate)
	if err != nil {
		respondError(c, h.logger, "Failed to save rate", err)
		return
	}

	h.logger.Info("FX rate saved",
		logger.String("currency", code),
		logger.Decimal("rate_to_usd", rate.RateToUSD),
		logger.String("effective_date", effective.Format(time.DateOnly)),
		logger.Bool("created", created),
	)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, rate)
}

// Convert handles GET /api/v1/fx/convert?amount=&from=&to=&date=. Non-USD
// pairs go through USD.
func (h *FXHandler) Convert(c *gin.Context) {
	amount, err := decimal.NewFromString(strings.TrimSpace(c.Query("amount")))
	if err != nil || amount.IsNegative() {
		badRequest(c, "Invalid amount", err)
		return
	}
	from, ok := parseCode(c.Query("from"))
	if !ok {
		badRequest(c, "Invalid from currency", nil)
		return
	}
	to := domain.CurrencyUSD
	if raw := c.Query("to"); raw != "" {
		if to, ok = parseCode(raw); !ok {
			badRequest(c, "Invalid to currency", nil)
			return
		}
	}

	var asOf *time.Time
	if raw := c.Query("date"); raw != "" {
		date, parseErr := parseDate(raw)
		if parseErr != nil {
			badRequest(c, "Invalid date", parseErr)
			return
		}
		asOf = &date
	}

	ctx := c.Request.Context()
	usd, err := h.converter.ToUSD(ctx, amount, from, asOf)
	if err != nil {
		respondError(c, h.logger, "Conversion failed", err)
		return
	}
	converted, err := h.converter.FromUSD(ctx, usd, to, asOf)
	if err != nil {
		respondError(c, h.logger, "Conversion failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"amount":    amount,
		"from":      from,
		"to":        to,
		"converted": converted,
		"usd":       usd,
	})
}
