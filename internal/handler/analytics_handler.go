package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/pkg/response"
)

// AnalyticsHandler serves strategy, performance and portfolio routes
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	portfolio *service.PortfolioService
	log       *zap.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(analytics *service.AnalyticsService, portfolio *service.PortfolioService, log *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, portfolio: portfolio, log: log}
}

// GetAnalytics recomputes performance over a window
// GET /analytics?days=N
func (h *AnalyticsHandler) GetAnalytics(c *gin.Context) {
	verr := &service.ValidationError{}
	days := service.DefaultWindowDays
	if c.Query("days") != "" {
		days = queryInt(c, "days", verr)
	}
	if err := verr.OrNil(); err != nil {
		respondError(c, h.log, err)
		return
	}
	perf, err := h.analytics.GetPerformanceAnalytics(c.Request.Context(), days)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, perf)
}

// GetStrategies lists strategies with recomputed aggregates
// GET /strategies
func (h *AnalyticsHandler) GetStrategies(c *gin.Context) {
	strategies, err := h.analytics.GetStrategyPerformance(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if strategies == nil {
		strategies = []models.TradingStrategy{}
	}
	response.Success(c, strategies)
}

// CreateStrategy registers a strategy
// POST /strategies
func (h *AnalyticsHandler) CreateStrategy(c *gin.Context) {
	var in service.StrategyInput
	if err := bindInput(c, &in); err != nil {
		respondError(c, h.log, err)
		return
	}
	strategy, err := h.analytics.CreateStrategy(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, strategy)
}

// RecordSnapshot captures the portfolio. An empty body values the
// configured holdings.
// POST /portfolio/snapshot
func (h *AnalyticsHandler) RecordSnapshot(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		respondError(c, h.log, service.NewValidationError("body", "could not read request body"))
		return
	}

	var snap *models.PortfolioSnapshot
	if len(data) == 0 {
		snap, err = h.portfolio.RecordConfiguredSnapshot(c.Request.Context())
	} else {
		var in service.SnapshotInput
		if err := service.DecodeInput(data, &in); err != nil {
			respondError(c, h.log, err)
			return
		}
		snap, err = h.portfolio.RecordPortfolioSnapshot(c.Request.Context(), in)
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, snap)
}

// ListSnapshots returns snapshots newest first
// GET /portfolio/snapshots?limit=
func (h *AnalyticsHandler) ListSnapshots(c *gin.Context) {
	verr := &service.ValidationError{}
	limit := queryInt(c, "limit", verr)
	if err := verr.OrNil(); err != nil {
		respondError(c, h.log, err)
		return
	}
	snaps, err := h.portfolio.ListSnapshots(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if snaps == nil {
		snaps = []models.PortfolioSnapshot{}
	}
	response.Success(c, snaps)
}

// RegisterRoutes registers analytics routes
func (h *AnalyticsHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	rg.GET("/analytics", h.GetAnalytics)
	rg.GET("/strategies", h.GetStrategies)
	rg.GET("/portfolio/snapshots", h.ListSnapshots)

	protected := rg.Group("", authMiddleware)
	{
		protected.POST("/strategies", h.CreateStrategy)
		protected.POST("/portfolio/snapshot", h.RecordSnapshot)
	}
}
