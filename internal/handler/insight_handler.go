package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/pkg/response"
)

// InsightHandler serves insight routes
type InsightHandler struct {
	insights *service.InsightService
	log      *zap.Logger
}

// NewInsightHandler creates a new InsightHandler
func NewInsightHandler(insights *service.InsightService, log *zap.Logger) *InsightHandler {
	return &InsightHandler{insights: insights, log: log}
}

// CreateInsight records an unvalidated insight
// POST /insight
func (h *InsightHandler) CreateInsight(c *gin.Context) {
	var in service.InsightInput
	if err := bindInput(c, &in); err != nil {
		respondError(c, h.log, err)
		return
	}
	insight, err := h.insights.GenerateInsight(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, insight)
}

// ValidateInsight grades an insight against its outcome, once
// PUT /insight/:insight_id/validate
func (h *InsightHandler) ValidateInsight(c *gin.Context) {
	var in service.ActualOutcome
	if err := bindInput(c, &in); err != nil {
		respondError(c, h.log, err)
		return
	}
	insight, err := h.insights.ValidateInsight(c.Request.Context(), c.Param("insight_id"), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, insight)
}

// GetInsights lists recent insights
// GET /insights?limit=N
func (h *InsightHandler) GetInsights(c *gin.Context) {
	verr := &service.ValidationError{}
	limit := queryInt(c, "limit", verr)
	if err := verr.OrNil(); err != nil {
		respondError(c, h.log, err)
		return
	}
	insights, err := h.insights.GetRecentInsights(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if insights == nil {
		insights = []models.TradingInsight{}
	}
	response.Success(c, insights)
}

// RegisterRoutes registers insight routes
func (h *InsightHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	rg.GET("/insights", h.GetInsights)

	protected := rg.Group("", authMiddleware)
	{
		protected.POST("/insight", h.CreateInsight)
		protected.PUT("/insight/:insight_id/validate", h.ValidateInsight)
	}
}
