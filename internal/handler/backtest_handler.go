package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/pkg/response"
)

// BacktestHandler serves backtest runs
type BacktestHandler struct {
	backtests *service.BacktestService
	log       *zap.Logger
}

// NewBacktestHandler creates a new BacktestHandler
func NewBacktestHandler(backtests *service.BacktestService, log *zap.Logger) *BacktestHandler {
	return &BacktestHandler{backtests: backtests, log: log}
}

// Run ranks strategies over an inline series
// POST /backtest
func (h *BacktestHandler) Run(c *gin.Context) {
	var req service.BacktestRequest
	if err := bindInput(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	report, err := h.backtests.Run(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, report)
}

// RegisterRoutes registers backtest routes
func (h *BacktestHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/backtest", h.Run)
}
