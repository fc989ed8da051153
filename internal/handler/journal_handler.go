package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/pkg/response"
)

// JournalHandler serves the trade lifecycle routes
type JournalHandler struct {
	journal *service.JournalService
	log     *zap.Logger
}

// NewJournalHandler creates a new JournalHandler
func NewJournalHandler(journal *service.JournalService, log *zap.Logger) *JournalHandler {
	return &JournalHandler{journal: journal, log: log}
}

// RecordTrade opens a trade
// POST /trade
func (h *JournalHandler) RecordTrade(c *gin.Context) {
	var in service.RecordTradeInput
	if err := bindInput(c, &in); err != nil {
		respondError(c, h.log, err)
		return
	}
	trade, err := h.journal.RecordTrade(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, trade)
}

// UpdateTradeExit closes a trade
// PUT /trade/:trade_id/exit
func (h *JournalHandler) UpdateTradeExit(c *gin.Context) {
	var in service.ExitInput
	if err := bindInput(c, &in); err != nil {
		respondError(c, h.log, err)
		return
	}
	trade, err := h.journal.UpdateTradeExit(c.Request.Context(), c.Param("trade_id"), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, trade)
}

// GetTrade returns one trade
// GET /trade/:trade_id
func (h *JournalHandler) GetTrade(c *gin.Context) {
	trade, err := h.journal.GetTrade(c.Request.Context(), c.Param("trade_id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, trade)
}

// GetTradeHistory lists trades, most recent first
// GET /trades?strategy=&token=&status=&days=&limit=
func (h *JournalHandler) GetTradeHistory(c *gin.Context) {
	verr := &service.ValidationError{}
	q := service.HistoryQuery{
		Strategy: c.Query("strategy"),
		Token:    c.Query("token"),
		Status:   c.Query("status"),
		Days:     queryInt(c, "days", verr),
		Limit:    queryInt(c, "limit", verr),
	}
	if err := verr.OrNil(); err != nil {
		respondError(c, h.log, err)
		return
	}
	trades, err := h.journal.GetTradeHistory(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if trades == nil {
		trades = []models.TradeRecord{}
	}
	response.Success(c, trades)
}

// RegisterRoutes registers journal routes
func (h *JournalHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	rg.GET("/trades", h.GetTradeHistory)
	rg.GET("/trade/:trade_id", h.GetTrade)

	protected := rg.Group("", authMiddleware)
	{
		protected.POST("/trade", h.RecordTrade)
		protected.PUT("/trade/:trade_id/exit", h.UpdateTradeExit)
	}
}
