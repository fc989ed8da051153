package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/pkg/response"
)

// BuildInfo is reported by /health
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// ControlHandler serves the engine status, command and signal routes
type ControlHandler struct {
	engine *service.TradingEngine
	prices *service.PriceService
	build  BuildInfo
	log    *zap.Logger
}

// NewControlHandler creates a new ControlHandler
func NewControlHandler(engine *service.TradingEngine, prices *service.PriceService, build BuildInfo, log *zap.Logger) *ControlHandler {
	return &ControlHandler{engine: engine, prices: prices, build: build, log: log}
}

// Health reports liveness
// GET /health
func (h *ControlHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{
		"status":           "ok",
		"version":          h.build.Version,
		"commit":           h.build.Commit,
		"build_time":       h.build.BuildTime,
		"time":             time.Now().Unix(),
		"price_provider":   h.prices.ProviderName(),
		"stream_connected": h.prices.StreamConnected(),
		"trading_active":   h.engine.Active(),
	})
}

// Status returns the aggregate engine view
// GET /status
func (h *ControlHandler) Status(c *gin.Context) {
	st, err := h.engine.Status(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, st)
}

// Command runs a control command. Unknown commands are answered with 200
// and a message listing the valid ones.
// POST /command
func (h *ControlHandler) Command(c *gin.Context) {
	var cmd service.Command
	if err := bindInput(c, &cmd); err != nil {
		respondError(c, h.log, err)
		return
	}
	res, err := h.engine.Execute(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, res)
}

// Signals scans the given chains, or the configured ones
// GET /signals?chains=ethereum,solana
func (h *ControlHandler) Signals(c *gin.Context) {
	report := h.engine.ScanSignals(c.Request.Context(), splitList(c.Query("chains")))
	response.Success(c, report)
}

// RegisterRoutes registers control routes
func (h *ControlHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	rg.GET("/health", h.Health)
	rg.GET("/status", h.Status)
	rg.GET("/signals", h.Signals)
	rg.POST("/command", authMiddleware, h.Command)
}
