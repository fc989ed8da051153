package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/middleware"
	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/pkg/response"
)

// Services are the collaborators the HTTP surface is built on
type Services struct {
	Journal   *service.JournalService
	Analytics *service.AnalyticsService
	Portfolio *service.PortfolioService
	Insights  *service.InsightService
	Prices    *service.PriceService
	Engine    *service.TradingEngine
	Backtests *service.BacktestService
	Auth      *service.AuthService
}

// NewRouter wires every route. Mutating routes pass through the auth
// middleware, which is a no-op while operator auth is disabled.
func NewRouter(svc Services, build BuildInfo, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS())

	authMiddleware := middleware.AuthMiddleware(svc.Auth)
	root := router.Group("")

	NewAuthHandler(svc.Auth, log).RegisterRoutes(root)
	NewControlHandler(svc.Engine, svc.Prices, build, log).RegisterRoutes(root, authMiddleware)
	NewJournalHandler(svc.Journal, log).RegisterRoutes(root, authMiddleware)
	NewAnalyticsHandler(svc.Analytics, svc.Portfolio, log).RegisterRoutes(root, authMiddleware)
	NewInsightHandler(svc.Insights, log).RegisterRoutes(root, authMiddleware)
	NewBacktestHandler(svc.Backtests, log).RegisterRoutes(root)

	router.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})
	return router
}
