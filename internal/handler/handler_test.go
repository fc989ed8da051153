package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/config"
	"github.com/trade-ledger/internal/exchange/fixture"
	"github.com/trade-ledger/internal/handler"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
	"github.com/trade-ledger/internal/repository/repotest"
	"github.com/trade-ledger/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool                 `json:"success"`
	Data    json.RawMessage      `json:"data"`
	Error   string               `json:"error"`
	Fields  []service.FieldError `json:"fields"`
}

type testServer struct {
	router *gin.Engine
	engine *service.TradingEngine
	token  string
}

func newTestServer(t *testing.T, auth config.AuthConfig) *testServer {
	t.Helper()
	db := repotest.NewDB(t)
	log := zap.NewNop()

	feed := fixture.New(map[string]string{"SOL": "160", "ETH": "3000"})
	feed.SetPrice("ETH", models.MustMoney("3000").Decimal, models.MustRatio("0.05").Decimal)
	prices := service.NewPriceService(feed, log, service.WithStaticPrices(map[string]string{"USDT": "1"}))

	trades := repository.NewTradeRepository(db)
	strategies := repository.NewStrategyRepository(db)
	journal := service.NewJournalService(trades, strategies, log)
	analytics := service.NewAnalyticsService(trades, strategies, log)
	portfolio := service.NewPortfolioService(repository.NewSnapshotRepository(db), trades, prices, feed, service.SnapshotInput{
		Holdings: []service.HoldingInput{{Symbol: "SOL", Quantity: models.MoneyPtr(models.MustMoney("2"))}},
	}, log)
	insights := service.NewInsightService(repository.NewInsightRepository(db), analytics, log)

	sigCfg := config.Default().Signals
	sigCfg.Chains = []string{"ethereum", "solana"}
	sigCfg.Watchlist = map[string][]string{"ethereum": {"ETH"}, "solana": {"SOL"}}
	signals := service.NewSignalService(prices, repository.NewSignalRepository(db), sigCfg,
		func(time.Time) float64 { return 0 }, log)

	engine := service.NewTradingEngine(journal, analytics, portfolio, signals, insights, prices, log)
	authSvc := service.NewAuthService(auth)

	router := handler.NewRouter(handler.Services{
		Journal:   journal,
		Analytics: analytics,
		Portfolio: portfolio,
		Insights:  insights,
		Prices:    prices,
		Engine:    engine,
		Backtests: service.NewBacktestService(strategies, log),
		Auth:      authSvc,
	}, handler.BuildInfo{Version: "test"}, log)
	return &testServer{router: router, engine: engine}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode(t *testing.T, raw json.RawMessage) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func decodeList(t *testing.T, raw json.RawMessage) []map[string]interface{} {
	t.Helper()
	var l []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &l))
	return l
}

const solBuyBody = `{
	"action": "buy",
	"token_symbol": "SOL",
	"quantity": 1.5,
	"price_entry": 160.00,
	"cost_basis": 240.00,
	"fees": 0.50,
	"confidence": 0.80,
	"risk_score": 0.30,
	"strategy": "momentum",
	"execution_method": "automated",
	"position_size": 0.05
}`

const solExitBody = `{"price_exit":170.00,"realized_pnl":14.50,"win_loss":"win","holding_period_seconds":3600}`

func TestTradeLifecycle(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	code, env := s.do(t, http.MethodPost, "/trade", solBuyBody)
	require.Equal(t, http.StatusOK, code, env.Error)
	require.True(t, env.Success)
	trade := decode(t, env.Data)
	id := trade["trade_id"].(string)
	assert.Equal(t, "open", trade["win_loss"])
	assert.Nil(t, trade["price_exit"])
	assert.Equal(t, "1.500000000", trade["quantity"])
	assert.Equal(t, "160.000000000", trade["price_entry"])
	assert.Equal(t, "0.8000", trade["ai_confidence"])
	assert.Equal(t, "api", trade["signal_source"])

	code, env = s.do(t, http.MethodPut, "/trade/"+id+"/exit", solExitBody)
	require.Equal(t, http.StatusOK, code, env.Error)
	closed := decode(t, env.Data)
	assert.Equal(t, "win", closed["win_loss"])
	assert.Equal(t, "170.000000000", closed["price_exit"])
	assert.Equal(t, "14.500000000", closed["realized_pnl"])

	code, env = s.do(t, http.MethodPut, "/trade/"+id+"/exit", `{"price_exit":"1","realized_pnl":"-159","win_loss":"loss","holding_period_seconds":1}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "conflict")

	code, env = s.do(t, http.MethodGet, "/trade/"+id, "")
	require.Equal(t, http.StatusOK, code)
	stored := decode(t, env.Data)
	assert.Equal(t, "win", stored["win_loss"])
	assert.Equal(t, "170.000000000", stored["price_exit"])

	code, env = s.do(t, http.MethodGet, "/trades?status=open", "")
	require.Equal(t, http.StatusOK, code)
	for _, tr := range decodeList(t, env.Data) {
		assert.NotEqual(t, id, tr["trade_id"])
	}

	code, env = s.do(t, http.MethodGet, "/trades?status=closed&strategy=momentum", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeList(t, env.Data), 1)
}

func TestUnknownTokenIsEmptyArray(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})
	code, env := s.do(t, http.MethodGet, "/trades?token=DOES_NOT_EXIST", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestTradeErrors(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	code, env := s.do(t, http.MethodPut, "/trade/nope/exit", solExitBody)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)

	code, env = s.do(t, http.MethodGet, "/trade/nope", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(t, http.MethodPost, "/trade", `{"action":"buy","token_symbol":"SOL","quantity":true,"fees":[1]}`)
	require.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	names := map[string]bool{}
	for _, f := range env.Fields {
		names[f.Field] = true
	}
	assert.True(t, names["quantity"])
	assert.True(t, names["fees"])

	code, env = s.do(t, http.MethodPost, "/trade", "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Len(t, env.Fields, 1)
	assert.Equal(t, "body", env.Fields[0].Field)

	code, _ = s.do(t, http.MethodGet, "/trades?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodGet, "/trades?status=pending", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAnalyticsAndStrategies(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	code, env := s.do(t, http.MethodPost, "/trade", solBuyBody)
	require.Equal(t, http.StatusOK, code)
	id := decode(t, env.Data)["trade_id"].(string)
	code, _ = s.do(t, http.MethodPut, "/trade/"+id+"/exit", solExitBody)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodGet, "/analytics", "")
	require.Equal(t, http.StatusOK, code)
	perf := decode(t, env.Data)
	assert.EqualValues(t, 30, perf["window_days"])
	assert.EqualValues(t, 1, perf["total_trades"])
	assert.Equal(t, "14.500000000", perf["total_pnl"])
	assert.Equal(t, "persisted_record", perf["data_source"])

	// recomputed output is identical
	_, again := s.do(t, http.MethodGet, "/analytics", "")
	a, b := decode(t, again.Data), perf
	delete(a, "to")
	delete(a, "from")
	delete(b, "to")
	delete(b, "from")
	assert.Equal(t, b, a)

	for _, q := range []string{"days=abc", "days=0", "days=99999"} {
		code, env = s.do(t, http.MethodGet, "/analytics?"+q, "")
		assert.Equal(t, http.StatusBadRequest, code, q)
		assert.False(t, env.Success)
	}

	code, env = s.do(t, http.MethodGet, "/strategies", "")
	require.Equal(t, http.StatusOK, code)
	list := decodeList(t, env.Data)
	require.Len(t, list, 6)
	for _, st := range list {
		if st["name"] == "momentum" {
			assert.EqualValues(t, 1, st["total_trades"])
			assert.Equal(t, "1.0000", st["win_rate"])
		}
	}

	code, _ = s.do(t, http.MethodPost, "/strategies", `{"name":"grid","category":"technical","risk_level":"low","timeframe":"1h"}`)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/strategies", `{"name":"grid","category":"technical","risk_level":"low","timeframe":"1h"}`)
	assert.Equal(t, http.StatusConflict, code)
}

func TestInsightLifecycle(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	code, env := s.do(t, http.MethodPost, "/insight", `{"category":"opportunity","description":"missing fields"}`)
	require.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, env.Fields)

	code, env = s.do(t, http.MethodPost, "/insight", `{
		"category":"opportunity","description":"SOL momentum building","symbol":"SOL",
		"confidence":"0.80","impact_score":"0.60","action_recommendation":"buy SOL on pullbacks",
		"time_horizon":"short"}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	insight := decode(t, env.Data)
	assert.Equal(t, false, insight["validated"])
	assert.Equal(t, "up", insight["expected_direction"])
	id := insight["insight_id"].(string)

	code, env = s.do(t, http.MethodPut, "/insight/"+id+"/validate", `{"direction":"up","return":"0.05"}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	graded := decode(t, env.Data)
	assert.Equal(t, true, graded["validated"])
	assert.Equal(t, "0.9600", graded["accuracy_score"])

	code, _ = s.do(t, http.MethodPut, "/insight/"+id+"/validate", `{"direction":"down"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(t, http.MethodPut, "/insight/missing/validate", `{"direction":"down"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(t, http.MethodGet, "/insights?limit=5", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeList(t, env.Data), 1)
}

func TestCommandsAndStatus(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	code, env := s.do(t, http.MethodPost, "/command", `{"command":"launch_rockets"}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	res := decode(t, env.Data)
	assert.Equal(t, false, res["recognized"])
	assert.Contains(t, res["message"], "start_trading")

	code, env = s.do(t, http.MethodPost, "/command", `{"command":"start_trading"}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, s.engine.Active())

	code, env = s.do(t, http.MethodPost, "/command", `{"command":"analyze_market","params":{"chains":"ethereum"}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, decode(t, env.Data)["message"], "1 actionable")

	code, env = s.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, code)
	st := decode(t, env.Data)
	assert.Equal(t, true, st["trading_active"])
	assert.EqualValues(t, 1, st["active_opportunities"])
	assert.EqualValues(t, 0, st["total_trades"])
	assert.Equal(t, "0.000000000", st["portfolio_value"])
	assert.Equal(t, "static_fallback", st["portfolio_data_source"])
	assert.NotEmpty(t, st["last_update"])

	code, _ = s.do(t, http.MethodPost, "/command", `{"command":"emergency_stop"}`)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, s.engine.Active())

	code, env = s.do(t, http.MethodPost, "/command", `{"command":["status"]}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSignalsEndpoint(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})
	code, env := s.do(t, http.MethodGet, "/signals?chains=ethereum,atlantis", "")
	require.Equal(t, http.StatusOK, code)
	report := decode(t, env.Data)
	sigs := report["signals"].([]interface{})
	require.Len(t, sigs, 1)
	eth := sigs[0].(map[string]interface{})
	assert.Equal(t, "BUY", eth["signal_type"])
	assert.Equal(t, "live_computed", eth["data_source"])
	assert.Contains(t, report["errors"], "atlantis")
}

func TestPortfolioSnapshots(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	code, env := s.do(t, http.MethodPost, "/portfolio/snapshot", "")
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "320.000000000", decode(t, env.Data)["total_value_usd"])

	code, env = s.do(t, http.MethodPost, "/portfolio/snapshot",
		`{"holdings":[{"symbol":"ETH","quantity":"0.5"},{"symbol":"SOL","quantity":"1","price":"150"}],"cash":"25"}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	snap := decode(t, env.Data)
	assert.Equal(t, "1675.000000000", snap["total_value_usd"])
	assert.Equal(t, false, snap["degraded"])

	code, env = s.do(t, http.MethodPost, "/portfolio/snapshot", `{"holdings":[{"symbol":"ETH"}]}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(t, http.MethodGet, "/portfolio/snapshots", "")
	require.Equal(t, http.StatusOK, code)
	list := decodeList(t, env.Data)
	require.Len(t, list, 2)
	assert.Equal(t, "1675.000000000", list[0]["total_value_usd"])
}

func TestBacktestEndpoint(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	var bars []string
	closes := []float64{90, 90, 90, 100, 105, 103, 99, 101, 108, 110}
	for i, c := range closes {
		ts := time.Date(2026, 1, 5, i, 0, 0, 0, time.UTC).Format(time.RFC3339)
		bars = append(bars, fmt.Sprintf(`{"time":%q,"open":%v,"high":%v,"low":%v,"close":%v,"volume":0}`, ts, c, c+1, c-1, c))
	}
	body := `{"series":{"symbol":"SOL","bars":[` + strings.Join(bars, ",") + `]},
		"strategies":[{"name":"fast","category":"momentum","lookback":3},{"name":"slow","category":"momentum","lookback":5}]}`

	code, env := s.do(t, http.MethodPost, "/backtest", body)
	require.Equal(t, http.StatusOK, code, env.Error)
	report := decode(t, env.Data)
	assert.Equal(t, "total_return", report["metric"])
	ranking := report["ranking"].([]interface{})
	require.Len(t, ranking, 2)
	assert.EqualValues(t, 1, ranking[0].(map[string]interface{})["rank"])
	assert.Len(t, report["recommendations"], 2)

	code, env = s.do(t, http.MethodPost, "/backtest", `{"series":{"symbol":"SOL","bars":[]}}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuthProtectsMutations(t *testing.T) {
	hash, err := service.HashPassword("s3cret")
	require.NoError(t, err)
	s := newTestServer(t, config.AuthConfig{
		Enabled: true, Secret: "test", ExpireHours: 1,
		OperatorUser: "operator", OperatorPasswordHash: hash,
	})

	code, env := s.do(t, http.MethodPost, "/trade", solBuyBody)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)

	code, _ = s.do(t, http.MethodPost, "/command", `{"command":"stop_trading"}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodGet, "/trades", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodPost, "/auth/token", `{"username":"operator","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = s.do(t, http.MethodPost, "/auth/token", `{"username":"operator","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, code)
	s.token = decode(t, env.Data)["access_token"].(string)

	code, env = s.do(t, http.MethodPost, "/trade", solBuyBody)
	assert.Equal(t, http.StatusOK, code, env.Error)

	s.token = "garbage"
	code, _ = s.do(t, http.MethodPost, "/trade", solBuyBody)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestHealthAndUnknownRoute(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	code, env := s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	h := decode(t, env.Data)
	assert.Equal(t, "ok", h["status"])
	assert.Equal(t, "test", h["version"])
	assert.Equal(t, "fixture", h["price_provider"])

	code, env = s.do(t, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}
