package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trade-ledger/internal/models"
)

// Control commands accepted by Execute.
const (
	CommandStatus        = "status"
	CommandStartTrading  = "start_trading"
	CommandStopTrading   = "stop_trading"
	CommandEmergencyStop = "emergency_stop"
	CommandAnalyzeMarket = "analyze_market"
)

var knownCommands = []string{CommandStatus, CommandStartTrading, CommandStopTrading, CommandEmergencyStop, CommandAnalyzeMarket}

// Command is a control-channel request.
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params"`
}

// CommandResult is the reply to a command. Unknown commands are answered
// with Recognized=false and a message listing the valid ones.
type CommandResult struct {
	Command    string      `json:"command"`
	Recognized bool        `json:"recognized"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
}

// EngineStatus is the aggregate view served by /status.
type EngineStatus struct {
	PortfolioValue      models.Money      `json:"portfolio_value"`
	PortfolioSource     models.DataSource `json:"portfolio_data_source"`
	PortfolioDegraded   bool              `json:"portfolio_degraded"`
	TradingActive       bool              `json:"trading_active"`
	EmergencyStop       bool              `json:"emergency_stop"`
	ActiveOpportunities int               `json:"active_opportunities"`
	WinRate             models.Ratio      `json:"win_rate"`
	TotalTrades         int               `json:"total_trades"`
	OpenTrades          int64             `json:"open_trades"`
	JournalHalted       bool              `json:"journal_halted"`
	PriceProvider       string            `json:"price_provider"`
	StreamConnected     bool              `json:"stream_connected"`
	LastUpdate          time.Time         `json:"last_update"`
}

// TradingEngine owns the mutable trading state. One instance is built at
// start-up and shared by the handlers and workers.
type TradingEngine struct {
	journal   *JournalService
	analytics *AnalyticsService
	portfolio *PortfolioService
	signals   *SignalService
	insights  *InsightService
	prices    *PriceService
	log       *zap.Logger
	now       func() time.Time

	mu            sync.RWMutex
	active        bool
	emergency     bool
	opportunities int
	lastUpdate    time.Time
}

// NewTradingEngine creates a stopped engine.
func NewTradingEngine(
	journal *JournalService,
	analytics *AnalyticsService,
	portfolio *PortfolioService,
	signals *SignalService,
	insights *InsightService,
	prices *PriceService,
	log *zap.Logger,
) *TradingEngine {
	e := &TradingEngine{
		journal:   journal,
		analytics: analytics,
		portfolio: portfolio,
		signals:   signals,
		insights:  insights,
		prices:    prices,
		log:       log.Named("engine"),
		now:       time.Now,
	}
	e.lastUpdate = e.now().UTC()
	return e
}

// WithClock replaces the wall clock.
func (e *TradingEngine) WithClock(now func() time.Time) *TradingEngine {
	e.now = now
	e.lastUpdate = now().UTC()
	return e
}

// Active reports whether automated trading is on.
func (e *TradingEngine) Active() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active && !e.emergency
}

func (e *TradingEngine) touch() {
	e.lastUpdate = e.now().UTC()
}

// Start turns trading on. After an emergency stop confirm must be true.
func (e *TradingEngine) Start(confirm bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.emergency && !confirm {
		return errors.New("emergency stop is engaged; resend with params.confirm=true to resume")
	}
	e.active = true
	e.emergency = false
	e.touch()
	e.log.Info("trading started")
	return nil
}

// Stop turns trading off.
func (e *TradingEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = false
	e.touch()
	e.log.Info("trading stopped")
}

// EmergencyStop turns trading off and latches until confirmed.
func (e *TradingEngine) EmergencyStop(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = false
	e.emergency = true
	e.touch()
	e.log.Warn("emergency stop", zap.String("reason", reason))
}

// ScanSignals runs a generation and records the opportunity count.
func (e *TradingEngine) ScanSignals(ctx context.Context, chains []string) SignalReport {
	report := e.signals.Generate(ctx, chains, e.now())

	e.mu.Lock()
	e.opportunities = report.Actionable
	e.touch()
	e.mu.Unlock()

	e.log.Info("signal scan finished",
		zap.Int("signals", len(report.Signals)),
		zap.Int("actionable", report.Actionable),
		zap.Int("failed_chains", len(report.Errors)))
	return report
}

// Status assembles the aggregate view.
func (e *TradingEngine) Status(ctx context.Context) (*EngineStatus, error) {
	perf, err := e.analytics.GetPerformanceAnalytics(ctx, MaxWindowDays)
	if err != nil {
		return nil, err
	}

	st := &EngineStatus{
		PortfolioSource: models.SourceStaticFallback,
		WinRate:         perf.WinRate,
		TotalTrades:     perf.TotalTrades,
		OpenTrades:      perf.OpenTrades,
		JournalHalted:   e.journal.Halted(),
		PriceProvider:   e.prices.ProviderName(),
		StreamConnected: e.prices.StreamConnected(),
	}
	snap, err := e.portfolio.Latest(ctx)
	switch {
	case err == nil:
		st.PortfolioValue = snap.TotalValueUSD
		st.PortfolioSource = models.SourcePersisted
		st.PortfolioDegraded = snap.Degraded
	case errors.Is(err, ErrNotFound):
		st.PortfolioDegraded = true
	default:
		return nil, err
	}

	e.mu.RLock()
	st.TradingActive = e.active && !e.emergency
	st.EmergencyStop = e.emergency
	st.ActiveOpportunities = e.opportunities
	st.LastUpdate = e.lastUpdate
	e.mu.RUnlock()
	return st, nil
}

// Execute runs a control command. Failures inside a recognised command are
// returned as errors; unknown commands are not errors.
func (e *TradingEngine) Execute(ctx context.Context, cmd Command) (*CommandResult, error) {
	name := strings.ToLower(strings.TrimSpace(cmd.Command))
	res := &CommandResult{Command: name, Recognized: true}

	switch name {
	case CommandStatus:
		st, err := e.Status(ctx)
		if err != nil {
			return nil, err
		}
		res.Message = "status"
		res.Data = st

	case CommandStartTrading:
		confirm, _ := cmd.Params["confirm"].(bool)
		if err := e.Start(confirm); err != nil {
			res.Message = err.Error()
			return res, nil
		}
		res.Message = "trading started"

	case CommandStopTrading:
		e.Stop()
		res.Message = "trading stopped"

	case CommandEmergencyStop:
		reason, _ := cmd.Params["reason"].(string)
		if reason == "" {
			reason = "operator command"
		}
		e.EmergencyStop(reason)
		res.Message = "emergency stop engaged; trading halted"

	case CommandAnalyzeMarket:
		report := e.ScanSignals(ctx, chainsParam(cmd.Params))
		insights, err := e.insights.AnalyzePerformance(ctx)
		if err != nil {
			e.log.Warn("performance analysis failed", zap.Error(err))
		}
		res.Message = fmt.Sprintf("%d signals, %d actionable, %d insights", len(report.Signals), report.Actionable, len(insights))
		res.Data = map[string]interface{}{
			"signals":  report,
			"insights": insights,
		}

	default:
		res.Recognized = false
		res.Message = fmt.Sprintf("unknown command %q; available commands: %s", cmd.Command, strings.Join(knownCommands, ", "))
	}
	return res, nil
}

// chainsParam reads params.chains as a list or a comma separated string.
func chainsParam(params map[string]interface{}) []string {
	switch v := params["chains"].(type) {
	case string:
		return splitList(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, c := range v {
			if s, ok := c.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// splitList splits a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
