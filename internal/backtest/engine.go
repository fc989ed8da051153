// Package backtest replays strategy rules over historical bars. It works on
// in-memory series only and never touches the trade journal.
package backtest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/stats"
)

var (
	ErrInvalidConfig       = errors.New("invalid strategy config")
	ErrInvalidSeries       = errors.New("invalid series")
	ErrUnsupportedCategory = errors.New("category cannot be backtested on price bars")
)

// Defaults applied to zero config fields.
const (
	DefaultLookback       = 20
	DefaultEntryThreshold = 0.02
	DefaultFast           = 10
	DefaultSlow           = 30
	DefaultVolumeFactor   = 1.5
	DefaultPositionSize   = 0.1
	DefaultInitialCapital = 10000
)

const divPrecision = 18

// Exit reasons recorded on trades.
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitSignal     = "signal"
	ExitEndOfData  = "end_of_series"
)

// Entry and exit rules.
const (
	RuleMomentum      = "momentum"
	RuleMeanReversion = "mean_reversion"
	RuleBreakout      = "breakout"
	RuleSMACross      = "sma_cross"
)

var (
	one      = decimal.NewFromInt(1)
	bpsDenom = decimal.NewFromInt(10000)
)

// Bar is one OHLCV candle.
type Bar struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Series is an ordered run of bars for one symbol.
type Series struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Validate checks that bars are time ordered with sane prices.
func (s Series) Validate() error {
	if len(s.Bars) < 2 {
		return fmt.Errorf("%w: need at least 2 bars, got %d", ErrInvalidSeries, len(s.Bars))
	}
	for i, b := range s.Bars {
		if !b.Close.IsPositive() || !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() {
			return fmt.Errorf("%w: bar %d has a non-positive price", ErrInvalidSeries, i)
		}
		if b.Low.GreaterThan(b.High) {
			return fmt.Errorf("%w: bar %d low above high", ErrInvalidSeries, i)
		}
		if b.Volume.IsNegative() {
			return fmt.Errorf("%w: bar %d has negative volume", ErrInvalidSeries, i)
		}
		if i > 0 && !b.Time.After(s.Bars[i-1].Time) {
			return fmt.Errorf("%w: bar %d is not after bar %d", ErrInvalidSeries, i, i-1)
		}
	}
	return nil
}

// StrategyConfig drives one backtest run. Fractions are plain decimals
// (0.02 is two percent).
type StrategyConfig struct {
	Name           string                  `json:"name"`
	Category       models.StrategyCategory `json:"category"`
	Rule           string                  `json:"rule,omitempty"`
	Lookback       int                     `json:"lookback,omitempty"`
	EntryThreshold float64                 `json:"entry_threshold,omitempty"`
	Fast           int                     `json:"fast,omitempty"`
	Slow           int                     `json:"slow,omitempty"`
	VolumeFactor   float64                 `json:"volume_factor,omitempty"`
	StopLoss       float64                 `json:"stop_loss,omitempty"`
	TakeProfit     float64                 `json:"take_profit,omitempty"`
	PositionSize   float64                 `json:"position_size,omitempty"`
	FeeBps         float64                 `json:"fee_bps,omitempty"`
	InitialCapital float64                 `json:"initial_capital,omitempty"`
}

func (c StrategyConfig) withDefaults() StrategyConfig {
	if c.Category == "" {
		c.Category = models.StrategyCategory(strings.ToLower(c.Name))
	}
	if c.Rule == "" {
		switch c.Category {
		case models.CategoryMomentum:
			c.Rule = RuleMomentum
		case models.CategoryMeanReversion:
			c.Rule = RuleMeanReversion
		case models.CategoryTechnical:
			c.Rule = RuleSMACross
		}
	}
	if c.Lookback == 0 {
		c.Lookback = DefaultLookback
	}
	if c.EntryThreshold == 0 {
		c.EntryThreshold = DefaultEntryThreshold
	}
	if c.Fast == 0 {
		c.Fast = DefaultFast
	}
	if c.Slow == 0 {
		c.Slow = DefaultSlow
	}
	if c.VolumeFactor == 0 {
		c.VolumeFactor = DefaultVolumeFactor
	}
	if c.PositionSize == 0 {
		c.PositionSize = DefaultPositionSize
	}
	if c.InitialCapital == 0 {
		c.InitialCapital = DefaultInitialCapital
	}
	return c
}

// Validate reports every invalid field of a defaulted config.
func (c StrategyConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "name is required")
	}
	switch c.Rule {
	case RuleMomentum, RuleMeanReversion, RuleBreakout, RuleSMACross:
	case "":
		switch c.Category {
		case models.CategoryArbitrage, models.CategorySentiment, models.CategoryFundamental:
			return fmt.Errorf("%w: %s", ErrUnsupportedCategory, c.Category)
		}
		problems = append(problems, fmt.Sprintf("no rule for category %q", c.Category))
	default:
		problems = append(problems, fmt.Sprintf("unknown rule %q", c.Rule))
	}
	if c.Lookback < 1 {
		problems = append(problems, "lookback must be >= 1")
	}
	if c.EntryThreshold < 0 {
		problems = append(problems, "entry_threshold must not be negative")
	}
	if c.Fast < 1 || c.Slow <= c.Fast {
		problems = append(problems, "fast must be >= 1 and below slow")
	}
	if c.StopLoss < 0 || c.StopLoss >= 1 {
		problems = append(problems, "stop_loss must be in [0, 1)")
	}
	if c.TakeProfit < 0 {
		problems = append(problems, "take_profit must not be negative")
	}
	if c.PositionSize <= 0 || c.PositionSize > 1 {
		problems = append(problems, "position_size must be in (0, 1]")
	}
	if c.FeeBps < 0 {
		problems = append(problems, "fee_bps must not be negative")
	}
	if c.InitialCapital <= 0 {
		problems = append(problems, "initial_capital must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Trade is one simulated round trip.
type Trade struct {
	EntryTime  time.Time    `json:"entry_time"`
	ExitTime   time.Time    `json:"exit_time"`
	EntryPrice models.Money `json:"entry_price"`
	ExitPrice  models.Money `json:"exit_price"`
	Quantity   models.Money `json:"quantity"`
	Fees       models.Money `json:"fees"`
	PnL        models.Money `json:"pnl"`
	Return     models.Ratio `json:"return"`
	Reason     string       `json:"reason"`
}

// Result summarises a run.
type Result struct {
	Rank         int                     `json:"rank,omitempty"`
	Strategy     string                  `json:"strategy"`
	Category     models.StrategyCategory `json:"category"`
	Rule         string                  `json:"rule"`
	Symbol       string                  `json:"symbol"`
	Bars         int                     `json:"bars"`
	TotalTrades  int                     `json:"total_trades"`
	WinRate      models.Ratio            `json:"win_rate"`
	TotalReturn  models.Ratio            `json:"total_return"`
	ProfitFactor models.Ratio            `json:"profit_factor"`
	MaxDrawdown  models.Ratio            `json:"max_drawdown"`
	SharpeRatio  models.Ratio            `json:"sharpe_ratio"`
	FinalEquity  models.Money            `json:"final_equity"`
	Trades       []Trade                 `json:"trades"`
}

type position struct {
	open      bool
	entry     decimal.Decimal
	qty       decimal.Decimal
	entryFee  decimal.Decimal
	entryTime time.Time
	stop      decimal.Decimal // zero means none
	take      decimal.Decimal
}

// RunBacktest replays cfg over series. It is deterministic: the same inputs
// always give the same result.
//
// The model is long only with one position at a time. Entries fill at the
// bar close. Stops and targets are checked against the following bars'
// low and high, stop first when both are touched in one bar.
func RunBacktest(cfg StrategyConfig, series Series) (Result, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if err := series.Validate(); err != nil {
		return Result{}, err
	}

	rule := ruleFor(cfg)
	feeRate := decimal.NewFromFloat(cfg.FeeBps).Div(bpsDenom)
	sizeFrac := decimal.NewFromFloat(cfg.PositionSize)
	stopFrac := decimal.NewFromFloat(cfg.StopLoss)
	takeFrac := decimal.NewFromFloat(cfg.TakeProfit)
	initial := decimal.NewFromFloat(cfg.InitialCapital)

	cash := initial
	var pos position
	var trades []Trade
	equity := make([]float64, 0, len(series.Bars))

	closeAt := func(bar Bar, price decimal.Decimal, reason string) {
		fee := price.Mul(pos.qty).Mul(feeRate)
		proceeds := price.Mul(pos.qty).Sub(fee)
		cost := pos.entry.Mul(pos.qty)
		pnl := proceeds.Sub(cost).Sub(pos.entryFee)
		cash = cash.Add(proceeds)

		ret := decimal.Zero
		if basis := cost.Add(pos.entryFee); basis.IsPositive() {
			ret = pnl.DivRound(basis, divPrecision)
		}
		trades = append(trades, Trade{
			EntryTime:  pos.entryTime,
			ExitTime:   bar.Time,
			EntryPrice: models.NewMoney(pos.entry),
			ExitPrice:  models.NewMoney(price),
			Quantity:   models.NewMoney(pos.qty),
			Fees:       models.NewMoney(pos.entryFee.Add(fee)),
			PnL:        models.NewMoney(pnl),
			Return:     models.NewRatio(ret),
			Reason:     reason,
		})
		pos = position{}
	}

	for i, bar := range series.Bars {
		if pos.open {
			if price, reason, hit := checkExit(pos, bar); hit {
				closeAt(bar, price, reason)
			} else if rule.exit(series.Bars, i) {
				closeAt(bar, bar.Close, ExitSignal)
			}
		}

		if !pos.open && i < len(series.Bars)-1 && rule.enter(series.Bars, i) {
			notional := cash.Mul(sizeFrac)
			fee := notional.Mul(feeRate)
			qty := notional.Sub(fee).DivRound(bar.Close, divPrecision)
			if qty.IsPositive() {
				cash = cash.Sub(notional)
				pos = position{
					open:      true,
					entry:     bar.Close,
					qty:       qty,
					entryFee:  fee,
					entryTime: bar.Time,
				}
				if stopFrac.IsPositive() {
					pos.stop = bar.Close.Mul(one.Sub(stopFrac))
				}
				if takeFrac.IsPositive() {
					pos.take = bar.Close.Mul(one.Add(takeFrac))
				}
			}
		}

		mark := cash
		if pos.open {
			mark = mark.Add(pos.qty.Mul(bar.Close))
		}
		f, _ := mark.Float64()
		equity = append(equity, f)
	}

	last := series.Bars[len(series.Bars)-1]
	if pos.open {
		closeAt(last, last.Close, ExitEndOfData)
		f, _ := cash.Float64()
		equity[len(equity)-1] = f
	}

	return summarise(cfg, series, trades, cash, initial, equity), nil
}

// checkExit tests the stop and target against the bar range.
func checkExit(p position, bar Bar) (decimal.Decimal, string, bool) {
	stopHit := !p.stop.IsZero() && bar.Low.LessThanOrEqual(p.stop)
	takeHit := !p.take.IsZero() && bar.High.GreaterThanOrEqual(p.take)
	switch {
	case stopHit:
		// gap below the stop fills at the open
		if bar.Open.LessThan(p.stop) {
			return bar.Open, ExitStopLoss, true
		}
		return p.stop, ExitStopLoss, true
	case takeHit:
		if bar.Open.GreaterThan(p.take) {
			return bar.Open, ExitTakeProfit, true
		}
		return p.take, ExitTakeProfit, true
	}
	return decimal.Zero, "", false
}

func summarise(cfg StrategyConfig, series Series, trades []Trade, cash, initial decimal.Decimal, equity []float64) Result {
	res := Result{
		Strategy:    cfg.Name,
		Category:    cfg.Category,
		Rule:        cfg.Rule,
		Symbol:      series.Symbol,
		Bars:        len(series.Bars),
		TotalTrades: len(trades),
		FinalEquity: models.NewMoney(cash),
		MaxDrawdown: models.RatioFromFloat(stats.MaxDrawdownFraction(equity)),
		Trades:      trades,
	}
	if res.Trades == nil {
		res.Trades = []Trade{}
	}
	res.TotalReturn = models.NewRatio(cash.Sub(initial).DivRound(initial, divPrecision))

	if len(trades) == 0 {
		return res
	}
	wins := 0
	grossProfit, grossLoss := decimal.Zero, decimal.Zero
	returns := make([]decimal.Decimal, len(trades))
	for i, t := range trades {
		returns[i] = t.Return.Decimal
		switch {
		case t.PnL.IsPositive():
			wins++
			grossProfit = grossProfit.Add(t.PnL.Decimal)
		case t.PnL.IsNegative():
			grossLoss = grossLoss.Add(t.PnL.Neg())
		}
	}
	res.WinRate = models.NewRatio(decimal.NewFromInt(int64(wins)).DivRound(decimal.NewFromInt(int64(len(trades))), divPrecision))
	res.ProfitFactor = models.NewRatio(stats.ProfitFactor(grossProfit, grossLoss))
	res.SharpeRatio = models.RatioFromFloat(stats.Sharpe(returns))
	return res
}
