package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trade-ledger/internal/models"
)

// Sizing limits for recommendations.
var (
	drawdownBudget  = decimal.RequireFromString("0.05")
	maxPositionCap  = decimal.RequireFromString("0.25")
	minPositionSize = decimal.RequireFromString("0.01")
	minStopLoss     = decimal.RequireFromString("0.01")
	maxStopLoss     = decimal.RequireFromString("0.20")
	two             = decimal.NewFromInt(2)
)

// minTradesForConfidence is the sample size below which results are flagged.
const minTradesForConfidence = 10

// Recommendation is advisory output. Nothing in this package or its callers
// applies it to live trading.
type Recommendation struct {
	Strategy        string       `json:"strategy"`
	MaxPositionSize models.Ratio `json:"max_position_size"`
	StopLossPct     models.Ratio `json:"stop_loss_pct"`
	WorstDrawdown   models.Ratio `json:"worst_drawdown"`
	Advisory        bool         `json:"advisory"`
	Notes           []string     `json:"notes"`
}

// Recommend sizes positions so that a repeat of the worst in-sample drawdown
// costs at most five percent of the portfolio, and sets the stop at half
// that drawdown.
func Recommend(r Result) Recommendation {
	dd := r.MaxDrawdown.Decimal
	worstTrade := decimal.Zero
	for _, t := range r.Trades {
		if loss := t.Return.Neg(); loss.GreaterThan(worstTrade) {
			worstTrade = loss
		}
	}

	rec := Recommendation{
		Strategy:      r.Strategy,
		WorstDrawdown: r.MaxDrawdown,
		Advisory:      true,
	}

	size := maxPositionCap
	if dd.IsPositive() {
		size = clamp(drawdownBudget.DivRound(dd, divPrecision), minPositionSize, maxPositionCap)
	} else {
		rec.Notes = append(rec.Notes, "no drawdown observed in sample; position size left at the cap")
	}
	rec.MaxPositionSize = models.NewRatio(size)

	stop := dd.Div(two)
	if worstTrade.IsPositive() && worstTrade.LessThan(stop) {
		stop = worstTrade
	}
	rec.StopLossPct = models.NewRatio(clamp(stop, minStopLoss, maxStopLoss))

	if r.TotalTrades < minTradesForConfidence {
		rec.Notes = append(rec.Notes, fmt.Sprintf("only %d trades in sample; treat figures as indicative", r.TotalTrades))
	}
	if r.TotalTrades > 0 && r.ProfitFactor.LessThan(one) {
		rec.Notes = append(rec.Notes, "profit factor below 1; strategy lost money in sample")
	}
	if r.SharpeRatio.IsNegative() {
		rec.Notes = append(rec.Notes, "negative sharpe ratio")
	}
	return rec
}

func clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}
