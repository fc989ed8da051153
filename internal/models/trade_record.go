package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction is the instruction recorded for a trade
type TradeAction string

const (
	ActionBuy       TradeAction = "buy"
	ActionSell      TradeAction = "sell"
	ActionHold      TradeAction = "hold"
	ActionLiquidate TradeAction = "liquidate"
)

// WinLoss is the lifecycle state of a trade
type WinLoss string

const (
	WinLossOpen      WinLoss = "open"
	WinLossWin       WinLoss = "win"
	WinLossLoss      WinLoss = "loss"
	WinLossBreakeven WinLoss = "breakeven"
)

// IsTerminal reports whether the state is a closed outcome.
func (w WinLoss) IsTerminal() bool {
	return w == WinLossWin || w == WinLossLoss || w == WinLossBreakeven
}

// ExecutionMethod records who placed the trade
type ExecutionMethod string

const (
	ExecutionManual    ExecutionMethod = "manual"
	ExecutionAutomated ExecutionMethod = "automated"
	ExecutionHybrid    ExecutionMethod = "hybrid"
)

// TradeRecord is one journal row per trade attempt. Rows are never deleted;
// the exit fields are written exactly once when the trade closes.
type TradeRecord struct {
	TradeID   string    `gorm:"primaryKey;size:36" json:"trade_id"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`

	// Instruction
	Action       TradeAction `gorm:"size:16;not null" json:"action"`
	TokenSymbol  string      `gorm:"size:32;not null;index" json:"token_symbol"`
	TokenAddress *string     `gorm:"size:128" json:"token_address"`
	Quantity     Money       `gorm:"type:numeric(27,9);not null" json:"quantity"`
	PriceEntry   Money       `gorm:"type:numeric(27,9);not null" json:"price_entry"`
	CostBasis    Money       `gorm:"type:numeric(27,9);not null" json:"cost_basis"`
	PriceExit    *Money      `gorm:"type:numeric(27,9)" json:"price_exit"`

	// Outcome
	RealizedPnL   *Money  `gorm:"column:realized_pnl;type:numeric(27,9)" json:"realized_pnl"`
	UnrealizedPnL Money   `gorm:"column:unrealized_pnl;type:numeric(27,9);not null" json:"unrealized_pnl"`
	Fees          Money   `gorm:"type:numeric(27,9);not null" json:"fees"`
	WinLoss       WinLoss `gorm:"size:16;not null;index" json:"win_loss"`

	// Decision provenance
	AIConfidence      Ratio           `gorm:"type:numeric(9,4);not null" json:"ai_confidence"`
	DecisionReasoning string          `gorm:"type:text;not null" json:"decision_reasoning"`
	RiskScore         Ratio           `gorm:"type:numeric(9,4);not null" json:"risk_score"`
	Strategy          string          `gorm:"size:64;not null;index" json:"strategy"`
	SignalSource      string          `gorm:"size:64;not null" json:"signal_source"`
	ExecutionMethod   ExecutionMethod `gorm:"size:16;not null" json:"execution_method"`

	// Risk controls
	StopLoss        *Money `gorm:"type:numeric(27,9)" json:"stop_loss"`
	TakeProfit      *Money `gorm:"type:numeric(27,9)" json:"take_profit"`
	PositionSize    Ratio  `gorm:"type:numeric(9,4);not null" json:"position_size"`
	RiskRewardRatio *Ratio `gorm:"type:numeric(9,4)" json:"risk_reward_ratio"`

	// Post-close analytics
	HoldingPeriodSeconds *int64 `json:"holding_period_seconds"`
	MaxDrawdown          *Ratio `gorm:"type:numeric(9,4)" json:"max_drawdown"`
	MaxProfit            *Ratio `gorm:"type:numeric(9,4)" json:"max_profit"`
	Lessons              string `gorm:"type:text" json:"lessons"`
	Improvements         string `gorm:"type:text" json:"improvements"`
	EmotionalState       string `gorm:"size:32" json:"emotional_state"`
	MarketTimingScore    *Ratio `gorm:"type:numeric(9,4)" json:"market_timing_score"`

	IsActive    bool       `gorm:"not null" json:"is_active"`
	IsSimulated bool       `gorm:"not null" json:"is_simulated"`
	ClosedAt    *time.Time `gorm:"index" json:"closed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for TradeRecord model
func (TradeRecord) TableName() string {
	return "trade_records"
}

// IsClosed reports whether the exit has been recorded.
func (t *TradeRecord) IsClosed() bool {
	return t.WinLoss != WinLossOpen
}

// Consistent checks the lifecycle invariant: a trade is open exactly when it
// has no exit price, and realized PnL only exists alongside an exit price.
func (t *TradeRecord) Consistent() bool {
	if (t.WinLoss == WinLossOpen) != (t.PriceExit == nil) {
		return false
	}
	if t.RealizedPnL != nil && t.PriceExit == nil {
		return false
	}
	return t.WinLoss == WinLossOpen || t.WinLoss.IsTerminal()
}

// Return is realized PnL over cost basis. ok is false for open trades or a
// zero cost basis.
func (t *TradeRecord) Return() (decimal.Decimal, bool) {
	if t.RealizedPnL == nil || t.CostBasis.IsZero() {
		return decimal.Zero, false
	}
	return t.RealizedPnL.Div(t.CostBasis.Decimal), true
}

// UnrealizedAt marks the position to the given price.
func (t *TradeRecord) UnrealizedAt(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(t.PriceEntry.Decimal).Mul(t.Quantity.Decimal)
	if t.Action == ActionSell {
		diff = diff.Neg()
	}
	return diff.Sub(t.Fees.Decimal)
}
