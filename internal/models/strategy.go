package models

import (
	"time"

	"gorm.io/datatypes"
)

// StrategyCategory classifies a strategy
type StrategyCategory string

const (
	CategoryMomentum      StrategyCategory = "momentum"
	CategoryMeanReversion StrategyCategory = "mean_reversion"
	CategoryArbitrage     StrategyCategory = "arbitrage"
	CategorySentiment     StrategyCategory = "sentiment"
	CategoryTechnical     StrategyCategory = "technical"
	CategoryFundamental   StrategyCategory = "fundamental"
)

// Valid reports whether c is one of the known categories.
func (c StrategyCategory) Valid() bool {
	switch c {
	case CategoryMomentum, CategoryMeanReversion, CategoryArbitrage,
		CategorySentiment, CategoryTechnical, CategoryFundamental:
		return true
	}
	return false
}

// RiskLevel of a strategy
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskExtreme RiskLevel = "extreme"
)

// Timeframe is the bar size a strategy trades on
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// TradingStrategy is a named configuration. The aggregate columns are
// derived from closed trades and only written by the aggregator.
type TradingStrategy struct {
	Name        string           `gorm:"primaryKey;size:64" json:"name"`
	Category    StrategyCategory `gorm:"size:32;not null" json:"category"`
	RiskLevel   RiskLevel        `gorm:"size:16;not null" json:"risk_level"`
	Timeframe   Timeframe        `gorm:"size:8;not null" json:"timeframe"`
	Description string           `gorm:"type:text" json:"description"`
	Parameters  datatypes.JSON   `json:"parameters"`
	IsActive    bool             `gorm:"not null" json:"is_active"`

	// Aggregates
	TotalTrades  int64      `gorm:"not null;default:0" json:"total_trades"`
	WinRate      Ratio      `gorm:"type:numeric(9,4);not null;default:0" json:"win_rate"`
	AvgReturn    Ratio      `gorm:"type:numeric(9,4);not null;default:0" json:"avg_return"`
	SharpeRatio  Ratio      `gorm:"type:numeric(9,4);not null;default:0" json:"sharpe_ratio"`
	MaxDrawdown  Money      `gorm:"type:numeric(27,9);not null;default:0" json:"max_drawdown"`
	AggregatedAt *time.Time `json:"aggregated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for TradingStrategy model
func (TradingStrategy) TableName() string {
	return "trading_strategies"
}

// DefaultStrategies are seeded on first start.
func DefaultStrategies() []TradingStrategy {
	return []TradingStrategy{
		{
			Name: "momentum", Category: CategoryMomentum, RiskLevel: RiskMedium, Timeframe: Timeframe1h,
			Description: "Trend continuation on price strength above the moving average",
			Parameters:  datatypes.JSON(`{"lookback":20,"entry_threshold":0.02,"trailing_stop":0.05,"profit_target":0.15}`),
			IsActive:    true,
		},
		{
			Name: "mean_reversion", Category: CategoryMeanReversion, RiskLevel: RiskMedium, Timeframe: Timeframe1h,
			Description: "Fade stretched moves back to the mean",
			Parameters:  datatypes.JSON(`{"rsi_oversold":30,"rsi_overbought":70,"profit_target":0.05,"stop_loss":0.03,"position_size":0.02}`),
			IsActive:    true,
		},
		{
			Name: "arbitrage", Category: CategoryArbitrage, RiskLevel: RiskLow, Timeframe: Timeframe1m,
			Description: "Cross-venue spread capture",
			Parameters:  datatypes.JSON(`{"min_spread":0.005}`),
			IsActive:    true,
		},
		{
			Name: "sentiment", Category: CategorySentiment, RiskLevel: RiskHigh, Timeframe: Timeframe4h,
			Description: "Positioning on social and news sentiment shifts",
			Parameters:  datatypes.JSON(`{}`),
			IsActive:    true,
		},
		{
			Name: "technical", Category: CategoryTechnical, RiskLevel: RiskMedium, Timeframe: Timeframe4h,
			Description: "Indicator crossovers",
			Parameters:  datatypes.JSON(`{"fast":10,"slow":30}`),
			IsActive:    true,
		},
		{
			Name: "fundamental", Category: CategoryFundamental, RiskLevel: RiskLow, Timeframe: Timeframe1d,
			Description: "On-chain and protocol fundamentals",
			Parameters:  datatypes.JSON(`{}`),
			IsActive:    true,
		},
	}
}
