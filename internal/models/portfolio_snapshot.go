package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// HoldingValue is one line of a snapshot's holdings map
type HoldingValue struct {
	Quantity    Money  `json:"quantity"`
	Price       Money  `json:"price"`
	Value       Money  `json:"value"`
	PriceSource string `json:"price_source"`
}

// PortfolioSnapshot is an immutable point-in-time valuation.
type PortfolioSnapshot struct {
	SnapshotID      string         `gorm:"primaryKey;size:26" json:"snapshot_id"`
	TakenAt         time.Time      `gorm:"index;not null" json:"taken_at"`
	TotalValueUSD   Money          `gorm:"type:numeric(27,9);not null" json:"total_value_usd"`
	BaseAsset       string         `gorm:"size:16;not null" json:"base_asset"`
	TotalValueBase  Money          `gorm:"type:numeric(27,9);not null" json:"total_value_base"`
	CashBalance     Money          `gorm:"type:numeric(27,9);not null" json:"cash_balance"`
	Holdings        datatypes.JSON `json:"holdings"`
	DailyPnL        Money          `gorm:"column:daily_pnl;type:numeric(27,9);not null" json:"daily_pnl"`
	TotalPnL        Money          `gorm:"column:total_pnl;type:numeric(27,9);not null" json:"total_pnl"`
	Volatility      Ratio          `gorm:"type:numeric(9,4);not null" json:"volatility"`
	SharpeRatio     Ratio          `gorm:"type:numeric(9,4);not null" json:"sharpe_ratio"`
	ReferenceSymbol string         `gorm:"size:32" json:"reference_symbol"`
	ReferencePrice  Money          `gorm:"type:numeric(27,9);not null" json:"reference_price"`
	Degraded        bool           `gorm:"not null" json:"degraded"`
	CreatedAt       time.Time      `json:"created_at"`
}

// TableName specifies the table name for PortfolioSnapshot model
func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}

// HoldingValues decodes the holdings column.
func (s *PortfolioSnapshot) HoldingValues() (map[string]HoldingValue, error) {
	out := make(map[string]HoldingValue)
	if len(s.Holdings) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(s.Holdings, &out); err != nil {
		return nil, err
	}
	return out, nil
}
