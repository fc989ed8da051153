package backtest

import (
	"encoding/json"
	"fmt"

	"github.com/trade-ledger/internal/models"
)

// strategyParams is the subset of a stored strategy's parameters the
// engine understands.
type strategyParams struct {
	Rule           string  `json:"rule"`
	Lookback       int     `json:"lookback"`
	EntryThreshold float64 `json:"entry_threshold"`
	Fast           int     `json:"fast"`
	Slow           int     `json:"slow"`
	VolumeFactor   float64 `json:"volume_factor"`
	StopLoss       float64 `json:"stop_loss"`
	TrailingStop   float64 `json:"trailing_stop"`
	ProfitTarget   float64 `json:"profit_target"`
	PositionSize   float64 `json:"position_size"`
	FeeBps         float64 `json:"fee_bps"`
}

// ConfigFromStrategy builds a config from a stored strategy. A trailing
// stop is approximated by a fixed stop at the same distance.
func ConfigFromStrategy(s models.TradingStrategy) (StrategyConfig, error) {
	var p strategyParams
	if len(s.Parameters) > 0 {
		if err := json.Unmarshal(s.Parameters, &p); err != nil {
			return StrategyConfig{}, fmt.Errorf("%w: strategy %s parameters: %v", ErrInvalidConfig, s.Name, err)
		}
	}
	cfg := StrategyConfig{
		Name:           s.Name,
		Category:       s.Category,
		Rule:           p.Rule,
		Lookback:       p.Lookback,
		EntryThreshold: p.EntryThreshold,
		Fast:           p.Fast,
		Slow:           p.Slow,
		VolumeFactor:   p.VolumeFactor,
		StopLoss:       p.StopLoss,
		TakeProfit:     p.ProfitTarget,
		PositionSize:   p.PositionSize,
		FeeBps:         p.FeeBps,
	}
	if cfg.StopLoss == 0 {
		cfg.StopLoss = p.TrailingStop
	}
	return cfg, nil
}
