// Package stats holds the return statistics shared by the journal
// aggregator and the backtest engine.
package stats

import (
	"math"

	"github.com/shopspring/decimal"
)

// ProfitFactorCap is reported when there are profits and no losses.
var ProfitFactorCap = decimal.NewFromInt(9999)

// divPrecision is the scale used for intermediate decimal divisions.
const divPrecision = 18

// Mean of xs; zero for an empty slice.
func Mean(xs []decimal.Decimal) decimal.Decimal {
	if len(xs) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, xs...).DivRound(decimal.NewFromInt(int64(len(xs))), divPrecision)
}

// StdDev is the sample standard deviation (n-1); zero for fewer than two values.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// Variance is the sample variance (n-1) computed in decimal, so equal
// values give exactly zero. Zero for fewer than two values.
func Variance(xs []decimal.Decimal) decimal.Decimal {
	if len(xs) < 2 {
		return decimal.Zero
	}
	mean := Mean(xs)
	ss := decimal.Zero
	for _, x := range xs {
		d := x.Sub(mean)
		ss = ss.Add(d.Mul(d))
	}
	return ss.DivRound(decimal.NewFromInt(int64(len(xs)-1)), 2*divPrecision)
}

// Sharpe is mean over sample standard deviation of per-trade returns, with
// no risk-free rate and no annualisation. Zero for fewer than two returns
// or no dispersion.
func Sharpe(returns []decimal.Decimal) float64 {
	if len(returns) < 2 {
		return 0
	}
	v, _ := Variance(returns).Float64()
	sd := math.Sqrt(v)
	mean, _ := Mean(returns).Float64()
	// residue of the mean's rounding, not dispersion
	if sd <= 1e-12*math.Max(1, math.Abs(mean)) {
		return 0
	}
	return mean / sd
}

// Floats converts decimals for the float-only statistics.
func Floats(xs []decimal.Decimal) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i], _ = x.Float64()
	}
	return out
}

// MaxDrawdown is the largest peak-to-trough decline of the running sum of
// pnls. The running sum starts at zero, which counts as the first peak.
func MaxDrawdown(pnls []decimal.Decimal) decimal.Decimal {
	cum, peak, worst := decimal.Zero, decimal.Zero, decimal.Zero
	for _, p := range pnls {
		cum = cum.Add(p)
		if cum.GreaterThan(peak) {
			peak = cum
		}
		if dd := peak.Sub(cum); dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst
}

// MaxDrawdownFraction is the largest peak-to-trough decline of an equity
// curve as a fraction of the peak.
func MaxDrawdownFraction(equity []float64) float64 {
	var peak, worst float64
	for i, e := range equity {
		if i == 0 || e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// ProfitFactor is gross profit over gross loss (loss given as a positive
// amount). Zero without profit, ProfitFactorCap without loss.
func ProfitFactor(grossProfit, grossLoss decimal.Decimal) decimal.Decimal {
	switch {
	case !grossProfit.IsPositive():
		return decimal.Zero
	case !grossLoss.IsPositive():
		return ProfitFactorCap
	}
	pf := grossProfit.DivRound(grossLoss, divPrecision)
	if pf.GreaterThan(ProfitFactorCap) {
		return ProfitFactorCap
	}
	return pf
}
