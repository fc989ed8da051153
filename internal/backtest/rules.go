package backtest

import "github.com/shopspring/decimal"

// rule decides entries and exits from the bars up to and including i.
type rule interface {
	enter(bars []Bar, i int) bool
	exit(bars []Bar, i int) bool
}

func ruleFor(cfg StrategyConfig) rule {
	th := decimal.NewFromFloat(cfg.EntryThreshold)
	switch cfg.Rule {
	case RuleMeanReversion:
		return meanReversion{n: cfg.Lookback, band: one.Sub(th)}
	case RuleBreakout:
		return breakout{n: cfg.Lookback, volume: decimal.NewFromFloat(cfg.VolumeFactor)}
	case RuleSMACross:
		return smaCross{fast: cfg.Fast, slow: cfg.Slow}
	}
	return momentum{n: cfg.Lookback, band: one.Add(th)}
}

// sma is the simple moving average of the n closes ending at i.
func sma(bars []Bar, i, n int) (decimal.Decimal, bool) {
	if i+1 < n {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, b := range bars[i+1-n : i+1] {
		sum = sum.Add(b.Close)
	}
	return sum.DivRound(decimal.NewFromInt(int64(n)), divPrecision), true
}

// momentum buys a close stretched above its average and sells back below it.
type momentum struct {
	n    int
	band decimal.Decimal
}

func (r momentum) enter(bars []Bar, i int) bool {
	avg, ok := sma(bars, i, r.n)
	return ok && bars[i].Close.GreaterThan(avg.Mul(r.band))
}

func (r momentum) exit(bars []Bar, i int) bool {
	avg, ok := sma(bars, i, r.n)
	return ok && bars[i].Close.LessThan(avg)
}

// meanReversion buys a close stretched below its average and exits at the mean.
type meanReversion struct {
	n    int
	band decimal.Decimal
}

func (r meanReversion) enter(bars []Bar, i int) bool {
	avg, ok := sma(bars, i, r.n)
	return ok && bars[i].Close.LessThan(avg.Mul(r.band))
}

func (r meanReversion) exit(bars []Bar, i int) bool {
	avg, ok := sma(bars, i, r.n)
	return ok && bars[i].Close.GreaterThanOrEqual(avg)
}

// breakout buys a close above the prior n-bar high on above average volume.
// Series without volume skip the confirmation.
type breakout struct {
	n      int
	volume decimal.Decimal
}

func (r breakout) enter(bars []Bar, i int) bool {
	if i < r.n {
		return false
	}
	high, vol := bars[i-r.n].High, decimal.Zero
	for _, b := range bars[i-r.n : i] {
		if b.High.GreaterThan(high) {
			high = b.High
		}
		vol = vol.Add(b.Volume)
	}
	if !bars[i].Close.GreaterThan(high) {
		return false
	}
	if vol.IsZero() {
		return true
	}
	avg := vol.DivRound(decimal.NewFromInt(int64(r.n)), divPrecision)
	return bars[i].Volume.GreaterThanOrEqual(avg.Mul(r.volume))
}

func (r breakout) exit(bars []Bar, i int) bool {
	avg, ok := sma(bars, i, r.n)
	return ok && bars[i].Close.LessThan(avg)
}

// smaCross buys when the fast average crosses above the slow one and sells
// on the cross back down.
type smaCross struct {
	fast, slow int
}

func (r smaCross) spread(bars []Bar, i int) (decimal.Decimal, bool) {
	f, ok := sma(bars, i, r.fast)
	if !ok {
		return decimal.Zero, false
	}
	s, ok := sma(bars, i, r.slow)
	if !ok {
		return decimal.Zero, false
	}
	return f.Sub(s), true
}

func (r smaCross) enter(bars []Bar, i int) bool {
	if i == 0 {
		return false
	}
	prev, ok1 := r.spread(bars, i-1)
	cur, ok2 := r.spread(bars, i)
	return ok1 && ok2 && !prev.IsPositive() && cur.IsPositive()
}

func (r smaCross) exit(bars []Bar, i int) bool {
	cur, ok := r.spread(bars, i)
	return ok && cur.IsNegative()
}
