package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/trade-ledger/internal/config"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/pkg/idgen"
)

// VolatilityFunc returns the confidence adjustment for a point in time.
type VolatilityFunc func(at time.Time) float64

// Session adjustments applied by SessionVolatility.
const (
	sessionPeak    = 0.10
	sessionOff     = -0.05
	sessionWeekend = -0.10
)

// SessionVolatility raises confidence during New York trading hours
// (09:00-17:00 America/New_York on weekdays), leaves it unchanged during
// the London morning, lowers it otherwise and lowers it more at weekends.
// A non-zero jitter adds a uniform draw in [-jitter, jitter] from a source
// seeded with seed.
func SessionVolatility(seed int64, jitter float64) VolatilityFunc {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		ny = time.FixedZone("EST", -5*3600)
	}
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(seed))

	return func(at time.Time) float64 {
		local := at.In(ny)
		var f float64
		switch wd, h := local.Weekday(), local.Hour(); {
		case wd == time.Saturday || wd == time.Sunday:
			f = sessionWeekend
		case h >= 9 && h < 17:
			f = sessionPeak
		case h >= 3 && h < 9:
			f = 0
		default:
			f = sessionOff
		}
		if jitter > 0 {
			mu.Lock()
			f += (rng.Float64()*2 - 1) * jitter
			mu.Unlock()
		}
		return f
	}
}

// SignalStore persists generated candidates.
type SignalStore interface {
	SaveBatch(ctx context.Context, signals []models.Signal) error
	Recent(ctx context.Context, chain string, since time.Time) ([]models.Signal, error)
}

// SignalReport is the result of one generation run.
type SignalReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Signals     []models.Signal   `json:"signals"`
	Errors      map[string]string `json:"errors"`
	Actionable  int               `json:"actionable"`
}

// SignalService scores tokens on each chain. Chains run concurrently and
// independently; a failing chain only loses its own candidates.
type SignalService struct {
	prices     *PriceService
	store      SignalStore
	watchlist  map[string][]string
	chains     []string
	base       float64
	threshold  float64
	timeout    time.Duration
	lookback   time.Duration
	volatility VolatilityFunc
	log        *zap.Logger
	now        func() time.Time
}

// NewSignalService creates a new SignalService
func NewSignalService(prices *PriceService, store SignalStore, cfg config.SignalsConfig, volatility VolatilityFunc, log *zap.Logger) *SignalService {
	if volatility == nil {
		volatility = func(time.Time) float64 { return 0 }
	}
	watchlist := cfg.Watchlist
	if len(watchlist) == 0 {
		watchlist = config.DefaultWatchlist()
	}
	timeout := cfg.ChainTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.02
	}
	return &SignalService{
		prices:     prices,
		store:      store,
		watchlist:  watchlist,
		chains:     cfg.Chains,
		base:       cfg.BaseConfidence,
		threshold:  threshold,
		timeout:    timeout,
		lookback:   cfg.Lookback,
		volatility: volatility,
		log:        log.Named("signal"),
		now:        time.Now,
	}
}

// WithClock replaces the wall clock.
func (s *SignalService) WithClock(now func() time.Time) *SignalService {
	s.now = now
	return s
}

// DefaultChains are the chains scanned when none are requested.
func (s *SignalService) DefaultChains() []string {
	return append([]string(nil), s.chains...)
}

// Generate produces candidates for chains at the given time. Unknown chains
// and chains whose every token failed are reported in Errors.
func (s *SignalService) Generate(ctx context.Context, chains []string, at time.Time) SignalReport {
	if len(chains) == 0 {
		chains = s.chains
	}
	chains = uniqueChains(chains)
	report := SignalReport{
		GeneratedAt: at.UTC(),
		Signals:     make([]models.Signal, 0),
		Errors:      make(map[string]string),
	}

	type chainResult struct {
		chain   string
		signals []models.Signal
		err     error
	}
	results := make(chan chainResult, len(chains))
	var wg sync.WaitGroup
	for _, chain := range chains {
		wg.Add(1)
		go func(chain string) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			sigs, err := s.generateChain(cctx, chain, at)
			results <- chainResult{chain: chain, signals: sigs, err: err}
		}(chain)
	}
	wg.Wait()
	close(results)

	for r := range results {
		if r.err != nil {
			report.Errors[r.chain] = r.err.Error()
		}
		report.Signals = append(report.Signals, r.signals...)
	}
	sort.SliceStable(report.Signals, func(i, j int) bool {
		a, b := report.Signals[i], report.Signals[j]
		if a.Chain != b.Chain {
			return a.Chain < b.Chain
		}
		return a.Token < b.Token
	})
	for _, sig := range report.Signals {
		if sig.SignalType.IsActionable() {
			report.Actionable++
		}
	}
	return report
}

// uniqueChains normalises chain names and drops repeats and blanks,
// keeping first-seen order.
func uniqueChains(chains []string) []string {
	seen := make(map[string]bool, len(chains))
	out := make([]string, 0, len(chains))
	for _, c := range chains {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func (s *SignalService) generateChain(ctx context.Context, chain string, at time.Time) ([]models.Signal, error) {
	tokens, ok := s.watchlist[chain]
	if !ok {
		return nil, fmt.Errorf("unknown chain %q", chain)
	}

	storeOK := s.store != nil
	if storeOK && s.lookback > 0 {
		persisted, err := s.store.Recent(ctx, chain, at.Add(-s.lookback))
		if err != nil {
			storeOK = false
			s.log.Warn("signal store unavailable, computing live",
				zap.String("chain", chain),
				zap.String("data_source", string(models.SourceLiveComputed)),
				zap.Error(err))
		} else if len(persisted) > 0 {
			return latestPerToken(persisted), nil
		}
	}

	out := make([]models.Signal, 0, len(tokens))
	var failures []string
	for _, token := range tokens {
		p, err := s.prices.GetPrice(ctx, token)
		if err != nil {
			failures = append(failures, token)
			s.log.Warn("no price for token", zap.String("chain", chain), zap.String("token", token), zap.Error(err))
			continue
		}
		sig := s.score(chain, token, p, at)
		sig.Degraded = !storeOK && s.store != nil
		out = append(out, sig)
	}

	if storeOK && len(out) > 0 {
		if err := s.store.SaveBatch(ctx, out); err != nil {
			s.log.Warn("failed to persist signals", zap.String("chain", chain), zap.Error(err))
		}
	}
	if len(failures) > 0 && len(out) == 0 {
		return out, fmt.Errorf("%w: no prices for %s", ErrUpstreamUnavailable, strings.Join(failures, ","))
	}
	return out, nil
}

// latestPerToken keeps the newest stored signal of each token and labels it
// as a persisted record. Fallback-derived rows keep their fallback label.
func latestPerToken(rows []models.Signal) []models.Signal {
	seen := make(map[string]bool)
	out := make([]models.Signal, 0, len(rows))
	for _, r := range rows {
		if seen[r.Token] {
			continue
		}
		seen[r.Token] = true
		if r.DataSource != models.SourceStaticFallback {
			r.DataSource = models.SourcePersisted
		}
		out = append(out, r)
	}
	return out
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

// score turns a price point into a candidate. The 24h change drives the
// signal type; its size relative to the threshold drives the strength term.
func (s *SignalService) score(chain, token string, p PricePoint, at time.Time) models.Signal {
	change, _ := p.Change24h.Float64()
	vol := s.volatility(at)

	strength := 0.0
	if !p.Fallback() {
		strength = math.Min(math.Abs(change)/(s.threshold*5), 1)
	}
	confidence := clamp01(s.base + vol + 0.25*strength)

	var source models.DataSource
	switch {
	case p.Fallback():
		source = models.SourceStaticFallback
		confidence /= 2
	case p.Streamed:
		source = models.SourceExternalFeed
	default:
		source = models.SourceLiveComputed
	}

	typ := models.SignalHold
	switch {
	case p.Fallback():
	case change >= s.threshold:
		typ = models.SignalBuy
	case change <= -s.threshold:
		typ = models.SignalSell
	case math.Abs(change) >= s.threshold/2:
		typ = models.SignalWatch
	}

	composite := clamp01(0.6*confidence + 0.4*strength)
	reasoning := fmt.Sprintf("24h change %+.2f%% vs threshold %.2f%%; session factor %+.3f; price from %s (%s)",
		change*100, s.threshold*100, vol, p.Provider, p.Source)

	return models.Signal{
		ID:             idgen.Sortable(at),
		Chain:          chain,
		Token:          token,
		SignalType:     typ,
		Confidence:     models.RatioFromFloat(confidence),
		CompositeScore: models.RatioFromFloat(composite),
		Reasoning:      reasoning,
		DataSource:     source,
		Price:          models.NewMoney(p.Price),
		GeneratedAt:    at.UTC(),
	}
}
