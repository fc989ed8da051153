package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/config"
	"github.com/trade-ledger/internal/exchange"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
	"github.com/trade-ledger/internal/stats"
	"github.com/trade-ledger/pkg/idgen"
)

const (
	DefaultSnapshotLimit = 50
	MaxSnapshotLimit     = 1000

	// snapshotHistory is how many earlier totals feed volatility and sharpe.
	snapshotHistory = 30

	priceSourceProvided    = "provided"
	priceSourceUnavailable = "unavailable"
)

// HoldingInput is one position to value. Either Quantity or Chain and
// Address must be set. Price is optional.
type HoldingInput struct {
	Symbol   string        `json:"symbol" validate:"required,max=32"`
	Quantity *models.Money `json:"quantity"`
	Price    *models.Money `json:"price"`
	Chain    string        `json:"chain"`
	Address  string        `json:"address"`
}

// SnapshotInput describes the portfolio to capture.
type SnapshotInput struct {
	Holdings       []HoldingInput `json:"holdings" validate:"dive"`
	Cash           *models.Money  `json:"cash"`
	BaseAsset      string         `json:"base_asset" validate:"max=16"`
	ReferencePrice *models.Money  `json:"reference_price"`
}

// SnapshotInputFromConfig turns the configured portfolio into an input.
func SnapshotInputFromConfig(cfg config.PortfolioConfig) (SnapshotInput, error) {
	in := SnapshotInput{BaseAsset: cfg.BaseAsset}
	if cfg.Cash != "" {
		cash, err := models.ParseMoney(cfg.Cash)
		if err != nil {
			return SnapshotInput{}, NewValidationError("portfolio.cash", err.Error())
		}
		in.Cash = &cash
	}
	for _, h := range cfg.Holdings {
		hi := HoldingInput{Symbol: h.Symbol, Chain: h.Chain, Address: h.Address}
		if h.Quantity != "" {
			q, err := models.ParseMoney(h.Quantity)
			if err != nil {
				return SnapshotInput{}, NewValidationError("portfolio.holdings."+h.Symbol, err.Error())
			}
			hi.Quantity = &q
		}
		in.Holdings = append(in.Holdings, hi)
	}
	return in, nil
}

// PortfolioService writes point-in-time valuations. Snapshots are only ever
// inserted.
type PortfolioService struct {
	snapshots *repository.SnapshotRepository
	trades    *repository.TradeRepository
	prices    *PriceService
	balances  exchange.BalanceSource
	defaults  SnapshotInput
	log       *zap.Logger
	now       func() time.Time
}

// NewPortfolioService creates a new PortfolioService. balances may be nil.
func NewPortfolioService(
	snapshots *repository.SnapshotRepository,
	trades *repository.TradeRepository,
	prices *PriceService,
	balances exchange.BalanceSource,
	defaults SnapshotInput,
	log *zap.Logger,
) *PortfolioService {
	return &PortfolioService{
		snapshots: snapshots,
		trades:    trades,
		prices:    prices,
		balances:  balances,
		defaults:  defaults,
		log:       log.Named("portfolio"),
		now:       time.Now,
	}
}

// WithClock replaces the wall clock.
func (s *PortfolioService) WithClock(now func() time.Time) *PortfolioService {
	s.now = now
	return s
}

// RecordConfiguredSnapshot captures the configured portfolio.
func (s *PortfolioService) RecordConfiguredSnapshot(ctx context.Context) (*models.PortfolioSnapshot, error) {
	return s.RecordPortfolioSnapshot(ctx, s.defaults)
}

func (s *PortfolioService) validate(in *SnapshotInput) error {
	verr := &ValidationError{}
	checkStruct(*in, verr)
	checkMoney(verr, "cash", in.Cash, false)
	checkMoney(verr, "reference_price", in.ReferencePrice, false)
	for i := range in.Holdings {
		h := &in.Holdings[i]
		h.Symbol = strings.ToUpper(strings.TrimSpace(h.Symbol))
		if h.Quantity == nil && (h.Chain == "" || h.Address == "") {
			verr.Add("holdings.quantity", "quantity or chain and address is required")
		}
		checkMoney(verr, "holdings.quantity", h.Quantity, false)
		checkMoney(verr, "holdings.price", h.Price, false)
	}
	return verr.OrNil()
}

// RecordPortfolioSnapshot values the holdings and appends a snapshot.
// total_value_usd = sum(quantity x price) + cash. A price that cannot be
// read from the feed uses the last-known-good value and marks the snapshot
// degraded.
func (s *PortfolioService) RecordPortfolioSnapshot(ctx context.Context, in SnapshotInput) (*models.PortfolioSnapshot, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	base := strings.ToUpper(in.BaseAsset)
	if base == "" {
		base = "USD"
	}

	lkg := s.lastKnownPrices(ctx)
	degraded := false
	total := decimal.Zero
	holdings := make(map[string]models.HoldingValue, len(in.Holdings))
	for _, h := range in.Holdings {
		qty, ok := s.quantity(ctx, h)
		if !ok {
			degraded = true
		}
		price, source, ok := s.price(ctx, h.Symbol, h.Price, lkg)
		if !ok {
			degraded = true
		}
		value := qty.Mul(price)
		total = total.Add(value)

		hv := models.HoldingValue{
			Quantity:    models.NewMoney(qty),
			Price:       models.NewMoney(price),
			Value:       models.NewMoney(value),
			PriceSource: source,
		}
		if prev, dup := holdings[h.Symbol]; dup {
			hv.Quantity = models.NewMoney(prev.Quantity.Add(qty))
			hv.Value = models.NewMoney(prev.Value.Add(value))
		}
		holdings[h.Symbol] = hv
	}
	cash := decimal.Zero
	if in.Cash != nil {
		cash = in.Cash.Decimal
	}
	total = total.Add(cash)

	refPrice, _, ok := s.price(ctx, base, in.ReferencePrice, lkg)
	if !ok {
		degraded = true
	}
	totalBase := decimal.Zero
	if refPrice.IsPositive() {
		totalBase = total.DivRound(refPrice, models.MoneyScale)
	}

	now := s.now().UTC()
	dayAgo := now.Add(-24 * time.Hour)
	daily, err := s.trades.SumRealizedPnL(ctx, &dayAgo)
	if err != nil {
		return nil, err
	}
	totalPnL, err := s.trades.SumRealizedPnL(ctx, nil)
	if err != nil {
		return nil, err
	}
	vol, sharpe, err := s.riskFromHistory(ctx, total)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(holdings)
	if err != nil {
		return nil, err
	}
	snap := &models.PortfolioSnapshot{
		SnapshotID:      idgen.Sortable(now),
		TakenAt:         now,
		TotalValueUSD:   models.NewMoney(total),
		BaseAsset:       base,
		TotalValueBase:  models.NewMoney(totalBase),
		CashBalance:     models.NewMoney(cash),
		Holdings:        raw,
		DailyPnL:        models.NewMoney(daily),
		TotalPnL:        models.NewMoney(totalPnL),
		Volatility:      models.RatioFromFloat(vol),
		SharpeRatio:     models.RatioFromFloat(sharpe),
		ReferenceSymbol: base,
		ReferencePrice:  models.NewMoney(refPrice),
		Degraded:        degraded,
		CreatedAt:       now,
	}
	if err := snap.TotalValueUSD.Check(); err != nil {
		return nil, NewValidationError("holdings", err.Error())
	}
	if err := s.snapshots.Create(ctx, snap); err != nil {
		return nil, err
	}

	s.log.Info("portfolio snapshot recorded",
		zap.String("snapshot_id", snap.SnapshotID),
		zap.String("total_value_usd", snap.TotalValueUSD.StringFixed(models.MoneyScale)),
		zap.Bool("degraded", degraded))
	return snap, nil
}

func (s *PortfolioService) quantity(ctx context.Context, h HoldingInput) (decimal.Decimal, bool) {
	if h.Quantity != nil {
		return h.Quantity.Decimal, true
	}
	if s.balances == nil {
		s.log.Warn("no balance source for holding", zap.String("symbol", h.Symbol))
		return decimal.Zero, false
	}
	bal, err := s.balances.GetBalance(ctx, h.Chain, h.Address)
	if err != nil {
		s.log.Warn("balance read failed, valuing holding at zero",
			zap.String("symbol", h.Symbol), zap.String("chain", h.Chain), zap.Error(err))
		return decimal.Zero, false
	}
	return bal, true
}

// lastKnownPrices collects the prices of the latest snapshot, including its
// reference price. Empty when there is no earlier snapshot.
func (s *PortfolioService) lastKnownPrices(ctx context.Context) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	latest, err := s.snapshots.Latest(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrSnapshotNotFound) {
			s.log.Warn("could not read latest snapshot for fallback prices", zap.Error(err))
		}
		return out
	}
	values, err := latest.HoldingValues()
	if err != nil {
		s.log.Warn("could not decode latest snapshot holdings", zap.String("snapshot_id", latest.SnapshotID), zap.Error(err))
	}
	for sym, hv := range values {
		if hv.Price.IsPositive() {
			out[sym] = hv.Price.Decimal
		}
	}
	if latest.ReferenceSymbol != "" && latest.ReferencePrice.IsPositive() {
		if _, ok := out[latest.ReferenceSymbol]; !ok {
			out[latest.ReferenceSymbol] = latest.ReferencePrice.Decimal
		}
	}
	return out
}

// price returns the provided price or a resolved one. When the feed has no
// price the latest snapshot's price for symbol is used. ok is false when
// the value is a fallback or missing altogether.
func (s *PortfolioService) price(ctx context.Context, symbol string, provided *models.Money, lkg map[string]decimal.Decimal) (decimal.Decimal, string, bool) {
	if provided != nil {
		return provided.Decimal, priceSourceProvided, true
	}
	switch symbol {
	case "USD", "USDT", "USDC":
		return decimal.NewFromInt(1), priceSourceProvided, true
	}
	p, err := s.prices.GetPrice(ctx, symbol)
	if err == nil {
		return p.Price, string(p.Source), !p.Fallback()
	}
	if last, ok := lkg[symbol]; ok {
		s.log.Warn("no price available, using last snapshot price",
			zap.String("symbol", symbol), zap.String("price", last.String()), zap.Error(err))
		return last, string(models.SourceStaticFallback), false
	}
	s.log.Warn("no price available, valuing at zero", zap.String("symbol", symbol), zap.Error(err))
	return decimal.Zero, priceSourceUnavailable, false
}

// riskFromHistory computes volatility and sharpe of the returns between the
// recent snapshot totals and the new total.
func (s *PortfolioService) riskFromHistory(ctx context.Context, current decimal.Decimal) (float64, float64, error) {
	recent, err := s.snapshots.Recent(ctx, snapshotHistory)
	if err != nil {
		return 0, 0, err
	}
	totals := make([]decimal.Decimal, 0, len(recent)+1)
	for i := len(recent) - 1; i >= 0; i-- {
		totals = append(totals, recent[i].TotalValueUSD.Decimal)
	}
	totals = append(totals, current)

	var returns []decimal.Decimal
	for i := 1; i < len(totals); i++ {
		if totals[i-1].IsZero() {
			continue
		}
		returns = append(returns, totals[i].Sub(totals[i-1]).DivRound(totals[i-1], 18))
	}
	return stats.StdDev(stats.Floats(returns)), stats.Sharpe(returns), nil
}

// ListSnapshots returns snapshots newest first.
func (s *PortfolioService) ListSnapshots(ctx context.Context, limit int) ([]models.PortfolioSnapshot, error) {
	switch {
	case limit < 0:
		return nil, NewValidationError("limit", "must not be negative")
	case limit == 0:
		limit = DefaultSnapshotLimit
	case limit > MaxSnapshotLimit:
		limit = MaxSnapshotLimit
	}
	return s.snapshots.Recent(ctx, limit)
}

// Latest returns the newest snapshot or ErrNotFound.
func (s *PortfolioService) Latest(ctx context.Context) (*models.PortfolioSnapshot, error) {
	snap, err := s.snapshots.Latest(ctx)
	return snap, translate(err)
}
