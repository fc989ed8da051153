package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
	"github.com/trade-ledger/pkg/idgen"
)

const (
	DefaultInsightLimit = 20
	MaxInsightLimit     = 200

	// minTradesForVerdict is the sample size below which strategy win rates
	// are not judged.
	minTradesForVerdict = 5
)

var (
	riskWinRate        = decimal.RequireFromString("0.40")
	opportunityWinRate = decimal.RequireFromString("0.60")
	half               = decimal.RequireFromString("0.5")
)

// InsightInput is the creation schema of an insight.
type InsightInput struct {
	Category             models.InsightCategory `json:"category" validate:"required,oneof=pattern anomaly opportunity risk performance"`
	Title                string                 `json:"title" validate:"max=200"`
	Description          string                 `json:"description" validate:"required"`
	Symbol               string                 `json:"symbol" validate:"max=32"`
	Strategy             string                 `json:"strategy" validate:"max=64"`
	Confidence           *models.Ratio          `json:"confidence" validate:"required"`
	ImpactScore          *models.Ratio          `json:"impact_score" validate:"required"`
	ActionRecommendation string                 `json:"action_recommendation" validate:"required"`
	TimeHorizon          models.TimeHorizon     `json:"time_horizon" validate:"required,oneof=immediate short medium long"`
}

// ActualOutcome is the observed result an insight is graded against.
type ActualOutcome struct {
	Direction models.Direction `json:"direction" validate:"required,oneof=up down flat"`
	Return    *models.Ratio    `json:"return"`
	Notes     string           `json:"notes"`
}

// InsightService creates insights and grades them once.
type InsightService struct {
	insights  *repository.InsightRepository
	analytics *AnalyticsService
	log       *zap.Logger
	now       func() time.Time
}

// NewInsightService creates a new InsightService
func NewInsightService(insights *repository.InsightRepository, analytics *AnalyticsService, log *zap.Logger) *InsightService {
	return &InsightService{
		insights:  insights,
		analytics: analytics,
		log:       log.Named("insight"),
		now:       time.Now,
	}
}

// WithClock replaces the wall clock.
func (s *InsightService) WithClock(now func() time.Time) *InsightService {
	s.now = now
	return s
}

// GenerateInsight stores a new unvalidated insight.
func (s *InsightService) GenerateInsight(ctx context.Context, in InsightInput) (*models.TradingInsight, error) {
	verr := &ValidationError{}
	checkStruct(in, verr)
	checkUnit(verr, "confidence", in.Confidence)
	checkUnit(verr, "impact_score", in.ImpactScore)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	insight := &models.TradingInsight{
		InsightID:            idgen.Sortable(now),
		Category:             in.Category,
		Title:                in.Title,
		Description:          in.Description,
		Symbol:               strings.ToUpper(in.Symbol),
		Strategy:             in.Strategy,
		Confidence:           *in.Confidence,
		ImpactScore:          *in.ImpactScore,
		ActionRecommendation: in.ActionRecommendation,
		ExpectedDirection:    models.DirectionOf(in.ActionRecommendation),
		TimeHorizon:          in.TimeHorizon,
		Validated:            false,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.insights.Create(ctx, insight); err != nil {
		return nil, err
	}
	s.log.Info("insight generated",
		zap.String("insight_id", insight.InsightID),
		zap.String("category", string(insight.Category)))
	return insight, nil
}

// directionHit scores how well the expected direction matched: 1 for a
// match, 0 for the opposite move, 0.5 when exactly one side is flat.
func directionHit(expected, actual models.Direction) decimal.Decimal {
	switch {
	case expected == actual:
		return decimal.NewFromInt(1)
	case expected == models.DirectionFlat || actual == models.DirectionFlat:
		return half
	}
	return decimal.Zero
}

// AccuracyScore is 1 - (confidence - hit)^2, so a confident correct call
// scores near 1 and a confident wrong call near 0.
func AccuracyScore(confidence models.Ratio, expected, actual models.Direction) models.Ratio {
	diff := confidence.Sub(directionHit(expected, actual))
	return models.NewRatio(decimal.NewFromInt(1).Sub(diff.Mul(diff)))
}

// ValidateInsight grades an insight exactly once.
func (s *InsightService) ValidateInsight(ctx context.Context, insightID string, outcome ActualOutcome) (*models.TradingInsight, error) {
	verr := &ValidationError{}
	checkStruct(outcome, verr)
	checkRatio(verr, "return", outcome.Return)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	insight, err := s.insights.ValidateWithLock(ctx, insightID, func(i *models.TradingInsight) error {
		now := s.now().UTC()
		dir := outcome.Direction
		score := AccuracyScore(i.Confidence, i.ExpectedDirection, dir)

		text := "direction=" + string(dir)
		if outcome.Return != nil {
			text += " return=" + outcome.Return.StringFixed(models.RatioScale)
		}
		if outcome.Notes != "" {
			text += "; " + outcome.Notes
		}

		i.Validated = true
		i.ActualOutcome = text
		i.ActualDirection = &dir
		i.AccuracyScore = &score
		i.ValidatedAt = &now
		i.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	s.log.Info("insight validated",
		zap.String("insight_id", insight.InsightID),
		zap.String("accuracy_score", insight.AccuracyScore.StringFixed(models.RatioScale)))
	return insight, nil
}

// GetRecentInsights returns insights newest first.
func (s *InsightService) GetRecentInsights(ctx context.Context, limit int) ([]models.TradingInsight, error) {
	switch {
	case limit < 0:
		return nil, NewValidationError("limit", "must not be negative")
	case limit == 0:
		limit = DefaultInsightLimit
	case limit > MaxInsightLimit:
		limit = MaxInsightLimit
	}
	return s.insights.Recent(ctx, limit)
}

// AnalyzePerformance reads the aggregates and records insights about them:
// weak and strong strategies, drawdowns exceeding profit and a 30 day
// summary.
func (s *InsightService) AnalyzePerformance(ctx context.Context) ([]models.TradingInsight, error) {
	strategies, err := s.analytics.GetStrategyPerformance(ctx)
	if err != nil {
		return nil, err
	}
	perf, err := s.analytics.GetPerformanceAnalytics(ctx, DefaultWindowDays)
	if err != nil {
		return nil, err
	}

	var inputs []InsightInput
	for _, st := range strategies {
		if st.TotalTrades < minTradesForVerdict {
			continue
		}
		switch {
		case st.WinRate.LessThan(riskWinRate):
			inputs = append(inputs, InsightInput{
				Category:             models.InsightRisk,
				Title:                fmt.Sprintf("%s is underperforming", st.Name),
				Description:          fmt.Sprintf("Win rate %s over %d closed trades", st.WinRate.StringFixed(4), st.TotalTrades),
				Strategy:             st.Name,
				Confidence:           models.RatioPtr(models.MustRatio("0.7")),
				ImpactScore:          models.RatioPtr(models.MustRatio("0.6")),
				ActionRecommendation: "Reduce position size for " + st.Name,
				TimeHorizon:          models.HorizonShort,
			})
		case st.WinRate.GreaterThan(opportunityWinRate) && st.AvgReturn.IsPositive():
			inputs = append(inputs, InsightInput{
				Category:             models.InsightOpportunity,
				Title:                fmt.Sprintf("%s is outperforming", st.Name),
				Description:          fmt.Sprintf("Win rate %s and average return %s over %d closed trades", st.WinRate.StringFixed(4), st.AvgReturn.StringFixed(4), st.TotalTrades),
				Strategy:             st.Name,
				Confidence:           models.RatioPtr(models.MustRatio("0.65")),
				ImpactScore:          models.RatioPtr(models.MustRatio("0.5")),
				ActionRecommendation: "Increase allocation to " + st.Name,
				TimeHorizon:          models.HorizonMedium,
			})
		}
	}

	if perf.TotalTrades > 0 {
		if perf.MaxDrawdown.IsPositive() && perf.MaxDrawdown.GreaterThan(perf.TotalPnL.Decimal) {
			inputs = append(inputs, InsightInput{
				Category:             models.InsightAnomaly,
				Title:                "Drawdown exceeds net profit",
				Description:          fmt.Sprintf("Max drawdown %s against total PnL %s in the last %d days", perf.MaxDrawdown.StringFixed(2), perf.TotalPnL.StringFixed(2), perf.WindowDays),
				Confidence:           models.RatioPtr(models.MustRatio("0.8")),
				ImpactScore:          models.RatioPtr(models.MustRatio("0.7")),
				ActionRecommendation: "Reduce exposure until drawdown recovers",
				TimeHorizon:          models.HorizonImmediate,
			})
		}
		inputs = append(inputs, InsightInput{
			Category: models.InsightPerformance,
			Title:    fmt.Sprintf("%d day performance", perf.WindowDays),
			Description: fmt.Sprintf("%d trades, win rate %s, sharpe %s, total PnL %s",
				perf.TotalTrades, perf.WinRate.StringFixed(4), perf.SharpeRatio.StringFixed(4), perf.TotalPnL.StringFixed(2)),
			Confidence:           models.RatioPtr(models.MustRatio("0.5")),
			ImpactScore:          models.RatioPtr(models.MustRatio("0.3")),
			ActionRecommendation: "Monitor",
			TimeHorizon:          models.HorizonMedium,
		})
	}

	out := make([]models.TradingInsight, 0, len(inputs))
	for _, in := range inputs {
		insight, err := s.GenerateInsight(ctx, in)
		if err != nil {
			return out, err
		}
		out = append(out, *insight)
	}
	return out, nil
}
