package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-ledger/internal/models"
)

func insightInput(rec, confidence string) InsightInput {
	return InsightInput{
		Category:             models.InsightOpportunity,
		Title:                "SOL strength",
		Description:          "SOL holding above the weekly range",
		Symbol:               "sol",
		Confidence:           ratio(confidence),
		ImpactScore:          ratio("0.4"),
		ActionRecommendation: rec,
		TimeHorizon:          models.HorizonShort,
	}
}

func TestGenerateAndValidateInsight(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	insight, err := env.insights.GenerateInsight(ctx, insightInput("Buy SOL on dips", "0.8"))
	require.NoError(t, err)
	assert.False(t, insight.Validated)
	assert.Nil(t, insight.AccuracyScore)
	assert.Equal(t, models.DirectionUp, insight.ExpectedDirection)
	assert.Equal(t, "SOL", insight.Symbol)

	env.clock.Advance(24 * time.Hour)
	graded, err := env.insights.ValidateInsight(ctx, insight.InsightID, ActualOutcome{
		Direction: models.DirectionUp,
		Return:    ratio("0.05"),
		Notes:     "rallied",
	})
	require.NoError(t, err)
	assert.True(t, graded.Validated)
	require.NotNil(t, graded.AccuracyScore)
	assert.Equal(t, "0.9600", graded.AccuracyScore.StringFixed(4))
	assert.Equal(t, "direction=up return=0.0500; rallied", graded.ActualOutcome)
	require.NotNil(t, graded.ValidatedAt)

	_, err = env.insights.ValidateInsight(ctx, insight.InsightID, ActualOutcome{Direction: models.DirectionDown})
	assert.True(t, errors.Is(err, ErrConflict))

	stored, err := env.insightsDB.GetByID(ctx, insight.InsightID)
	require.NoError(t, err)
	assert.Equal(t, "0.96", stored.AccuracyScore.String())

	_, err = env.insights.ValidateInsight(ctx, "nope", ActualOutcome{Direction: models.DirectionUp})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAccuracyScore(t *testing.T) {
	tests := []struct {
		conf             string
		expected, actual models.Direction
		want             string
	}{
		{"0.8", models.DirectionUp, models.DirectionUp, "0.96"},
		{"0.8", models.DirectionUp, models.DirectionDown, "0.36"},
		{"0.8", models.DirectionFlat, models.DirectionDown, "0.91"},
		{"0.5", models.DirectionDown, models.DirectionFlat, "1"},
		{"1", models.DirectionDown, models.DirectionDown, "1"},
		{"1", models.DirectionDown, models.DirectionUp, "0"},
	}
	for _, tt := range tests {
		got := AccuracyScore(models.MustRatio(tt.conf), tt.expected, tt.actual)
		assert.Equal(t, tt.want, got.String(), "%s %s->%s", tt.conf, tt.expected, tt.actual)
	}
}

func TestGenerateInsightValidation(t *testing.T) {
	env := newTestEnv(t)
	in := insightInput("", "1.2")
	in.Category = "gossip"
	in.TimeHorizon = ""
	_, err := env.insights.GenerateInsight(context.Background(), in)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ElementsMatch(t, []string{"category", "action_recommendation", "time_horizon", "confidence"}, verr.FieldNames())
}

func TestGetRecentInsights(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		in, err := env.insights.GenerateInsight(ctx, insightInput("Hold", "0.5"))
		require.NoError(t, err)
		ids = append(ids, in.InsightID)
		env.clock.Advance(time.Minute)
	}

	recent, err := env.insights.GetRecentInsights(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].InsightID)
	assert.Equal(t, ids[1], recent[1].InsightID)

	_, err = env.insights.GetRecentInsights(ctx, -1)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestAnalyzePerformance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedClosed(t, env, "momentum", "-5", "-5", "-5", "-5", "10")
	seedClosed(t, env, "technical", "10", "10", "10", "10", "-1")

	out, err := env.insights.AnalyzePerformance(ctx)
	require.NoError(t, err)

	byCategory := map[models.InsightCategory][]models.TradingInsight{}
	for _, in := range out {
		byCategory[in.Category] = append(byCategory[in.Category], in)
		assert.False(t, in.Validated)
	}
	require.Len(t, byCategory[models.InsightRisk], 1)
	assert.Equal(t, "momentum", byCategory[models.InsightRisk][0].Strategy)
	assert.Equal(t, models.DirectionDown, byCategory[models.InsightRisk][0].ExpectedDirection)
	require.Len(t, byCategory[models.InsightOpportunity], 1)
	assert.Equal(t, "technical", byCategory[models.InsightOpportunity][0].Strategy)
	assert.Len(t, byCategory[models.InsightPerformance], 1)
	assert.Empty(t, byCategory[models.InsightAnomaly])
}
