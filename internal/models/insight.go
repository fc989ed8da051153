package models

import (
	"strings"
	"time"
)

// InsightCategory classifies an insight
type InsightCategory string

const (
	InsightPattern     InsightCategory = "pattern"
	InsightAnomaly     InsightCategory = "anomaly"
	InsightOpportunity InsightCategory = "opportunity"
	InsightRisk        InsightCategory = "risk"
	InsightPerformance InsightCategory = "performance"
)

// TimeHorizon of an insight's recommendation
type TimeHorizon string

const (
	HorizonImmediate TimeHorizon = "immediate"
	HorizonShort     TimeHorizon = "short"
	HorizonMedium    TimeHorizon = "medium"
	HorizonLong      TimeHorizon = "long"
)

// Direction is a market move used to grade insights
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// TradingInsight is a finding that is graded once its outcome is known.
type TradingInsight struct {
	InsightID            string          `gorm:"primaryKey;size:26" json:"insight_id"`
	Category             InsightCategory `gorm:"size:16;not null;index" json:"category"`
	Title                string          `gorm:"size:200" json:"title"`
	Description          string          `gorm:"type:text;not null" json:"description"`
	Symbol               string          `gorm:"size:32" json:"symbol,omitempty"`
	Strategy             string          `gorm:"size:64" json:"strategy,omitempty"`
	Confidence           Ratio           `gorm:"type:numeric(9,4);not null" json:"confidence"`
	ImpactScore          Ratio           `gorm:"type:numeric(9,4);not null" json:"impact_score"`
	ActionRecommendation string          `gorm:"type:text;not null" json:"action_recommendation"`
	ExpectedDirection    Direction       `gorm:"size:8;not null" json:"expected_direction"`
	TimeHorizon          TimeHorizon     `gorm:"size:16;not null" json:"time_horizon"`

	Validated       bool       `gorm:"not null;index" json:"validated"`
	ActualOutcome   string     `gorm:"type:text" json:"actual_outcome"`
	ActualDirection *Direction `gorm:"size:8" json:"actual_direction"`
	AccuracyScore   *Ratio     `gorm:"type:numeric(9,4)" json:"accuracy_score"`
	ValidatedAt     *time.Time `json:"validated_at"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for TradingInsight model
func (TradingInsight) TableName() string {
	return "trading_insights"
}

var directionWords = []struct {
	word string
	dir  Direction
}{
	{"buy", DirectionUp}, {"long", DirectionUp}, {"accumulate", DirectionUp}, {"increase", DirectionUp}, {"add", DirectionUp},
	{"sell", DirectionDown}, {"short", DirectionDown}, {"reduce", DirectionDown}, {"exit", DirectionDown}, {"decrease", DirectionDown},
	{"hold", DirectionFlat}, {"watch", DirectionFlat}, {"wait", DirectionFlat}, {"monitor", DirectionFlat},
}

// DirectionOf reads the expected market direction from the leading verb of
// a recommendation. Unrecognised text is treated as flat.
func DirectionOf(recommendation string) Direction {
	fields := strings.Fields(strings.ToLower(recommendation))
	for _, f := range fields {
		f = strings.Trim(f, ".,:;!")
		for _, dw := range directionWords {
			if f == dw.word {
				return dw.dir
			}
		}
	}
	return DirectionFlat
}
