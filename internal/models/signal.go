package models

import "time"

// SignalType is the suggested action of a signal candidate
type SignalType string

const (
	SignalBuy   SignalType = "BUY"
	SignalSell  SignalType = "SELL"
	SignalHold  SignalType = "HOLD"
	SignalWatch SignalType = "WATCH"
)

// IsActionable reports whether the signal suggests opening a position.
func (s SignalType) IsActionable() bool {
	return s == SignalBuy || s == SignalSell
}

// DataSource is the trust tier of a value's origin. Values derived from a
// fallback are never labeled as persisted or live.
type DataSource string

const (
	SourcePersisted      DataSource = "persisted_record"
	SourceLiveComputed   DataSource = "live_computed"
	SourceExternalFeed   DataSource = "external_feed"
	SourceStaticFallback DataSource = "static_fallback"
)

// Signal is a persisted signal candidate
type Signal struct {
	ID             string     `gorm:"primaryKey;size:26" json:"id"`
	Chain          string     `gorm:"size:32;not null;index:idx_signal_chain_time" json:"chain"`
	Token          string     `gorm:"size:32;not null" json:"token"`
	SignalType     SignalType `gorm:"size:8;not null" json:"signal_type"`
	Confidence     Ratio      `gorm:"type:numeric(9,4);not null" json:"confidence"`
	CompositeScore Ratio      `gorm:"type:numeric(9,4);not null" json:"composite_score"`
	Reasoning      string     `gorm:"type:text" json:"reasoning"`
	DataSource     DataSource `gorm:"size:24;not null" json:"data_source"`
	Price          Money      `gorm:"type:numeric(27,9);not null" json:"price"`
	GeneratedAt    time.Time  `gorm:"not null;index:idx_signal_chain_time" json:"generated_at"`

	// Degraded is set on candidates computed while the signal store was down.
	Degraded bool `gorm:"-" json:"degraded"`
}

// TableName specifies the table name for Signal model
func (Signal) TableName() string {
	return "signals"
}
