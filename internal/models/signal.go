package models

import (
	"time"

	"gorm.io/gorm"
)

// Direction is the side of a signal.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Status is the lifecycle status of a signal. A signal reaches exactly one
// of the three terminal statuses, ever.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusTPHit     Status = "tp_hit"
	StatusSLHit     Status = "sl_hit"
	StatusBreakeven Status = "breakeven"
)

// IsTerminal reports whether s is one of the terminal statuses.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusTPHit, StatusSLHit, StatusBreakeven:
		return true
	case StatusUpcoming, StatusActive:
		return false
	}
	return false
}

// SignalType distinguishes drafts from published signals.
type SignalType string

const (
	SignalTypeUpcoming SignalType = "upcoming"
	SignalTypeSignal   SignalType = "signal"
)

// MarketMode controls whether a signal is tracked against a live price feed.
type MarketMode string

const (
	MarketModeSimulated MarketMode = "simulated"
	MarketModeLive      MarketMode = "live"
)

// UpcomingStage is the sub-state of an upcoming signal, display-only.
type UpcomingStage string

const (
	StageWaiting   UpcomingStage = "waiting"
	StagePreparing UpcomingStage = "preparing"
	StageNearEntry UpcomingStage = "near_entry"
)

// Signal is a published (or draft) trade idea.
// Once SignalType becomes "signal", EntryPrice/StopLoss/TakeProfit are frozen;
// only status, close fields, notification flags and the ladder may change.
type Signal struct {
	gorm.Model
	Pair       string     `gorm:"index;not null" json:"pair"`
	Category   string     `json:"category"`
	Direction  Direction  `gorm:"not null" json:"direction"`
	EntryPrice float64    `json:"entry_price"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`

	// InitialStopLoss is frozen at publication. R-multiples keep this
	// denominator even after the stop is moved to entry to arm breakeven.
	InitialStopLoss float64 `json:"initial_stop_loss"`
	Status     Status     `gorm:"index;not null" json:"status"`
	SignalType SignalType `gorm:"not null" json:"signal_type"`
	MarketMode MarketMode `gorm:"not null" json:"market_mode"`

	Stage UpcomingStage `json:"stage,omitempty"`

	ClosePrice    float64    `json:"close_price,omitempty"`
	CloseQuotedAt *time.Time `json:"close_quoted_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`

	NotifyOnUpdate bool `gorm:"default:true" json:"notify_on_update"`
	NotifyOnClose  bool `gorm:"default:true" json:"notify_on_close"`
}

// BreakevenArmed reports whether the stop has been moved to the entry price,
// which makes any stop-out settle at RR 0 instead of -1.
func (s *Signal) BreakevenArmed() bool {
	return s.SignalType == SignalTypeSignal && s.StopLoss == s.EntryPrice
}

// Published reports whether the signal's prices are frozen.
func (s *Signal) Published() bool {
	return s.SignalType == SignalTypeSignal
}
