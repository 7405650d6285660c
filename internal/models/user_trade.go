package models

import (
	"time"

	"gorm.io/gorm"
)

// TradeResult is the final outcome of a user trade.
type TradeResult string

const (
	ResultPending   TradeResult = "pending"
	ResultWin       TradeResult = "win"
	ResultLoss      TradeResult = "loss"
	ResultBreakeven TradeResult = "breakeven"
)

// UserTrade is one subscriber's exposure to a signal. RiskAmount is fixed at
// creation from the subscriber's balance and risk percent; ladder settlements
// move value from RemainingRiskAmount into RealizedPnl, and the terminal close
// settles whatever remains.
type UserTrade struct {
	gorm.Model
	UserID   uint `gorm:"index;not null" json:"user_id"`
	SignalID uint `gorm:"index;not null" json:"signal_id"`

	RiskPercent         float64 `gorm:"not null" json:"risk_percent"`
	RiskAmount          float64 `gorm:"not null" json:"risk_amount"`
	InitialRiskAmount   float64 `gorm:"not null" json:"initial_risk_amount"`
	RemainingRiskAmount float64 `gorm:"not null" json:"remaining_risk_amount"`
	RealizedPnl         float64 `json:"realized_pnl"`
	Pnl                 float64 `json:"pnl"`

	Result       TradeResult `gorm:"index;default:pending" json:"result"`
	ClosedAt     *time.Time  `json:"closed_at,omitempty"`
	LastUpdateAt *time.Time  `json:"last_update_at,omitempty"`
}

// Open reports whether the trade has not been terminally settled yet.
func (t *UserTrade) Open() bool {
	return t.Result == ResultPending
}

// UserTradeTakeProfitUpdate records how one ladder rung affected one trade.
// The composite unique index makes rung application idempotent per trade.
type UserTradeTakeProfitUpdate struct {
	gorm.Model
	UserTradeID        uint    `gorm:"uniqueIndex:idx_trade_rung;not null" json:"user_trade_id"`
	TakeProfitUpdateID uint    `gorm:"uniqueIndex:idx_trade_rung;not null" json:"take_profit_update_id"`
	ClosePercent       float64 `gorm:"not null" json:"close_percent"`
	RealizedPnlDelta   float64 `json:"realized_pnl_delta"`
}
