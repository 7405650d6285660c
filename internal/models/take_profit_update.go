package models

import "gorm.io/gorm"

// TakeProfitUpdate is one rung of a signal's partial take-profit ladder.
// The sum of ClosePercent across a signal's rungs never exceeds 100.
type TakeProfitUpdate struct {
	gorm.Model
	SignalID     uint    `gorm:"index;not null" json:"signal_id"`
	TPLabel      string  `json:"tp_label"`
	TPPrice      float64 `gorm:"not null" json:"tp_price"`
	ClosePercent float64 `gorm:"not null" json:"close_percent"`
	Note         string  `json:"note,omitempty"`
}
