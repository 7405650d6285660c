// Package riskmath provides the pure risk and reward arithmetic used by the
// signal engine: position risk from balance, signed R-multiples to arbitrary
// prices, and money conversion from an R-multiple.
package riskmath

import (
	"errors"
	"fmt"

	"trade-signal-engine-go/internal/models"
)

// ErrDivisionUndefined is returned by RRToPrice when entry equals stop loss.
// Callers must special-case the armed-breakeven condition before computing RR.
var ErrDivisionUndefined = errors.New("rr undefined: entry price equals stop loss")

// RiskAmount returns the money at risk for a position sized from an account
// balance and a risk percent. Never negative.
func RiskAmount(balance, riskPercent float64) float64 {
	amount := balance * riskPercent / 100
	if amount < 0 {
		return 0
	}
	return amount
}

// RRToPrice returns the signed R-multiple of moving from entry to targetPrice,
// measured against the distance from entry to stop. The result can exceed 1
// and is negative when targetPrice sits on the losing side of entry.
func RRToPrice(direction models.Direction, entry, stopLoss, targetPrice float64) (float64, error) {
	if entry == stopLoss {
		return 0, ErrDivisionUndefined
	}
	switch direction {
	case models.DirectionBuy:
		return (targetPrice - entry) / (entry - stopLoss), nil
	case models.DirectionSell:
		return (entry - targetPrice) / (stopLoss - entry), nil
	}
	return 0, fmt.Errorf("unknown direction %q", direction)
}

// MoneyFromRR converts an R-multiple into money for a given risk amount.
func MoneyFromRR(riskAmount, rr float64) float64 {
	return riskAmount * rr
}

// ValidatePrices checks the direction inequality between entry, stop and
// target: BUY requires stop < entry < target, SELL requires target < entry < stop.
// A stop equal to entry is allowed only when armed is true (breakeven).
func ValidatePrices(direction models.Direction, entry, stopLoss, takeProfit float64, armed bool) error {
	switch direction {
	case models.DirectionBuy:
		if armed && stopLoss == entry && takeProfit > entry {
			return nil
		}
		if !(stopLoss < entry && entry < takeProfit) {
			return fmt.Errorf("for BUY, stop loss must be strictly lower and take profit strictly higher than entry (entry=%v stop=%v target=%v)", entry, stopLoss, takeProfit)
		}
	case models.DirectionSell:
		if armed && stopLoss == entry && takeProfit < entry {
			return nil
		}
		if !(takeProfit < entry && entry < stopLoss) {
			return fmt.Errorf("for SELL, take profit must be strictly lower and stop loss strictly higher than entry (entry=%v stop=%v target=%v)", entry, stopLoss, takeProfit)
		}
	default:
		return fmt.Errorf("unknown direction %q", direction)
	}
	return nil
}

// ValidateTargetPrice checks that a take-profit style price sits on the
// winning side of entry for the given direction.
func ValidateTargetPrice(direction models.Direction, entry, price float64) error {
	switch direction {
	case models.DirectionBuy:
		if price <= entry {
			return fmt.Errorf("for BUY, take profit price must be strictly higher than entry (entry=%v price=%v)", entry, price)
		}
	case models.DirectionSell:
		if price >= entry {
			return fmt.Errorf("for SELL, take profit price must be strictly lower than entry (entry=%v price=%v)", entry, price)
		}
	default:
		return fmt.Errorf("unknown direction %q", direction)
	}
	return nil
}
