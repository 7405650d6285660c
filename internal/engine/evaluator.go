package engine

import (
	"time"

	"trade-signal-engine-go/internal/models"
	"trade-signal-engine-go/internal/quotes"
	"trade-signal-engine-go/internal/riskmath"
)

// ClosePlan is the evaluator's decision to auto-close a signal.
type ClosePlan struct {
	SignalID uint
	Terminal models.Status
	Price    float64
	QuotedAt time.Time
}

// Evaluate decides whether a live quote crosses a signal's stop or target.
// Returns nil when the signal stays open. Signals with ladder rungs are never
// auto-closed (hasLadder); the manual ladder takes over settlement entirely.
func Evaluate(sig *models.Signal, hasLadder bool, quote quotes.Quote) *ClosePlan {
	if sig.MarketMode != models.MarketModeLive || sig.Status != models.StatusActive || hasLadder {
		return nil
	}

	switch sig.Direction {
	case models.DirectionBuy:
		if quote.Price >= sig.TakeProfit {
			return &ClosePlan{SignalID: sig.ID, Terminal: models.StatusTPHit, Price: sig.TakeProfit, QuotedAt: quote.QuotedAt}
		}
		if quote.Price <= sig.StopLoss {
			return stopPlan(sig, quote)
		}
	case models.DirectionSell:
		if quote.Price <= sig.TakeProfit {
			return &ClosePlan{SignalID: sig.ID, Terminal: models.StatusTPHit, Price: sig.TakeProfit, QuotedAt: quote.QuotedAt}
		}
		if quote.Price >= sig.StopLoss {
			return stopPlan(sig, quote)
		}
	}
	return nil
}

// stopPlan resolves a stop crossing to SLHit, or Breakeven when armed.
func stopPlan(sig *models.Signal, quote quotes.Quote) *ClosePlan {
	terminal := models.StatusSLHit
	if sig.BreakevenArmed() {
		terminal = models.StatusBreakeven
	}
	return &ClosePlan{SignalID: sig.ID, Terminal: terminal, Price: sig.StopLoss, QuotedAt: quote.QuotedAt}
}

// UnrealizedRR returns the signal's current R-multiple against a live quote,
// for display only. Measured against the initial stop distance so the figure
// survives arming breakeven.
func UnrealizedRR(sig *models.Signal, quote quotes.Quote) (float64, error) {
	return riskmath.RRToPrice(sig.Direction, sig.EntryPrice, sig.InitialStopLoss, quote.Price)
}
