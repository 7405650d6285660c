// Package equity replays closed signals into a balance curve for dashboards.
// The simulation is an explicit fold over an ordered immutable list: the same
// input always produces the identical curve.
package equity

import (
	"sort"
	"time"

	"trade-signal-engine-go/internal/models"
)

// ClosedItem is one terminally settled signal or trade.
type ClosedItem struct {
	ClosedAt  time.Time
	CreatedAt time.Time // tie-break for identical close times
	Outcome   models.Status
	RR        float64 // realized R-multiple, used only for tp_hit
}

// Point is one step of the balance curve.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Balance   float64   `json:"balance"`
}

// rrOf maps an outcome to the R-multiple the item settled at.
func rrOf(item ClosedItem) float64 {
	switch item.Outcome {
	case models.StatusBreakeven:
		return 0
	case models.StatusSLHit:
		return -1
	case models.StatusTPHit:
		return item.RR
	case models.StatusUpcoming, models.StatusActive:
		return 0 // not terminal, contributes nothing
	}
	return 0
}

// Simulate replays items chronologically under a fixed starting balance.
// Each item risks runningBalance * riskPercentFn(item) / 100 and moves the
// balance by that risk times the item's R-multiple. Ties in close time are
// broken by creation order so the curve is reproducible.
func Simulate(items []ClosedItem, startingBalance float64, riskPercentFn func(ClosedItem) float64) []Point {
	ordered := make([]ClosedItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ClosedAt.Equal(ordered[j].ClosedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ClosedAt.Before(ordered[j].ClosedAt)
	})

	points := make([]Point, 0, len(ordered))
	balance := startingBalance
	for _, item := range ordered {
		riskAmount := balance * riskPercentFn(item) / 100
		balance += riskAmount * rrOf(item)
		points = append(points, Point{Timestamp: item.ClosedAt, Balance: balance})
	}
	return points
}

// Stats summarizes a balance curve.
type Stats struct {
	MaxDrawdown       float64 `json:"max_drawdown"` // (peak - trough) / peak
	LongestLossStreak int     `json:"longest_loss_streak"`
	LargestWin        float64 `json:"largest_win"`
	LargestLoss       float64 `json:"largest_loss"`
}

// ComputeStats reduces a curve to drawdown, streak and extremes. Pure single
// pass with a running peak and streak counter; the curve must include its
// starting balance context via startingBalance.
func ComputeStats(points []Point, startingBalance float64) Stats {
	stats := Stats{}
	peak := startingBalance
	previous := startingBalance
	streak := 0

	for _, point := range points {
		delta := point.Balance - previous

		if delta > stats.LargestWin {
			stats.LargestWin = delta
		}
		if delta < stats.LargestLoss {
			stats.LargestLoss = delta
		}

		if delta < 0 {
			streak++
			if streak > stats.LongestLossStreak {
				stats.LongestLossStreak = streak
			}
		} else if delta > 0 {
			streak = 0
		}

		if point.Balance > peak {
			peak = point.Balance
		}
		if peak > 0 {
			drawdown := (peak - point.Balance) / peak
			if drawdown > stats.MaxDrawdown {
				stats.MaxDrawdown = drawdown
			}
		}

		previous = point.Balance
	}
	return stats
}
