package engine

import (
	"fmt"
	"time"

	"trade-signal-engine-go/internal/equity"
	"trade-signal-engine-go/internal/models"
	"trade-signal-engine-go/internal/riskmath"
)

// EquityCurve replays the terminally closed signals in [from, to] under a
// fixed starting balance and risk percent. Zero time bounds are unbounded.
func (e *Engine) EquityCurve(startingBalance, riskPercent float64, from, to time.Time) ([]equity.Point, equity.Stats, error) {
	q := e.db.Where("status IN ?", []models.Status{models.StatusTPHit, models.StatusSLHit, models.StatusBreakeven})
	if !from.IsZero() {
		q = q.Where("closed_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("closed_at <= ?", to)
	}

	var signals []models.Signal
	if err := q.Order("closed_at asc, created_at asc").Find(&signals).Error; err != nil {
		return nil, equity.Stats{}, fmt.Errorf("could not load closed signals: %w", err)
	}

	items := make([]equity.ClosedItem, 0, len(signals))
	for i := range signals {
		sig := &signals[i]
		if sig.ClosedAt == nil {
			continue
		}

		item := equity.ClosedItem{
			ClosedAt:  *sig.ClosedAt,
			CreatedAt: sig.CreatedAt,
			Outcome:   sig.Status,
		}
		if sig.Status == models.StatusTPHit {
			rr, err := riskmath.RRToPrice(sig.Direction, sig.EntryPrice, sig.InitialStopLoss, sig.ClosePrice)
			if err != nil {
				return nil, equity.Stats{}, fmt.Errorf("signal %d: %w", sig.ID, err)
			}
			item.RR = rr
		}
		items = append(items, item)
	}

	points := equity.Simulate(items, startingBalance, func(equity.ClosedItem) float64 {
		return riskPercent
	})
	stats := equity.ComputeStats(points, startingBalance)
	return points, stats, nil
}
