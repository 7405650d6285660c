package equity

import (
	"testing"
	"time"

	"trade-signal-engine-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2025, 1, n, 0, 0, 0, 0, time.UTC)
}

func fixedRisk(percent float64) func(ClosedItem) float64 {
	return func(ClosedItem) float64 { return percent }
}

func TestSimulate(t *testing.T) {
	items := []ClosedItem{
		{ClosedAt: day(1), CreatedAt: day(1), Outcome: models.StatusTPHit, RR: 2},
		{ClosedAt: day(2), CreatedAt: day(1), Outcome: models.StatusSLHit},
		{ClosedAt: day(3), CreatedAt: day(2), Outcome: models.StatusBreakeven},
		{ClosedAt: day(4), CreatedAt: day(3), Outcome: models.StatusTPHit, RR: 1.5},
	}

	points := Simulate(items, 10000, fixedRisk(2))
	require.Len(t, points, 4)

	// 10000 + 200*2 = 10400; risk 208 at -1 → 10192; breakeven flat;
	// then risk 203.84 at 1.5 → 10497.76.
	assert.InDelta(t, 10400.0, points[0].Balance, 1e-6)
	assert.InDelta(t, 10192.0, points[1].Balance, 1e-6)
	assert.InDelta(t, 10192.0, points[2].Balance, 1e-6)
	assert.InDelta(t, 10497.76, points[3].Balance, 1e-6)
}

func TestSimulateOrdering(t *testing.T) {
	t.Run("Input order does not matter", func(t *testing.T) {
		a := []ClosedItem{
			{ClosedAt: day(1), CreatedAt: day(1), Outcome: models.StatusTPHit, RR: 1},
			{ClosedAt: day(2), CreatedAt: day(2), Outcome: models.StatusSLHit},
		}
		b := []ClosedItem{a[1], a[0]}

		pa := Simulate(a, 1000, fixedRisk(1))
		pb := Simulate(b, 1000, fixedRisk(1))
		assert.Equal(t, pa, pb)
	})

	t.Run("Close time ties break by creation order", func(t *testing.T) {
		items := []ClosedItem{
			{ClosedAt: day(1), CreatedAt: day(1).Add(time.Hour), Outcome: models.StatusSLHit},
			{ClosedAt: day(1), CreatedAt: day(1), Outcome: models.StatusTPHit, RR: 3},
		}

		points := Simulate(items, 1000, fixedRisk(10))
		require.Len(t, points, 2)
		// The TPHit (created first) applies first: 1000 → 1300 → 1170.
		assert.InDelta(t, 1300.0, points[0].Balance, 1e-9)
		assert.InDelta(t, 1170.0, points[1].Balance, 1e-9)
	})

	t.Run("Deterministic across runs", func(t *testing.T) {
		items := []ClosedItem{
			{ClosedAt: day(2), CreatedAt: day(1), Outcome: models.StatusTPHit, RR: 0.7},
			{ClosedAt: day(1), CreatedAt: day(1), Outcome: models.StatusSLHit},
			{ClosedAt: day(3), CreatedAt: day(2), Outcome: models.StatusBreakeven},
		}
		first := Simulate(items, 5000, fixedRisk(3))
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Simulate(items, 5000, fixedRisk(3)))
		}
	})
}

func TestSimulateEmpty(t *testing.T) {
	points := Simulate(nil, 10000, fixedRisk(2))
	assert.Empty(t, points)
}

func TestComputeStats(t *testing.T) {
	t.Run("Drawdown from running peak", func(t *testing.T) {
		points := []Point{
			{Timestamp: day(1), Balance: 1100},
			{Timestamp: day(2), Balance: 1210},
			{Timestamp: day(3), Balance: 968}, // 20% off the 1210 peak
			{Timestamp: day(4), Balance: 1050},
		}
		stats := ComputeStats(points, 1000)
		assert.InDelta(t, 0.2, stats.MaxDrawdown, 1e-9)
	})

	t.Run("Loss streak and extremes", func(t *testing.T) {
		points := []Point{
			{Timestamp: day(1), Balance: 1200}, // +200
			{Timestamp: day(2), Balance: 1100}, // -100
			{Timestamp: day(3), Balance: 950},  // -150
			{Timestamp: day(4), Balance: 950},  // breakeven keeps the streak
			{Timestamp: day(5), Balance: 900},  // -50
			{Timestamp: day(6), Balance: 1000}, // +100
		}
		stats := ComputeStats(points, 1000)
		assert.Equal(t, 3, stats.LongestLossStreak)
		assert.Equal(t, 200.0, stats.LargestWin)
		assert.Equal(t, -150.0, stats.LargestLoss)
	})

	t.Run("Empty curve", func(t *testing.T) {
		stats := ComputeStats(nil, 1000)
		assert.Equal(t, Stats{}, stats)
	})
}
