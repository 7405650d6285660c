package engine

import (
	"testing"

	"trade-signal-engine-go/internal/models"
	"trade-signal-engine-go/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAddRung(t *testing.T) {
	t.Run("Valid rung settles open trades", func(t *testing.T) {
		e, notifier := newTestEngine(t)
		sig := publishBuySignal(t, e)
		_, err := e.OpenTrade(sig.ID, 1, 10000, 2) // risk 200
		require.NoError(t, err)

		rung, result, err := e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 115, ClosePercent: 50})
		require.NoError(t, err)
		assert.Equal(t, 50.0, rung.ClosePercent)
		assert.True(t, result.Delivered)
		assert.Equal(t, notify.EventTradeUpdatePosted, notifier.last().Type)

		trade, err := e.GetUserTrade(sig.ID, 1)
		require.NoError(t, err)
		// sliceRisk = 200*0.5 = 100; rr to 115 = 1.5; realized 150.
		assert.InDelta(t, 100.0, trade.RemainingRiskAmount, 1e-9)
		assert.InDelta(t, 150.0, trade.RealizedPnl, 1e-9)
		assert.NotNil(t, trade.LastUpdateAt)
	})

	t.Run("Price on the losing side is rejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		sig := publishBuySignal(t, e)

		_, _, err := e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 95, ClosePercent: 25})
		assert.ErrorIs(t, err, ErrInvalidPriceForDirection)
	})

	t.Run("Overflow rejected and state unchanged", func(t *testing.T) {
		e, _ := newTestEngine(t)
		sig := publishBuySignal(t, e)
		_, err := e.OpenTrade(sig.ID, 1, 10000, 2)
		require.NoError(t, err)

		_, _, err = e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 110, ClosePercent: 60})
		require.NoError(t, err)

		_, _, err = e.AddRung(sig.ID, AddRungInput{TPLabel: "TP2", TPPrice: 120, ClosePercent: 50})
		assert.ErrorIs(t, err, ErrLadderOverflow)

		rungs, err := e.ListRungs(sig.ID)
		require.NoError(t, err)
		assert.Len(t, rungs, 1)

		trade, err := e.GetUserTrade(sig.ID, 1)
		require.NoError(t, err)
		assert.InDelta(t, 80.0, trade.RemainingRiskAmount, 1e-9) // only the 60% rung applied
	})

	t.Run("Exactly 100 percent allowed", func(t *testing.T) {
		e, _ := newTestEngine(t)
		sig := publishBuySignal(t, e)

		_, _, err := e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 110, ClosePercent: 60})
		require.NoError(t, err)
		_, _, err = e.AddRung(sig.ID, AddRungInput{TPLabel: "TP2", TPPrice: 120, ClosePercent: 40})
		require.NoError(t, err)
	})

	t.Run("Percent bounds enforced", func(t *testing.T) {
		e, _ := newTestEngine(t)
		sig := publishBuySignal(t, e)

		_, _, err := e.AddRung(sig.ID, AddRungInput{TPPrice: 110, ClosePercent: 0})
		assert.ErrorIs(t, err, ErrLadderOverflow)
		_, _, err = e.AddRung(sig.ID, AddRungInput{TPPrice: 110, ClosePercent: 101})
		assert.ErrorIs(t, err, ErrLadderOverflow)
	})

	t.Run("Terminal signal rejects rungs", func(t *testing.T) {
		e, _ := newTestEngine(t)
		sig := publishBuySignal(t, e)
		_, err := e.RequestClose(sig.ID, models.StatusTPHit, nil)
		require.NoError(t, err)

		_, _, err = e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 115, ClosePercent: 50})
		assert.ErrorIs(t, err, ErrAlreadyTerminal)
	})

	t.Run("SELL direction mirrored", func(t *testing.T) {
		e, _ := newTestEngine(t)
		sig, _, err := e.CreateSignal(CreateSignalInput{
			Pair:       "EURUSD",
			Direction:  models.DirectionSell,
			EntryPrice: 2000,
			StopLoss:   2020,
			TakeProfit: 1950,
			Publish:    true,
		})
		require.NoError(t, err)
		_, err = e.OpenTrade(sig.ID, 1, 10000, 1) // risk 100
		require.NoError(t, err)

		_, _, err = e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 2010, ClosePercent: 25})
		assert.ErrorIs(t, err, ErrInvalidPriceForDirection)

		_, _, err = e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 1980, ClosePercent: 40})
		require.NoError(t, err)

		trade, err := e.GetUserTrade(sig.ID, 1)
		require.NoError(t, err)
		// rr to 1980 = (2000-1980)/(2020-2000) = 1; slice 40 → realized 40.
		assert.InDelta(t, 40.0, trade.RealizedPnl, 1e-9)
		assert.InDelta(t, 60.0, trade.RemainingRiskAmount, 1e-9)
	})
}

func TestApplyRungIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	sig := publishBuySignal(t, e)
	tradeRec, err := e.OpenTrade(sig.ID, 1, 10000, 2)
	require.NoError(t, err)

	rung, _, err := e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 115, ClosePercent: 50})
	require.NoError(t, err)

	trade, err := e.GetUserTrade(sig.ID, 1)
	require.NoError(t, err)
	require.InDelta(t, 100.0, trade.RemainingRiskAmount, 1e-9)

	// Re-applying the same rung to the same trade is a no-op.
	err = e.db.Transaction(func(tx *gorm.DB) error {
		fresh := *trade
		_, applyErr := applyRungToTrade(tx, sig, &fresh, rung)
		return applyErr
	})
	require.NoError(t, err)

	trade, err = e.GetUserTrade(sig.ID, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, trade.RemainingRiskAmount, 1e-9)
	assert.InDelta(t, 150.0, trade.RealizedPnl, 1e-9)

	var joins []models.UserTradeTakeProfitUpdate
	require.NoError(t, e.db.Where("user_trade_id = ?", tradeRec.ID).Find(&joins).Error)
	assert.Len(t, joins, 1)
}

func TestEditRung(t *testing.T) {
	t.Run("Label and note editable after application", func(t *testing.T) {
		e, notifier := newTestEngine(t)
		sig := publishBuySignal(t, e)
		_, err := e.OpenTrade(sig.ID, 1, 10000, 2)
		require.NoError(t, err)

		rung, _, err := e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 115, ClosePercent: 50})
		require.NoError(t, err)

		label := "TP1 (partial)"
		note := "locking in half"
		edited, _, err := e.EditRung(rung.ID, EditRungInput{TPLabel: &label, Note: &note})
		require.NoError(t, err)
		assert.Equal(t, label, edited.TPLabel)
		assert.Equal(t, note, edited.Note)
		assert.Equal(t, notify.EventTradeUpdateEdited, notifier.last().Type)
	})

	t.Run("Price frozen once applied to a trade", func(t *testing.T) {
		e, _ := newTestEngine(t)
		sig := publishBuySignal(t, e)
		_, err := e.OpenTrade(sig.ID, 1, 10000, 2)
		require.NoError(t, err)

		rung, _, err := e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 115, ClosePercent: 50})
		require.NoError(t, err)

		price := 120.0
		_, _, err = e.EditRung(rung.ID, EditRungInput{TPPrice: &price})
		assert.ErrorIs(t, err, ErrImmutableField)
	})

	t.Run("Unapplied rung fully editable with revalidation", func(t *testing.T) {
		e, _ := newTestEngine(t)
		sig := publishBuySignal(t, e) // no trades opened

		rung, _, err := e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 115, ClosePercent: 50})
		require.NoError(t, err)

		bad := 95.0
		_, _, err = e.EditRung(rung.ID, EditRungInput{TPPrice: &bad})
		assert.ErrorIs(t, err, ErrInvalidPriceForDirection)

		over := 101.0
		_, _, err = e.EditRung(rung.ID, EditRungInput{ClosePercent: &over})
		assert.ErrorIs(t, err, ErrLadderOverflow)

		price := 120.0
		percent := 75.0
		edited, _, err := e.EditRung(rung.ID, EditRungInput{TPPrice: &price, ClosePercent: &percent})
		require.NoError(t, err)
		assert.Equal(t, price, edited.TPPrice)
		assert.Equal(t, percent, edited.ClosePercent)
	})
}

func TestDeleteRung(t *testing.T) {
	t.Run("Unapplied rung deletable", func(t *testing.T) {
		e, notifier := newTestEngine(t)
		sig := publishBuySignal(t, e)

		rung, _, err := e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 115, ClosePercent: 50})
		require.NoError(t, err)

		_, err = e.DeleteRung(rung.ID)
		require.NoError(t, err)
		assert.Equal(t, notify.EventTradeUpdateDeleted, notifier.last().Type)

		rungs, err := e.ListRungs(sig.ID)
		require.NoError(t, err)
		assert.Empty(t, rungs)
	})

	t.Run("Applied rung is settlement history", func(t *testing.T) {
		e, _ := newTestEngine(t)
		sig := publishBuySignal(t, e)
		_, err := e.OpenTrade(sig.ID, 1, 10000, 2)
		require.NoError(t, err)

		rung, _, err := e.AddRung(sig.ID, AddRungInput{TPLabel: "TP1", TPPrice: 115, ClosePercent: 50})
		require.NoError(t, err)

		_, err = e.DeleteRung(rung.ID)
		assert.ErrorIs(t, err, ErrImmutableField)
	})
}
