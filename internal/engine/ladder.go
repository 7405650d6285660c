package engine

import (
	"errors"
	"fmt"
	"time"

	"trade-signal-engine-go/internal/models"
	"trade-signal-engine-go/internal/notify"
	"trade-signal-engine-go/internal/riskmath"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AddRungInput describes one partial take-profit instruction.
type AddRungInput struct {
	TPLabel      string
	TPPrice      float64
	ClosePercent float64
	Note         string
}

// AddRung posts a ladder rung on an active signal and applies it to every
// open trade in the same transaction. The cumulative close percent is
// re-checked at write time, so a rung racing another rung (or a settlement)
// fails with ErrLadderOverflow / ErrAlreadyTerminal instead of over-closing.
func (e *Engine) AddRung(signalID uint, input AddRungInput) (*models.TakeProfitUpdate, notify.DeliveryResult, error) {
	if input.ClosePercent <= 0 || input.ClosePercent > 100 {
		return nil, notify.DeliveryResult{}, fmt.Errorf("close percent must be in (0,100], got %v: %w", input.ClosePercent, ErrLadderOverflow)
	}

	var rung models.TakeProfitUpdate
	var sig models.Signal
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sig, signalID).Error; err != nil {
			return fmt.Errorf("could not load signal %d: %w", signalID, err)
		}
		if !sig.Published() {
			return fmt.Errorf("signal %d: %w", signalID, ErrSignalNotActive)
		}
		if sig.Status.IsTerminal() {
			return fmt.Errorf("signal %d: %w", signalID, ErrAlreadyTerminal)
		}
		if err := riskmath.ValidateTargetPrice(sig.Direction, sig.EntryPrice, input.TPPrice); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPriceForDirection, err)
		}

		consumed, err := consumedPercent(tx, signalID)
		if err != nil {
			return err
		}
		if consumed+input.ClosePercent > 100 {
			return fmt.Errorf("ladder at %v%%, adding %v%%: %w", consumed, input.ClosePercent, ErrLadderOverflow)
		}

		rung = models.TakeProfitUpdate{
			SignalID:     signalID,
			TPLabel:      input.TPLabel,
			TPPrice:      input.TPPrice,
			ClosePercent: input.ClosePercent,
			Note:         input.Note,
		}
		if err := tx.Create(&rung).Error; err != nil {
			return fmt.Errorf("could not create rung: %w", err)
		}

		var trades []models.UserTrade
		if err := tx.Where("signal_id = ? AND result = ?", signalID, models.ResultPending).Find(&trades).Error; err != nil {
			return fmt.Errorf("could not load open trades: %w", err)
		}
		for i := range trades {
			if _, err := applyRungToTrade(tx, &sig, &trades[i], &rung); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, notify.DeliveryResult{}, err
	}

	e.logger.Info("Ladder rung added",
		zap.Uint("signal_id", signalID),
		zap.String("label", rung.TPLabel),
		zap.Float64("price", rung.TPPrice),
		zap.Float64("close_percent", rung.ClosePercent))

	var delivery notify.DeliveryResult
	if sig.NotifyOnUpdate {
		delivery = e.dispatch(rungEvent(notify.EventTradeUpdatePosted, &sig, &rung))
	}
	return &rung, delivery, nil
}

// applyRungToTrade applies one rung's partial close to one trade. The join
// record's uniqueness makes the application idempotent: a rung already
// applied to the trade is a no-op and the trade's exposure is unchanged.
func applyRungToTrade(tx *gorm.DB, sig *models.Signal, trade *models.UserTrade, rung *models.TakeProfitUpdate) (*models.UserTradeTakeProfitUpdate, error) {
	var existing models.UserTradeTakeProfitUpdate
	err := tx.Where("user_trade_id = ? AND take_profit_update_id = ?", trade.ID, rung.ID).First(&existing).Error
	if err == nil {
		return &existing, nil // already applied
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("could not check rung application: %w", err)
	}

	rr, err := riskmath.RRToPrice(sig.Direction, sig.EntryPrice, sig.InitialStopLoss, rung.TPPrice)
	if err != nil {
		return nil, err
	}

	sliceRisk := trade.InitialRiskAmount * rung.ClosePercent / 100
	delta := riskmath.MoneyFromRR(sliceRisk, rr)

	join := models.UserTradeTakeProfitUpdate{
		UserTradeID:        trade.ID,
		TakeProfitUpdateID: rung.ID,
		ClosePercent:       rung.ClosePercent,
		RealizedPnlDelta:   delta,
	}
	if err := tx.Create(&join).Error; err != nil {
		return nil, fmt.Errorf("could not record rung application: %w", err)
	}

	now := time.Now()
	trade.RemainingRiskAmount -= sliceRisk
	trade.RealizedPnl += delta
	trade.LastUpdateAt = &now
	res := tx.Model(&models.UserTrade{}).
		Where("id = ? AND result = ?", trade.ID, models.ResultPending).
		Updates(map[string]any{
			"remaining_risk_amount": trade.RemainingRiskAmount,
			"realized_pnl":          trade.RealizedPnl,
			"last_update_at":        now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("could not apply rung to trade %d: %w", trade.ID, res.Error)
	}
	return &join, nil
}

// consumedPercent sums the close percent already committed on a signal's ladder.
func consumedPercent(tx *gorm.DB, signalID uint) (float64, error) {
	var consumed float64
	err := tx.Model(&models.TakeProfitUpdate{}).
		Where("signal_id = ?", signalID).
		Select("COALESCE(SUM(close_percent), 0)").
		Scan(&consumed).Error
	if err != nil {
		return 0, fmt.Errorf("could not sum ladder for signal %d: %w", signalID, err)
	}
	return consumed, nil
}

// EditRungInput patches a rung. Nil fields are left untouched.
type EditRungInput struct {
	TPLabel      *string
	TPPrice      *float64
	ClosePercent *float64
	Note         *string
}

// EditRung updates a rung on a non-terminal signal. Price and percent are
// editable only while the rung has not been applied to any trade; once
// applied, the recorded settlement deltas make them immutable.
func (e *Engine) EditRung(rungID uint, input EditRungInput) (*models.TakeProfitUpdate, notify.DeliveryResult, error) {
	var rung models.TakeProfitUpdate
	var sig models.Signal
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rung, rungID).Error; err != nil {
			return fmt.Errorf("could not load rung %d: %w", rungID, err)
		}
		if err := tx.First(&sig, rung.SignalID).Error; err != nil {
			return fmt.Errorf("could not load signal %d: %w", rung.SignalID, err)
		}
		if sig.Status.IsTerminal() {
			return fmt.Errorf("signal %d: %w", sig.ID, ErrAlreadyTerminal)
		}

		patch := map[string]any{}
		if input.TPLabel != nil {
			patch["tp_label"] = *input.TPLabel
			rung.TPLabel = *input.TPLabel
		}
		if input.Note != nil {
			patch["note"] = *input.Note
			rung.Note = *input.Note
		}

		if input.TPPrice != nil || input.ClosePercent != nil {
			applied, err := rungApplications(tx, rungID)
			if err != nil {
				return err
			}
			if applied > 0 {
				return fmt.Errorf("rung %d already applied to %d trades: %w", rungID, applied, ErrImmutableField)
			}

			price := rung.TPPrice
			if input.TPPrice != nil {
				price = *input.TPPrice
			}
			percent := rung.ClosePercent
			if input.ClosePercent != nil {
				percent = *input.ClosePercent
			}
			if percent <= 0 || percent > 100 {
				return fmt.Errorf("close percent must be in (0,100], got %v: %w", percent, ErrLadderOverflow)
			}
			if err := riskmath.ValidateTargetPrice(sig.Direction, sig.EntryPrice, price); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidPriceForDirection, err)
			}
			consumed, err := consumedPercent(tx, sig.ID)
			if err != nil {
				return err
			}
			if consumed-rung.ClosePercent+percent > 100 {
				return fmt.Errorf("ladder at %v%%, rung change to %v%%: %w", consumed, percent, ErrLadderOverflow)
			}
			patch["tp_price"] = price
			patch["close_percent"] = percent
			rung.TPPrice = price
			rung.ClosePercent = percent
		}

		if len(patch) == 0 {
			return nil
		}
		if err := tx.Model(&models.TakeProfitUpdate{}).Where("id = ?", rungID).Updates(patch).Error; err != nil {
			return fmt.Errorf("could not edit rung %d: %w", rungID, err)
		}
		return nil
	})
	if err != nil {
		return nil, notify.DeliveryResult{}, err
	}

	var delivery notify.DeliveryResult
	if sig.NotifyOnUpdate {
		delivery = e.dispatch(rungEvent(notify.EventTradeUpdateEdited, &sig, &rung))
	}
	return &rung, delivery, nil
}

// DeleteRung removes a rung that has not been applied to any trade. Applied
// rungs are part of trade settlement history and cannot be removed.
func (e *Engine) DeleteRung(rungID uint) (notify.DeliveryResult, error) {
	var rung models.TakeProfitUpdate
	var sig models.Signal
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rung, rungID).Error; err != nil {
			return fmt.Errorf("could not load rung %d: %w", rungID, err)
		}
		if err := tx.First(&sig, rung.SignalID).Error; err != nil {
			return fmt.Errorf("could not load signal %d: %w", rung.SignalID, err)
		}
		if sig.Status.IsTerminal() {
			return fmt.Errorf("signal %d: %w", sig.ID, ErrAlreadyTerminal)
		}

		applied, err := rungApplications(tx, rungID)
		if err != nil {
			return err
		}
		if applied > 0 {
			return fmt.Errorf("rung %d already applied to %d trades: %w", rungID, applied, ErrImmutableField)
		}

		if err := tx.Delete(&models.TakeProfitUpdate{}, rungID).Error; err != nil {
			return fmt.Errorf("could not delete rung %d: %w", rungID, err)
		}
		return nil
	})
	if err != nil {
		return notify.DeliveryResult{}, err
	}

	e.logger.Info("Ladder rung deleted", zap.Uint("signal_id", sig.ID), zap.Uint("rung_id", rungID))

	var delivery notify.DeliveryResult
	if sig.NotifyOnUpdate {
		delivery = e.dispatch(rungEvent(notify.EventTradeUpdateDeleted, &sig, &rung))
	}
	return delivery, nil
}

// ListRungs returns a signal's ladder in insertion order.
func (e *Engine) ListRungs(signalID uint) ([]models.TakeProfitUpdate, error) {
	var rungs []models.TakeProfitUpdate
	if err := e.db.Where("signal_id = ?", signalID).Order("id asc").Find(&rungs).Error; err != nil {
		return nil, fmt.Errorf("could not list rungs for signal %d: %w", signalID, err)
	}
	return rungs, nil
}

// rungApplications counts how many trades a rung has been applied to.
func rungApplications(tx *gorm.DB, rungID uint) (int64, error) {
	var count int64
	err := tx.Model(&models.UserTradeTakeProfitUpdate{}).
		Where("take_profit_update_id = ?", rungID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("could not count rung applications: %w", err)
	}
	return count, nil
}

func rungEvent(eventType notify.EventType, sig *models.Signal, rung *models.TakeProfitUpdate) notify.Event {
	event := baseEvent(eventType, sig)
	event.TPLabel = rung.TPLabel
	event.TPPrice = rung.TPPrice
	event.ClosePercent = rung.ClosePercent
	event.Note = rung.Note
	return event
}
