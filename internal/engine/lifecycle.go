package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"trade-signal-engine-go/internal/models"
	"trade-signal-engine-go/internal/notify"
	"trade-signal-engine-go/internal/riskmath"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// validTransitions defines the legal status transitions of a signal.
var validTransitions = map[models.Status][]models.Status{
	models.StatusUpcoming: {models.StatusActive},
	models.StatusActive:   {models.StatusTPHit, models.StatusSLHit, models.StatusBreakeven},
	// Terminal statuses have no outgoing transitions.
	models.StatusTPHit:     {},
	models.StatusSLHit:     {},
	models.StatusBreakeven: {},
}

// CanTransition reports whether a status change is legal.
func CanTransition(from, to models.Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// CreateSignalInput describes a new signal.
type CreateSignalInput struct {
	Pair       string
	Category   string
	Direction  models.Direction
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	MarketMode models.MarketMode
	Stage      models.UpcomingStage
	Publish    bool // publish immediately instead of creating a draft
}

// CreateSignal creates a draft, or a published active signal when
// input.Publish is set. A draft's prices stay editable until publication.
func (e *Engine) CreateSignal(input CreateSignalInput) (*models.Signal, notify.DeliveryResult, error) {
	if input.Direction != models.DirectionBuy && input.Direction != models.DirectionSell {
		return nil, notify.DeliveryResult{}, fmt.Errorf("%w: direction must be BUY or SELL", ErrInvalidPriceForDirection)
	}
	if input.MarketMode == "" {
		input.MarketMode = models.MarketModeSimulated
	}

	sig := models.Signal{
		Pair:       input.Pair,
		Category:   input.Category,
		Direction:  input.Direction,
		EntryPrice: input.EntryPrice,
		StopLoss:   input.StopLoss,
		TakeProfit: input.TakeProfit,
		MarketMode: input.MarketMode,
		Stage:      input.Stage,
		Status:     models.StatusUpcoming,
		SignalType: models.SignalTypeUpcoming,
	}

	eventType := notify.EventSignalCreated
	if input.Publish {
		if err := riskmath.ValidatePrices(input.Direction, input.EntryPrice, input.StopLoss, input.TakeProfit, false); err != nil {
			return nil, notify.DeliveryResult{}, fmt.Errorf("%w: %v", ErrInvalidPriceForDirection, err)
		}
		sig.Status = models.StatusActive
		sig.SignalType = models.SignalTypeSignal
		sig.InitialStopLoss = input.StopLoss
		sig.Stage = ""
		eventType = notify.EventSignalActivated
	}

	if err := e.db.Create(&sig).Error; err != nil {
		return nil, notify.DeliveryResult{}, fmt.Errorf("could not create signal: %w", err)
	}

	e.logger.Info("Signal created",
		zap.Uint("signal_id", sig.ID),
		zap.String("pair", sig.Pair),
		zap.String("direction", string(sig.Direction)),
		zap.String("status", string(sig.Status)))

	delivery := e.dispatch(baseEvent(eventType, &sig))
	return &sig, delivery, nil
}

// PublishSignal promotes an upcoming signal to active and freezes its
// entry/stop/target permanently. Guarded by the signal's current type, so a
// double publish is a no-op failure rather than a second activation event.
func (e *Engine) PublishSignal(id uint) (*models.Signal, notify.DeliveryResult, error) {
	sig, err := e.GetSignal(id)
	if err != nil {
		return nil, notify.DeliveryResult{}, err
	}
	if sig.Published() {
		return nil, notify.DeliveryResult{}, fmt.Errorf("signal %d: %w", id, ErrNotUpcoming)
	}
	if err := riskmath.ValidatePrices(sig.Direction, sig.EntryPrice, sig.StopLoss, sig.TakeProfit, false); err != nil {
		return nil, notify.DeliveryResult{}, fmt.Errorf("%w: %v", ErrInvalidPriceForDirection, err)
	}

	res := e.db.Model(&models.Signal{}).
		Where("id = ? AND signal_type = ?", id, models.SignalTypeUpcoming).
		Updates(map[string]any{
			"signal_type":       models.SignalTypeSignal,
			"status":            models.StatusActive,
			"initial_stop_loss": sig.StopLoss,
			"stage":             "",
		})
	if res.Error != nil {
		return nil, notify.DeliveryResult{}, fmt.Errorf("could not publish signal %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notify.DeliveryResult{}, fmt.Errorf("signal %d: %w", id, ErrNotUpcoming)
	}

	sig, err = e.GetSignal(id)
	if err != nil {
		return nil, notify.DeliveryResult{}, err
	}

	e.logger.Info("Signal published",
		zap.Uint("signal_id", sig.ID),
		zap.String("pair", sig.Pair),
		zap.Float64("entry", sig.EntryPrice),
		zap.Float64("stop", sig.StopLoss),
		zap.Float64("target", sig.TakeProfit))

	delivery := e.dispatch(baseEvent(notify.EventSignalActivated, sig))
	return sig, delivery, nil
}

// EditSignalInput patches a signal. Nil fields are left untouched.
type EditSignalInput struct {
	Pair           *string
	Category       *string
	EntryPrice     *float64
	StopLoss       *float64
	TakeProfit     *float64
	Stage          *models.UpcomingStage
	NotifyOnUpdate *bool
	NotifyOnClose  *bool
}

// touchesFrozen reports whether the patch modifies fields frozen at publication.
func (in *EditSignalInput) touchesFrozen() bool {
	return in.Pair != nil || in.EntryPrice != nil || in.StopLoss != nil || in.TakeProfit != nil
}

// EditSignal applies a patch. Upcoming signals are fully editable; published
// signals accept only category, stage and notification flag changes.
func (e *Engine) EditSignal(id uint, input EditSignalInput) (*models.Signal, error) {
	sig, err := e.GetSignal(id)
	if err != nil {
		return nil, err
	}
	if sig.Published() && input.touchesFrozen() {
		return nil, fmt.Errorf("signal %d: %w", id, ErrImmutableField)
	}

	patch := map[string]any{}
	if input.Pair != nil {
		patch["pair"] = *input.Pair
	}
	if input.Category != nil {
		patch["category"] = *input.Category
	}
	if input.EntryPrice != nil {
		patch["entry_price"] = *input.EntryPrice
	}
	if input.StopLoss != nil {
		patch["stop_loss"] = *input.StopLoss
	}
	if input.TakeProfit != nil {
		patch["take_profit"] = *input.TakeProfit
	}
	if input.Stage != nil {
		patch["stage"] = *input.Stage
	}
	if input.NotifyOnUpdate != nil {
		patch["notify_on_update"] = *input.NotifyOnUpdate
	}
	if input.NotifyOnClose != nil {
		patch["notify_on_close"] = *input.NotifyOnClose
	}
	if len(patch) == 0 {
		return sig, nil
	}

	if err := e.db.Model(&models.Signal{}).Where("id = ?", id).Updates(patch).Error; err != nil {
		return nil, fmt.Errorf("could not edit signal %d: %w", id, err)
	}
	return e.GetSignal(id)
}

// DeleteUpcomingSignal removes a draft. Published signals are never deleted.
func (e *Engine) DeleteUpcomingSignal(id uint) error {
	res := e.db.Where("id = ? AND signal_type = ?", id, models.SignalTypeUpcoming).Delete(&models.Signal{})
	if res.Error != nil {
		return fmt.Errorf("could not delete signal %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := e.GetSignal(id); err != nil {
			return err // not found
		}
		return fmt.Errorf("signal %d is published: %w", id, ErrNotUpcoming)
	}
	e.logger.Info("Upcoming signal deleted", zap.Uint("signal_id", id))
	return nil
}

// ArmBreakeven moves the stop loss to the entry price on an active signal.
// Status is unchanged, but any later stop-out settles as breakeven instead of
// a loss. Guarded by the current status so it cannot race a settlement.
func (e *Engine) ArmBreakeven(id uint) (*models.Signal, notify.DeliveryResult, error) {
	sig, err := e.GetSignal(id)
	if err != nil {
		return nil, notify.DeliveryResult{}, err
	}
	if !sig.Published() {
		return nil, notify.DeliveryResult{}, fmt.Errorf("signal %d: %w", id, ErrSignalNotActive)
	}
	if sig.Status.IsTerminal() {
		return nil, notify.DeliveryResult{}, fmt.Errorf("signal %d: %w", id, ErrAlreadyTerminal)
	}

	res := e.db.Model(&models.Signal{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Update("stop_loss", sig.EntryPrice)
	if res.Error != nil {
		return nil, notify.DeliveryResult{}, fmt.Errorf("could not arm breakeven on signal %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notify.DeliveryResult{}, fmt.Errorf("signal %d: %w", id, ErrAlreadyTerminal)
	}

	sig, err = e.GetSignal(id)
	if err != nil {
		return nil, notify.DeliveryResult{}, err
	}

	e.logger.Info("Stop loss moved to breakeven",
		zap.Uint("signal_id", sig.ID),
		zap.String("pair", sig.Pair),
		zap.Float64("entry", sig.EntryPrice))

	var delivery notify.DeliveryResult
	if sig.NotifyOnUpdate {
		delivery = e.dispatch(baseEvent(notify.EventSlMovedToBreakeven, sig))
	}
	return sig, delivery, nil
}

// OpenTrade derives one subscriber's exposure to a published signal. The risk
// amount is frozen here from the subscriber's balance; rungs already posted on
// the signal are applied immediately so the trade's exposure matches the
// ladder's cumulative close percent.
func (e *Engine) OpenTrade(signalID, userID uint, balance, riskPercent float64) (*models.UserTrade, error) {
	if len(e.cfg.Risk.AllowedPercents) > 0 && !slices.Contains(e.cfg.Risk.AllowedPercents, riskPercent) {
		return nil, fmt.Errorf("%.2f%%: %w", riskPercent, ErrRiskTierNotAllowed)
	}

	var trade models.UserTrade
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var sig models.Signal
		if err := tx.First(&sig, signalID).Error; err != nil {
			return fmt.Errorf("could not load signal %d: %w", signalID, err)
		}
		if !sig.Published() {
			return fmt.Errorf("signal %d: %w", signalID, ErrSignalNotActive)
		}
		if sig.Status.IsTerminal() {
			return fmt.Errorf("signal %d: %w", signalID, ErrAlreadyTerminal)
		}

		riskAmount := riskmath.RiskAmount(balance, riskPercent)
		trade = models.UserTrade{
			UserID:              userID,
			SignalID:            signalID,
			RiskPercent:         riskPercent,
			RiskAmount:          riskAmount,
			InitialRiskAmount:   riskAmount,
			RemainingRiskAmount: riskAmount,
			Result:              models.ResultPending,
		}
		if err := tx.Create(&trade).Error; err != nil {
			return fmt.Errorf("could not create trade: %w", err)
		}

		var rungs []models.TakeProfitUpdate
		if err := tx.Where("signal_id = ?", signalID).Order("id asc").Find(&rungs).Error; err != nil {
			return fmt.Errorf("could not load ladder: %w", err)
		}
		for i := range rungs {
			if _, err := applyRungToTrade(tx, &sig, &trade, &rungs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("User trade opened",
		zap.Uint("signal_id", signalID),
		zap.Uint("user_id", userID),
		zap.Float64("risk_amount", trade.RiskAmount))
	return &trade, nil
}

// CloseResult reports a terminal settlement: the status actually applied
// (breakeven precedence may rewrite the request), the R-multiple the
// remainder settled at, and the delivery outcome of the close notification.
type CloseResult struct {
	Signal       *models.Signal
	Applied      models.Status
	RR           float64
	SettledCount int
	Notification notify.DeliveryResult
}

// RequestClose settles a signal terminally. quotedAt carries the quote
// timestamp when the close came from the live evaluator, nil for manual
// closes.
//
// The status update is a compare-and-set on "still active": when two closers
// race, exactly one settles and the other observes ErrAlreadyTerminal. Every
// open trade of the signal settles its remaining risk inside the same
// transaction; the close notification goes out only after commit.
func (e *Engine) RequestClose(id uint, requested models.Status, quotedAt *time.Time) (*CloseResult, error) {
	if !requested.IsTerminal() {
		return nil, fmt.Errorf("requested status %q is not terminal", requested)
	}

	result := &CloseResult{}
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var sig models.Signal
		if err := tx.First(&sig, id).Error; err != nil {
			return fmt.Errorf("could not load signal %d: %w", id, err)
		}
		if !sig.Published() {
			return fmt.Errorf("signal %d: %w", id, ErrSignalNotActive)
		}
		if sig.Status.IsTerminal() {
			return fmt.Errorf("signal %d: %w", id, ErrAlreadyTerminal)
		}

		applied, closePrice, rr, err := resolveClose(tx, &sig, requested)
		if err != nil {
			return err
		}

		now := time.Now()
		patch := map[string]any{
			"status":      applied,
			"close_price": closePrice,
			"closed_at":   now,
		}
		if quotedAt != nil {
			patch["close_quoted_at"] = *quotedAt
		}

		res := tx.Model(&models.Signal{}).
			Where("id = ? AND status = ?", id, models.StatusActive).
			Updates(patch)
		if res.Error != nil {
			return fmt.Errorf("could not close signal %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("signal %d: %w", id, ErrAlreadyTerminal)
		}

		settled, err := settleOpenTrades(tx, id, rr, now)
		if err != nil {
			return err
		}

		sig.Status = applied
		sig.ClosePrice = closePrice
		sig.ClosedAt = &now
		if quotedAt != nil {
			sig.CloseQuotedAt = quotedAt
		}
		result.Signal = &sig
		result.Applied = applied
		result.RR = rr
		result.SettledCount = settled
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Signal closed",
		zap.Uint("signal_id", id),
		zap.String("status", string(result.Applied)),
		zap.Float64("close_price", result.Signal.ClosePrice),
		zap.Float64("rr", result.RR),
		zap.Int("trades_settled", result.SettledCount))

	if result.Signal.NotifyOnClose {
		event := baseEvent(notify.EventSignalClosed, result.Signal)
		event.Status = result.Applied
		event.ClosePrice = result.Signal.ClosePrice
		event.RR = result.RR
		result.Notification = e.dispatch(event)
	}
	return result, nil
}

// resolveClose maps the requested terminal onto the applied terminal, close
// price and settlement R-multiple.
//
// Armed breakeven takes precedence: with the stop at entry, a requested SLHit
// or Breakeven always settles as breakeven at RR 0. A TPHit settles at
// take_profit, or at the furthest ladder rung when one sits beyond it, with
// the R-multiple measured against the initial stop distance.
func resolveClose(tx *gorm.DB, sig *models.Signal, requested models.Status) (models.Status, float64, float64, error) {
	if sig.BreakevenArmed() && (requested == models.StatusSLHit || requested == models.StatusBreakeven) {
		return models.StatusBreakeven, sig.EntryPrice, 0, nil
	}

	switch requested {
	case models.StatusTPHit:
		closePrice, err := bestOutstandingTarget(tx, sig)
		if err != nil {
			return "", 0, 0, err
		}
		rr, err := riskmath.RRToPrice(sig.Direction, sig.EntryPrice, sig.InitialStopLoss, closePrice)
		if err != nil {
			return "", 0, 0, err
		}
		return models.StatusTPHit, closePrice, rr, nil
	case models.StatusSLHit:
		// Not armed: a stop-out is -1R by construction.
		return models.StatusSLHit, sig.StopLoss, -1, nil
	case models.StatusBreakeven:
		return "", 0, 0, fmt.Errorf("signal %d: %w", sig.ID, ErrBreakevenNotArmed)
	case models.StatusUpcoming, models.StatusActive:
		return "", 0, 0, fmt.Errorf("requested status %q is not terminal", requested)
	}
	return "", 0, 0, fmt.Errorf("unknown status %q", requested)
}

// bestOutstandingTarget picks the close price for a TPHit: the signal's own
// take profit, unless a ladder rung sits beyond it (higher for BUY, lower for
// SELL), in which case the furthest rung is the outstanding target.
func bestOutstandingTarget(tx *gorm.DB, sig *models.Signal) (float64, error) {
	var rungs []models.TakeProfitUpdate
	if err := tx.Where("signal_id = ?", sig.ID).Find(&rungs).Error; err != nil {
		return 0, fmt.Errorf("could not load ladder for signal %d: %w", sig.ID, err)
	}

	best := sig.TakeProfit
	for _, rung := range rungs {
		switch sig.Direction {
		case models.DirectionBuy:
			if rung.TPPrice > best {
				best = rung.TPPrice
			}
		case models.DirectionSell:
			if rung.TPPrice < best {
				best = rung.TPPrice
			}
		}
	}
	return best, nil
}

// settleOpenTrades settles the remaining risk of every pending trade of the
// signal at the given R-multiple. Already-terminal trades are untouched.
func settleOpenTrades(tx *gorm.DB, signalID uint, rr float64, closedAt time.Time) (int, error) {
	var trades []models.UserTrade
	if err := tx.Where("signal_id = ? AND result = ?", signalID, models.ResultPending).Find(&trades).Error; err != nil {
		return 0, fmt.Errorf("could not load open trades for signal %d: %w", signalID, err)
	}

	for i := range trades {
		trade := &trades[i]
		pnl := trade.RealizedPnl + riskmath.MoneyFromRR(trade.RemainingRiskAmount, rr)

		// Result follows the sign of the final pnl; a breakeven close with
		// ladder profit already realized still counts as a win.
		var outcome models.TradeResult
		switch {
		case pnl > 0:
			outcome = models.ResultWin
		case pnl < 0:
			outcome = models.ResultLoss
		default:
			outcome = models.ResultBreakeven
		}

		res := tx.Model(&models.UserTrade{}).
			Where("id = ? AND result = ?", trade.ID, models.ResultPending).
			Updates(map[string]any{
				"pnl":                   pnl,
				"remaining_risk_amount": 0,
				"result":                outcome,
				"closed_at":             closedAt,
				"last_update_at":        closedAt,
			})
		if res.Error != nil {
			return 0, fmt.Errorf("could not settle trade %d: %w", trade.ID, res.Error)
		}
	}
	return len(trades), nil
}

// GetUserTrade loads one subscriber's trade on a signal.
func (e *Engine) GetUserTrade(signalID, userID uint) (*models.UserTrade, error) {
	var trade models.UserTrade
	err := e.db.Where("signal_id = ? AND user_id = ?", signalID, userID).First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no trade for user %d on signal %d: %w", userID, signalID, err)
		}
		return nil, fmt.Errorf("could not load trade: %w", err)
	}
	return &trade, nil
}

// TradeFilter narrows ListUserTrades. Zero values are ignored.
type TradeFilter struct {
	UserID   uint
	SignalID uint
	Result   models.TradeResult
	OnlyOpen bool
}

// ListUserTrades returns trades matching the filter, newest first.
func (e *Engine) ListUserTrades(filter TradeFilter) ([]models.UserTrade, error) {
	q := e.db.Order("created_at desc")
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.SignalID != 0 {
		q = q.Where("signal_id = ?", filter.SignalID)
	}
	if filter.Result != "" {
		q = q.Where("result = ?", filter.Result)
	}
	if filter.OnlyOpen {
		q = q.Where("result = ?", models.ResultPending)
	}

	var trades []models.UserTrade
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("could not list trades: %w", err)
	}
	return trades, nil
}
