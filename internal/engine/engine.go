// Package engine implements the signal and trade risk core: the signal
// lifecycle state machine, the partial take-profit ladder, the live trigger
// evaluator and the per-instrument quote poller. All mutation goes through
// guarded, idempotent writes so a poller tick and a manual provider action can
// race safely; a signal settles terminally at most once, ever.
package engine

import (
	"fmt"

	"trade-signal-engine-go/internal/config"
	"trade-signal-engine-go/internal/models"
	"trade-signal-engine-go/internal/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine is the core signal engine. It owns no in-memory state beyond its
// collaborators; the persisted records are the only shared mutable resource.
type Engine struct {
	logger   *zap.Logger
	cfg      *config.Config
	db       *gorm.DB
	notifier notify.Notifier
}

// NewEngine creates a new signal engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, db *gorm.DB, notifier notify.Notifier) *Engine {
	return &Engine{
		logger:   logger,
		cfg:      cfg,
		db:       db,
		notifier: notifier,
	}
}

// DB exposes the underlying database handle for read-only reporting layers.
func (e *Engine) DB() *gorm.DB {
	return e.db
}

// GetSignal loads one signal by id.
func (e *Engine) GetSignal(id uint) (*models.Signal, error) {
	var sig models.Signal
	if err := e.db.First(&sig, id).Error; err != nil {
		return nil, fmt.Errorf("could not load signal %d: %w", id, err)
	}
	return &sig, nil
}

// ListSignals returns signals filtered by status, newest first. A zero-value
// filter returns everything.
func (e *Engine) ListSignals(filter SignalFilter) ([]models.Signal, error) {
	q := e.db.Order("created_at desc")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Pair != "" {
		q = q.Where("pair = ?", filter.Pair)
	}
	if filter.MarketMode != "" {
		q = q.Where("market_mode = ?", filter.MarketMode)
	}

	var signals []models.Signal
	if err := q.Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("could not list signals: %w", err)
	}
	return signals, nil
}

// SignalFilter narrows ListSignals.
type SignalFilter struct {
	Status     models.Status
	Pair       string
	MarketMode models.MarketMode
}

// baseEvent fills the fields every notification carries.
func baseEvent(eventType notify.EventType, sig *models.Signal) notify.Event {
	return notify.Event{
		Type:       eventType,
		Pair:       sig.Pair,
		Category:   sig.Category,
		Direction:  sig.Direction,
		EntryPrice: sig.EntryPrice,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
	}
}

// dispatch sends an event best-effort after the domain state has been
// committed. The result is handed back to the caller; it never affects the
// transition itself.
func (e *Engine) dispatch(event notify.Event) notify.DeliveryResult {
	result := e.notifier.Notify(event)
	if result.Attempted && !result.Delivered {
		e.logger.Warn("Notification delivery failed",
			zap.String("event", string(event.Type)),
			zap.String("pair", event.Pair),
			zap.Error(result.Err))
	}
	return result
}
