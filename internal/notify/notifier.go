// Package notify carries engine lifecycle events to the external messaging
// collaborator. Delivery is best-effort: the engine commits its domain state
// first and reports delivery separately, a failed send never rolls anything
// back.
package notify

import (
	"trade-signal-engine-go/internal/models"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventSignalCreated       EventType = "signal_created"
	EventSignalActivated     EventType = "signal_activated"
	EventTradeUpdatePosted   EventType = "trade_update_posted"
	EventTradeUpdateEdited   EventType = "trade_update_edited"
	EventTradeUpdateDeleted  EventType = "trade_update_deleted"
	EventSlMovedToBreakeven  EventType = "sl_moved_to_breakeven"
	EventSignalClosed        EventType = "signal_closed"
)

// Event is one lifecycle notification. Every event carries the signal's core
// prices; the remaining fields are event-specific.
type Event struct {
	Type       EventType
	Pair       string
	Category   string
	Direction  models.Direction
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64

	// Ladder events.
	TPLabel      string
	TPPrice      float64
	ClosePercent float64
	Note         string

	// Close events.
	Status     models.Status
	ClosePrice float64
	RR         float64
}

// DeliveryResult reports the outcome of a best-effort notification dispatch.
type DeliveryResult struct {
	Attempted bool  `json:"attempted"`
	Delivered bool  `json:"delivered"`
	Err       error `json:"-"`
}

// Notifier delivers events to subscribers.
type Notifier interface {
	Notify(event Event) DeliveryResult
}

// NopNotifier discards all events. Used when delivery is disabled and in tests.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(Event) DeliveryResult {
	return DeliveryResult{Attempted: false, Delivered: false}
}
