package notify

import (
	"fmt"
	"strings"

	"trade-signal-engine-go/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const telegramBaseURL = "https://api.telegram.org"

// TelegramNotifier posts formatted events to a Telegram channel via the Bot API.
type TelegramNotifier struct {
	client *resty.Client
	token  string
	chatID string
	logger *zap.Logger
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier creates a notifier for the configured bot and chat.
func NewTelegramNotifier(cfg *config.Telegram, logger *zap.Logger) *TelegramNotifier {
	client := resty.New().SetBaseURL(telegramBaseURL)
	return &TelegramNotifier{
		client: client,
		token:  cfg.BotToken,
		chatID: cfg.ChatID,
		logger: logger.Named("telegram"),
	}
}

// Notify implements Notifier. Errors are returned in the result, never raised.
func (n *TelegramNotifier) Notify(event Event) DeliveryResult {
	text := FormatEvent(event)

	resp, err := n.client.R().
		SetFormData(map[string]string{
			"chat_id": n.chatID,
			"text":    text,
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", n.token))

	result := DeliveryResult{Attempted: true}
	if err != nil {
		n.logger.Warn("Telegram delivery failed", zap.String("event", string(event.Type)), zap.Error(err))
		result.Err = err
		return result
	}
	if resp.IsError() {
		err := fmt.Errorf("telegram sendMessage returned status %s", resp.Status())
		n.logger.Warn("Telegram delivery rejected", zap.String("event", string(event.Type)), zap.Error(err))
		result.Err = err
		return result
	}

	result.Delivered = true
	return result
}

// FormatEvent renders an event as the plain-text message sent to subscribers.
func FormatEvent(event Event) string {
	var b strings.Builder

	header := map[EventType]string{
		EventSignalCreated:      "New upcoming signal",
		EventSignalActivated:    "Signal activated",
		EventTradeUpdatePosted:  "Trade update",
		EventTradeUpdateEdited:  "Trade update edited",
		EventTradeUpdateDeleted: "Trade update removed",
		EventSlMovedToBreakeven: "Stop loss moved to breakeven",
		EventSignalClosed:       "Signal closed",
	}[event.Type]
	if header == "" {
		header = string(event.Type)
	}

	fmt.Fprintf(&b, "%s: %s %s", header, event.Pair, event.Direction)
	if event.Category != "" {
		fmt.Fprintf(&b, " (%s)", event.Category)
	}
	fmt.Fprintf(&b, "\nEntry %v | SL %v | TP %v", event.EntryPrice, event.StopLoss, event.TakeProfit)

	switch event.Type {
	case EventTradeUpdatePosted, EventTradeUpdateEdited, EventTradeUpdateDeleted:
		fmt.Fprintf(&b, "\n%s @ %v, closing %v%%", event.TPLabel, event.TPPrice, event.ClosePercent)
		if event.Note != "" {
			fmt.Fprintf(&b, "\n%s", event.Note)
		}
	case EventSignalClosed:
		fmt.Fprintf(&b, "\nResult: %s @ %v (%.2fR)", event.Status, event.ClosePrice, event.RR)
	case EventSignalCreated, EventSignalActivated, EventSlMovedToBreakeven:
		// Core prices already cover these.
	}

	return b.String()
}
