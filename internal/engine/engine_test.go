package engine

import (
	"testing"

	"trade-signal-engine-go/internal/config"
	"trade-signal-engine-go/internal/database"
	"trade-signal-engine-go/internal/models"
	"trade-signal-engine-go/internal/notify"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// recordingNotifier captures dispatched events for assertions.
type recordingNotifier struct {
	events []notify.Event
}

func (n *recordingNotifier) Notify(event notify.Event) notify.DeliveryResult {
	n.events = append(n.events, event)
	return notify.DeliveryResult{Attempted: true, Delivered: true}
}

func (n *recordingNotifier) last() *notify.Event {
	if len(n.events) == 0 {
		return nil
	}
	return &n.events[len(n.events)-1]
}

// newTestEngine creates an engine over a fresh in-memory database.
func newTestEngine(t *testing.T) (*Engine, *recordingNotifier) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// In-memory sqlite is per-connection; keep the pool at one.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{
		Risk:   config.Risk{AllowedPercents: []float64{1, 2, 3}},
		Engine: config.Engine{PollInterval: 30, ScanInterval: 60},
	}
	notifier := &recordingNotifier{}
	return NewEngine(zap.NewNop(), cfg, db, notifier), notifier
}

// publishBuySignal creates and publishes the reference BUY signal
// entry=100 stop=90 target=130.
func publishBuySignal(t *testing.T, e *Engine) *models.Signal {
	t.Helper()
	sig, _, err := e.CreateSignal(CreateSignalInput{
		Pair:       "XAUUSD",
		Category:   "metals",
		Direction:  models.DirectionBuy,
		EntryPrice: 100,
		StopLoss:   90,
		TakeProfit: 130,
		MarketMode: models.MarketModeSimulated,
		Publish:    true,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, sig.Status)
	return sig
}
