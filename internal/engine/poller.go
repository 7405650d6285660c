package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"trade-signal-engine-go/internal/models"
	"trade-signal-engine-go/internal/quotes"
	"go.uber.org/zap"
)

// Poller runs one polling loop per instrument that has at least one live,
// active signal. Loops are started and stopped by a periodic rescan of the
// signal table; each loop fetches one quote per tick and hands any crossing
// to RequestClose. A failed quote fetch just skips the tick.
type Poller struct {
	engine *Engine
	source quotes.QuoteSource
	logger *zap.Logger

	pollInterval time.Duration
	scanInterval time.Duration

	mu    sync.Mutex
	loops map[string]context.CancelFunc
	wg    sync.WaitGroup
}

// NewPoller creates a poller over the engine's live signals.
func NewPoller(engine *Engine, source quotes.QuoteSource) *Poller {
	pollInterval := time.Duration(engine.cfg.Engine.PollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	scanInterval := time.Duration(engine.cfg.Engine.ScanInterval) * time.Second
	if scanInterval <= 0 {
		scanInterval = time.Minute
	}

	return &Poller{
		engine:       engine,
		source:       source,
		logger:       engine.logger.Named("poller"),
		pollInterval: pollInterval,
		scanInterval: scanInterval,
		loops:        make(map[string]context.CancelFunc),
	}
}

// Run blocks until ctx is cancelled, rescanning instruments on a fixed
// interval and keeping one polling loop alive per instrument in play.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Starting live trigger poller",
		zap.Duration("poll_interval", p.pollInterval),
		zap.Duration("scan_interval", p.scanInterval))

	ticker := time.NewTicker(p.scanInterval)
	defer ticker.Stop()

	// Run immediately first time
	p.rescan(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping live trigger poller...")
			p.stopAll()
			p.wg.Wait()
			return
		case <-ticker.C:
			p.rescan(ctx)
		}
	}
}

// rescan reconciles the set of polling loops against the instruments that
// currently have live, active signals.
func (p *Poller) rescan(ctx context.Context) {
	pairs, err := p.liveInstruments()
	if err != nil {
		p.logger.Error("Instrument rescan failed", zap.Error(err))
		return
	}

	wanted := make(map[string]struct{}, len(pairs))
	for _, pair := range pairs {
		wanted[pair] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for pair, cancel := range p.loops {
		if _, ok := wanted[pair]; !ok {
			p.logger.Info("No live active signals remain, stopping loop", zap.String("pair", pair))
			cancel()
			delete(p.loops, pair)
		}
	}

	for pair := range wanted {
		if _, ok := p.loops[pair]; ok {
			continue
		}
		loopCtx, cancel := context.WithCancel(ctx)
		p.loops[pair] = cancel
		p.wg.Add(1)
		go p.runInstrument(loopCtx, pair)
	}
}

// liveInstruments lists distinct pairs with at least one live active signal.
func (p *Poller) liveInstruments() ([]string, error) {
	var pairs []string
	err := p.engine.db.Model(&models.Signal{}).
		Where("market_mode = ? AND status = ?", models.MarketModeLive, models.StatusActive).
		Distinct("pair").
		Pluck("pair", &pairs).Error
	return pairs, err
}

// runInstrument is the per-instrument polling loop.
func (p *Poller) runInstrument(ctx context.Context, pair string) {
	defer p.wg.Done()

	l := p.logger.With(zap.String("pair", pair))
	l.Info("Starting instrument loop")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Info("Instrument loop stopped")
			return
		case <-ticker.C:
			p.tick(ctx, pair)
		}
	}
}

// tick fetches one quote and evaluates every live active signal on the
// instrument. Each tick is a fast synchronous decision once the quote is in
// hand; quote failures are transient and skipped.
func (p *Poller) tick(ctx context.Context, pair string) {
	l := p.logger.With(zap.String("pair", pair))

	quote, err := p.source.LastPrice(ctx, pair)
	if err != nil {
		l.Warn("Quote fetch failed, skipping tick", zap.Error(err))
		return
	}

	signals, err := p.engine.ListSignals(SignalFilter{
		Status:     models.StatusActive,
		Pair:       pair,
		MarketMode: models.MarketModeLive,
	})
	if err != nil {
		l.Error("Could not load signals for tick", zap.Error(err))
		return
	}

	for i := range signals {
		sig := &signals[i]

		rungs, err := p.engine.ListRungs(sig.ID)
		if err != nil {
			l.Error("Could not load ladder", zap.Uint("signal_id", sig.ID), zap.Error(err))
			continue
		}

		plan := Evaluate(sig, len(rungs) > 0, quote)
		if plan == nil {
			continue
		}

		l.Info("Live trigger crossed",
			zap.Uint("signal_id", sig.ID),
			zap.String("terminal", string(plan.Terminal)),
			zap.Float64("quote", quote.Price),
			zap.Float64("close_price", plan.Price))

		quotedAt := plan.QuotedAt
		if _, err := p.engine.RequestClose(plan.SignalID, plan.Terminal, &quotedAt); err != nil {
			// A manual close can win the race; that is the expected outcome.
			if errors.Is(err, ErrAlreadyTerminal) {
				l.Info("Signal already settled by a concurrent close", zap.Uint("signal_id", sig.ID))
				continue
			}
			l.Error("Auto-close failed", zap.Uint("signal_id", sig.ID), zap.Error(err))
		}
	}
}

func (p *Poller) stopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for pair, cancel := range p.loops {
		cancel()
		delete(p.loops, pair)
	}
}
