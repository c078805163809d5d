package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PollerConfig holds poller configuration.
type PollerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval: 5 * time.Second,
		Timeout:  15 * time.Second,
	}
}

// Poller periodically reconciles one workflow against the backend. Ticks
// run on a single goroutine, so a new pass never starts while the previous
// one is still being applied.
type Poller struct {
	orc      *Orchestrator
	config   PollerConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a poller for one orchestrator.
func NewPoller(orc *Orchestrator, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollerConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPollerConfig().Timeout
	}
	return &Poller{
		orc:    orc,
		config: cfg,
		logger: logger.With("component", "poller", "workflow_id", orc.ID()),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the polling loop. Blocks until ctx is cancelled or Stop is
// called.
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("poller started", "interval", p.config.Interval)
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping (context cancelled)")
			close(p.doneCh)
			return ctx.Err()
		case <-p.stopCh:
			p.logger.Info("poller stopping (stop called)")
			close(p.doneCh)
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Stop shuts the poller down and waits for the current tick to finish.
// Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		<-p.doneCh
	})
}

// Tick runs a single reconciliation pass. Transient fetch failures are
// logged and swallowed: the previous tree stays in place and the next tick
// tries again.
func (p *Poller) Tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	if err := p.orc.Refresh(tickCtx); err != nil {
		p.logger.Warn("poll failed, keeping last status", "error", err)
	}
}
