// Package monitor runs the periodic poll loop over the configured targets.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ramkansal/stockwatch/internal/engine"
	"github.com/ramkansal/stockwatch/internal/notify"
	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// Checker is the part of the engine the poller drives.
type Checker interface {
	CheckStock(ctx context.Context, url string) (plugin.Status, plugin.CheckInfo, error)
	Target(url string) (*engine.Target, bool)
}

// Poller sweeps the target list on a fixed interval, rate-limiting the
// checks and feeding outcomes to the notification throttle. Targets are
// checked sequentially; the per-check fan-out inside the engine is
// concurrency enough for one host.
type Poller struct {
	checker  Checker
	throttle *notify.Throttle
	limiter  *rate.Limiter
	interval time.Duration
	targets  []string
	log      *zap.Logger
}

// Config holds poll loop configuration.
type Config struct {
	Interval   time.Duration
	RatePerMin float64
	Targets    []string
}

// New creates a poller over the given targets.
func New(cfg Config, checker Checker, throttle *notify.Throttle, log *zap.Logger) *Poller {
	perSec := cfg.RatePerMin / 60
	if perSec <= 0 {
		perSec = 0.5
	}
	return &Poller{
		checker:  checker,
		throttle: throttle,
		limiter:  rate.NewLimiter(rate.Limit(perSec), 1),
		interval: cfg.Interval,
		targets:  cfg.Targets,
		log:      log,
	}
}

// Run polls until ctx is cancelled. The first sweep starts immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			// Final flush so queued events are not silently dropped.
			p.throttle.Flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Poller) sweep(ctx context.Context) {
	for _, url := range p.targets {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		status, info, err := p.checker.CheckStock(ctx, url)
		if err != nil {
			p.log.Warn("check failed", zap.String("url", url), zap.Error(err))
		}

		item := notify.Item{ID: url, URL: url}
		if t, ok := p.checker.Target(url); ok {
			item.ID = t.ID
		}
		p.throttle.OnStatusObserved(item, status, info.Confidence)

		if p.throttle.Due() {
			p.throttle.Flush(ctx)
		}
	}
	if p.throttle.Due() {
		p.throttle.Flush(ctx)
	}
}
