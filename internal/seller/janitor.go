package seller

import (
	"context"
	"time"

	"marketplace/internal/ledger"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// Janitor periodically releases reservations nobody committed or cancelled
type Janitor struct {
	ledger   ledger.Ledger
	ttl      time.Duration
	interval time.Duration
	observer Observer
	logger   *zap.Logger
}

// NewJanitor creates a new janitor
func NewJanitor(l ledger.Ledger, ttl, interval time.Duration, observer Observer) *Janitor {
	if observer == nil {
		observer = nopObserver{}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		ledger:   l,
		ttl:      ttl,
		interval: interval,
		observer: observer,
		logger:   util.GetLogger().Named("janitor"),
	}
}

// Run sweeps on every tick until ctx is done
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("Reservation sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep releases every reservation older than the ttl once
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	released, err := j.ledger.Expire(ctx, j.ttl)
	if released > 0 {
		j.observer.ObserveExpired(released)
		j.logger.Warn("Released stale reservations",
			zap.Int("count", released),
			zap.Duration("ttl", j.ttl))
	}
	return released, err
}
