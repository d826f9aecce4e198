package seller

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"marketplace/internal/transport"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// FaultConfig selects the failures a seller simulates
type FaultConfig struct {
	// CrashProbability drops the request before it reaches the ledger
	CrashProbability float64
	// LostAckProbability applies the request but drops the reply
	LostAckProbability float64
	// AvgLatency is the mean of a gaussian processing delay; zero disables it
	AvgLatency time.Duration
}

// Enabled reports whether any fault is configured
func (c FaultConfig) Enabled() bool {
	return c.CrashProbability > 0 || c.LostAckProbability > 0 || c.AvgLatency > 0
}

var _ transport.Handler = (*FaultInjector)(nil)

// FaultInjector decorates a handler with latency, crashes and lost replies
type FaultInjector struct {
	next   transport.Handler
	cfg    FaultConfig
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFaultInjector creates a new fault injector seeded with seed
func NewFaultInjector(next transport.Handler, cfg FaultConfig, seed int64) *FaultInjector {
	return &FaultInjector{
		next:   next,
		cfg:    cfg,
		logger: util.GetLogger().Named("faults"),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// roll returns a processing delay and the two fault decisions for one request
func (f *FaultInjector) roll() (delay time.Duration, crash, loseAck bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cfg.AvgLatency > 0 {
		stddev := float64(f.cfg.AvgLatency) / 4
		delay = time.Duration(float64(f.cfg.AvgLatency) + f.rng.NormFloat64()*stddev)
		if delay < 0 {
			delay = 0
		}
	}
	crash = f.rng.Float64() < f.cfg.CrashProbability
	loseAck = f.rng.Float64() < f.cfg.LostAckProbability
	return delay, crash, loseAck
}

func (f *FaultInjector) Handle(ctx context.Context, request string) (string, bool) {
	delay, crash, loseAck := f.roll()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", false
		}
	}

	if crash {
		f.logger.Warn("Simulated crash, request dropped", zap.String("request", request))
		return "", false
	}

	reply, ok := f.next.Handle(ctx, request)
	if loseAck {
		f.logger.Warn("Simulated lost acknowledgement",
			zap.String("request", request),
			zap.String("reply", reply))
		return "", false
	}
	return reply, ok
}
