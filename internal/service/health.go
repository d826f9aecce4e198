package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// SellerHealth is the result of probing one seller
type SellerHealth struct {
	Endpoint  string  `json:"endpoint"`
	Healthy   bool    `json:"healthy"`
	Reply     string  `json:"reply,omitempty"`
	Error     string  `json:"error,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
}

// HealthChecker probes every configured seller concurrently
type HealthChecker struct {
	endpoints []string
	sellers   *SellerClient
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(endpoints []string, sellers *SellerClient) *HealthChecker {
	return &HealthChecker{endpoints: endpoints, sellers: sellers}
}

// Check pings all sellers and returns their status in endpoint order.
// Any non-empty reply counts as alive.
func (h *HealthChecker) Check(ctx context.Context) []SellerHealth {
	results := make([]SellerHealth, len(h.endpoints))

	var g errgroup.Group
	for i, endpoint := range h.endpoints {
		i, endpoint := i, endpoint
		g.Go(func() error {
			res := h.sellers.Ping(ctx, endpoint)
			health := SellerHealth{
				Endpoint:  endpoint,
				Healthy:   res.Raw != "",
				LatencyMs: float64(res.Latency) / float64(time.Millisecond),
			}
			health.Reply = res.Raw
			if res.Err != nil && !health.Healthy {
				health.Error = res.Err.Error()
			}
			results[i] = health
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Healthy reports whether every seller answered the probe
func Healthy(results []SellerHealth) bool {
	for _, r := range results {
		if !r.Healthy {
			return false
		}
	}
	return true
}
