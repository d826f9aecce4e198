package service

import (
	"time"

	"marketplace/internal/models"
	"marketplace/internal/util"
)

// MetricsSink receives saga counters. *util.Metrics implements it.
type MetricsSink interface {
	ObserveOrder(outcome *models.OrderOutcome)
	ObserveSellerCall(verb, result string, latency time.Duration)
	Snapshot() util.Stats
}

var _ MetricsSink = (*util.Metrics)(nil)

type nopMetrics struct{}

func (nopMetrics) ObserveOrder(*models.OrderOutcome)               {}
func (nopMetrics) ObserveSellerCall(string, string, time.Duration) {}
func (nopMetrics) Snapshot() util.Stats                            { return util.Stats{} }
