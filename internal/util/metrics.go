package util

import (
	"sync/atomic"
	"time"

	"marketplace/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// Stats is a point in time view of the saga counters
type Stats struct {
	Total         int64   `json:"total_orders"`
	Completed     int64   `json:"completed_orders"`
	Failed        int64   `json:"failed_orders"`
	Inconsistent  int64   `json:"inconsistent_orders"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	SuccessRatePc float64 `json:"success_rate_pct"`
}

// Metrics is the saga and seller metrics sink. Counters are exported to
// prometheus and mirrored in atomics for the stats endpoint.
type Metrics struct {
	ordersTotal       *prometheus.CounterVec
	ordersInconsist   prometheus.Counter
	sagaLatency       prometheus.Histogram
	sellerCalls       *prometheus.CounterVec
	sellerCallLatency *prometheus.HistogramVec
	sellerRequests    *prometheus.CounterVec
	expired           prometheus.Counter

	total        atomic.Int64
	completed    atomic.Int64
	failed       atomic.Int64
	inconsistent atomic.Int64
	latencyNanos atomic.Int64
}

// NewMetrics creates a metrics sink registered on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ordersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_orders_total",
			Help: "Total number of orders by terminal outcome",
		}, []string{"outcome"}),
		ordersInconsist: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_orders_inconsistent_total",
			Help: "Orders committed at some sellers but not all",
		}),
		sagaLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketplace_saga_duration_seconds",
			Help:    "Time from reserve fan-out to terminal state",
			Buckets: prometheus.DefBuckets,
		}),
		sellerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_seller_calls_total",
			Help: "Seller calls by verb and result",
		}, []string{"verb", "result"}),
		sellerCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketplace_seller_call_duration_seconds",
			Help:    "Seller call round trip latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"verb"}),
		sellerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seller_requests_total",
			Help: "Requests handled by the seller by verb and reply",
		}, []string{"verb", "reply"}),
		expired: factory.NewCounter(prometheus.CounterOpts{
			Name: "seller_reservations_expired_total",
			Help: "Reservations released by the janitor",
		}),
	}
}

// ObserveOrder records a terminal saga outcome
func (m *Metrics) ObserveOrder(outcome *models.OrderOutcome) {
	m.total.Add(1)
	m.latencyNanos.Add(int64(outcome.Duration))
	m.sagaLatency.Observe(outcome.Duration.Seconds())
	m.ordersTotal.WithLabelValues(string(outcome.Outcome)).Inc()

	if outcome.Outcome == models.OutcomeCompleted {
		m.completed.Add(1)
	} else {
		m.failed.Add(1)
	}
	if outcome.Inconsistent {
		m.inconsistent.Add(1)
		m.ordersInconsist.Inc()
	}
}

// ObserveSellerCall records one coordinator to seller round trip
func (m *Metrics) ObserveSellerCall(verb, result string, latency time.Duration) {
	m.sellerCalls.WithLabelValues(verb, result).Inc()
	m.sellerCallLatency.WithLabelValues(verb).Observe(latency.Seconds())
}

// ObserveSellerRequest records one request answered by a seller
func (m *Metrics) ObserveSellerRequest(verb, reply string) {
	m.sellerRequests.WithLabelValues(verb, reply).Inc()
}

// ObserveExpired records reservations released by the janitor
func (m *Metrics) ObserveExpired(n int) {
	m.expired.Add(float64(n))
}

// Snapshot returns the current counters
func (m *Metrics) Snapshot() Stats {
	s := Stats{
		Total:        m.total.Load(),
		Completed:    m.completed.Load(),
		Failed:       m.failed.Load(),
		Inconsistent: m.inconsistent.Load(),
	}
	if s.Total > 0 {
		s.AvgLatencyMs = float64(m.latencyNanos.Load()) / float64(s.Total) / float64(time.Millisecond)
		s.SuccessRatePc = float64(s.Completed) * 100 / float64(s.Total)
	}
	return s
}
