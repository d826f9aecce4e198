package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/protocol"
	"marketplace/internal/router"
	"marketplace/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CoordinatorConfig tunes the saga fan-out
type CoordinatorConfig struct {
	// MaxConcurrency bounds the seller calls in flight per phase
	MaxConcurrency int
	// OrderTimeout bounds the reserve and commit phases of one order; zero disables it
	OrderTimeout time.Duration
}

// SagaCoordinator runs reserve, then commit or cancel, against the sellers of one order
type SagaCoordinator struct {
	router  *router.Router
	sellers *SellerClient
	cfg     CoordinatorConfig
	logger  *zap.Logger
}

// NewSagaCoordinator creates a new saga coordinator
func NewSagaCoordinator(r *router.Router, sellers *SellerClient, cfg CoordinatorConfig) *SagaCoordinator {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 16
	}
	return &SagaCoordinator{
		router:  r,
		sellers: sellers,
		cfg:     cfg,
		logger:  util.GetLogger(),
	}
}

// saga is the coordinator state of one order. records has one slot per seller,
// each written only by the task that owns it.
type saga struct {
	order   *models.Order
	records []models.ReservationRecord
	logger  *zap.Logger
}

// PlaceOrder drives order to a terminal state. Seller failures never surface as
// errors; they are folded into the outcome and its reservation trail.
func (sc *SagaCoordinator) PlaceOrder(ctx context.Context, order *models.Order) *models.OrderOutcome {
	start := time.Now()
	ctx, span := util.StartSpan(ctx, "SagaCoordinator.PlaceOrder", attribute.String("order.id", order.ID))
	defer span.End()

	s := &saga{
		order:  order,
		logger: util.WithTrace(ctx, sc.logger).With(zap.String("order_id", order.ID)),
	}

	// compensation must still go out after the order deadline fires
	compensateCtx := context.WithoutCancel(ctx)
	if sc.cfg.OrderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sc.cfg.OrderTimeout)
		defer cancel()
	}

	outcome := sc.run(ctx, compensateCtx, s)
	outcome.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("order.outcome", string(outcome.Outcome)),
		attribute.Bool("order.inconsistent", outcome.Inconsistent))
	s.logger.Info("Order finished",
		zap.String("outcome", string(outcome.Outcome)),
		zap.String("state", string(outcome.State)),
		zap.Bool("inconsistent", outcome.Inconsistent),
		zap.String("reason", outcome.Reason),
		zap.Duration("duration", outcome.Duration))
	return outcome
}

func (sc *SagaCoordinator) run(ctx, compensateCtx context.Context, s *saga) *models.OrderOutcome {
	if err := s.order.Transition(models.OrderStateReserving); err != nil {
		return s.outcome(models.OutcomeFailed, err.Error())
	}

	batches := sc.router.Group(s.order.LineItems())
	s.records = make([]models.ReservationRecord, len(batches))
	all := make([]int, len(batches))
	for i, batch := range batches {
		s.records[i] = models.ReservationRecord{
			Seller: batch.Seller,
			Items:  batch.Items,
			Status: models.ReservationPending,
		}
		all[i] = i
	}

	sc.reserve(ctx, s, all)

	confirmed := s.indices(models.ReservationConfirmed)
	switch {
	case len(confirmed) == len(s.records) && len(s.records) > 0:
		s.transition(models.OrderStateAllConfirmed)
	case len(confirmed) > 0:
		s.transition(models.OrderStatePartiallyConfirmed)
	default:
		s.transition(models.OrderStateAnyRejected)
	}

	if s.order.State != models.OrderStateAllConfirmed {
		reason := "order has no line items"
		if len(s.records) > 0 {
			reason = "reservation not confirmed by " + strings.Join(s.notConfirmed(), ", ")
		}
		s.logger.Warn("Reserve phase failed, rolling back", zap.Int("confirmed", len(confirmed)), zap.Int("sellers", len(s.records)))
		s.transition(models.OrderStateRollingBack)
		sc.cancel(compensateCtx, s, confirmed)
		s.transition(models.OrderStateFailed)
		return s.outcome(models.OutcomeFailed, reason)
	}

	s.transition(models.OrderStateCommitting)
	sc.commit(ctx, s, confirmed)

	failed := s.indices(models.ReservationCommitFailed)
	if len(failed) == 0 {
		s.transition(models.OrderStateCompleted)
		return s.outcome(models.OutcomeCompleted, "")
	}

	committed := s.indices(models.ReservationCommitted)
	failedSellers := make([]string, 0, len(failed))
	// no reply means the seller may have sold the stock anyway
	var unknown []string
	for _, i := range failed {
		failedSellers = append(failedSellers, s.records[i].Seller)
		if !s.records[i].Acknowledged {
			unknown = append(unknown, s.records[i].Seller)
		}
	}

	s.transition(models.OrderStateRollingBack)
	sc.cancel(compensateCtx, s, failed)
	s.transition(models.OrderStateFailed)

	out := s.outcome(models.OutcomeFailed, "commit failed at "+strings.Join(failedSellers, ", "))
	if len(committed) > 0 || len(unknown) > 0 {
		out.Inconsistent = true
		out.Reason = fmt.Sprintf("partial commit: %d seller(s) committed, %d with unknown commit outcome, %s",
			len(committed), len(unknown), out.Reason)
		s.logger.Error("Partial fulfillment risk, order needs reconciliation",
			zap.Strings("committed", out.Sellers(models.ReservationCommitted)),
			zap.Strings("unknown", unknown),
			zap.Strings("failed", failedSellers))
	}
	return out
}

// fanOut runs fn once per index on the bounded pool and returns when all have finished
func (sc *SagaCoordinator) fanOut(indices []int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(sc.cfg.MaxConcurrency)
	for _, i := range indices {
		i := i
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

func (sc *SagaCoordinator) reserve(ctx context.Context, s *saga, indices []int) {
	ctx, span := util.StartSpan(ctx, "SagaCoordinator.reserve")
	defer span.End()

	sc.fanOut(indices, func(i int) {
		rec := &s.records[i]
		res := sc.sellers.Call(ctx, rec.Seller, protocol.NewReserve(s.order.ID, rec.Items))
		rec.Latency = res.Latency
		rec.Detail = res.Detail()

		switch {
		case res.TimedOut():
			rec.Status = models.ReservationTimedOut
		case res.Err != nil:
			rec.Status = models.ReservationRejected
		case res.Reply.Affirmative() && res.Reply.Matches(s.order.ID):
			rec.Status = models.ReservationConfirmed
			rec.Acknowledged = true
		default:
			rec.Status = models.ReservationRejected
			rec.Acknowledged = true
		}
	})
}

func (sc *SagaCoordinator) commit(ctx context.Context, s *saga, indices []int) {
	ctx, span := util.StartSpan(ctx, "SagaCoordinator.commit")
	defer span.End()

	sc.fanOut(indices, func(i int) {
		rec := &s.records[i]
		res := sc.sellers.Call(ctx, rec.Seller, protocol.NewCommit(s.order.ID))
		rec.Latency += res.Latency
		rec.Detail = res.Detail()

		if res.Err == nil && res.Reply.Kind == protocol.ReplyCommitted && res.Reply.Matches(s.order.ID) {
			rec.Status = models.ReservationCommitted
			rec.Acknowledged = true
			return
		}
		rec.Status = models.ReservationCommitFailed
		rec.Acknowledged = res.Err == nil
		rec.Detail = "commit failed: " + res.Detail()
	})
}

// cancel sends one best effort CANCEL to each seller. Seller side release is idempotent, so no retry.
func (sc *SagaCoordinator) cancel(ctx context.Context, s *saga, indices []int) {
	ctx, span := util.StartSpan(ctx, "SagaCoordinator.cancel")
	defer span.End()

	sc.fanOut(indices, func(i int) {
		rec := &s.records[i]
		res := sc.sellers.Call(ctx, rec.Seller, protocol.NewCancel(s.order.ID))
		rec.Latency += res.Latency

		acked := res.Err == nil && res.Reply.Kind == protocol.ReplyRolledBack && res.Reply.Matches(s.order.ID)
		if !acked {
			s.logger.Warn("Cancel not acknowledged",
				zap.String("seller", rec.Seller),
				zap.String("detail", res.Detail()))
		}
		if rec.Status == models.ReservationCommitFailed {
			rec.Detail += "; cancel: " + res.Detail()
		} else {
			rec.Detail = res.Detail()
		}
		rec.Status = models.ReservationRolledBack
		rec.Acknowledged = acked
	})
}

func (s *saga) transition(next models.OrderState) {
	if err := s.order.Transition(next); err != nil {
		s.logger.Error("Illegal order transition", zap.Error(err))
	}
}

func (s *saga) indices(status models.ReservationStatus) []int {
	var out []int
	for i, rec := range s.records {
		if rec.Status == status {
			out = append(out, i)
		}
	}
	return out
}

func (s *saga) notConfirmed() []string {
	var out []string
	for _, rec := range s.records {
		if rec.Status != models.ReservationConfirmed {
			out = append(out, fmt.Sprintf("%s (%s)", rec.Seller, rec.Status))
		}
	}
	return out
}

func (s *saga) outcome(result models.Outcome, reason string) *models.OrderOutcome {
	return &models.OrderOutcome{
		OrderID:     s.order.ID,
		CustomerRef: s.order.CustomerRef,
		Outcome:     result,
		State:       s.order.State,
		Reason:      reason,
		Records:     s.records,
	}
}
