// Package seller answers marketplace protocol requests against one inventory ledger.
package seller

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/ledger"
	"marketplace/internal/protocol"
	"marketplace/internal/transport"
	"marketplace/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Observer receives seller side counters
type Observer interface {
	ObserveSellerRequest(verb, reply string)
	ObserveExpired(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveSellerRequest(string, string) {}
func (nopObserver) ObserveExpired(int)                  {}

var _ transport.Handler = (*Service)(nil)

// Service is the seller responder. It always produces exactly one reply.
type Service struct {
	id       string
	ledger   ledger.Ledger
	observer Observer
	logger   *zap.Logger
}

// NewService creates a new seller service
func NewService(id string, l ledger.Ledger, observer Observer) *Service {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Service{
		id:       id,
		ledger:   l,
		observer: observer,
		logger:   util.GetLogger().Named("seller").With(zap.String("seller_id", id)),
	}
}

// Handle implements transport.Handler
func (s *Service) Handle(ctx context.Context, raw string) (string, bool) {
	return s.Process(ctx, raw).String(), true
}

// Process parses one request and applies it to the ledger
func (s *Service) Process(ctx context.Context, raw string) protocol.Reply {
	ctx, span := util.StartSpan(ctx, "Seller.Process", attribute.String("seller.id", s.id))
	defer span.End()

	req, err := protocol.ParseRequest(raw)
	if err != nil {
		var reply protocol.Reply
		if errors.Is(err, protocol.ErrUnknownVerb) {
			reply = protocol.Reply{Kind: protocol.ReplyUnknownCommand}
		} else {
			reply = protocol.Errorf("%v", err)
		}
		s.logger.Warn("Rejected request", zap.String("request", raw), zap.Error(err))
		s.observer.ObserveSellerRequest("INVALID", string(reply.Kind))
		return reply
	}
	span.SetAttributes(attribute.String("order.id", req.OrderID), attribute.String("verb", string(req.Verb)))

	reply, err := s.dispatch(ctx, req)
	if err != nil {
		s.logger.Error("Ledger operation failed",
			zap.String("verb", string(req.Verb)),
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		reply = protocol.Errorf("%s failed: %v", req.Verb, err)
	}

	s.observer.ObserveSellerRequest(string(req.Verb), string(reply.Kind))
	s.logger.Debug("Handled request",
		zap.String("request", raw),
		zap.String("reply", reply.String()))
	return reply
}

func (s *Service) dispatch(ctx context.Context, req protocol.Request) (protocol.Reply, error) {
	switch req.Verb {
	case protocol.VerbHealthCheck, protocol.VerbPing:
		return protocol.Reply{Kind: protocol.ReplyHealthy}, nil

	case protocol.VerbStatus:
		levels, err := s.ledger.Snapshot(ctx)
		if err != nil {
			return protocol.Reply{}, err
		}
		return protocol.Reply{Kind: protocol.ReplyStatus, Payload: FormatStatus(levels)}, nil

	case protocol.VerbReserve:
		ok, err := s.ledger.Reserve(ctx, req.OrderID, req.Items)
		if err != nil {
			return protocol.Reply{}, err
		}
		if !ok {
			s.logger.Info("Reservation rejected", zap.String("order_id", req.OrderID), zap.Any("items", req.Items))
			return protocol.Rejected(req), nil
		}
		s.logger.Info("Reservation confirmed", zap.String("order_id", req.OrderID), zap.Any("items", req.Items))
		return protocol.Confirmed(req), nil

	case protocol.VerbCommit:
		if _, err := s.ledger.Commit(ctx, req.OrderID); err != nil {
			return protocol.Reply{}, err
		}
		s.logger.Info("Reservation committed", zap.String("order_id", req.OrderID))
		return protocol.Reply{Kind: protocol.ReplyCommitted, OrderID: req.OrderID}, nil

	case protocol.VerbCancel:
		if _, err := s.ledger.Release(ctx, req.OrderID); err != nil {
			return protocol.Reply{}, err
		}
		s.logger.Info("Reservation released", zap.String("order_id", req.OrderID))
		return protocol.Reply{Kind: protocol.ReplyRolledBack, OrderID: req.OrderID}, nil
	}

	return protocol.Reply{Kind: protocol.ReplyUnknownCommand}, nil
}

// LogInventory writes the current stock levels to the log
func (s *Service) LogInventory(ctx context.Context) error {
	levels, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot inventory: %w", err)
	}
	for _, product := range sortedProducts(levels) {
		lvl := levels[product]
		s.logger.Info("Inventory",
			zap.String("product", product),
			zap.Int("available", lvl.Available()),
			zap.Int("reserved", lvl.Reserved),
			zap.Int("total", lvl.Total))
	}
	return nil
}
