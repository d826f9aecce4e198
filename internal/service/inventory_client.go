package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/protocol"
	"marketplace/internal/transport"
	"marketplace/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// CallResult is the outcome of one request to one seller
type CallResult struct {
	Reply   protocol.Reply
	Raw     string
	Err     error
	Latency time.Duration
}

// TimedOut reports whether the seller did not answer in time
func (r CallResult) TimedOut() bool {
	return errors.Is(r.Err, transport.ErrTimeout) || errors.Is(r.Err, context.DeadlineExceeded)
}

// Detail describes the result for the reservation trail
func (r CallResult) Detail() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Raw
}

// SellerClient speaks the seller protocol over a transport, one bounded call at a time
type SellerClient struct {
	transport   transport.Client
	callTimeout time.Duration
	metrics     MetricsSink
	logger      *zap.Logger
}

// NewSellerClient creates a new seller client
func NewSellerClient(t transport.Client, callTimeout time.Duration, metrics MetricsSink) *SellerClient {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &SellerClient{
		transport:   t,
		callTimeout: callTimeout,
		metrics:     metrics,
		logger:      util.GetLogger(),
	}
}

// Call sends req to endpoint and parses the reply. It never blocks past the call timeout.
func (c *SellerClient) Call(ctx context.Context, endpoint string, req protocol.Request) CallResult {
	ctx, span := util.StartSpan(ctx, "SellerClient."+string(req.Verb),
		attribute.String("seller.endpoint", endpoint),
		attribute.String("order.id", req.OrderID))
	defer span.End()

	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := c.transport.Request(ctx, endpoint, req.String())
	res := CallResult{Raw: raw, Err: err, Latency: time.Since(start)}

	if err == nil {
		res.Reply, err = protocol.ParseReply(raw)
		if err != nil {
			res.Err = fmt.Errorf("bad reply from %s: %w", endpoint, err)
		}
	}

	var result string
	switch {
	case res.TimedOut():
		result = "timeout"
	case res.Err != nil:
		result = "error"
	default:
		result = string(res.Reply.Kind)
	}
	c.metrics.ObserveSellerCall(string(req.Verb), result, res.Latency)

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, result)
		util.WithTrace(ctx, c.logger).Warn("Seller call failed",
			zap.String("seller", endpoint),
			zap.String("request", req.String()),
			zap.Duration("latency", res.Latency),
			zap.Error(res.Err))
	}
	return res
}

// Ping sends a liveness probe
func (c *SellerClient) Ping(ctx context.Context, endpoint string) CallResult {
	return c.Call(ctx, endpoint, protocol.Request{Verb: protocol.VerbHealthCheck})
}
