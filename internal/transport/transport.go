// Package transport carries one text request to a seller endpoint and waits for
// one text reply. Messages are newline framed.
package transport

import (
	"context"
	"errors"
)

var (
	ErrTimeout     = errors.New("request timed out")
	ErrUnreachable = errors.New("endpoint unreachable")
	ErrCircuitOpen = errors.New("circuit open")
)

// Client sends a single request and returns the single reply.
// Implementations must honor the context deadline.
type Client interface {
	Request(ctx context.Context, endpoint, msg string) (string, error)
}

// Handler answers one request. ok=false means no reply is sent.
type Handler interface {
	Handle(ctx context.Context, request string) (reply string, ok bool)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, request string) (string, bool)

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, request string) (string, bool) {
	return f(ctx, request)
}
