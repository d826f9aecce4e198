package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Loopback is an in-process Client that dispatches straight to registered handlers
type Loopback struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewLoopback creates a new loopback transport
func NewLoopback() *Loopback {
	return &Loopback{handlers: make(map[string]Handler)}
}

// Register binds a handler to an endpoint, replacing any previous one
func (l *Loopback) Register(endpoint string, handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[endpoint] = handler
}

// Unregister makes an endpoint unreachable
func (l *Loopback) Unregister(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, endpoint)
}

func (l *Loopback) Request(ctx context.Context, endpoint, msg string) (string, error) {
	l.mu.RLock()
	handler, ok := l.handlers[endpoint]
	l.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnreachable, endpoint)
	}

	type result struct {
		reply string
		ok    bool
	}
	done := make(chan result, 1)
	go func() {
		// the handler keeps running after the caller gives up, like a remote seller would
		reply, ok := handler.Handle(context.WithoutCancel(ctx), msg)
		done <- result{reply, ok}
	}()

	select {
	case res := <-done:
		if res.ok {
			return res.reply, nil
		}
		<-ctx.Done()
	case <-ctx.Done():
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", ErrTimeout
	}
	return "", ctx.Err()
}
