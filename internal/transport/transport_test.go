package transport

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler() Handler {
	return HandlerFunc(func(ctx context.Context, request string) (string, bool) {
		if strings.HasPrefix(request, "DROP") {
			return "", false
		}
		return "ECHO:" + request, true
	})
}

func startServer(t *testing.T, handler Handler) *Server {
	t.Helper()
	srv, err := Listen("tcp://127.0.0.1:0", handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = srv.Close()
	})
	return srv
}

func TestTCPRoundTrip(t *testing.T) {
	srv := startServer(t, echoHandler())
	client := NewTCPClient(time.Second, time.Second)

	reply, err := client.Request(context.Background(), "tcp://"+srv.Addr(), "PING")
	require.NoError(t, err)
	assert.Equal(t, "ECHO:PING", reply)

	// one connection per call
	reply, err = client.Request(context.Background(), srv.Addr(), "HEALTH_CHECK")
	require.NoError(t, err)
	assert.Equal(t, "ECHO:HEALTH_CHECK", reply)
}

func TestTCPDroppedReplyTimesOut(t *testing.T) {
	srv := startServer(t, echoHandler())
	client := NewTCPClient(time.Second, 100*time.Millisecond)

	start := time.Now()
	_, err := client.Request(context.Background(), srv.Addr(), "DROP")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTCPContextDeadlineWins(t *testing.T) {
	srv := startServer(t, echoHandler())
	client := NewTCPClient(time.Second, 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Request(ctx, srv.Addr(), "DROP")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTCPUnreachable(t *testing.T) {
	srv := startServer(t, echoHandler())
	addr := srv.Addr()
	require.NoError(t, srv.Close())

	client := NewTCPClient(time.Second, time.Second)
	_, err := client.Request(context.Background(), addr, "PING")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestLoopback(t *testing.T) {
	lb := NewLoopback()
	lb.Register("seller-1", echoHandler())

	reply, err := lb.Request(context.Background(), "seller-1", "PING")
	require.NoError(t, err)
	assert.Equal(t, "ECHO:PING", reply)

	_, err = lb.Request(context.Background(), "seller-2", "PING")
	assert.ErrorIs(t, err, ErrUnreachable)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = lb.Request(ctx, "seller-1", "DROP")
	assert.ErrorIs(t, err, ErrTimeout)

	lb.Unregister("seller-1")
	_, err = lb.Request(context.Background(), "seller-1", "PING")
	assert.ErrorIs(t, err, ErrUnreachable)
}

type failingClient struct {
	calls int32
}

func (f *failingClient) Request(ctx context.Context, endpoint, msg string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return "", errors.New("connection refused")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	next := &failingClient{}
	b := NewBreaker(next, 3, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := b.Request(context.Background(), "seller-1", "PING")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State("seller-1"))

	_, err := b.Request(context.Background(), "seller-1", "PING")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), atomic.LoadInt32(&next.calls))

	// breakers are per endpoint
	assert.Equal(t, gobreaker.StateClosed, b.State("seller-2"))
}

func TestBreakerPassesReplies(t *testing.T) {
	lb := NewLoopback()
	lb.Register("seller-1", echoHandler())
	b := NewBreaker(lb, 3, time.Minute)

	reply, err := b.Request(context.Background(), "seller-1", "PING")
	require.NoError(t, err)
	assert.Equal(t, "ECHO:PING", reply)
}
