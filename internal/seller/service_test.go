package seller

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"marketplace/internal/ledger"
	"marketplace/internal/models"
	"marketplace/internal/protocol"
	"marketplace/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu       sync.Mutex
	requests map[string]int
	expired  int
}

func (c *countingObserver) ObserveSellerRequest(verb, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requests == nil {
		c.requests = make(map[string]int)
	}
	c.requests[verb+"/"+reply]++
}

func (c *countingObserver) ObserveExpired(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expired += n
}

func newService(stock map[string]int) (*Service, *ledger.Memory) {
	l := ledger.NewMemory(stock)
	return NewService("seller-1", l, nil), l
}

func handle(t *testing.T, s transport.Handler, request string) string {
	t.Helper()
	reply, ok := s.Handle(context.Background(), request)
	require.True(t, ok)
	return reply
}

func TestReserveSingleItem(t *testing.T) {
	s, l := newService(map[string]int{"laptop": 2})

	assert.Equal(t, "CONFIRMED:o-1", handle(t, s, "RESERVE:o-1:laptop:1"))
	lvl, err := l.Level("laptop")
	require.NoError(t, err)
	assert.Equal(t, 1, lvl.Available())
}

func TestReserveWithoutStockIsRejected(t *testing.T) {
	s, _ := newService(map[string]int{"laptop": 0})
	assert.Equal(t, "REJECTED:o-1", handle(t, s, "RESERVE:o-1:laptop:1"))
}

func TestBatchedReserveReplies(t *testing.T) {
	s, _ := newService(map[string]int{"laptop": 2, "phone": 1})

	assert.Equal(t, "RESERVED:o-1", handle(t, s, "RESERVE:o-1;laptop:1;phone:1"))
	assert.Equal(t, "INSUFFICIENT_INVENTORY:o-2", handle(t, s, "RESERVE:o-2;laptop:1;phone:1"))
}

func TestCommitAndCancel(t *testing.T) {
	s, l := newService(map[string]int{"laptop": 3})

	handle(t, s, "RESERVE:o-1:laptop:1")
	assert.Equal(t, "COMMITTED:o-1", handle(t, s, "COMMIT:o-1"))

	handle(t, s, "RESERVE:o-2:laptop:1")
	// trailing item fields are ignored, ROLLBACK is CANCEL
	assert.Equal(t, "ROLLED_BACK:o-2", handle(t, s, "ROLLBACK:o-2:laptop:1"))

	lvl, err := l.Level("laptop")
	require.NoError(t, err)
	assert.Equal(t, models.StockLevel{Total: 2, Reserved: 0}, lvl)
}

func TestCancelTwiceRestoresOnce(t *testing.T) {
	s, l := newService(map[string]int{"laptop": 5})

	handle(t, s, "RESERVE:o-1:laptop:2")
	assert.Equal(t, "ROLLED_BACK:o-1", handle(t, s, "CANCEL:o-1"))
	assert.Equal(t, "ROLLED_BACK:o-1", handle(t, s, "CANCEL:o-1"))

	lvl, err := l.Level("laptop")
	require.NoError(t, err)
	assert.Equal(t, models.StockLevel{Total: 5, Reserved: 0}, lvl)
}

func TestProbesAndStatus(t *testing.T) {
	s, _ := newService(map[string]int{"phone": 3, "laptop": 2})

	assert.Equal(t, "HEALTHY", handle(t, s, "HEALTH_CHECK"))
	assert.Equal(t, "HEALTHY", handle(t, s, "PING"))

	handle(t, s, "RESERVE:o-1:laptop:1")
	assert.Equal(t, "STATUS:laptop=1/2,phone=3/3", handle(t, s, "STATUS"))
}

func TestBadRequestsGetErrorReplies(t *testing.T) {
	obs := &countingObserver{}
	s := NewService("seller-1", ledger.NewMemory(map[string]int{"laptop": 1}), obs)

	assert.Equal(t, "UNKNOWN_COMMAND", handle(t, s, "SELL:o-1:laptop:1"))

	for _, raw := range []string{"RESERVE", "RESERVE:o-1:laptop:zero", "RESERVE:o-1:laptop:-1", "COMMIT:", "   "} {
		reply := handle(t, s, raw)
		assert.True(t, strings.HasPrefix(reply, "ERROR:"), "%q -> %q", raw, reply)
	}

	assert.Equal(t, 1, obs.requests["INVALID/UNKNOWN_COMMAND"])
	assert.Equal(t, 5, obs.requests["INVALID/ERROR"])
}

type failingLedger struct {
	ledger.Ledger
}

func (failingLedger) Reserve(context.Context, string, []models.LineItem) (bool, error) {
	return false, assert.AnError
}

func TestLedgerErrorBecomesErrorReply(t *testing.T) {
	s := NewService("seller-1", failingLedger{}, nil)

	reply := s.Process(context.Background(), "RESERVE:o-1:laptop:1")
	assert.Equal(t, protocol.ReplyError, reply.Kind)
	assert.Contains(t, reply.Payload, "RESERVE failed")
}

func TestLogInventory(t *testing.T) {
	s, _ := newService(map[string]int{"laptop": 1})
	assert.NoError(t, s.LogInventory(context.Background()))
}

func TestJanitorSweep(t *testing.T) {
	l := ledger.NewMemory(map[string]int{"laptop": 2})
	_, err := l.Reserve(context.Background(), "o-1", []models.LineItem{{Product: "laptop", Quantity: 1}})
	require.NoError(t, err)

	obs := &countingObserver{}
	j := NewJanitor(l, 0, time.Hour, obs)

	time.Sleep(time.Millisecond)
	released, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, 1, obs.expired)
	assert.Equal(t, 0, l.Reservations())
}

func TestJanitorRunStopsWithContext(t *testing.T) {
	j := NewJanitor(ledger.NewMemory(nil), time.Minute, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
