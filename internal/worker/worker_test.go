package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlacer struct {
	mu       sync.Mutex
	requests []*service.CreateOrderRequest
	err      error
}

func (f *fakePlacer) CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*models.OrderOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &models.OrderOutcome{OrderID: fmt.Sprintf("o-%d", len(f.requests)), Outcome: models.OutcomeCompleted}, nil
}

func TestHandleOrderRequested(t *testing.T) {
	placer := &fakePlacer{}
	w := NewOrderWorker(nil, placer)

	event := &models.OrderRequestedEvent{
		CustomerRef: "c-1",
		Items:       []models.LineItem{{Product: "laptop", Quantity: 1}},
	}
	require.NoError(t, w.handleOrderRequested(context.Background(), event))
	require.Len(t, placer.requests, 1)
	assert.Equal(t, "c-1", placer.requests[0].CustomerRef)
	assert.Equal(t, event.Items, placer.requests[0].Items)
}

func TestInvalidOrderRequestIsDropped(t *testing.T) {
	w := NewOrderWorker(nil, &fakePlacer{err: fmt.Errorf("%w: empty", service.ErrInvalidOrder)})
	assert.NoError(t, w.handleOrderRequested(context.Background(), &models.OrderRequestedEvent{}))

	w = NewOrderWorker(nil, &fakePlacer{err: assert.AnError})
	assert.ErrorIs(t, w.handleOrderRequested(context.Background(), &models.OrderRequestedEvent{}), assert.AnError)
}

func TestSimulatorPlacesOrders(t *testing.T) {
	placer := &fakePlacer{}
	products := []string{"laptop", "smartphone", "tablet"}
	sim := NewSimulator(placer, SimulatorConfig{Orders: 5, Interval: time.Millisecond, Products: products, Seed: 1})

	require.NoError(t, sim.Run(context.Background()))
	require.Len(t, placer.requests, 5)

	for _, req := range placer.requests {
		require.NotEmpty(t, req.Items)
		seen := make(map[string]bool)
		for _, item := range req.Items {
			assert.Contains(t, products, item.Product)
			assert.False(t, seen[item.Product])
			seen[item.Product] = true
			assert.GreaterOrEqual(t, item.Quantity, 1)
			assert.LessOrEqual(t, item.Quantity, 3)
		}
	}
}

func TestSimulatorStopsWithContext(t *testing.T) {
	placer := &fakePlacer{}
	sim := NewSimulator(placer, SimulatorConfig{Orders: 100, Interval: time.Hour, Products: []string{"laptop"}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sim.Run(ctx), context.DeadlineExceeded)
	assert.Len(t, placer.requests, 1)
}

func TestSimulatorNeedsProducts(t *testing.T) {
	sim := NewSimulator(&fakePlacer{}, SimulatorConfig{Orders: 1})
	assert.Error(t, sim.Run(context.Background()))
}
