package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"marketplace/internal/models"
	"marketplace/internal/service"
	"marketplace/internal/store"
	"marketplace/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	last *service.CreateOrderRequest
	err  error
}

func (f *fakeOrders) CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*models.OrderOutcome, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.OrderOutcome{
		OrderID:     "MP-DEFAULT-1-abcdef12",
		CustomerRef: req.CustomerRef,
		Outcome:     models.OutcomeCompleted,
		State:       models.OrderStateCompleted,
	}, nil
}

func (f *fakeOrders) Stats() util.Stats {
	return util.Stats{Total: 3, Completed: 2, Failed: 1}
}

type fakeProber struct {
	results []service.SellerHealth
}

func (f *fakeProber) Check(ctx context.Context) []service.SellerHealth {
	return f.results
}

type fakeCases struct{}

func (fakeCases) ListCases(ctx context.Context, limit int) ([]store.ReconciliationCase, error) {
	return []store.ReconciliationCase{{OrderID: "o-1", CommittedSellers: []string{"s-1"}}}, nil
}

func setup(orders *fakeOrders, prober *fakeProber, cases CaseLister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(orders, prober, cases).SetupRoutes(router)
	return router
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func healthyProber() *fakeProber {
	return &fakeProber{results: []service.SellerHealth{{Endpoint: "tcp://127.0.0.1:5555", Healthy: true, Reply: "HEALTHY"}}}
}

func TestCreateOrder(t *testing.T) {
	orders := &fakeOrders{}
	router := setup(orders, healthyProber(), nil)

	w := do(router, http.MethodPost, "/api/v1/orders", `{"customer_ref":"c-1","items":[{"product":"laptop","quantity":2}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var outcome models.OrderOutcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.Equal(t, models.OutcomeCompleted, outcome.Outcome)
	assert.Equal(t, "c-1", outcome.CustomerRef)
	assert.Equal(t, []models.LineItem{{Product: "laptop", Quantity: 2}}, orders.last.Items)
}

func TestCreateOrderBadRequest(t *testing.T) {
	router := setup(&fakeOrders{}, healthyProber(), nil)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/v1/orders", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/v1/orders", `{"items":[]}`).Code)

	invalid := &fakeOrders{err: fmt.Errorf("%w: quantity must be positive", service.ErrInvalidOrder)}
	router = setup(invalid, healthyProber(), nil)
	w := do(router, http.MethodPost, "/api/v1/orders", `{"items":[{"product":"laptop","quantity":0}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "quantity must be positive")
}

func TestStats(t *testing.T) {
	router := setup(&fakeOrders{}, healthyProber(), nil)

	w := do(router, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats util.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Completed)
}

func TestReadiness(t *testing.T) {
	router := setup(&fakeOrders{}, healthyProber(), nil)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", "").Code)

	down := &fakeProber{results: []service.SellerHealth{{Endpoint: "tcp://127.0.0.1:5555", Error: "seller unreachable"}}}
	router = setup(&fakeOrders{}, down, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(router, http.MethodGet, "/ready", "").Code)

	w := do(router, http.MethodGet, "/api/v1/sellers/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy":false`)
	assert.Contains(t, w.Body.String(), "seller unreachable")
}

func TestReconciliationCases(t *testing.T) {
	router := setup(&fakeOrders{}, healthyProber(), nil)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/v1/reconciliation", "").Code)

	router = setup(&fakeOrders{}, healthyProber(), fakeCases{})
	w := do(router, http.MethodGet, "/api/v1/reconciliation?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"order_id":"o-1"`)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/reconciliation?limit=x", "").Code)
}
