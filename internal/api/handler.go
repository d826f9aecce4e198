package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/service"
	"marketplace/internal/store"
	"marketplace/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrderPlacer runs orders and reports running statistics
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*models.OrderOutcome, error)
	Stats() util.Stats
}

// SellerProber checks seller liveness
type SellerProber interface {
	Check(ctx context.Context) []service.SellerHealth
}

// CaseLister lists open reconciliation cases
type CaseLister interface {
	ListCases(ctx context.Context, limit int) ([]store.ReconciliationCase, error)
}

// Handler contains HTTP handlers
type Handler struct {
	orders  OrderPlacer
	health  SellerProber
	cases   CaseLister
	timeout time.Duration
}

// NewHandler creates a new HTTP handler. cases may be nil when no database is configured.
func NewHandler(orders OrderPlacer, health SellerProber, cases CaseLister) *Handler {
	return &Handler{
		orders:  orders,
		health:  health,
		cases:   cases,
		timeout: 2 * time.Second,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/stats", h.getStats)
		v1.GET("/sellers/health", h.sellersHealth)
		v1.GET("/reconciliation", h.listCases)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once every seller answers a probe
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	results := h.health.Check(ctx)
	if !service.Healthy(results) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"sellers": results,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder runs one order through the saga and returns its outcome
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.CustomerRef == "" {
		req.CustomerRef = c.GetHeader("X-Customer-Ref")
	}

	outcome, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrInvalidOrder) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error":   "Failed to create order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// getStats returns running order statistics
func (h *Handler) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.orders.Stats())
}

// sellersHealth probes every seller
func (h *Handler) sellersHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	results := h.health.Check(ctx)
	c.JSON(http.StatusOK, gin.H{
		"healthy": service.Healthy(results),
		"sellers": results,
	})
}

// listCases returns open partial-commit cases
func (h *Handler) listCases(c *gin.Context) {
	if h.cases == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Reconciliation store not configured",
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid limit",
		})
		return
	}

	cases, err := h.cases.ListCases(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list reconciliation cases",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cases": cases,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
