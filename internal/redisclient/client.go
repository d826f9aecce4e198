package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"marketplace/internal/ledger"
	"marketplace/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

//go:embed scripts/commit_stock.lua
var commitStockScript string

var _ ledger.Ledger = (*Client)(nil)

// Client is a Redis-backed ledger. Every operation is one Lua script, so each
// runs atomically with respect to all other operations on the same seller.
type Client struct {
	rdb           *redis.Client
	prefix        string
	tombstoneTTL  time.Duration
	reserveScript *redis.Script
	releaseScript *redis.Script
	commitScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded.
// Keys are namespaced by sellerID so several sellers can share one Redis.
func NewClient(addr, password string, db int, sellerID string, tombstoneTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if tombstoneTTL < time.Second {
		tombstoneTTL = 5 * time.Minute
	}

	return &Client{
		rdb:           rdb,
		prefix:        fmt.Sprintf("seller:%s:", sellerID),
		tombstoneTTL:  tombstoneTTL,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
		commitScript:  redis.NewScript(commitStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) inventoryKey(product string) string {
	return c.prefix + "inventory:" + product
}

func (c *Client) productsKey() string {
	return c.prefix + "products"
}

func (c *Client) orderKeys(orderID string) []string {
	return []string{
		c.prefix + "reservation:" + orderID,
		c.prefix + "finished:" + orderID,
		c.prefix + "reservations",
	}
}

// Reserve atomically reserves every item under orderID.
// Returns true if reservation successful, false if insufficient stock
func (c *Client) Reserve(ctx context.Context, orderID string, items []models.LineItem) (bool, error) {
	wanted := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return false, nil
		}
		if _, seen := wanted[item.Product]; !seen {
			order = append(order, item.Product)
		}
		wanted[item.Product] += item.Quantity
	}
	if len(order) == 0 {
		return false, nil
	}

	args := []interface{}{c.prefix, orderID, time.Now().UnixMilli()}
	for _, product := range order {
		args = append(args, product, wanted[product])
	}

	result, err := c.reserveScript.Run(ctx, c.rdb, c.orderKeys(orderID), args...).Result()
	if err != nil {
		return false, fmt.Errorf("reserve stock script failed: %w", err)
	}

	success, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return success == 1, nil
}

// Release atomically returns reserved stock (compensation)
func (c *Client) Release(ctx context.Context, orderID string) (bool, error) {
	if _, err := c.settle(ctx, c.releaseScript, orderID); err != nil {
		return false, fmt.Errorf("release stock script failed: %w", err)
	}
	return true, nil
}

// Commit atomically turns reserved stock into a sale (final deduction)
func (c *Client) Commit(ctx context.Context, orderID string) (bool, error) {
	if _, err := c.settle(ctx, c.commitScript, orderID); err != nil {
		return false, fmt.Errorf("commit stock script failed: %w", err)
	}
	return true, nil
}

func (c *Client) settle(ctx context.Context, script *redis.Script, orderID string) (bool, error) {
	ttl := int64(c.tombstoneTTL / time.Second)
	result, err := script.Run(ctx, c.rdb, c.orderKeys(orderID), c.prefix, orderID, ttl).Result()
	if err != nil {
		return false, err
	}
	found, _ := result.(int64)
	return found == 1, nil
}

// InitInventory resets a product to the configured stock
func (c *Client) InitInventory(ctx context.Context, product string, total int) error {
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.inventoryKey(product), "total", total, "reserved", 0)
	pipe.SAdd(ctx, c.productsKey(), product)

	_, err := pipe.Exec(ctx)
	return err
}

// GetInventory retrieves current inventory counts
func (c *Client) GetInventory(ctx context.Context, product string) (models.StockLevel, error) {
	result, err := c.rdb.HGetAll(ctx, c.inventoryKey(product)).Result()
	if err != nil {
		return models.StockLevel{}, err
	}

	if len(result) == 0 {
		return models.StockLevel{}, fmt.Errorf("%w: %s", ledger.ErrUnknownProduct, product)
	}

	total, _ := strconv.Atoi(result["total"])
	reserved, _ := strconv.Atoi(result["reserved"])
	return models.StockLevel{Total: total, Reserved: reserved}, nil
}

func (c *Client) Snapshot(ctx context.Context) (map[string]models.StockLevel, error) {
	products, err := c.rdb.SMembers(ctx, c.productsKey()).Result()
	if err != nil {
		return nil, err
	}

	levels := make(map[string]models.StockLevel, len(products))
	for _, product := range products {
		lvl, err := c.GetInventory(ctx, product)
		if err != nil {
			return nil, err
		}
		levels[product] = lvl
	}
	return levels, nil
}

// Expire releases reservations older than ttl. Tombstones expire through their Redis TTL.
func (c *Client) Expire(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl).UnixMilli()
	stale, err := c.rdb.ZRangeByScore(ctx, c.prefix+"reservations", &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	released := 0
	for _, orderID := range stale {
		found, err := c.settle(ctx, c.releaseScript, orderID)
		if err != nil {
			return released, fmt.Errorf("release stale reservation %s: %w", orderID, err)
		}
		if found {
			released++
		}
	}
	return released, nil
}
