package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketplace/internal/models"
)

type entry struct {
	mu       sync.Mutex
	total    int
	reserved int
}

type token struct {
	items     map[string]int
	createdAt time.Time
}

// Memory is an in-process Ledger. Each product has its own lock; tokens and
// tombstones share one map lock that is always taken after product locks.
type Memory struct {
	// entries is fixed at construction, so the map itself needs no lock
	entries map[string]*entry

	mu       sync.Mutex
	tokens   map[string]*token
	finished map[string]time.Time

	now func() time.Time
}

// NewMemory creates a ledger with the given starting stock
func NewMemory(stock map[string]int) *Memory {
	entries := make(map[string]*entry, len(stock))
	for product, qty := range stock {
		if qty < 0 {
			qty = 0
		}
		entries[product] = &entry{total: qty}
	}
	return &Memory{
		entries:  entries,
		tokens:   make(map[string]*token),
		finished: make(map[string]time.Time),
		now:      time.Now,
	}
}

// lockProducts locks the known products in name order and returns the unlock func
func (m *Memory) lockProducts(products []string) func() {
	sorted := append([]string(nil), products...)
	sort.Strings(sorted)

	locked := make([]*entry, 0, len(sorted))
	for i, product := range sorted {
		if i > 0 && sorted[i-1] == product {
			continue
		}
		if e, ok := m.entries[product]; ok {
			e.mu.Lock()
			locked = append(locked, e)
		}
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].mu.Unlock()
		}
	}
}

func (m *Memory) Reserve(ctx context.Context, orderID string, items []models.LineItem) (bool, error) {
	wanted := make(map[string]int, len(items))
	products := make([]string, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return false, nil
		}
		if _, ok := m.entries[item.Product]; !ok {
			return false, nil
		}
		if _, seen := wanted[item.Product]; !seen {
			products = append(products, item.Product)
		}
		wanted[item.Product] += item.Quantity
	}
	if len(wanted) == 0 {
		return false, nil
	}

	unlock := m.lockProducts(products)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, done := m.finished[orderID]; done {
		return false, nil
	}

	for product, qty := range wanted {
		e := m.entries[product]
		if e.total-e.reserved < qty {
			return false, nil
		}
	}

	tok, ok := m.tokens[orderID]
	if !ok {
		tok = &token{items: make(map[string]int, len(wanted)), createdAt: m.now()}
		m.tokens[orderID] = tok
	}
	for product, qty := range wanted {
		m.entries[product].reserved += qty
		tok.items[product] += qty
	}
	return true, nil
}

func (m *Memory) Commit(ctx context.Context, orderID string) (bool, error) {
	m.settle(orderID, true)
	return true, nil
}

func (m *Memory) Release(ctx context.Context, orderID string) (bool, error) {
	m.settle(orderID, false)
	return true, nil
}

// settle consumes the token for orderID, either selling or returning its stock.
// It reports whether a token existed. The order id is tombstoned either way.
func (m *Memory) settle(orderID string, sell bool) bool {
	for {
		m.mu.Lock()
		tok, ok := m.tokens[orderID]
		if !ok {
			m.finished[orderID] = m.now()
			m.mu.Unlock()
			return false
		}
		products := tokenProducts(tok)
		m.mu.Unlock()

		unlock := m.lockProducts(products)
		m.mu.Lock()

		tok, ok = m.tokens[orderID]
		if ok && !sameProducts(tok, products) {
			// a concurrent reserve widened the token; retry with the new product set
			m.mu.Unlock()
			unlock()
			continue
		}
		m.finished[orderID] = m.now()
		if !ok {
			m.mu.Unlock()
			unlock()
			return false
		}

		delete(m.tokens, orderID)
		for product, qty := range tok.items {
			e := m.entries[product]
			e.reserved -= qty
			if sell {
				e.total -= qty
			}
		}
		m.mu.Unlock()
		unlock()
		return true
	}
}

func tokenProducts(tok *token) []string {
	products := make([]string, 0, len(tok.items))
	for product := range tok.items {
		products = append(products, product)
	}
	return products
}

func sameProducts(tok *token, products []string) bool {
	if len(tok.items) != len(products) {
		return false
	}
	for _, product := range products {
		if _, ok := tok.items[product]; !ok {
			return false
		}
	}
	return true
}

func (m *Memory) Snapshot(ctx context.Context) (map[string]models.StockLevel, error) {
	levels := make(map[string]models.StockLevel, len(m.entries))
	for product, e := range m.entries {
		e.mu.Lock()
		levels[product] = models.StockLevel{Total: e.total, Reserved: e.reserved}
		e.mu.Unlock()
	}
	return levels, nil
}

// Level returns the stock level of a single product
func (m *Memory) Level(product string) (models.StockLevel, error) {
	e, ok := m.entries[product]
	if !ok {
		return models.StockLevel{}, fmt.Errorf("%w: %s", ErrUnknownProduct, product)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.StockLevel{Total: e.total, Reserved: e.reserved}, nil
}

// Reservations returns the number of outstanding tokens
func (m *Memory) Reservations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

func (m *Memory) Expire(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	var stale []string
	for orderID, tok := range m.tokens {
		if tok.createdAt.Before(cutoff) {
			stale = append(stale, orderID)
		}
	}
	m.mu.Unlock()

	released := 0
	for _, orderID := range stale {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		if m.settle(orderID, false) {
			released++
		}
	}

	m.mu.Lock()
	for orderID, at := range m.finished {
		if at.Before(cutoff) {
			delete(m.finished, orderID)
		}
	}
	m.mu.Unlock()

	return released, nil
}
