// Package router maps products to the seller endpoint that stocks them.
package router

import (
	"errors"
	"sort"

	"marketplace/internal/models"

	"github.com/cespare/xxhash/v2"
)

var ErrNoEndpoints = errors.New("no seller endpoints configured")

// Router is a fixed routing table. It holds no mutable state.
type Router struct {
	endpoints []string
}

// New creates a router over the given endpoints. Order matters.
func New(endpoints []string) (*Router, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	return &Router{endpoints: append([]string(nil), endpoints...)}, nil
}

// Endpoints returns a copy of the routing table
func (r *Router) Endpoints() []string {
	return append([]string(nil), r.endpoints...)
}

// Route returns the seller endpoint responsible for product
func (r *Router) Route(product string) string {
	return r.endpoints[xxhash.Sum64String(product)%uint64(len(r.endpoints))]
}

// SellerBatch is every line item of one order assigned to the same seller
type SellerBatch struct {
	Seller string
	Items  []models.LineItem
}

// Group assigns the order's line items and batches them per seller.
// Batches come back in routing table order, items sorted by product.
func (r *Router) Group(items []models.LineItem) []SellerBatch {
	bySeller := make(map[string][]models.LineItem)
	for _, a := range r.Assign(items) {
		bySeller[a.Seller] = append(bySeller[a.Seller], a.LineItem)
	}

	batches := make([]SellerBatch, 0, len(bySeller))
	for _, endpoint := range r.endpoints {
		batch, ok := bySeller[endpoint]
		if !ok {
			continue
		}
		delete(bySeller, endpoint)
		sort.Slice(batch, func(i, j int) bool { return batch[i].Product < batch[j].Product })
		batches = append(batches, SellerBatch{Seller: endpoint, Items: batch})
	}
	return batches
}

// Assign binds each line item to its seller
func (r *Router) Assign(items []models.LineItem) []models.LineItemAssignment {
	out := make([]models.LineItemAssignment, 0, len(items))
	for _, item := range items {
		out = append(out, models.LineItemAssignment{LineItem: item, Seller: r.Route(item.Product)})
	}
	return out
}
