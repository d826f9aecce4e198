package seller

import (
	"sort"
	"strconv"
	"strings"

	"marketplace/internal/models"
)

// FormatStatus renders levels as product=available/total pairs sorted by product
func FormatStatus(levels map[string]models.StockLevel) string {
	parts := make([]string, 0, len(levels))
	for _, product := range sortedProducts(levels) {
		lvl := levels[product]
		parts = append(parts, product+"="+strconv.Itoa(lvl.Available())+"/"+strconv.Itoa(lvl.Total))
	}
	return strings.Join(parts, ",")
}

func sortedProducts(levels map[string]models.StockLevel) []string {
	products := make([]string, 0, len(levels))
	for product := range levels {
		products = append(products, product)
	}
	sort.Strings(products)
	return products
}
