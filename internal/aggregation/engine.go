package aggregation

import (
	"context"
	"sort"

	"github.com/angelmondragon/restock-pipeline/internal/catalog"
)

// Demand is the per-SKU reconciliation of one day's orders and inventory.
type Demand struct {
	SKU            string `json:"sku" bigquery:"sku"`
	TotalSold      int64  `json:"total_sold" bigquery:"total_sold"`
	TotalAvailable int64  `json:"total_available" bigquery:"total_available"`
	TotalReserved  int64  `json:"total_reserved" bigquery:"total_reserved"`
}

// Engine reduces one date's raw partitions to per-SKU totals. Every SKU seen
// on either side appears exactly once; the missing side is zero. Rows are
// sorted by SKU.
type Engine interface {
	Aggregate(ctx context.Context, date string) ([]Demand, error)
}

type stockTotals struct {
	available int64
	reserved  int64
}

// join performs the full outer join of sold and stock totals on SKU.
func join(sold map[string]int64, stock map[string]stockTotals) []Demand {
	rows := make(map[string]*Demand, len(sold)+len(stock))
	for sku, qty := range sold {
		rows[sku] = &Demand{SKU: sku, TotalSold: qty}
	}
	for sku, st := range stock {
		row, ok := rows[sku]
		if !ok {
			row = &Demand{SKU: sku}
			rows[sku] = row
		}
		row.TotalAvailable = st.available
		row.TotalReserved = st.reserved
	}

	out := make([]Demand, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sortBySKU(out)
	return out
}

func sortBySKU(rows []Demand) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].SKU < rows[j].SKU })
}

// KnownOnly drops rows whose SKU is not in the catalog and returns the
// dropped SKUs. Unknown SKUs are expected in the raw data and are not an
// error.
func KnownOnly(rows []Demand, products map[string]catalog.Product) ([]Demand, []string) {
	kept := make([]Demand, 0, len(rows))
	var dropped []string
	for _, row := range rows {
		if _, ok := products[row.SKU]; !ok {
			dropped = append(dropped, row.SKU)
			continue
		}
		kept = append(kept, row)
	}
	return kept, dropped
}
