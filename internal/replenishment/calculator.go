package replenishment

import (
	"sort"

	"github.com/angelmondragon/restock-pipeline/internal/aggregation"
	"github.com/angelmondragon/restock-pipeline/internal/catalog"
)

// Item is one order line sent to a supplier.
type Item struct {
	SKU                string `json:"sku"`
	Product            string `json:"product"`
	NetDemand          int64  `json:"net_demand"`
	FinalOrderQuantity int64  `json:"final_order_quantity"`
}

// Batches maps a supplier name to its items, sorted by SKU.
type Batches map[string][]Item

// NetDemand is the shortfall before the MOQ floor:
// max(0, sold + safety - (available - reserved)). Reserved may exceed
// available; the difference is not clamped before the outer max.
func NetDemand(d aggregation.Demand, rule catalog.Rule) int64 {
	return max(0, d.TotalSold+rule.SafetyStock-(d.TotalAvailable-d.TotalReserved))
}

// Compute maps aggregated demand and rules to per-supplier batches. Rows
// without a rule are skipped. Only SKUs with positive net demand are
// ordered, at no less than the rule's MOQ.
func Compute(demand []aggregation.Demand, rules map[string]catalog.Rule) Batches {
	batches := Batches{}
	for _, d := range demand {
		rule, ok := rules[d.SKU]
		if !ok {
			continue
		}
		net := NetDemand(d, rule)
		if net <= 0 {
			continue
		}
		batches[rule.SupplierName] = append(batches[rule.SupplierName], Item{
			SKU:                d.SKU,
			Product:            rule.ProductName,
			NetDemand:          net,
			FinalOrderQuantity: max(net, rule.MOQ),
		})
	}
	for _, items := range batches {
		sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	}
	return batches
}

// Suppliers returns the supplier names in sorted order.
func (b Batches) Suppliers() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary counts what a set of batches will order.
type Summary struct {
	Suppliers int   `json:"suppliers"`
	Items     int   `json:"items"`
	Units     int64 `json:"units"`
}

func Summarize(b Batches) Summary {
	s := Summary{Suppliers: len(b)}
	for _, items := range b {
		s.Items += len(items)
		for _, it := range items {
			s.Units += it.FinalOrderQuantity
		}
	}
	return s
}
