package replenishment

import (
	"reflect"
	"testing"

	"github.com/angelmondragon/restock-pipeline/internal/aggregation"
	"github.com/angelmondragon/restock-pipeline/internal/catalog"
)

var prd001 = catalog.Rule{
	SKU:          "PRD-001",
	ProductName:  "Sidi Ali 1.5L",
	SupplierID:   "SUP-001",
	SupplierName: "Les Eaux Minérales d'Oulmès",
	SafetyStock:  100,
	MOQ:          50,
}

func rules(rs ...catalog.Rule) map[string]catalog.Rule {
	out := make(map[string]catalog.Rule, len(rs))
	for _, r := range rs {
		out[r.SKU] = r
	}
	return out
}

func TestComputeOrdersShortfall(t *testing.T) {
	demand := []aggregation.Demand{{SKU: "PRD-001", TotalSold: 120, TotalAvailable: 150, TotalReserved: 20}}

	batches := Compute(demand, rules(prd001))

	if len(batches) != 1 {
		t.Fatalf("expected 1 supplier, got %d", len(batches))
	}
	items := batches[prd001.SupplierName]
	want := []Item{{SKU: "PRD-001", Product: "Sidi Ali 1.5L", NetDemand: 90, FinalOrderQuantity: 90}}
	if !reflect.DeepEqual(items, want) {
		t.Fatalf("expected %+v, got %+v", want, items)
	}
}

func TestComputeOmitsZeroDemand(t *testing.T) {
	demand := []aggregation.Demand{{SKU: "PRD-001", TotalSold: 10, TotalAvailable: 200}}

	batches := Compute(demand, rules(prd001))

	if batches == nil || len(batches) != 0 {
		t.Fatalf("expected empty non-nil batches, got %#v", batches)
	}
}

func TestComputeAppliesMOQFloor(t *testing.T) {
	demand := []aggregation.Demand{{SKU: "PRD-001", TotalSold: 5, TotalAvailable: 90}}

	items := Compute(demand, rules(prd001))[prd001.SupplierName]

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].NetDemand != 15 || items[0].FinalOrderQuantity != 50 {
		t.Fatalf("expected net 15 raised to moq 50, got %+v", items[0])
	}
}

func TestComputeSkipsSKUsWithoutRule(t *testing.T) {
	demand := []aggregation.Demand{
		{SKU: "PRD-404", TotalSold: 1000},
		{SKU: "PRD-001", TotalSold: 120, TotalAvailable: 150, TotalReserved: 20},
	}

	batches := Compute(demand, rules(prd001))

	if len(batches) != 1 || len(batches[prd001.SupplierName]) != 1 {
		t.Fatalf("expected only PRD-001, got %+v", batches)
	}
}

func TestComputeReservedAboveAvailable(t *testing.T) {
	// reserved > available is accepted as-is and deepens the shortfall
	demand := []aggregation.Demand{{SKU: "PRD-001", TotalAvailable: 10, TotalReserved: 30}}

	items := Compute(demand, rules(prd001))[prd001.SupplierName]

	if len(items) != 1 || items[0].NetDemand != 120 {
		t.Fatalf("expected net demand 120, got %+v", items)
	}
}

func TestComputeEmptyDay(t *testing.T) {
	r2 := catalog.Rule{SKU: "PRD-002", SupplierName: "Oulmes", SafetyStock: 80, MOQ: 40}
	rs := rules(prd001, r2)
	demand := []aggregation.Demand{
		{SKU: "PRD-001", TotalAvailable: 60},
		{SKU: "PRD-002", TotalAvailable: 500},
	}

	batches := Compute(demand, rs)

	for _, d := range demand {
		want := max(0, rs[d.SKU].SafetyStock-d.TotalAvailable)
		if got := NetDemand(d, rs[d.SKU]); got != want {
			t.Fatalf("%s: expected net %d, got %d", d.SKU, want, got)
		}
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 supplier, got %+v", batches)
	}
	if got := batches[prd001.SupplierName][0].NetDemand; got != 40 {
		t.Fatalf("expected net 40, got %d", got)
	}
}

func TestComputeGroupsBySupplierSorted(t *testing.T) {
	a := catalog.Rule{SKU: "B-2", SupplierName: "Alpha", SafetyStock: 10, MOQ: 1}
	b := catalog.Rule{SKU: "A-1", SupplierName: "Alpha", SafetyStock: 10, MOQ: 1}
	c := catalog.Rule{SKU: "C-3", SupplierName: "Beta", SafetyStock: 10, MOQ: 1}
	demand := []aggregation.Demand{{SKU: "B-2"}, {SKU: "C-3"}, {SKU: "A-1"}}

	batches := Compute(demand, rules(a, b, c))

	if got := batches.Suppliers(); !reflect.DeepEqual(got, []string{"Alpha", "Beta"}) {
		t.Fatalf("unexpected supplier order %v", got)
	}
	alpha := batches["Alpha"]
	if len(alpha) != 2 || alpha[0].SKU != "A-1" || alpha[1].SKU != "B-2" {
		t.Fatalf("expected Alpha items sorted by sku, got %+v", alpha)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	rs := rules(
		prd001,
		catalog.Rule{SKU: "PRD-006", SupplierName: "Centrale Danone", SafetyStock: 200, MOQ: 100},
		catalog.Rule{SKU: "PRD-007", SupplierName: "Centrale Danone", SafetyStock: 250, MOQ: 100},
	)
	demand := []aggregation.Demand{
		{SKU: "PRD-007", TotalSold: 30, TotalAvailable: 100},
		{SKU: "PRD-001", TotalSold: 120, TotalAvailable: 150, TotalReserved: 20},
		{SKU: "PRD-006", TotalSold: 12, TotalAvailable: 20, TotalReserved: 5},
	}

	if first, second := Compute(demand, rs), Compute(demand, rs); !reflect.DeepEqual(first, second) {
		t.Fatalf("compute is not deterministic: %+v vs %+v", first, second)
	}
}

func TestDemandProperties(t *testing.T) {
	for safety := int64(0); safety <= 60; safety += 20 {
		for moq := int64(1); moq <= 101; moq += 50 {
			rule := catalog.Rule{SKU: "X", SupplierName: "S", SafetyStock: safety, MOQ: moq}
			for avail := int64(0); avail <= 100; avail += 25 {
				for reserved := int64(0); reserved <= 40; reserved += 20 {
					prev := int64(-1)
					for sold := int64(0); sold <= 150; sold += 10 {
						d := aggregation.Demand{SKU: "X", TotalSold: sold, TotalAvailable: avail, TotalReserved: reserved}
						net := NetDemand(d, rule)
						if net < prev {
							t.Fatalf("net demand decreased as sold grew: %+v rule=%+v", d, rule)
						}
						prev = net

						items := Compute([]aggregation.Demand{d}, rules(rule))["S"]
						if sold+safety <= avail-reserved {
							if len(items) != 0 {
								t.Fatalf("spurious order for %+v rule=%+v", d, rule)
							}
							continue
						}
						if len(items) != 1 {
							t.Fatalf("expected one item for %+v rule=%+v", d, rule)
						}
						if items[0].FinalOrderQuantity < moq || items[0].FinalOrderQuantity < items[0].NetDemand {
							t.Fatalf("final below floor: %+v rule=%+v", items[0], rule)
						}
					}
				}
			}
		}
	}
}

func TestSummarize(t *testing.T) {
	b := Batches{
		"A": {{SKU: "1", FinalOrderQuantity: 10}, {SKU: "2", FinalOrderQuantity: 5}},
		"B": {{SKU: "3", FinalOrderQuantity: 50}},
	}
	if got := Summarize(b); got != (Summary{Suppliers: 2, Items: 3, Units: 65}) {
		t.Fatalf("unexpected summary %+v", got)
	}
	if got := Summarize(Batches{}); got != (Summary{}) {
		t.Fatalf("expected zero summary, got %+v", got)
	}
}
