package catalog

import (
	"context"

	"github.com/angelmondragon/restock-pipeline/pkg/db/models"
	"github.com/shopspring/decimal"
)

type seedProduct struct {
	sku         string
	name        string
	price       string
	supplierID  string
	safetyStock int
	moq         int
}

var seedSuppliers = []models.Supplier{
	{SupplierID: "SUP-001", Name: "Les Eaux Minérales d'Oulmès", City: "Casablanca"},
	{SupplierID: "SUP-002", Name: "Centrale Danone", City: "Casablanca"},
	{SupplierID: "SUP-003", Name: "Dari Couspate", City: "Salé"},
	{SupplierID: "SUP-004", Name: "Cosumar", City: "Casablanca"},
	{SupplierID: "SUP-005", Name: "Dislog Group", City: "Casablanca"},
}

var seedProducts = []seedProduct{
	{"PRD-001", "Sidi Ali 1.5L", "6.50", "SUP-001", 100, 50},
	{"PRD-002", "Oulmes 1L", "7.00", "SUP-001", 80, 40},
	{"PRD-003", "Couscous Dari 1kg", "13.50", "SUP-003", 50, 20},
	{"PRD-004", "Thé Sultan Vert", "18.00", "SUP-004", 60, 20},
	{"PRD-005", "Aicha Confiture Fraise", "22.00", "SUP-005", 30, 10},
	{"PRD-006", "Lait Centrale Danone", "3.50", "SUP-002", 200, 100},
	{"PRD-007", "Raibi Jamila", "2.50", "SUP-002", 250, 100},
	{"PRD-008", "Huile d'Olive Al Horra", "65.00", "SUP-005", 20, 10},
	{"PRD-009", "Fromage La Vache Qui Rit", "15.00", "SUP-005", 40, 20},
	{"PRD-010", "Merendina", "2.00", "SUP-005", 300, 50},
	{"PRD-011", "Pasta Tria", "8.00", "SUP-003", 60, 20},
	{"PRD-012", "Sardines Titus", "5.50", "SUP-005", 80, 20},
	{"PRD-013", "Coca-Cola 1L", "9.00", "SUP-005", 150, 30},
	{"PRD-014", "Atay Sebou", "14.00", "SUP-004", 50, 10},
	{"PRD-015", "Eau Ciel 5L", "12.00", "SUP-005", 40, 10},
}

var seedStores = []models.Store{
	{StoreID: "STORE-CAS-01", Name: "Marjane Californie", City: "Casablanca"},
	{StoreID: "STORE-CAS-02", Name: "Morocco Mall", City: "Casablanca"},
	{StoreID: "STORE-RAB-01", Name: "Marjane Hay Riad", City: "Rabat"},
	{StoreID: "STORE-TNG-01", Name: "Socco Alto", City: "Tangier"},
	{StoreID: "STORE-MAR-01", Name: "Menara Mall", City: "Marrakech"},
	{StoreID: "STORE-AGA-01", Name: "Carrefour Agadir", City: "Agadir"},
	{StoreID: "STORE-FES-01", Name: "Borj Fez", City: "Fes"},
}

// Seed upserts the reference suppliers, products, rules, stores and one
// WH-<store> warehouse per store. Running it twice is a no-op.
func Seed(ctx context.Context, repo Repository) error {
	products := make([]models.Product, 0, len(seedProducts))
	rules := make([]models.ReplenishmentRule, 0, len(seedProducts))
	for _, p := range seedProducts {
		products = append(products, models.Product{
			SKU:        p.sku,
			Name:       p.name,
			Price:      decimal.RequireFromString(p.price),
			SupplierID: p.supplierID,
		})
		rules = append(rules, models.ReplenishmentRule{
			SKU:         p.sku,
			SafetyStock: p.safetyStock,
			MOQ:         p.moq,
		})
	}

	warehouses := make([]models.Warehouse, 0, len(seedStores))
	for _, st := range seedStores {
		warehouses = append(warehouses, models.Warehouse{
			WarehouseID: "WH-" + st.StoreID,
			StoreID:     st.StoreID,
			Location:    st.City,
		})
	}

	if err := repo.UpsertSuppliers(ctx, append([]models.Supplier(nil), seedSuppliers...)); err != nil {
		return err
	}
	if err := repo.UpsertProducts(ctx, products); err != nil {
		return err
	}
	if err := repo.UpsertRules(ctx, rules); err != nil {
		return err
	}
	if err := repo.UpsertStores(ctx, append([]models.Store(nil), seedStores...)); err != nil {
		return err
	}
	return repo.UpsertWarehouses(ctx, warehouses)
}
