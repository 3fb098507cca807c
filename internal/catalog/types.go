package catalog

import "github.com/shopspring/decimal"

// Product is the generator's view of a catalog SKU.
type Product struct {
	SKU          string
	Name         string
	Price        decimal.Decimal
	SupplierID   string
	SupplierName string
}

// Rule is the replenishment policy of one SKU joined with its product and
// supplier names.
type Rule struct {
	SKU          string
	ProductName  string
	SupplierID   string
	SupplierName string
	SafetyStock  int64
	MOQ          int64
}

type productRow struct {
	SKU          string          `gorm:"column:sku"`
	Name         string          `gorm:"column:name"`
	Price        decimal.Decimal `gorm:"column:price"`
	SupplierID   string          `gorm:"column:supplier_id"`
	SupplierName string          `gorm:"column:supplier_name"`
}

type ruleRow struct {
	SKU          string `gorm:"column:sku"`
	ProductName  string `gorm:"column:product_name"`
	SupplierID   string `gorm:"column:supplier_id"`
	SupplierName string `gorm:"column:supplier_name"`
	SafetyStock  int64  `gorm:"column:safety_stock"`
	MOQ          int64  `gorm:"column:moq"`
}
