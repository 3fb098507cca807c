package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	SKU        string          `gorm:"column:sku;primaryKey"`
	Name       string          `gorm:"column:name;not null"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	SupplierID string          `gorm:"column:supplier_id;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// ReplenishmentRule holds the safety stock and minimum order quantity of one SKU.
type ReplenishmentRule struct {
	SKU         string    `gorm:"column:sku;primaryKey"`
	SafetyStock int       `gorm:"column:safety_stock;not null"`
	MOQ         int       `gorm:"column:moq;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ReplenishmentRule) TableName() string { return "replenishment_rules" }
