package models

import "time"

// Supplier is a vendor that receives one batch file per run date.
type Supplier struct {
	SupplierID string    `gorm:"column:supplier_id;primaryKey"`
	Name       string    `gorm:"column:name;not null;uniqueIndex"`
	City       string    `gorm:"column:city;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Supplier) TableName() string { return "suppliers" }
