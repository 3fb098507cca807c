package models

import "time"

// Store is a retail location; each one owns an order partition per date.
type Store struct {
	StoreID   string    `gorm:"column:store_id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	City      string    `gorm:"column:city;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Store) TableName() string { return "stores" }

type Warehouse struct {
	WarehouseID string    `gorm:"column:warehouse_id;primaryKey"`
	StoreID     string    `gorm:"column:store_id;not null;uniqueIndex"`
	Location    string    `gorm:"column:location;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Warehouse) TableName() string { return "warehouses" }
