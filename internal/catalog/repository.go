package catalog

import (
	"context"

	"github.com/angelmondragon/restock-pipeline/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository reads and seeds the reference tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Products(ctx context.Context) ([]Product, error)
	Rules(ctx context.Context) ([]Rule, error)
	Suppliers(ctx context.Context) ([]models.Supplier, error)
	Stores(ctx context.Context) ([]models.Store, error)
	Warehouses(ctx context.Context) ([]models.Warehouse, error)
	UpsertSuppliers(ctx context.Context, rows []models.Supplier) error
	UpsertProducts(ctx context.Context, rows []models.Product) error
	UpsertRules(ctx context.Context, rows []models.ReplenishmentRule) error
	UpsertStores(ctx context.Context, rows []models.Store) error
	UpsertWarehouses(ctx context.Context, rows []models.Warehouse) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Products(ctx context.Context) ([]Product, error) {
	var rows []productRow
	err := r.db.WithContext(ctx).
		Table("products AS p").
		Select("p.sku, p.name, p.price, p.supplier_id, s.name AS supplier_name").
		Joins("JOIN suppliers s ON s.supplier_id = p.supplier_id").
		Order("p.sku ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, Product(row))
	}
	return out, nil
}

// Rules joins products, suppliers and replenishment_rules. Products without a
// rule are not returned.
func (r *repository) Rules(ctx context.Context) ([]Rule, error) {
	var rows []ruleRow
	err := r.db.WithContext(ctx).
		Table("products AS p").
		Select("p.sku, p.name AS product_name, p.supplier_id, s.name AS supplier_name, r.safety_stock, r.moq").
		Joins("JOIN suppliers s ON s.supplier_id = p.supplier_id").
		Joins("JOIN replenishment_rules r ON r.sku = p.sku").
		Order("p.sku ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Rule, 0, len(rows))
	for _, row := range rows {
		out = append(out, Rule(row))
	}
	return out, nil
}

func (r *repository) Suppliers(ctx context.Context) ([]models.Supplier, error) {
	var rows []models.Supplier
	if err := r.db.WithContext(ctx).Order("supplier_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Stores(ctx context.Context) ([]models.Store, error) {
	var rows []models.Store
	if err := r.db.WithContext(ctx).Order("store_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Warehouses(ctx context.Context) ([]models.Warehouse, error) {
	var rows []models.Warehouse
	if err := r.db.WithContext(ctx).Order("warehouse_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpsertSuppliers(ctx context.Context, rows []models.Supplier) error {
	return upsert(ctx, r.db, "supplier_id", []string{"name", "city", "updated_at"}, rows)
}

func (r *repository) UpsertProducts(ctx context.Context, rows []models.Product) error {
	return upsert(ctx, r.db, "sku", []string{"name", "price", "supplier_id", "updated_at"}, rows)
}

func (r *repository) UpsertRules(ctx context.Context, rows []models.ReplenishmentRule) error {
	return upsert(ctx, r.db, "sku", []string{"safety_stock", "moq", "updated_at"}, rows)
}

func (r *repository) UpsertStores(ctx context.Context, rows []models.Store) error {
	return upsert(ctx, r.db, "store_id", []string{"name", "city", "updated_at"}, rows)
}

func (r *repository) UpsertWarehouses(ctx context.Context, rows []models.Warehouse) error {
	return upsert(ctx, r.db, "warehouse_id", []string{"store_id", "location", "updated_at"}, rows)
}

func upsert[T any](ctx context.Context, db *gorm.DB, key string, update []string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: key}},
			DoUpdates: clause.AssignmentColumns(update),
		}).
		Create(&rows).Error
}
