package catalog

import (
	"context"
	"errors"
	"sort"
	"time"

	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithReadTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service takes consistent snapshots of the reference data.
type Service struct {
	db      txRunner
	repo    Repository
	timeout time.Duration
	logg    *logger.Logger
}

// NewService wires the catalog reader. timeout bounds every snapshot; zero
// leaves the caller's deadline in charge.
func NewService(db txRunner, repo Repository, timeout time.Duration, logg *logger.Logger) (*Service, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db is required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repository is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{db: db, repo: repo, timeout: timeout, logg: logg}, nil
}

// Snapshot reads products, rules, stores and warehouses inside one read-only
// transaction. Any failure is CATALOG_UNAVAILABLE.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	snap := &Snapshot{
		products: map[string]Product{},
		rules:    map[string]Rule{},
	}
	var entity string
	err := s.db.WithReadTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		entity = "products"
		products, err := repo.Products(ctx)
		if err != nil {
			return err
		}
		for _, p := range products {
			snap.products[p.SKU] = p
		}

		entity = "replenishment_rules"
		rules, err := repo.Rules(ctx)
		if err != nil {
			return err
		}
		for _, r := range rules {
			snap.rules[r.SKU] = r
		}

		entity = "stores"
		stores, err := repo.Stores(ctx)
		if err != nil {
			return err
		}
		for _, st := range stores {
			snap.storeIDs = append(snap.storeIDs, st.StoreID)
		}

		entity = "warehouses"
		warehouses, err := repo.Warehouses(ctx)
		if err != nil {
			return err
		}
		for _, wh := range warehouses {
			snap.warehouseIDs = append(snap.warehouseIDs, wh.WarehouseID)
		}
		return nil
	})
	if err != nil {
		// a timeout is retryable, a broken catalog is not
		code := pkgerrors.CodeCatalog
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = pkgerrors.CodeDependency
		}
		return nil, pkgerrors.Wrap(code, err, "catalog snapshot failed").
			WithDetail("entity", entity)
	}

	sort.Strings(snap.storeIDs)
	sort.Strings(snap.warehouseIDs)

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"products":   len(snap.products),
		"rules":      len(snap.rules),
		"stores":     len(snap.storeIDs),
		"warehouses": len(snap.warehouseIDs),
	}), "catalog snapshot taken")
	return snap, nil
}

// Seed upserts the reference data set in a single transaction.
func (s *Service) Seed(ctx context.Context) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return Seed(ctx, s.repo.WithTx(tx))
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeCatalog, err, "catalog seed failed")
	}
	s.logg.Info(ctx, "catalog seeded")
	return nil
}

// Snapshot is an immutable view of the catalog held for a whole run.
type Snapshot struct {
	products     map[string]Product
	rules        map[string]Rule
	storeIDs     []string
	warehouseIDs []string
}

// NewSnapshot builds a snapshot from in-memory data.
func NewSnapshot(products []Product, rules []Rule, storeIDs, warehouseIDs []string) *Snapshot {
	snap := &Snapshot{
		products:     make(map[string]Product, len(products)),
		rules:        make(map[string]Rule, len(rules)),
		storeIDs:     append([]string(nil), storeIDs...),
		warehouseIDs: append([]string(nil), warehouseIDs...),
	}
	for _, p := range products {
		snap.products[p.SKU] = p
	}
	for _, r := range rules {
		snap.rules[r.SKU] = r
	}
	sort.Strings(snap.storeIDs)
	sort.Strings(snap.warehouseIDs)
	return snap
}

func (s *Snapshot) Products() map[string]Product {
	out := make(map[string]Product, len(s.products))
	for k, v := range s.products {
		out[k] = v
	}
	return out
}

func (s *Snapshot) Rules() map[string]Rule {
	out := make(map[string]Rule, len(s.rules))
	for k, v := range s.rules {
		out[k] = v
	}
	return out
}

func (s *Snapshot) StoreIDs() []string {
	return append([]string(nil), s.storeIDs...)
}

func (s *Snapshot) WarehouseIDs() []string {
	return append([]string(nil), s.warehouseIDs...)
}
