package catalog

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/angelmondragon/restock-pipeline/pkg/db"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
	"github.com/angelmondragon/restock-pipeline/pkg/migrate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newCatalogDB(t *testing.T) *db.Client {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.Up(context.Background(), sqlDB, db.DialectSQLite, migrate.EmbeddedDir); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db.FromGorm(conn)
}

func newSeededService(t *testing.T) *Service {
	t.Helper()
	client := newCatalogDB(t)
	svc, err := NewService(client, NewRepository(client.DB()), 0, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return svc
}

func TestSnapshotReadsSeededCatalog(t *testing.T) {
	svc := newSeededService(t)

	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	products := snap.Products()
	if len(products) != 15 {
		t.Fatalf("expected 15 products, got %d", len(products))
	}
	p := products["PRD-001"]
	if p.Name != "Sidi Ali 1.5L" || p.Price.String() != "6.5" {
		t.Fatalf("unexpected product %+v", p)
	}
	if p.SupplierID != "SUP-001" || p.SupplierName != "Les Eaux Minérales d'Oulmès" {
		t.Fatalf("unexpected supplier on product %+v", p)
	}

	rules := snap.Rules()
	if len(rules) != 15 {
		t.Fatalf("expected 15 rules, got %d", len(rules))
	}
	r := rules["PRD-001"]
	if r.SafetyStock != 100 || r.MOQ != 50 {
		t.Fatalf("unexpected rule thresholds %+v", r)
	}
	if r.ProductName != "Sidi Ali 1.5L" || r.SupplierName != "Les Eaux Minérales d'Oulmès" {
		t.Fatalf("unexpected rule names %+v", r)
	}
	if got := rules["PRD-007"].SupplierName; got != "Centrale Danone" {
		t.Fatalf("expected Centrale Danone for PRD-007, got %q", got)
	}

	stores := snap.StoreIDs()
	if len(stores) != 7 || stores[0] != "STORE-AGA-01" {
		t.Fatalf("unexpected stores %v", stores)
	}

	warehouses := snap.WarehouseIDs()
	if len(warehouses) != 7 {
		t.Fatalf("expected 7 warehouses, got %v", warehouses)
	}
	found := false
	for _, w := range warehouses {
		if w == "WH-STORE-CAS-01" {
			found = true
		}
	}
	if !found {
		t.Fatalf("WH-STORE-CAS-01 missing from %v", warehouses)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	svc := newSeededService(t)
	if err := svc.Seed(context.Background()); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	suppliers, err := svc.repo.Suppliers(context.Background())
	if err != nil {
		t.Fatalf("suppliers: %v", err)
	}
	if len(suppliers) != 5 {
		t.Fatalf("expected 5 suppliers, got %d", len(suppliers))
	}
}

func TestRulesSkipProductsWithoutRule(t *testing.T) {
	svc := newSeededService(t)
	client := svc.db.(*db.Client)
	if err := client.Exec(context.Background(), "DELETE FROM replenishment_rules WHERE sku = ?", "PRD-015").Error; err != nil {
		t.Fatalf("delete rule: %v", err)
	}

	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Products()) != 15 || len(snap.Rules()) != 14 {
		t.Fatalf("expected 15 products and 14 rules, got %d and %d", len(snap.Products()), len(snap.Rules()))
	}
	if _, ok := snap.Rules()["PRD-015"]; ok {
		t.Fatalf("PRD-015 should have no rule")
	}
}

func TestSnapshotAccessorsReturnCopies(t *testing.T) {
	snap := NewSnapshot(
		[]Product{{SKU: "A", Name: "a"}},
		[]Rule{{SKU: "A", MOQ: 5}},
		[]string{"S2", "S1"},
		[]string{"W1"},
	)

	products := snap.Products()
	delete(products, "A")
	rules := snap.Rules()
	rules["B"] = Rule{SKU: "B"}
	stores := snap.StoreIDs()
	stores[0] = "mutated"

	if len(snap.Products()) != 1 || len(snap.Rules()) != 1 {
		t.Fatalf("snapshot maps were mutated through accessors")
	}
	if got := snap.StoreIDs(); !reflect.DeepEqual(got, []string{"S1", "S2"}) {
		t.Fatalf("expected sorted stores, got %v", got)
	}
	if got := snap.WarehouseIDs(); !reflect.DeepEqual(got, []string{"W1"}) {
		t.Fatalf("unexpected warehouses %v", got)
	}
}

type failingRunner struct{ err error }

func (f failingRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return f.err
}

func (f failingRunner) WithReadTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return f.err
}

func TestSnapshotFailureIsCatalogUnavailable(t *testing.T) {
	svc, err := NewService(failingRunner{err: errors.New("connection refused")}, NewRepository(nil), 0, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Snapshot(context.Background())
	if code := pkgerrors.CodeOf(err); code != pkgerrors.CodeCatalog {
		t.Fatalf("expected CATALOG_UNAVAILABLE, got %v", err)
	}
	if pkgerrors.IsRetryable(err) {
		t.Fatalf("catalog failure should not be retryable")
	}
}

func TestSnapshotMissingTablesFails(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:catalog_empty?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	client := db.FromGorm(conn)
	t.Cleanup(func() { _ = client.Close() })

	svc, err := NewService(client, NewRepository(conn), 0, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Snapshot(context.Background())
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	if typed.Code() != pkgerrors.CodeCatalog || typed.Details()["entity"] != "products" {
		t.Fatalf("unexpected error %v details %v", typed, typed.Details())
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(nil, NewRepository(nil), 0, nil); err == nil {
		t.Fatalf("expected error without runner")
	}
	if _, err := NewService(failingRunner{}, nil, 0, nil); err == nil {
		t.Fatalf("expected error without repository")
	}
}

func TestSnapshotTimeoutIsRetryable(t *testing.T) {
	svc, err := NewService(failingRunner{err: context.DeadlineExceeded}, NewRepository(nil), 0, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Snapshot(context.Background())
	if code := pkgerrors.CodeOf(err); code != pkgerrors.CodeDependency {
		t.Fatalf("expected DEPENDENCY_ERROR, got %v", err)
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatalf("timeout should be retryable")
	}
}
