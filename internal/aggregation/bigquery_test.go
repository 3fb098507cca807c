package aggregation

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"

	cloudbigquery "cloud.google.com/go/bigquery"
	"github.com/angelmondragon/restock-pipeline/pkg/bigquery"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

type fakeIterator struct {
	rows []Demand
	err  error
}

func (f *fakeIterator) Next(dst any) error {
	if f.err != nil {
		return f.err
	}
	if len(f.rows) == 0 {
		return iterator.Done
	}
	*(dst.(*Demand)) = f.rows[0]
	f.rows = f.rows[1:]
	return nil
}

type fakeQuerier struct {
	sql      string
	params   []cloudbigquery.QueryParameter
	iter     *fakeIterator
	queryErr error
	ensured  map[string]*cloudbigquery.ExternalDataConfig
	ensureFn func(table string) error
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (bigquery.RowIterator, error) {
	f.sql = sql
	f.params = params
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.iter, nil
}

func (f *fakeQuerier) TableRef(table string) string {
	return "`proj.restock." + table + "`"
}

func (f *fakeQuerier) EnsureExternalTable(ctx context.Context, table string, ec *cloudbigquery.ExternalDataConfig) error {
	if f.ensureFn != nil {
		if err := f.ensureFn(table); err != nil {
			return err
		}
	}
	if f.ensured == nil {
		f.ensured = map[string]*cloudbigquery.ExternalDataConfig{}
	}
	f.ensured[table] = ec
	return nil
}

var testTables = BigQueryTables{
	Bucket:         "lake",
	RawPrefix:      "raw",
	OrdersTable:    "raw_orders",
	InventoryTable: "raw_inventory",
}

func newTestEngine(t *testing.T, q *fakeQuerier) *BigQueryEngine {
	t.Helper()
	engine, err := NewBigQueryEngine(q, testTables, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestBigQueryEngineAggregate(t *testing.T) {
	q := &fakeQuerier{iter: &fakeIterator{rows: []Demand{
		{SKU: "PRD-002", TotalAvailable: 5},
		{SKU: "PRD-001", TotalSold: 120, TotalAvailable: 150, TotalReserved: 20},
	}}}

	rows, err := newTestEngine(t, q).Aggregate(context.Background(), testDate)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(rows) != 2 || rows[0].SKU != "PRD-001" || rows[0].TotalSold != 120 {
		t.Fatalf("expected rows sorted by sku, got %+v", rows)
	}

	for _, want := range []string{"FULL OUTER JOIN", "`proj.restock.raw_orders`", "`proj.restock.raw_inventory`"} {
		if !strings.Contains(q.sql, want) {
			t.Fatalf("query missing %q:\n%s", want, q.sql)
		}
	}
	if n := strings.Count(q.sql, "COALESCE"); n != 4 {
		t.Fatalf("expected 4 COALESCE, got %d", n)
	}
	if len(q.params) != 1 || q.params[0].Name != "dt" || q.params[0].Value != testDate {
		t.Fatalf("unexpected params %+v", q.params)
	}
}

func TestBigQueryEngineUnavailable(t *testing.T) {
	q := &fakeQuerier{queryErr: &googleapi.Error{Code: http.StatusServiceUnavailable}}

	_, err := newTestEngine(t, q).Aggregate(context.Background(), testDate)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeAggregation {
		t.Fatalf("expected aggregation error, got %v", err)
	}
	if typed.Details()["transient"] != true || typed.Details()["date"] != testDate {
		t.Fatalf("unexpected details %v", typed.Details())
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatalf("engine outage should be retryable")
	}
}

func TestBigQueryEngineRowError(t *testing.T) {
	q := &fakeQuerier{iter: &fakeIterator{err: errors.New("boom")}}

	_, err := newTestEngine(t, q).Aggregate(context.Background(), testDate)
	if !pkgerrors.Is(err, pkgerrors.CodeAggregation) {
		t.Fatalf("expected aggregation error, got %v", err)
	}
}

func TestBigQueryEngineEnsureTables(t *testing.T) {
	q := &fakeQuerier{}
	if err := newTestEngine(t, q).EnsureTables(context.Background()); err != nil {
		t.Fatalf("ensure tables: %v", err)
	}

	orders := q.ensured["raw_orders"]
	if orders == nil {
		t.Fatalf("orders table not ensured")
	}
	if orders.SourceFormat != cloudbigquery.JSON {
		t.Fatalf("expected JSON source, got %v", orders.SourceFormat)
	}
	if !reflect.DeepEqual(orders.SourceURIs, []string{"gs://lake/raw/orders/*"}) {
		t.Fatalf("unexpected orders uris %v", orders.SourceURIs)
	}
	if got := orders.HivePartitioningOptions.SourceURIPrefix; got != "gs://lake/raw/orders/{dt:STRING}/{store_id:STRING}" {
		t.Fatalf("unexpected orders hive prefix %q", got)
	}

	inventory := q.ensured["raw_inventory"]
	if inventory == nil {
		t.Fatalf("inventory table not ensured")
	}
	if inventory.SourceFormat != cloudbigquery.CSV {
		t.Fatalf("expected CSV source, got %v", inventory.SourceFormat)
	}
	if got := inventory.HivePartitioningOptions.SourceURIPrefix; got != "gs://lake/raw/inventory/{dt:STRING}" {
		t.Fatalf("unexpected inventory hive prefix %q", got)
	}
	csvOpts, ok := inventory.Options.(*cloudbigquery.CSVOptions)
	if !ok || csvOpts.SkipLeadingRows != 1 {
		t.Fatalf("expected csv options skipping the header, got %#v", inventory.Options)
	}
}

func TestBigQueryEngineEnsureTablesFailure(t *testing.T) {
	q := &fakeQuerier{ensureFn: func(table string) error {
		if table == "raw_inventory" {
			return errors.New("permission denied")
		}
		return nil
	}}

	err := newTestEngine(t, q).EnsureTables(context.Background())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeAggregation {
		t.Fatalf("expected aggregation error, got %v", err)
	}
	if typed.Details()["dataset"] != "inventory" {
		t.Fatalf("expected inventory dataset detail, got %v", typed.Details())
	}
}

func TestNewBigQueryEngineValidates(t *testing.T) {
	if _, err := NewBigQueryEngine(nil, testTables, nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewBigQueryEngine(&fakeQuerier{}, BigQueryTables{}, nil); err == nil {
		t.Fatalf("expected error for empty tables")
	}
}
