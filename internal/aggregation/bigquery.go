package aggregation

import (
	"context"
	"fmt"
	"strings"

	cloudbigquery "cloud.google.com/go/bigquery"
	"github.com/angelmondragon/restock-pipeline/pkg/bigquery"
	"github.com/angelmondragon/restock-pipeline/pkg/enums"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
	"google.golang.org/api/iterator"
)

const demandSQL = `
WITH sold AS (
  SELECT item.sku AS sku, SUM(item.quantity) AS total_sold
  FROM %s AS o, UNNEST(o.items) AS item
  WHERE o.dt = @dt
  GROUP BY item.sku
),
stock AS (
  SELECT sku, SUM(available_qty) AS total_available, SUM(reserved_qty) AS total_reserved
  FROM %s
  WHERE dt = @dt
  GROUP BY sku
)
SELECT
  COALESCE(sold.sku, stock.sku) AS sku,
  COALESCE(sold.total_sold, 0) AS total_sold,
  COALESCE(stock.total_available, 0) AS total_available,
  COALESCE(stock.total_reserved, 0) AS total_reserved
FROM sold
FULL OUTER JOIN stock ON sold.sku = stock.sku
ORDER BY sku
`

type querier interface {
	Query(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (bigquery.RowIterator, error)
	TableRef(table string) string
	EnsureExternalTable(ctx context.Context, table string, ec *cloudbigquery.ExternalDataConfig) error
}

// BigQueryTables locates the hive-partitioned raw datasets in GCS and the
// external tables that expose them.
type BigQueryTables struct {
	Bucket         string
	RawPrefix      string
	OrdersTable    string
	InventoryTable string
}

// BigQueryEngine delegates the summation to BigQuery over external tables
// reading the raw partitions in place.
type BigQueryEngine struct {
	client querier
	tables BigQueryTables
	logg   *logger.Logger
}

func NewBigQueryEngine(client querier, tables BigQueryTables, logg *logger.Logger) (*BigQueryEngine, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if tables.Bucket == "" || tables.OrdersTable == "" || tables.InventoryTable == "" {
		return nil, fmt.Errorf("bucket, orders table and inventory table are required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &BigQueryEngine{client: client, tables: tables, logg: logg}, nil
}

// EnsureTables creates the orders and inventory external tables when missing.
func (e *BigQueryEngine) EnsureTables(ctx context.Context) error {
	if err := e.client.EnsureExternalTable(ctx, e.tables.OrdersTable, e.ordersConfig()); err != nil {
		return unavailable(err, "ensure orders table", "").WithDetail("dataset", enums.DatasetOrders.String())
	}
	if err := e.client.EnsureExternalTable(ctx, e.tables.InventoryTable, e.inventoryConfig()); err != nil {
		return unavailable(err, "ensure inventory table", "").WithDetail("dataset", enums.DatasetInventory.String())
	}
	return nil
}

func (e *BigQueryEngine) Aggregate(ctx context.Context, date string) ([]Demand, error) {
	sql := fmt.Sprintf(demandSQL, e.client.TableRef(e.tables.OrdersTable), e.client.TableRef(e.tables.InventoryTable))
	params := []cloudbigquery.QueryParameter{{Name: "dt", Value: date}}

	iter, err := e.client.Query(ctx, sql, params)
	if err != nil {
		return nil, unavailable(err, "aggregation query failed", date)
	}

	var rows []Demand
	for {
		var row Demand
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, unavailable(err, "reading aggregation row", date)
		}
		rows = append(rows, row)
	}
	sortBySKU(rows)

	e.logg.Info(e.logg.WithField(ctx, "skus", len(rows)), "bigquery aggregation complete")
	return rows, nil
}

func (e *BigQueryEngine) sourcePrefix(dataset enums.Dataset) string {
	parts := []string{"gs://" + e.tables.Bucket}
	if p := strings.Trim(e.tables.RawPrefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, dataset.String())
	return strings.Join(parts, "/")
}

func (e *BigQueryEngine) ordersConfig() *cloudbigquery.ExternalDataConfig {
	prefix := e.sourcePrefix(enums.DatasetOrders)
	return &cloudbigquery.ExternalDataConfig{
		SourceFormat: cloudbigquery.JSON,
		SourceURIs:   []string{prefix + "/*"},
		Schema: cloudbigquery.Schema{
			{Name: "order_id", Type: cloudbigquery.StringFieldType},
			{Name: "timestamp", Type: cloudbigquery.StringFieldType},
			{
				Name:     "items",
				Type:     cloudbigquery.RecordFieldType,
				Repeated: true,
				Schema: cloudbigquery.Schema{
					{Name: "sku", Type: cloudbigquery.StringFieldType},
					{Name: "quantity", Type: cloudbigquery.IntegerFieldType},
					{Name: "unit_price", Type: cloudbigquery.NumericFieldType},
				},
			},
		},
		HivePartitioningOptions: &cloudbigquery.HivePartitioningOptions{
			Mode:            cloudbigquery.CustomHivePartitioningMode,
			SourceURIPrefix: prefix + "/{dt:STRING}/{store_id:STRING}",
		},
	}
}

func (e *BigQueryEngine) inventoryConfig() *cloudbigquery.ExternalDataConfig {
	prefix := e.sourcePrefix(enums.DatasetInventory)
	return &cloudbigquery.ExternalDataConfig{
		SourceFormat: cloudbigquery.CSV,
		SourceURIs:   []string{prefix + "/*"},
		Schema: cloudbigquery.Schema{
			{Name: "warehouse_id", Type: cloudbigquery.StringFieldType},
			{Name: "sku", Type: cloudbigquery.StringFieldType},
			{Name: "available_qty", Type: cloudbigquery.IntegerFieldType},
			{Name: "reserved_qty", Type: cloudbigquery.IntegerFieldType},
		},
		Options: &cloudbigquery.CSVOptions{SkipLeadingRows: 1},
		HivePartitioningOptions: &cloudbigquery.HivePartitioningOptions{
			Mode:            cloudbigquery.CustomHivePartitioningMode,
			SourceURIPrefix: prefix + "/{dt:STRING}",
		},
	}
}

func unavailable(err error, msg, date string) *pkgerrors.Error {
	out := pkgerrors.Wrap(pkgerrors.CodeAggregation, err, msg).
		WithDetail("transient", bigquery.IsRetryable(err))
	if date != "" {
		out = out.WithDetail("date", date)
	}
	return out
}
