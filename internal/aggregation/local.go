package aggregation

import (
	"context"
	"strings"

	"github.com/angelmondragon/restock-pipeline/internal/partition"
	"github.com/angelmondragon/restock-pipeline/pkg/enums"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

// LocalEngine streams the raw partition files and sums them in process. Each
// file is decoded by one worker into its own partial totals; partials are
// merged once every worker is done.
type LocalEngine struct {
	store   partition.Store
	workers int
	logg    *logger.Logger
}

func NewLocalEngine(store partition.Store, workers int, logg *logger.Logger) *LocalEngine {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &LocalEngine{store: store, workers: workers, logg: logg}
}

func (e *LocalEngine) Aggregate(ctx context.Context, date string) ([]Demand, error) {
	orderKeys, err := e.listFiles(ctx, enums.DatasetOrders, date, ".json")
	if err != nil {
		return nil, err
	}
	inventoryKeys, err := e.listFiles(ctx, enums.DatasetInventory, date, ".csv")
	if err != nil {
		return nil, err
	}

	soldParts := make([]map[string]int64, len(orderKeys))
	stockParts := make([]map[string]stockTotals, len(inventoryKeys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, key := range orderKeys {
		g.Go(func() error {
			part, err := e.readOrders(gctx, key)
			if err != nil {
				return partition.IOError(err, "read order partition", enums.DatasetOrders, date, key)
			}
			soldParts[i] = part
			return nil
		})
	}
	for i, key := range inventoryKeys {
		g.Go(func() error {
			part, err := e.readInventory(gctx, key)
			if err != nil {
				return partition.IOError(err, "read inventory partition", enums.DatasetInventory, date, key)
			}
			stockParts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sold := map[string]int64{}
	for _, part := range soldParts {
		for sku, qty := range part {
			sold[sku] += qty
		}
	}
	stock := map[string]stockTotals{}
	for _, part := range stockParts {
		for sku, st := range part {
			acc := stock[sku]
			acc.available += st.available
			acc.reserved += st.reserved
			stock[sku] = acc
		}
	}

	rows := join(sold, stock)
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"order_files":     len(orderKeys),
		"inventory_files": len(inventoryKeys),
		"skus":            len(rows),
	}), "local aggregation complete")
	return rows, nil
}

func (e *LocalEngine) listFiles(ctx context.Context, dataset enums.Dataset, date, ext string) ([]string, error) {
	keys, err := e.store.List(ctx, partition.DatePrefix(dataset, date))
	if err != nil {
		return nil, partition.IOError(err, "list partition", dataset, date, "")
	}
	out := keys[:0]
	for _, key := range keys {
		if strings.HasSuffix(key, ext) {
			out = append(out, key)
		}
	}
	return out, nil
}

func (e *LocalEngine) readOrders(ctx context.Context, key string) (part map[string]int64, err error) {
	rc, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, rc.Close()) }()

	part = map[string]int64{}
	err = partition.DecodeOrders(rc, func(rec partition.OrderRecord) error {
		for _, line := range rec.Items {
			part[line.SKU] += int64(line.Quantity)
		}
		return ctx.Err()
	})
	return part, err
}

func (e *LocalEngine) readInventory(ctx context.Context, key string) (part map[string]stockTotals, err error) {
	rc, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, rc.Close()) }()

	part = map[string]stockTotals{}
	err = partition.DecodeInventory(rc, func(row partition.InventoryRow) error {
		acc := part[row.SKU]
		acc.available += row.AvailableQty
		acc.reserved += row.ReservedQty
		part[row.SKU] = acc
		return ctx.Err()
	})
	return part, err
}
