package generator

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/restock-pipeline/internal/catalog"
	"github.com/angelmondragon/restock-pipeline/internal/partition"
	"github.com/angelmondragon/restock-pipeline/pkg/config"
	"github.com/angelmondragon/restock-pipeline/pkg/enums"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const timestampLayout = "2006-01-02T15:04:05"

// Result holds one day of synthetic data before it is written.
type Result struct {
	// Orders is keyed by store id.
	Orders    map[string][]partition.OrderRecord
	Inventory []partition.InventoryRow
}

// OrderCount returns the number of orders across every store.
func (r *Result) OrderCount() int {
	n := 0
	for _, orders := range r.Orders {
		n += len(orders)
	}
	return n
}

// Generator produces and lands synthetic orders and inventory snapshots.
type Generator struct {
	store   partition.Store
	cfg     config.GenerationConfig
	items   itemDistribution
	workers int
	logg    *logger.Logger
}

func New(store partition.Store, cfg config.GenerationConfig, logg *logger.Logger) (*Generator, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partition store is required")
	}
	items, err := parseWeights(cfg.ItemWeights)
	if err != nil {
		return nil, err
	}
	if cfg.QtyMin <= 0 || cfg.QtyMax < cfg.QtyMin {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid quantity bounds").
			WithDetails(map[string]any{"qty_min": cfg.QtyMin, "qty_max": cfg.QtyMax})
	}
	if cfg.AvailableMax < 0 || cfg.ReservedMax < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory bounds must be non-negative")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Generator{store: store, cfg: cfg, items: items, workers: workers, logg: logg}, nil
}

type storePlan struct {
	storeID  string
	orderIDs []string
	seed     int64
}

// Generate builds orderCount orders spread uniformly over storeIDs and one
// inventory row per (warehouse, sku).
func (g *Generator) Generate(ctx context.Context, date string, products map[string]catalog.Product, storeIDs, warehouseIDs []string, orderCount int) (*Result, error) {
	day, err := partition.ParseDate(date)
	if err != nil {
		return nil, err
	}
	if orderCount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order count must be non-negative").
			WithDetail("order_count", orderCount)
	}
	if orderCount > 0 && (len(products) == 0 || len(storeIDs) == 0) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orders need at least one product and one store").
			WithDetails(map[string]any{"products": len(products), "stores": len(storeIDs)})
	}

	skus := make([]string, 0, len(products))
	for sku := range products {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	stores := sortedUnique(storeIDs)

	master := rand.New(rand.NewSource(g.seed()))
	plans := g.plan(master, day, stores, orderCount)

	res := &Result{Orders: make(map[string][]partition.OrderRecord, len(plans))}
	perStore := make([][]partition.OrderRecord, len(plans))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.workers)
	for i, p := range plans {
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perStore[i] = g.storeOrders(rand.New(rand.NewSource(p.seed)), day, p.orderIDs, skus, products)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	for i, p := range plans {
		if len(perStore[i]) > 0 {
			res.Orders[p.storeID] = perStore[i]
		}
	}

	res.Inventory = g.inventory(master, sortedUnique(warehouseIDs), skus)
	return res, nil
}

func (g *Generator) seed() int64 {
	if g.cfg.Seed != 0 {
		return g.cfg.Seed
	}
	return time.Now().UnixNano()
}

// plan assigns each order a store and a unique id up front so the per-store
// workers share nothing.
func (g *Generator) plan(rng *rand.Rand, day time.Time, stores []string, orderCount int) []storePlan {
	plans := make([]storePlan, len(stores))
	for i, id := range stores {
		plans[i] = storePlan{storeID: id, seed: rng.Int63()}
	}
	if len(stores) == 0 {
		return plans
	}

	prefix := "ORD-" + day.Format("20060102") + "-"
	seen := make(map[string]struct{}, orderCount)
	for range orderCount {
		var id string
		for {
			id = fmt.Sprintf("%s%08x", prefix, rng.Uint32())
			if _, dup := seen[id]; !dup {
				break
			}
		}
		seen[id] = struct{}{}
		i := rng.Intn(len(stores))
		plans[i].orderIDs = append(plans[i].orderIDs, id)
	}
	return plans
}

func (g *Generator) storeOrders(rng *rand.Rand, day time.Time, ids []string, skus []string, products map[string]catalog.Product) []partition.OrderRecord {
	out := make([]partition.OrderRecord, 0, len(ids))
	for _, id := range ids {
		n := min(g.items.pick(rng), len(skus))
		picks := rng.Perm(len(skus))[:n]
		lines := make([]partition.OrderLine, 0, n)
		for _, idx := range picks {
			sku := skus[idx]
			lines = append(lines, partition.OrderLine{
				SKU:       sku,
				Quantity:  g.cfg.QtyMin + rng.Intn(g.cfg.QtyMax-g.cfg.QtyMin+1),
				UnitPrice: products[sku].Price,
			})
		}
		ts := day.Add(time.Duration(rng.Int63n(int64(24 * time.Hour / time.Second))) * time.Second)
		out = append(out, partition.OrderRecord{
			OrderID:   id,
			Timestamp: ts.Format(timestampLayout),
			Items:     lines,
		})
	}
	return out
}

func (g *Generator) inventory(rng *rand.Rand, warehouses, skus []string) []partition.InventoryRow {
	rows := make([]partition.InventoryRow, 0, len(warehouses)*len(skus))
	for _, wh := range warehouses {
		for _, sku := range skus {
			rows = append(rows, partition.InventoryRow{
				WarehouseID:  wh,
				SKU:          sku,
				AvailableQty: rng.Int63n(int64(g.cfg.AvailableMax) + 1),
				ReservedQty:  rng.Int63n(int64(g.cfg.ReservedMax) + 1),
			})
		}
	}
	return rows
}

// Write replaces the date's order and inventory partitions. Each store's
// orders file is written by its own worker. A failed or cancelled write
// removes the partition it was filling.
func (g *Generator) Write(ctx context.Context, date string, res *Result) error {
	if _, err := partition.ParseDate(date); err != nil {
		return err
	}

	ordersPrefix := partition.DatePrefix(enums.DatasetOrders, date)
	err := partition.Replace(ctx, g.store, ordersPrefix, func(ctx context.Context) error {
		grp, gctx := errgroup.WithContext(ctx)
		grp.SetLimit(g.workers)
		for storeID, records := range res.Orders {
			grp.Go(func() error {
				key := partition.OrdersKey(date, storeID)
				var buf bytes.Buffer
				if err := partition.EncodeOrders(&buf, records); err != nil {
					return partition.IOError(err, "encode orders", enums.DatasetOrders, date, key)
				}
				if err := g.store.Put(gctx, key, &buf); err != nil {
					return partition.IOError(err, "write orders partition", enums.DatasetOrders, date, key)
				}
				return nil
			})
		}
		return grp.Wait()
	})
	if err != nil {
		return partition.IOError(err, "replace orders partition", enums.DatasetOrders, date, ordersPrefix)
	}

	inventoryPrefix := partition.DatePrefix(enums.DatasetInventory, date)
	err = partition.Replace(ctx, g.store, inventoryPrefix, func(ctx context.Context) error {
		key := partition.InventoryKey(date)
		var buf bytes.Buffer
		if err := partition.EncodeInventory(&buf, res.Inventory); err != nil {
			return partition.IOError(err, "encode inventory", enums.DatasetInventory, date, key)
		}
		if err := g.store.Put(ctx, key, &buf); err != nil {
			return partition.IOError(err, "write inventory partition", enums.DatasetInventory, date, key)
		}
		return nil
	})
	if err != nil {
		return partition.IOError(err, "replace inventory partition", enums.DatasetInventory, date, inventoryPrefix)
	}

	g.logg.Info(g.logg.WithFields(ctx, map[string]any{
		"orders":         res.OrderCount(),
		"store_files":    len(res.Orders),
		"inventory_rows": len(res.Inventory),
	}), "raw partitions written")
	return nil
}

func sortedUnique(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
