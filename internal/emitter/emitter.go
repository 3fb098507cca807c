package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/restock-pipeline/internal/partition"
	"github.com/angelmondragon/restock-pipeline/internal/replenishment"
	"github.com/angelmondragon/restock-pipeline/pkg/enums"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
)

// Document is the per-supplier output file.
type Document struct {
	Supplier string               `json:"supplier"`
	Date     string               `json:"date"`
	Items    []replenishment.Item `json:"items"`
}

// Emitter writes supplier batches into the staging store.
type Emitter struct {
	store partition.Store
	logg  *logger.Logger
}

func New(store partition.Store, logg *logger.Logger) *Emitter {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Emitter{store: store, logg: logg}
}

var fileNameReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_")

// FileName is the deterministic name of a supplier's file for date.
func FileName(supplier, date string) string {
	return "Order_" + fileNameReplacer.Replace(supplier) + "_" + date + ".json"
}

// Emit replaces the date's batch directory with one file per supplier and
// returns the directory. Suppliers are written in sorted order. Any write
// failure is EMIT_WRITE and leaves no partial directory behind. Suppliers whose
// names collapse to the same file name are a VALIDATION_ERROR raised before
// anything is touched.
func (e *Emitter) Emit(ctx context.Context, date string, batches replenishment.Batches) (string, error) {
	if _, err := partition.ParseDate(date); err != nil {
		return "", err
	}
	prefix := partition.BatchPrefix(date)
	if err := checkFileNames(date, batches); err != nil {
		return "", err
	}

	var files []string
	err := partition.Replace(ctx, e.store, prefix, func(ctx context.Context) error {
		for _, supplier := range batches.Suppliers() {
			key := prefix + FileName(supplier, date)
			body, err := json.MarshalIndent(Document{Supplier: supplier, Date: date, Items: batches[supplier]}, "", "  ")
			if err != nil {
				return emitError(err, "encode batch", date, key)
			}
			if err := e.store.Put(ctx, key, bytes.NewReader(append(body, '\n'))); err != nil {
				return emitError(err, "write batch", date, key)
			}
			files = append(files, key)
		}
		return nil
	})
	if err != nil {
		return "", emitError(err, "emit batches", date, prefix)
	}

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"location": prefix,
		"files":    len(files),
	}), "supplier batches emitted")
	return prefix, nil
}

// checkFileNames rejects batches where two suppliers map to the same file.
func checkFileNames(date string, batches replenishment.Batches) error {
	owners := make(map[string]string, len(batches))
	for _, supplier := range batches.Suppliers() {
		name := FileName(supplier, date)
		if prev, ok := owners[name]; ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "supplier file names collide").WithDetails(map[string]any{
				"date":      date,
				"dataset":   enums.DatasetSupplierOrders.String(),
				"file":      name,
				"suppliers": []string{prev, supplier},
			})
		}
		owners[name] = supplier
	}
	return nil
}

func emitError(err error, msg, date, key string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeEmitWrite, err, msg).WithDetails(map[string]any{
		"date":    date,
		"dataset": enums.DatasetSupplierOrders.String(),
		"key":     key,
	})
}
