package partition

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderLine is one SKU line inside an order.
type OrderLine struct {
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// MarshalJSON writes unit_price as a plain JSON number with two decimals.
func (l OrderLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		SKU       string      `json:"sku"`
		Quantity  int         `json:"quantity"`
		UnitPrice json.Number `json:"unit_price"`
	}{l.SKU, l.Quantity, json.Number(l.UnitPrice.StringFixed(2))})
}

// OrderRecord is one line of an orders.json partition file. The store id is
// carried by the partition path, not the record.
type OrderRecord struct {
	OrderID   string      `json:"order_id"`
	Timestamp string      `json:"timestamp"`
	Items     []OrderLine `json:"items"`
}

// InventoryRow is one line of inventory.csv.
type InventoryRow struct {
	WarehouseID  string
	SKU          string
	AvailableQty int64
	ReservedQty  int64
}

var inventoryHeader = []string{"warehouse_id", "sku", "available_qty", "reserved_qty"}

// MalformedError reports an undecodable record inside a partition file.
type MalformedError struct {
	Line   int
	Reason string
}

// RecordLine is the 1-based line of the bad record.
func (e *MalformedError) RecordLine() int {
	return e.Line
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed record at line %d: %s", e.Line, e.Reason)
}

// EncodeOrders writes records as newline-delimited JSON.
func EncodeOrders(w io.Writer, records []OrderRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// DecodeOrders streams NDJSON records to fn. Blank lines are skipped.
func DecodeOrders(r io.Reader, fn func(OrderRecord) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec OrderRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return &MalformedError{Line: line, Reason: err.Error()}
		}
		if err := validateOrder(rec); err != nil {
			return &MalformedError{Line: line, Reason: err.Error()}
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func validateOrder(rec OrderRecord) error {
	if rec.OrderID == "" {
		return errors.New("order_id is required")
	}
	for _, item := range rec.Items {
		if item.SKU == "" {
			return errors.New("item sku is required")
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("non-positive quantity for %s", item.SKU)
		}
	}
	return nil
}

// EncodeInventory writes rows as CSV with the standard header.
func EncodeInventory(w io.Writer, rows []InventoryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(inventoryHeader); err != nil {
		return err
	}
	for _, row := range rows {
		rec := []string{
			row.WarehouseID,
			row.SKU,
			strconv.FormatInt(row.AvailableQty, 10),
			strconv.FormatInt(row.ReservedQty, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeInventory streams CSV rows to fn after checking the header. An empty
// file is treated as having no rows.
func DecodeInventory(r io.Reader, fn func(InventoryRow) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(inventoryHeader)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return csvError(err)
	}
	for i, col := range inventoryHeader {
		if strings.TrimSpace(header[i]) != col {
			return &MalformedError{Line: 1, Reason: fmt.Sprintf("unexpected header %v", header)}
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return csvError(err)
		}
		line, _ := cr.FieldPos(0)
		row, err := parseInventory(rec)
		if err != nil {
			return &MalformedError{Line: line, Reason: err.Error()}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

func parseInventory(rec []string) (InventoryRow, error) {
	avail, err := strconv.ParseInt(strings.TrimSpace(rec[2]), 10, 64)
	if err != nil {
		return InventoryRow{}, fmt.Errorf("available_qty: %w", err)
	}
	reserved, err := strconv.ParseInt(strings.TrimSpace(rec[3]), 10, 64)
	if err != nil {
		return InventoryRow{}, fmt.Errorf("reserved_qty: %w", err)
	}
	if avail < 0 || reserved < 0 {
		return InventoryRow{}, errors.New("quantities must be non-negative")
	}
	sku := strings.TrimSpace(rec[1])
	if sku == "" {
		return InventoryRow{}, errors.New("sku is required")
	}
	return InventoryRow{
		WarehouseID:  strings.TrimSpace(rec[0]),
		SKU:          sku,
		AvailableQty: avail,
		ReservedQty:  reserved,
	}, nil
}

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &MalformedError{Line: pe.Line, Reason: pe.Err.Error()}
	}
	return err
}
