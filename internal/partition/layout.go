package partition

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/angelmondragon/restock-pipeline/pkg/enums"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
)

const (
	DateLayout = "2006-01-02"

	OrdersFile    = "orders.json"
	InventoryFile = "inventory.csv"

	storeKey = "store_id"
)

// ParseDate validates a YYYY-MM-DD processing date.
func ParseDate(value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "date must be YYYY-MM-DD").
			WithDetail("date", value)
	}
	return d, nil
}

// DatePrefix returns "<dataset>/dt=<date>/", the root of one day's partition.
func DatePrefix(dataset enums.Dataset, date string) string {
	return fmt.Sprintf("%s/dt=%s/", dataset, date)
}

// PartitionKey builds "<dataset>/dt=<date>/<key>=<value>/<file>". An empty key
// places the file directly under the date directory.
func PartitionKey(dataset enums.Dataset, date, key, value, file string) string {
	if key == "" {
		return DatePrefix(dataset, date) + file
	}
	return DatePrefix(dataset, date) + key + "=" + value + "/" + file
}

func OrdersKey(date, storeID string) string {
	return PartitionKey(enums.DatasetOrders, date, storeKey, storeID, OrdersFile)
}

func InventoryKey(date string) string {
	return PartitionKey(enums.DatasetInventory, date, "", "", InventoryFile)
}

// BatchPrefix is where one day's supplier files live: "supplier_orders/<date>/".
func BatchPrefix(date string) string {
	return fmt.Sprintf("%s/%s/", enums.DatasetSupplierOrders, date)
}

// StoreIDFromKey extracts the store_id partition value from an orders key.
func StoreIDFromKey(key string) (string, bool) {
	for _, segment := range strings.Split(path.Dir(key), "/") {
		if v, ok := strings.CutPrefix(segment, storeKey+"="); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
