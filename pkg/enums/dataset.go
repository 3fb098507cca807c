package enums

import "fmt"

// Dataset names a family of partitions in the lake.
type Dataset string

const (
	DatasetOrders         Dataset = "orders"
	DatasetInventory      Dataset = "inventory"
	DatasetSupplierOrders Dataset = "supplier_orders"
)

var validDatasets = []Dataset{
	DatasetOrders,
	DatasetInventory,
	DatasetSupplierOrders,
}

// String implements fmt.Stringer.
func (d Dataset) String() string {
	return string(d)
}

// IsValid reports whether the value is a known Dataset.
func (d Dataset) IsValid() bool {
	for _, candidate := range validDatasets {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDataset converts raw input into a Dataset.
func ParseDataset(value string) (Dataset, error) {
	for _, candidate := range validDatasets {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dataset %q", value)
}
