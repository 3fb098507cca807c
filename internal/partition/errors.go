package partition

import (
	"errors"

	"github.com/angelmondragon/restock-pipeline/pkg/enums"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
)

// IOError wraps a store or codec failure as PARTITION_IO with the partition
// coordinates attached. Typed errors pass through untouched.
func IOError(err error, msg string, dataset enums.Dataset, date, key string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	details := map[string]any{"date": date, "dataset": dataset.String()}
	if key != "" {
		details["key"] = key
		if storeID, ok := StoreIDFromKey(key); ok {
			details["store_id"] = storeID
		}
	}
	var malformed *MalformedError
	if errors.As(err, &malformed) {
		details["line"] = malformed.Line
	}
	return pkgerrors.Wrap(pkgerrors.CodePartitionIO, err, msg).WithDetails(details)
}
