package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/restock-pipeline/internal/partition"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
)

// DateParam reads and validates a YYYY-MM-DD route parameter.
func DateParam(r *http.Request, key string) (string, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "path parameter is required").WithDetail("field", key)
	}
	if _, err := partition.ParseDate(raw); err != nil {
		return "", err
	}
	return raw, nil
}
