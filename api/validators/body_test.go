package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
)

type runBody struct {
	Stage string `json:"stage" validate:"required,stage"`
	Date  string `json:"date" validate:"required,isodate"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{name: "valid", body: `{"stage":"aggregate","date":"2025-06-01"}`},
		{name: "unknown stage", body: `{"stage":"deploy","date":"2025-06-01"}`, wantErr: true, field: "stage"},
		{name: "bad date", body: `{"stage":"upload","date":"06/01/2025"}`, wantErr: true, field: "date"},
		{name: "missing date", body: `{"stage":"upload"}`, wantErr: true, field: "date"},
		{name: "unknown field", body: `{"stage":"upload","date":"2025-06-01","x":1}`, wantErr: true, field: "error"},
		{name: "not json", body: `stage=upload`, wantErr: true, field: "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tc.body))
			var dest runBody
			err := DecodeJSONBody(req, &dest)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				if dest.Stage != "aggregate" {
					t.Fatalf("expected aggregate, got %q", dest.Stage)
				}
				return
			}
			typed := pkgerrors.As(err)
			if typed == nil {
				t.Fatalf("expected typed error, got %v", err)
			}
			if typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected VALIDATION_ERROR, got %s", typed.Code())
			}
			if _, ok := typed.Details()[tc.field]; !ok {
				t.Fatalf("expected detail %q, got %v", tc.field, typed.Details())
			}
		})
	}
}
