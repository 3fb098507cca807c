package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Dump is a flat, log-friendly view of an error: its typed code, the unwrap
// chain, the partition it points at and any Postgres fields from the catalog.
type Dump struct {
	Message   string   `json:"message"`
	Code      Code     `json:"code,omitempty"`
	Retryable bool     `json:"retryable"`
	Chain     []string `json:"chain,omitempty"`

	Stage      string `json:"stage,omitempty"`
	Date       string `json:"date,omitempty"`
	Dataset    string `json:"dataset,omitempty"`
	Key        string `json:"key,omitempty"`
	RecordLine int    `json:"record_line,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// recordLocator is implemented by decode errors that know the offending line.
type recordLocator interface {
	RecordLine() int
}

// Inspect builds the Dump for err. A nil error gives the zero Dump.
func Inspect(err error) Dump {
	if err == nil {
		return Dump{}
	}

	d := Dump{Message: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = MetadataFor(te.code).Retryable
		details := te.details
		d.Stage = stringDetail(details, "stage")
		d.Date = stringDetail(details, "date")
		d.Dataset = stringDetail(details, "dataset")
		d.Key = stringDetail(details, "key")
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var loc recordLocator
	if errors.As(err, &loc) {
		d.RecordLine = loc.RecordLine()
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGMessage = pgxErr.Message
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGMessage = pqErr.Message
	}
	return d
}

// Fields renders the non-empty parts of the dump as log fields.
func (d Dump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_chain": d.Chain,
		"retryable":   d.Retryable,
	}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	for k, v := range map[string]string{
		"stage":         d.Stage,
		"date":          d.Date,
		"dataset":       d.Dataset,
		"key":           d.Key,
		"pg_code":       d.PGCode,
		"pg_constraint": d.PGConstraint,
		"pg_table":      d.PGTable,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	if d.RecordLine > 0 {
		fields["record_line"] = d.RecordLine
	}
	return fields
}

func stringDetail(details map[string]any, key string) string {
	if v, ok := details[key].(string); ok {
		return v
	}
	return ""
}
