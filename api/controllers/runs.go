package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/restock-pipeline/api/responses"
	"github.com/angelmondragon/restock-pipeline/api/validators"
	"github.com/angelmondragon/restock-pipeline/internal/pipeline"
	"github.com/angelmondragon/restock-pipeline/internal/scheduler"
	"github.com/angelmondragon/restock-pipeline/pkg/enums"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
)

// StageRunner executes one pipeline stage for a date.
type StageRunner interface {
	Run(ctx context.Context, stage enums.Stage, date string) (*pipeline.Report, error)
}

// LedgerReader exposes the recorded stage outcomes of a date.
type LedgerReader interface {
	Entries(ctx context.Context, date string) ([]scheduler.Entry, error)
}

type runRequest struct {
	Stage string `json:"stage" validate:"required,stage"`
	Date  string `json:"date" validate:"required,isodate"`
}

type ledgerResponse struct {
	Date    string            `json:"date"`
	Entries []scheduler.Entry `json:"entries"`
}

// TriggerRun runs the requested stage synchronously and returns its report.
func TriggerRun(runner StageRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rep, err := runner.Run(r.Context(), enums.Stage(req.Stage), req.Date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rep)
	}
}

// RunLedger returns the ledger entries recorded for the date path parameter.
func RunLedger(ledger LedgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := validators.DateParam(r, "date")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "run ledger requires redis"))
			return
		}
		entries, err := ledger.Entries(r.Context(), date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read run ledger"))
			return
		}
		if len(entries) == 0 {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeNotFound, "no runs recorded for date").WithDetail("date", date))
			return
		}
		responses.WriteSuccess(w, ledgerResponse{Date: date, Entries: entries})
	}
}
