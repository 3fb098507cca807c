package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/restock-pipeline/api/controllers"
	"github.com/angelmondragon/restock-pipeline/api/middleware"
	"github.com/angelmondragon/restock-pipeline/pkg/config"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
)

// Deps are the collaborators the ops API needs. Nil readiness checks are
// skipped; a nil Ledger makes the ledger route report DEPENDENCY_ERROR.
type Deps struct {
	Runner   controllers.StageRunner
	Ledger   controllers.LedgerReader
	Checks   map[string]controllers.Pinger
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Checks))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/runs", func(r chi.Router) {
		r.Post("/", controllers.TriggerRun(deps.Runner, logg))
		r.Get("/{date}", controllers.RunLedger(deps.Ledger, logg))
	})

	return r
}
