package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/angelmondragon/restock-pipeline/pkg/config"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Serve runs handler on the configured port until ctx is cancelled, then
// drains in-flight requests.
func Serve(ctx context.Context, cfg *config.Config, logg *logger.Logger, handler http.Handler) error {
	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
