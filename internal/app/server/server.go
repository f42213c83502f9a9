// Package server wires the store, services and HTTP surface together and
// runs the listener until the context is cancelled.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orata/spatial-gateway/internal/api"
	"github.com/orata/spatial-gateway/internal/config"
	"github.com/orata/spatial-gateway/internal/gpkg"
	"github.com/orata/spatial-gateway/internal/health"
	"github.com/orata/spatial-gateway/internal/metrics"
	imw "github.com/orata/spatial-gateway/internal/middleware"
	"github.com/orata/spatial-gateway/internal/repository"
	"github.com/orata/spatial-gateway/internal/spatialquery"
	"github.com/orata/spatial-gateway/internal/table"
)

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, pool *pgxpool.Pool, prov *metrics.Provider) error {
	tables := table.New(pool, logger)
	features := repository.New(pool, tables, logger)

	var rec spatialquery.Recorder
	var impRec api.ImportRecorder
	if prov != nil {
		rec = prov
		impRec = prov
	}
	queries := spatialquery.New(pool, tables, logger, rec)
	importer := gpkg.NewImporter(pool, logger)

	surface := api.New(api.Deps{
		Tables:         tables,
		Features:       features,
		Queries:        queries,
		Importer:       importer,
		Imports:        impRec,
		Logger:         logger,
		MaxUploadBytes: cfg.ImportMaxBytes,
		UploadDir:      cfg.ImportTmpDir,
	})

	r := chi.NewRouter()
	r.Use(imw.RequestID())
	r.Use(imw.Logging(logger))
	r.Use(imw.Recover(logger))
	r.Use(imw.CORS())
	if prov != nil {
		r.Use(imw.Metrics(prov))
	}
	r.Use(imw.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(pool))
	if prov != nil {
		r.Method(http.MethodGet, "/metrics", prov.Handler())
	}
	surface.Routes(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
