package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nvasquez/dirbatch-api/internal/config"
	"github.com/nvasquez/dirbatch-api/internal/engine"
	"github.com/nvasquez/dirbatch-api/internal/platform/blob"
	"github.com/nvasquez/dirbatch-api/internal/platform/postgres"
	"github.com/nvasquez/dirbatch-api/internal/platform/vision"
	"github.com/nvasquez/dirbatch-api/internal/service"
)

// application holds the wired dependencies for the server.
type application struct {
	config     *config.Config
	logger     *slog.Logger
	db         *sql.DB
	registry   *engine.Registry
	runner     *engine.Runner
	continuer  *engine.GoroutineContinuer
	jobService service.JobService
}

// newApplication builds the full dependency graph: database, stores, engine,
// job kinds, and the job service. Job kinds with missing configuration are
// skipped rather than failing startup, so the engine API stays available.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := setupDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := postgres.NewStore(db)
	listings := postgres.NewListingStore(db)

	registry := engine.NewRegistry()
	runner := engine.NewRunner(store, registry, engine.RunnerConfig{
		BatchSize:      cfg.Engine.BatchSize,
		StuckTaskAge:   cfg.Engine.StuckTaskAge(),
		HandlerTimeout: cfg.Engine.HandlerTimeout(),
		MaxAttempts:    cfg.Engine.MaxAttempts,
		RetryBaseDelay: cfg.Engine.RetryBaseDelay(),
	}, logger)

	continuer := engine.NewGoroutineContinuer(runner.ProcessBatch, 0, logger)
	runner.SetContinuer(continuer)

	jobService, err := service.NewJobService(store, runner, continuer, cfg.Engine.InitialWorkers, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create job service: %w", err)
	}

	app := &application{
		config:     cfg,
		logger:     logger,
		db:         db,
		registry:   registry,
		runner:     runner,
		continuer:  continuer,
		jobService: jobService,
	}

	if err := app.registerJobKinds(ctx, listings); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("application wired", "job_kinds", registry.Kinds())
	return app, nil
}

// registerJobKinds binds each configured job kind's handler and source.
func (app *application) registerJobKinds(ctx context.Context, listings *postgres.ListingStore) error {
	if !app.config.Vision.Enabled() {
		app.logger.Warn("vision classifier not configured, photo audit disabled")
		return nil
	}

	classifier, err := vision.NewGeminiClassifier(ctx, app.logger, app.config.Vision)
	if err != nil {
		return fmt.Errorf("failed to create vision classifier: %w", err)
	}

	var uploader blob.Uploader
	if app.config.Storage.Enabled() {
		s3Uploader, err := blob.NewS3Uploader(ctx, app.config.Storage)
		if err != nil {
			return fmt.Errorf("failed to create blob uploader: %w", err)
		}
		uploader = s3Uploader
	} else {
		app.logger.Warn("blob storage not configured, approved photos keep their source URL")
	}

	auditor, err := service.NewPhotoAuditor(
		listings,
		classifier,
		uploader,
		&http.Client{Timeout: 30 * time.Second},
		app.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create photo auditor: %w", err)
	}

	if err := app.registry.Register(service.KindPhotoAudit, auditor.Handle); err != nil {
		return fmt.Errorf("failed to register photo audit handler: %w", err)
	}
	if err := app.jobService.RegisterSource(service.KindPhotoAudit, auditor); err != nil {
		return fmt.Errorf("failed to register photo audit source: %w", err)
	}
	return nil
}

// shutdown drains in-flight continuations and closes the database.
func (app *application) shutdown() {
	app.continuer.Wait()
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", "error", err)
	}
}
