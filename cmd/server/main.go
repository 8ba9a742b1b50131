package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/compost/internal/config"
	"github.com/mamadbah2/compost/internal/repository"
	"github.com/mamadbah2/compost/internal/repository/memory"
	"github.com/mamadbah2/compost/internal/repository/mongodb"
	"github.com/mamadbah2/compost/internal/repository/sheets"
	"github.com/mamadbah2/compost/internal/repository/sqlite"
	"github.com/mamadbah2/compost/internal/scheduler"
	"github.com/mamadbah2/compost/internal/server/handlers"
	"github.com/mamadbah2/compost/internal/server/router"
	"github.com/mamadbah2/compost/internal/service/belt"
	"github.com/mamadbah2/compost/internal/service/intake"
	"github.com/mamadbah2/compost/internal/service/integrity"
	"github.com/mamadbah2/compost/internal/service/restoration"
	"github.com/mamadbah2/compost/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}))
	defer func() { _ = baseLogger.Sync() }()

	registry, closeRegistry, err := openRegistry(context.Background(), cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init registry", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer closeRegistry()

	var ledger *sheets.Ledger
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, logger.Named(baseLogger, "repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets ledger", zap.Error(err))
		}
		ledger = sheets.NewLedger(sheetsRepo)
		baseLogger.Info("sheets ledger enabled")
	} else {
		baseLogger.Warn("sheets ledger disabled, certifications are not mirrored")
	}

	intakeSvc := intake.NewService(registry, cfg.Geofence.RadiusMeters, logger.Named(baseLogger, "svc.intake"))
	beltSvc := belt.NewService(registry, cfg.Advance.Workers, logger.Named(baseLogger, "svc.belt"))
	restorationSvc := restoration.NewService(registry, logger.Named(baseLogger, "svc.restoration"))

	var certLedger integrity.Ledger
	var runLedger scheduler.RunLedger
	if ledger != nil {
		certLedger = ledger
		runLedger = ledger
	}
	integrityEngine := integrity.NewEngine(registry, certLedger, logger.Named(baseLogger, "svc.integrity"))

	engine := router.New(router.Handlers{
		Facilities:   handlers.NewFacilityHandler(intakeSvc, beltSvc, logger.Named(baseLogger, "handlers.facilities")),
		Batches:      handlers.NewBatchHandler(intakeSvc, beltSvc, integrityEngine, logger.Named(baseLogger, "handlers.batches")),
		Restorations: handlers.NewRestorationHandler(restorationSvc, logger.Named(baseLogger, "handlers.restorations")),
	}, logger.Named(baseLogger, "router"))

	sched, err := scheduler.NewScheduler(cfg.Advance, beltSvc, runLedger, logger.Named(baseLogger, "scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("driver", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openRegistry builds the registry selected by STORAGE_DRIVER and its release func.
func openRegistry(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Registry, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverMongoDB:
		repo, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := repo.Close(context.Background()); err != nil {
				log.Error("failed to close mongodb connection", zap.Error(err))
			}
		}, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error("failed to close sqlite store", zap.Error(err))
			}
		}, nil
	case config.DriverMemory:
		log.Warn("using in-memory registry, state is lost on restart")
		return memory.NewRegistry(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}
