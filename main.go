package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Tutortoise/captcha-solver-service/cache"
	"github.com/Tutortoise/captcha-solver-service/captcha"
	"github.com/Tutortoise/captcha-solver-service/config"
	"github.com/Tutortoise/captcha-solver-service/detections"
	"github.com/Tutortoise/captcha-solver-service/engine"
	"github.com/Tutortoise/captcha-solver-service/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	logger, err := logging.NewLogger("yns", logging.Options{Debug: cfg.Debug, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := engine.InitializeEnvironment(cfg.ORTLibraryPath, logger); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, engine.DestroyEnvironment())
	}()

	labels, err := captcha.LoadLabels(cfg.LabelPath)
	if err != nil {
		return err
	}

	yolo, err := openModel("yolo", cfg.YoloModelPath, cfg, logger)
	if err != nil {
		return err
	}
	detector, err := detections.NewDetector(yolo, logger)
	if err != nil {
		return multierr.Append(err, yolo.Close())
	}
	defer func() {
		err = multierr.Append(err, detector.Close())
	}()

	siameseGuard, err := openModel("siamese", cfg.SiameseModelPath, cfg, logger)
	if err != nil {
		return err
	}
	siamese, err := detections.NewSiamese(siameseGuard, logger)
	if err != nil {
		return multierr.Append(err, siameseGuard.Close())
	}
	defer func() {
		err = multierr.Append(err, siamese.Close())
	}()

	solver, err := captcha.NewSolver(detector, siamese, labels, logger)
	if err != nil {
		return err
	}
	solver.Confidence = cfg.Confidence
	solver.IoU = cfg.IoU

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, repo.Close(context.Background()))
	}()

	store, err := cache.NewStore(cfg.ImageCachePath, cfg.CacheTTL, repo, logger)
	if err != nil {
		return err
	}
	cleaner, err := cache.NewCleaner(store, cfg.CleanupCron, logger)
	if err != nil {
		return err
	}
	cleaner.Start()
	defer func() {
		err = multierr.Append(err, cleaner.Shutdown())
	}()

	static, err := staticFiles()
	if err != nil {
		return err
	}
	state := &AppState{
		Solver: solver,
		Cache:  store,
		Models: []StatsSource{detector, siamese},
		Static: static,
		Logger: logger,
	}

	srv := &http.Server{
		Handler:      state.routes(),
		Addr:         cfg.ListenAddr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infow("starting server", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return errors.Wrap(err, "serving")
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openModel loads one graph and puts it behind a guard.
func openModel(name, path string, cfg config.Config, logger *zap.SugaredLogger) (*engine.Guard, error) {
	session, err := engine.OpenONNX(path, engine.Options{IntraOpThreads: cfg.Threads}, logger.Named(name))
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s model", name)
	}
	return engine.NewGuard(name, session, logger.Named(name)), nil
}

func openRepository(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (cache.Repository, error) {
	if cfg.MongoURI == "" {
		logger.Warn("no mongodb uri configured, cache metadata is kept in memory")
		return cache.NewMemoryRepository(), nil
	}
	return cache.NewMongoRepository(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
}
