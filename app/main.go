package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lysyi3m/atf-feed/app/api"
	"github.com/lysyi3m/atf-feed/app/cfg"
	"github.com/lysyi3m/atf-feed/app/database"
	"github.com/lysyi3m/atf-feed/app/security"
	"github.com/lysyi3m/atf-feed/app/tasks"
	"github.com/lysyi3m/atf-feed/app/validator"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	setupLogging(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting ATF Feed server", "version", appCfg.Version, "port", appCfg.Port)

	v, err := validator.NewFromFiles(appCfg.SchemaPath, appCfg.PolicyPath)
	if err != nil {
		return err
	}
	slog.Info("Validator ready", "schema", schemaSource(appCfg.SchemaPath), "max_size_bytes", v.MaxSize())

	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	slog.Info("Database migrations applied", "path", appCfg.DBPath, "version", version, "dirty", dirty)

	var (
		signer *security.Signer
		tokens *security.TokenManager
	)
	if appCfg.SigningKeyPath != "" {
		key, err := security.LoadPrivateKey(appCfg.SigningKeyPath)
		if err != nil {
			return err
		}
		signer = security.NewSigner(key)
		tokens = security.NewTokenManager(key, appCfg.JWTIssuer, appCfg.JWTAudience)
		slog.Info("Feed signing and bearer tokens enabled", "issuer", appCfg.JWTIssuer, "audience", appCfg.JWTAudience)
	}

	archiveRepo := database.NewArchiveRepository(db)

	scheduler := tasks.NewScheduler(archiveRepo, time.Duration(appCfg.SchedulerInterval)*time.Second, appCfg.WorkerCount)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Scheduler started", "workers", appCfg.WorkerCount, "interval", time.Duration(appCfg.SchedulerInterval)*time.Second)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler := api.NewHandler(v, archiveRepo, scheduler, signer, tokens, api.NewMetrics(registry))
	router := api.NewServer(handler, appCfg.APIAccessKey, registry)

	server := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case sig := <-quit:
		slog.Info("Shutting down server", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server exited")
	return nil
}

func schemaSource(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}
