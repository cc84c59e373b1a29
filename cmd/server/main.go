package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loan-approval/internal/cfg"
	"loan-approval/internal/metrics"
	"loan-approval/internal/ml"
	"loan-approval/internal/server"
	"loan-approval/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		configFile = flag.String("config", "", "YAML config file (sets CONFIG_FILE)")
		envFile    = flag.String("env", ".env", "Optional dotenv file loaded before configuration")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		jsonLogs   = flag.Bool("json", false, "Emit JSON logs instead of console output")
		preload    = flag.Bool("preload", true, "Load the artifact at startup when caching is on")
	)
	flag.Parse()

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if !*jsonLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("file", *envFile).Msg("Failed to read env file")
	}

	if *configFile != "" {
		os.Setenv("CONFIG_FILE", *configFile)
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	mw := metrics.NewWrapper(metrics.New())
	predictor := ml.NewPredictor(c.ModelPath, mw)

	// A missing artifact is not fatal: requests fail with 503 until a
	// training run writes one and /model/reload picks it up.
	if c.CacheModel && *preload {
		if err := predictor.Load(); err != nil {
			log.Warn().Err(err).Msg("Pipeline not available at startup")
		}
	}

	srv := server.New(predictor, server.Config{
		Port:           c.ServerPort,
		RequestTimeout: c.RequestTimeout,
		CacheModel:     c.CacheModel,
	}, mw)

	if store := initializeStorage(c); store != nil {
		defer store.Close()
		srv.SetRegistry(store)
	}
	if c.DriftWindow > 0 {
		srv.SetDriftMonitor(ml.NewDriftMonitor(ml.DriftConfig{WindowSize: c.DriftWindow}, mw))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	waitForShutdown(srv, errCh)
}

// initializeStorage opens the registry if REGISTRY_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.RegistryPath == "" {
		return nil
	}
	store, err := storage.New(c.RegistryPath)
	if err != nil {
		log.Warn().Err(err).Msg("registry initialization failed, continuing without audit trail")
		return nil
	}
	return store
}

// waitForShutdown blocks until a signal or a server error, then drains
// in-flight requests.
func waitForShutdown(srv *server.Server, errCh <-chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server failed")
	}

	log.Info().Msg("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return
	}
	log.Info().Msg("server stopped")
}
