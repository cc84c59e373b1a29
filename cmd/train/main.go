package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"loan-approval/internal/cfg"
	"loan-approval/internal/metrics"
	"loan-approval/internal/ml"
	"loan-approval/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		dataPath   = flag.String("data", "", "Path to the training CSV (overrides DATA_PATH)")
		modelPath  = flag.String("model", "", "Where to write the pipeline artifact (overrides MODEL_PATH)")
		configFile = flag.String("config", "", "YAML config file (sets CONFIG_FILE)")
		envFile    = flag.String("env", ".env", "Optional dotenv file loaded before configuration")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		jsonLogs   = flag.Bool("json", false, "Emit JSON logs instead of console output")
	)
	flag.Parse()

	setupLogging(*logLevel, *jsonLogs)

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
	if *dataPath != "" {
		c.DataPath = *dataPath
	}
	if *modelPath != "" {
		c.ModelPath = *modelPath
	}
	if c.DataPath == "" {
		log.Fatal().Msg("no training data: pass -data or set DATA_PATH")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	trainer := ml.NewTrainer(ml.TrainerConfig{
		ModelPath: c.ModelPath,
		TestSize:  c.TestSize,
		Seed:      c.Seed,
	}, metrics.NewWrapper(m))

	if store := initializeStorage(c); store != nil {
		defer store.Close()
		trainer.SetRecorder(store)
	}

	report, err := trainer.TrainFromCSV(ctx, c.DataPath)
	if err != nil {
		log.Error().Err(err).Str("data", c.DataPath).Msg("Training failed")
		cancel()
		os.Exit(1)
	}

	printReport(report)
}

func setupLogging(level string, jsonLogs bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if !jsonLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// initializeStorage opens the run registry if REGISTRY_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.RegistryPath == "" {
		return nil
	}
	store, err := storage.New(c.RegistryPath)
	if err != nil {
		log.Warn().Err(err).Msg("registry initialization failed, continuing without run history")
		return nil
	}
	return store
}

func printReport(r *ml.TrainReport) {
	fmt.Println("=== Training Report ===")
	fmt.Printf("Run ID:   %s\n", r.RunID)
	fmt.Printf("Artifact: %s\n", r.ModelPath)
	fmt.Printf("Duration: %s\n", r.Duration)
	fmt.Println()
	fmt.Printf("%-22s %-8s %-10s %s\n", "Candidate", "Fitted", "AUC", "Note")
	for _, c := range r.Candidates {
		auc := "-"
		if c.Scored {
			auc = fmt.Sprintf("%.4f", c.AUC)
		}
		note := c.Error
		if c.Name == r.Selected {
			note = "selected"
		}
		fmt.Printf("%-22s %-8v %-10s %s\n", c.Name, c.Fitted, auc, note)
	}
	fmt.Println()
	fmt.Printf("Holdout (%d rows): AUC %.4f  accuracy %.4f  precision %.4f  recall %.4f  F1 %.4f\n",
		r.Metrics.HoldoutSamples, r.Metrics.AUCScore, r.Metrics.Accuracy,
		r.Metrics.Precision, r.Metrics.Recall, r.Metrics.F1Score)
	fmt.Printf("Approval rate: %.2f%%\n\n", r.Metrics.ApprovalRate*100)

	if len(r.Importances) > 0 {
		fmt.Println("Top features (permutation AUC drop):")
		for i, fi := range r.Importances {
			if i == 10 {
				break
			}
			fmt.Printf("  %-36s %.4f\n", fi.Name, fi.Importance)
		}
	}
	fmt.Println("=======================")
}
