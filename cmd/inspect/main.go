package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"loan-approval/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		registryPath = flag.String("registry", "./data/registry", "Registry directory path")
		runs         = flag.Int("runs", 10, "Number of recent training runs to list")
		runID        = flag.String("run", "", "Show candidate scores for one run")
		since        = flag.Duration("since", 24*time.Hour, "Summarize predictions served within this window")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fmt.Printf("Inspecting registry in: %s\n", *registryPath)

	store, err := storage.New(*registryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open registry")
	}
	defer store.Close()

	if *runID != "" {
		showRun(store, *runID)
		return
	}

	fmt.Println("\nRecent training runs:")
	reports, err := store.ListRuns(*runs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}
	if len(reports) == 0 {
		fmt.Println("  (none)")
	}
	for _, r := range reports {
		fmt.Printf("  %s  %s  %-20s AUC %.4f  rows %d/%d\n",
			r.StartedAt.Format(time.RFC3339), r.RunID, r.Selected,
			r.Metrics.AUCScore, r.Metrics.TrainingSamples, r.Metrics.HoldoutSamples)
	}

	total, err := store.CountPredictions()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count predictions")
	}
	end := time.Now()
	recent, err := store.GetPredictionsInRange(end.Add(-*since), end)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read predictions")
	}

	fmt.Printf("\nPredictions: %d total, %d in the last %s\n", total, len(recent), *since)
	if len(recent) == 0 {
		return
	}

	var approved int
	var latency float64
	byRun := make(map[string]int)
	bySource := make(map[string]int)
	for _, p := range recent {
		approved += p.Prediction
		latency += p.LatencyMs
		byRun[p.RunID]++
		bySource[p.Source]++
	}
	n := float64(len(recent))
	fmt.Printf("  Approval rate: %.1f%%\n", 100*float64(approved)/n)
	fmt.Printf("  Mean latency:  %.2fms\n", latency/n)
	for id, c := range byRun {
		fmt.Printf("  Run %s: %d\n", id, c)
	}
	for src, c := range bySource {
		fmt.Printf("  Source %s: %d\n", src, c)
	}
}

func showRun(store *storage.Store, id string) {
	r, err := store.GetRun(id)
	if err != nil {
		log.Fatal().Err(err).Str("run_id", id).Msg("Failed to load run")
	}

	fmt.Printf("\nRun %s (%s, took %s)\n", r.RunID, r.StartedAt.Format(time.RFC3339), r.Duration)
	fmt.Printf("Artifact: %s\n", r.ModelPath)
	for _, c := range r.Candidates {
		marker := " "
		if c.Name == r.Selected {
			marker = "*"
		}
		status := fmt.Sprintf("AUC %.4f", c.AUC)
		if !c.Scored {
			status = "unscored"
		}
		if c.Error != "" {
			status = "failed: " + c.Error
		}
		fmt.Printf(" %s %-20s %s (fit %s)\n", marker, c.Name, status, c.FitDuration)
	}
	for i, fi := range r.Importances {
		if i == 5 {
			break
		}
		fmt.Printf("   %-36s %.4f\n", fi.Name, fi.Importance)
	}
}
