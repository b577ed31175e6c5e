package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"greencredits/internal/api/v1/router"
	"greencredits/internal/config"
	"greencredits/internal/logger"
	"greencredits/internal/model"
	"greencredits/internal/stats"

	"github.com/joho/godotenv"
)

func main() {
	// Parse flags
	mode := flag.String("mode", "summary", "Report mode: summary|series|export|upload")
	rangeFlag := flag.String("range", "month", "Series range: week|month|year")
	out := flag.String("out", "dashboard.xlsx", "Output file for -mode=export")
	flag.Parse()

	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	rng, err := stats.ParseRange(*rangeFlag)
	if err != nil {
		logger.Fatal().Msgf("Invalid range: %v", err)
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := router.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to initialize dependencies: %v", err)
	}
	defer deps.Close()

	if _, err := deps.Dashboard.Load(ctx); err != nil {
		logger.Fatal().Msgf("Dashboard load failed: %v", err)
	}

	// Dispatch to the selected report
	var runErr error
	switch *mode {
	case "summary":
		runErr = printSummary(os.Stdout, deps)
	case "series":
		runErr = printSeries(os.Stdout, deps, rng)
	case "export":
		runErr = writeExport(*out, deps, rng)
	case "upload":
		var key string
		key, runErr = deps.Exports.Upload(ctx, rng)
		if runErr == nil {
			fmt.Fprintln(os.Stdout, key)
		}
	default:
		logger.Fatal().Msgf("Invalid mode: %s", *mode)
	}

	if runErr != nil {
		logger.Fatal().Msgf("Report %s failed: %v", *mode, runErr)
	}
	logger.Info().Str("mode", *mode).Msg("Report complete")
}

func printSummary(w io.Writer, deps *router.Deps) error {
	snap, err := deps.Dashboard.Current()
	if err != nil {
		return err
	}
	sum := snap.Result.Summary
	fmt.Fprintf(w, "Generation:            %d\n", snap.Generation)
	fmt.Fprintf(w, "Total users:           %d\n", sum.TotalUsers)
	fmt.Fprintf(w, "Total trips:           %d\n", sum.TotalTrips)
	fmt.Fprintf(w, "Total carbon credits:  %.2f\n", sum.TotalCarbonCredits)
	fmt.Fprintf(w, "Avg credits per user:  %.2f\n", sum.AverageCarbonCreditsPerUser)
	fmt.Fprintf(w, "Avg trips per user:    %.2f\n", sum.AverageTripsPerUser)
	fmt.Fprintf(w, "Most popular mode:     %s\n", stats.DisplayMode(sum.MostPopularTransportMode))
	fmt.Fprintf(w, "Users with errors:     %d\n", snap.FailedUsers)
	return nil
}

func printSeries(w io.Writer, deps *router.Deps, rng model.Range) error {
	snap, err := deps.Dashboard.Current()
	if err != nil {
		return err
	}
	points, err := deps.Dashboard.Series(snap, rng)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Fprintln(w, "No data available for the selected time period")
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(points)
}

func writeExport(path string, deps *router.Deps, rng model.Range) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := deps.Exports.WriteWorkbook(f, rng); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
