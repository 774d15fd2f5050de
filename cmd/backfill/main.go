// Command backfill analyzes every vehicle in the fleet file and stores one
// report per vehicle in Neo4j. It then logs the most frequently flagged
// components across the whole history.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/obdpulse/obdpulse/engine/analyzer"
	"github.com/obdpulse/obdpulse/engine/domain"
	"github.com/obdpulse/obdpulse/engine/fleet"
	"github.com/obdpulse/obdpulse/engine/history"
	"github.com/obdpulse/obdpulse/engine/pipeline"
	"github.com/obdpulse/obdpulse/pkg/config"
	"github.com/obdpulse/obdpulse/pkg/fn"
	"github.com/obdpulse/obdpulse/pkg/repo"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	fleetFile := flag.String("fleet", "", "fleet YAML file (defaults to FLEET_FILE)")
	top := flag.Int("top", 10, "number of most-flagged components to log")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("OBDPULSE_CONFIG"))
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if *fleetFile != "" {
		cfg.FleetFile = *fleetFile
	}
	if err := run(cfg, *top, logger); err != nil {
		logger.Error("backfill failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, top int, logger *slog.Logger) error {
	if cfg.FleetFile == "" {
		return errors.New("no fleet file: pass -fleet or set FLEET_FILE")
	}
	if !cfg.Neo4j.Enabled() {
		return errors.New("NEO4J_URL not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := fleet.Load(cfg.FleetFile)
	if err != nil {
		return err
	}

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(context.Background())
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j connect: %w", err)
	}
	store := history.New(repo.DriverSessions(driver, cfg.Neo4j.Database))

	pipe := pipeline.NewPipeline(pipeline.Deps{
		Analyzer: analyzer.New(),
		History:  store,
		Retry:    fn.DefaultRetry,
		Logger:   logger,
	})
	saved, failed := backfill(ctx, f.List(), pipe, logger)
	logger.Info("backfill done", "saved", saved, "failed", failed, "total", f.Len())

	counts, err := store.TopFlaggedComponents(ctx, top)
	if err != nil {
		return fmt.Errorf("top flagged components: %w", err)
	}
	for _, c := range counts {
		logger.Info("flagged component", "component", c.Component, "reports", c.Count)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d vehicles failed", failed, f.Len())
	}
	return nil
}

// backfill runs each snapshot through pipe in order and stops early when
// ctx is cancelled.
func backfill(ctx context.Context, vehicles []domain.VehicleSnapshot, pipe fn.Stage[domain.VehicleSnapshot, history.Record], logger *slog.Logger) (saved, failed int) {
	for i, snap := range vehicles {
		if ctx.Err() != nil {
			logger.Warn("backfill interrupted", "done", i, "total", len(vehicles))
			return saved, failed
		}
		rec, err := pipe(ctx, snap).Unwrap()
		if err != nil {
			logger.Error("backfill vehicle", "vin", snap.Vehicle.VIN, "err", err)
			failed++
			continue
		}
		saved++
		logger.Info("report saved", "vin", rec.VIN, "report_id", rec.ID, "health_score", rec.HealthScore)
	}
	return saved, failed
}
