// Command analyzer-worker consumes vehicle snapshots from NATS, analyzes
// them and stores each report in Neo4j.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/obdpulse/obdpulse/engine/analyzer"
	"github.com/obdpulse/obdpulse/engine/history"
	"github.com/obdpulse/obdpulse/engine/pipeline"
	"github.com/obdpulse/obdpulse/pkg/config"
	"github.com/obdpulse/obdpulse/pkg/fn"
	"github.com/obdpulse/obdpulse/pkg/metrics"
	"github.com/obdpulse/obdpulse/pkg/repo"
	"github.com/obdpulse/obdpulse/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("OBDPULSE_CONFIG"))
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	met := metrics.NewSet(metrics.New())
	port, _ := strconv.Atoi(cfg.MetricsPort)
	met.Registry().ServeAsync(ctx, port, logger)

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("obdpulse-analyzer-worker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	deps := pipeline.Deps{
		Analyzer: analyzer.New(),
		Retry:    fn.DefaultRetry,
		Metrics:  met,
		Logger:   logger,
	}

	if cfg.Neo4j.Enabled() {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(context.Background())
		if err := driver.VerifyConnectivity(ctx); err != nil {
			logger.Warn("neo4j not reachable yet", "err", err)
		}
		deps.History = history.New(repo.DriverSessions(driver, cfg.Neo4j.Database))
		deps.Breaker = resilience.NewBreaker(resilience.BreakerOpts{
			Name: "history",
			OnStateChange: func(name string, from, to resilience.State) {
				met.BreakerState(name, int(to))
				logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			},
		})
		logger.Info("report history enabled", "url", cfg.Neo4j.URL)
	} else {
		logger.Warn("NEO4J_URL not set, reports will not be stored")
	}

	sub, err := pipeline.StartConsumer(nc, deps)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", pipeline.SnapshotSubject, err)
	}
	logger.Info("analyzer worker started", "subject", pipeline.SnapshotSubject, "nats", cfg.NATS.URL)

	<-ctx.Done()
	logger.Info("shutting down")
	return sub.Drain()
}
