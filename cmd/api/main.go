// Package main implements the obdpulse API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"

	"github.com/obdpulse/obdpulse/engine/analyzer"
	"github.com/obdpulse/obdpulse/engine/dtcsearch"
	"github.com/obdpulse/obdpulse/engine/fleet"
	"github.com/obdpulse/obdpulse/engine/history"
	"github.com/obdpulse/obdpulse/engine/pipeline"
	"github.com/obdpulse/obdpulse/pkg/config"
	"github.com/obdpulse/obdpulse/pkg/metrics"
	"github.com/obdpulse/obdpulse/pkg/mid"
	"github.com/obdpulse/obdpulse/pkg/natsutil"
	"github.com/obdpulse/obdpulse/pkg/ollama"
	"github.com/obdpulse/obdpulse/pkg/repo"
	"github.com/obdpulse/obdpulse/pkg/resilience"
	"github.com/obdpulse/obdpulse/pkg/wshub"
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
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	met := metrics.NewSet(metrics.New())
	srv := &server{
		analyzer: analyzer.New(),
		fleet:    fleet.NewStore(nil),
		metrics:  met,
		logger:   logger,
	}

	// --- Fleet fixtures ---
	if cfg.FleetFile != "" {
		f, err := fleet.Load(cfg.FleetFile)
		if err != nil {
			return err
		}
		srv.fleet.Swap(f)
		met.FleetVehicles.Set(int64(f.Len()))
		go func() {
			err := fleet.Watch(ctx, cfg.FleetFile, logger, func(f *fleet.Fleet) {
				srv.fleet.Swap(f)
				met.FleetVehicles.Set(int64(f.Len()))
			})
			if err != nil {
				logger.Error("fleet watch stopped", "err", err)
			}
		}()
	}

	// --- Neo4j report history ---
	if cfg.Neo4j.Enabled() {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(context.Background())
		srv.history = history.New(repo.DriverSessions(driver, cfg.Neo4j.Database))
		logger.Info("report history enabled", "url", cfg.Neo4j.URL)
	}

	// --- Qdrant DTC search ---
	if cfg.Qdrant.Enabled() {
		emb := ollama.New(cfg.Ollama.URL, cfg.Ollama.Model)
		idx, err := dtcsearch.New(cfg.Qdrant.URL, cfg.Qdrant.Collection, emb)
		if err != nil {
			return err
		}
		defer idx.Close()
		srv.search = idx
		go indexCatalog(ctx, idx, emb, logger)

		if cfg.Redis.Enabled() {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				logger.Warn("redis not reachable yet, searches will bypass the cache", "err", err)
			}
			srv.search = dtcsearch.NewCache(idx, rdb, cfg.Redis.TTL, logger)
			logger.Info("dtc search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
		}
	}

	// --- Live report stream ---
	srv.stream = wshub.New(cfg.CORSOrigin)
	go srv.stream.Run(ctx)
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("obdpulse-api"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			logger.Warn("nats unavailable, worker reports will not be streamed", "err", err)
		} else {
			defer nc.Drain()
			_, err := natsutil.Subscribe(nc, pipeline.ReportSubject, func(_ context.Context, _ *nats.Msg, rec history.Record) {
				srv.publish("worker", rec)
			}, func(_ *nats.Msg, err error) {
				logger.Error("malformed report on stream subject", "err", err)
			})
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", pipeline.ReportSubject, err)
			}
		}
	}

	// --- Rate limiting ---
	var limiter *resilience.KeyedLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = resilience.NewKeyedLimiter(resilience.LimiterOpts{
			Rate:    cfg.RateLimit.RPS,
			Burst:   cfg.RateLimit.Burst,
			IdleTTL: 10 * time.Minute,
		})
		go sweepLimiter(ctx, limiter)
	}

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newHandler(srv, cfg.CORSOrigin, limiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "fleet", srv.fleet.Current().Len())
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

// newHandler wraps the routes in the middleware stack. Metrics runs
// innermost so it sees the matched route pattern.
func newHandler(s *server, corsOrigin string, limiter *resilience.KeyedLimiter) http.Handler {
	mws := []mid.Middleware{
		mid.RequestID(),
		mid.OTel("obdpulse-api"),
		mid.Recover(s.logger),
		mid.Logger(s.logger),
		mid.CORS(corsOrigin),
	}
	if limiter != nil {
		mws = append(mws, mid.RateLimit(limiter))
	}
	mws = append(mws, mid.Metrics(s.metrics.Registry()))
	return mid.Chain(s.routes(), mws...)
}

// indexCatalog sizes the collection from one probe embedding, then indexes
// the catalog.
func indexCatalog(ctx context.Context, idx *dtcsearch.Index, emb *ollama.Client, logger *slog.Logger) {
	probe, err := emb.Embed(ctx, "P0300 misfire")
	if err != nil {
		logger.Error("dtc index: probe embedding", "err", err)
		return
	}
	if err := idx.EnsureCollection(ctx, len(probe)); err != nil {
		logger.Error("dtc index: ensure collection", "err", err)
		return
	}
	n, err := idx.IndexCatalog(ctx)
	if err != nil {
		logger.Error("dtc index: index catalog", "err", err)
		return
	}
	logger.Info("dtc index ready", "codes", n, "dims", len(probe))
}

func sweepLimiter(ctx context.Context, l *resilience.KeyedLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}
