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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"docbridge/internal/api"
	"docbridge/internal/config"
	"docbridge/internal/dbpool"
	"docbridge/internal/kv"
	"docbridge/internal/metrics"
	"docbridge/internal/scheduler"
	"docbridge/internal/store"
	"docbridge/internal/users"
	"docbridge/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", ":8080", "HTTP bind address")
	f.String("driver", config.DriverSQLite, "document store: sqlite or mongo")
	f.String("db", "docbridge.db", "SQLite database path")
	f.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	f.Int("workers", 10, "number of worker goroutines")
	f.Int("queue-size", 1000, "maximum number of queued operations")
	f.String("redis-addr", "", "Redis address; empty disables the /kv routes")
	f.Bool("pprof", false, "serve /debug/pprof")

	for key, flag := range map[string]string{
		"http.addr":         "addr",
		"store.driver":      "driver",
		"store.sqlite.path": "db",
		"store.mongo.uri":   "mongo-uri",
		"worker.count":      "workers",
		"worker.queue_size": "queue-size",
		"redis.addr":        "redis-addr",
		"debug.pprof":       "pprof",
	} {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	repo, primary, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	pools := []dbpool.Pool{primary}
	defer func() {
		for _, p := range pools {
			_ = p.Close(context.Background())
		}
	}()

	bridge, err := worker.NewPool(cfg.Worker,
		worker.WithLogger(logger),
		worker.WithMetrics(metrics.NewBridge(reg)),
	)
	if err != nil {
		return err
	}

	userOpts := []users.Option{users.WithLogger(logger)}
	if cfg.Users.SerializeWrites {
		userOpts = append(userOpts, users.WithSerializedWrites(cfg.Users.Stripes))
	}
	deps := api.Deps{
		Users:       users.NewService(repo, bridge, userOpts...),
		Bridge:      bridge,
		Gatherer:    reg,
		Logger:      logger,
		EnableDebug: cfg.Debug.Pprof,
	}

	if cfg.KVEnabled() {
		rd, err := dbpool.ConnectRedis(ctx, cfg.Redis, cfg.Pool, logger)
		if err != nil {
			_ = bridge.Shutdown(context.Background())
			return err
		}
		pools = append(pools, rd)
		deps.KV = kv.NewService(rd, bridge)
	}
	deps.Pools = pools

	sched, err := scheduler.NewService(cfg.Maintenance.Schedule, pools, metrics.NewPool(reg), logger)
	if err != nil {
		_ = bridge.Shutdown(context.Background())
		return err
	}
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Start(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewServer(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server")
		}
	}

	// Graceful shutdown: stop accepting requests, drain the worker pool,
	// then release database connections (deferred above).
	logger.Info().Msg("shutting down")
	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelHTTP()
	if err := srv.Shutdown(httpCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	graceCtx, cancelGrace := context.WithTimeout(context.Background(), cfg.Worker.ShutdownGrace)
	defer cancelGrace()
	if err := bridge.Shutdown(graceCtx); err != nil {
		logger.Warn().Err(err).Msg("worker pool did not drain in time")
	}

	// pools are closed by the deferred loop; no maintenance run may still hold them
	stop()
	<-schedDone
	return nil
}

// openStore connects the configured document store and returns its
// repository together with the pool backing it.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Repository, dbpool.Pool, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		mp, err := dbpool.ConnectMongo(ctx, cfg.Store.Mongo.URI, cfg.Pool, logger)
		if err != nil {
			return nil, nil, err
		}
		return store.NewMongoRepo(mp, cfg.Store.Mongo.Database), mp, nil
	case config.DriverSQLite:
		sp, err := dbpool.OpenSQLite(ctx, dbpool.SQLiteDSN(cfg.Store.SQLite.Path), cfg.Pool, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(sp.DB()); err != nil {
			_ = sp.Close(ctx)
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store.NewSQLiteRepo(sp), sp, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
