package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/proxyservice/internal/adapter/postgres"
	redisadapter "github.com/user/proxyservice/internal/adapter/redis"
	"github.com/user/proxyservice/internal/delivery/http/handler"
	"github.com/user/proxyservice/internal/delivery/http/router"
	"github.com/user/proxyservice/internal/proxy"
	"github.com/user/proxyservice/internal/repository"
	"github.com/user/proxyservice/internal/usecase"
	"github.com/user/proxyservice/pkg/config"
	"github.com/user/proxyservice/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Open the configured units and serve the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Inventory ---
	inv, err := newInventoryClient(cfg, log, m)
	if err != nil {
		return err
	}

	// --- Feedback stores ---
	checks := make(map[string]handler.HealthCheck)

	var counters repository.BlockCounterRepository
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("Unable to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			return err
		}
		log.Info("Redis connection established")
		counters = redisadapter.NewBlockCounterRepo(rdb)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	var events repository.BlockEventRepository
	if cfg.PostgresURL != "" {
		dbpool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("Unable to connect to database", zap.Error(err))
			return err
		}
		defer dbpool.Close()
		repo := postgres.NewBlockEventRepo(dbpool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Error("Unable to prepare database", zap.Error(err))
			return err
		}
		log.Info("PostgreSQL connection pool established")
		events = repo
		checks["postgres"] = dbpool.Ping
	}

	feedback := usecase.NewFeedbackRecorder(counters, events, cfg.BlockCounterTTL, log, m)

	// --- Pools ---
	mgr := proxy.NewManager(inv, proxy.WithLogger(log), proxy.WithMetrics(m))
	for _, uc := range cfg.Units {
		unit := unitFromConfig(uc)
		if err := mgr.Open(ctx, unit); err != nil {
			log.Warn("Unit opened without proxies", zap.String("unit", unit.Name), zap.Error(err))
		}
		defer mgr.Close(unit.Name)
	}

	// --- HTTP Server ---
	h := handler.NewHandler(mgr, feedback, checks, log)
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(h, m, reg, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped", zap.Error(err))
		return err
	}
	log.Info("Server exiting")
	return nil
}
