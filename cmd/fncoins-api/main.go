package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fncoins/internal/api"
	"fncoins/internal/config"
	"fncoins/internal/db"
	"fncoins/internal/game"
	"fncoins/internal/lock"
	"fncoins/internal/market"
	"fncoins/internal/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.LoadAPIFromEnv()

	var st store.Store
	switch {
	case cfg.SupabaseURL != "" && cfg.SupabaseKey != "":
		st = store.NewRESTStore(cfg.SupabaseURL, cfg.SupabaseKey)
		logger.Info("using supabase rest store", "url", cfg.SupabaseURL)
	case cfg.DatabaseURL != "":
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		st = store.NewPostgresStore(pool)
		logger.Info("using direct postgres store")
	default:
		logger.Warn("no SUPABASE_URL or DATABASE_URL set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	var locks lock.Locker = lock.NewKeyed()
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		locks = lock.NewRedis(rdb)
		logger.Info("redis trade lock enabled")
	}

	reader := market.NewReader(st, cfg.MarketTables, logger)
	gameSvc := game.NewService(st, reader, locks, logger, cfg.SpreadPct, cfg.StartingCash)
	server := api.New(cfg, logger, gameSvc, reader)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("fncoins api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
