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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/scale-protocol/bond/internal/api"
	"github.com/scale-protocol/bond/internal/bot"
	"github.com/scale-protocol/bond/internal/config"
	"github.com/scale-protocol/bond/internal/engine"
	"github.com/scale-protocol/bond/internal/ledger"
	"github.com/scale-protocol/bond/internal/metrics"
	"github.com/scale-protocol/bond/internal/oracle"
	"github.com/scale-protocol/bond/internal/token"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration failed", "err", err)
		os.Exit(1)
	}

	var cleanup []func()

	// --- Ledger ---
	var host ledger.Ledger
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := ledger.NewPostgres(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		host = pg
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory ledger (data will not persist)")
		host = ledger.NewMemory()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Price feed ---
	var feed oracle.Feed
	if cfg.BinanceFeed {
		feed = oracle.NewBinanceFeed()
		slog.Info("Binance price feed enabled")
	} else {
		feed = oracle.NewMemoryFeed()
	}

	// --- Token keeper ---
	keeper := token.NewMemory()

	// --- Engine ---
	eng := engine.New(host, keeper, feed, engine.Config{
		TeamAuthority: cfg.TeamAuthority,
		ClearingRobot: cfg.ClearingRobot,
	})

	// --- WebSocket hub ---
	hub := api.NewHub()
	go hub.Run()

	// --- Account mirror ---
	watchCtx, stopWatch := context.WithCancel(context.Background())
	var mirror *bot.Storage
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		mirror = bot.NewStorage(rdb)
		slog.Info("Redis mirror storage enabled")
	}
	states := bot.NewStateMap(mirror)
	if err := states.LoadActive(watchCtx); err != nil {
		slog.Error("mirror rehydration failed", "err", err)
		os.Exit(1)
	}
	prices := bot.NewPriceIndex()
	watch := bot.NewWatch(watchCtx, states, prices, hub)

	// --- HTTP service ---
	svc := api.NewService(eng, host, feed, hub)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"bond"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		svc.Routes(r)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("bond listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down bond...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	stopWatch()
	watch.Wait()
	fmt.Println("bond stopped")
}
