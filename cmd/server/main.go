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

	"github.com/atmx/settlement-engine/internal/api"
	"github.com/atmx/settlement-engine/internal/config"
	"github.com/atmx/settlement-engine/internal/engine"
	"github.com/atmx/settlement-engine/internal/keeper"
	"github.com/atmx/settlement-engine/internal/limit"
	"github.com/atmx/settlement-engine/internal/metrics"
	"github.com/atmx/settlement-engine/internal/oracle"
	"github.com/atmx/settlement-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL.String())
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory journal (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Oracle ---
	var adapter oracle.Adapter
	var static *oracle.Static
	switch cfg.OracleProvider {
	case config.OracleStatic:
		slog.Warn("static oracle selected, draws settle only on readings posted by the operator to /api/v1/oracle/readings")
		static = oracle.NewStatic()
		adapter = static
	default:
		adapter = oracle.NewOpenMeteo(oracle.OpenMeteoConfig{
			GeocodeURL: cfg.OpenMeteoGeocodeURL,
			ArchiveURL: cfg.OpenMeteoArchiveURL,
			Client:     &http.Client{Timeout: cfg.OracleTimeout},
		})
	}

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	// --- Engine ---
	eng, err := engine.New(engine.Config{
		Operator:  cfg.Operator,
		Tickets:   cfg.Tickets,
		Custody:   cfg.Custody,
		Oracle:    adapter,
		Store:     st,
		Limiter:   limit.NewStakeLimiter(cfg.MaxStakePerThreshold, cfg.MaxStakePerDraw),
		Publisher: wsHub,
	})
	if err != nil {
		slog.Error("engine setup failed", "err", err)
		os.Exit(1)
	}
	replayed, err := eng.Replay(ctx)
	if err != nil {
		slog.Error("journal replay failed", "err", err)
		os.Exit(1)
	}
	slog.Info("journal replayed", "entries", replayed, "seq", eng.Seq())

	// --- Keeper ---
	k := keeper.New(eng, cfg.Operator, cfg.KeeperInterval, cfg.OracleTimeout)
	if err := k.Start(); err != nil {
		slog.Error("keeper start failed", "err", err)
		os.Exit(1)
	}
	defer k.Stop()

	// --- HTTP router ---
	auth := api.Auth{Secret: []byte(cfg.JWTSecret)}
	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, trusting the " + api.AccountHeader + " header")
	}
	handler := api.NewHandler(eng)
	if static != nil {
		handler.WithReadings(static)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+api.AccountHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":"settlement-engine","seq":%d}`, eng.Seq())
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for committed journal events. Long-lived, so
		// it sits outside the request timeout.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(auth.Middleware)
			handler.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second + cfg.OracleTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("settlement-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down settlement-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("settlement-engine stopped")
}
