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

	"github.com/debtline/line-engine/internal/linesvc"
	"github.com/debtline/line-engine/internal/metrics"
	"github.com/debtline/line-engine/internal/model"
	"github.com/debtline/line-engine/internal/selector"
	"github.com/debtline/line-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	network := model.Network(os.Getenv("NETWORK"))
	if network == "" {
		network = model.NetworkMainnet
	}

	// --- Aggregate store and optional layers ---
	st := store.New()
	sel := selector.New(st)
	var cleanup []func()

	var archive *store.Archive
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		archive = store.NewArchive(pool)
		slog.Info("snapshot archive enabled")
	}

	var cache *store.ProjectionCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		cache = store.NewProjectionCache(rdb, 30*time.Second)
		slog.Info("projection cache enabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	hub := linesvc.NewHub()
	go hub.Run()

	// --- Line service ---
	svc := linesvc.NewService(st, sel, network, hub, archive, cache)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"line-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for merge notifications.
		r.Get("/ws", hub.HandleWS)

		// Ingest: fragment payloads from the fetch layer.
		r.Post("/lines", svc.IngestLine)
		r.Post("/lines/{lineID}/events", svc.IngestEvents)
		r.Post("/lines/{lineID}/reserves", svc.IngestReserves)
		r.Post("/lines/{lineID}/collateral/{kind}", svc.IngestCollateralOp)
		r.Post("/prices", svc.IngestPrices)
		r.Post("/tokens", svc.IngestTokens)
		r.Post("/users/{address}/portfolio", svc.IngestPortfolio)
		r.Post("/wallet/tokens", svc.IngestUserTokens)
		r.Post("/clear", svc.Clear)

		// Queries: derived projections.
		r.Get("/lines/{lineID}", svc.GetLine)
		r.Get("/lines/{lineID}/history", svc.GetLineHistory)
		r.Get("/users/{address}/portfolio", svc.GetPortfolio)
		r.Get("/users/{address}/lines/{lineID}/role", svc.GetRole)
		r.Get("/tokens/deposit-options", svc.GetDepositTokenOptions)
		r.Get("/wallet/tokens", svc.GetUserTokens)
		r.Get("/ops/{kind}", svc.GetOpStatus)
	})

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("line-engine listening", "port", port, "network", network)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down line-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("line-engine stopped")
}
