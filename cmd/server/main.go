// Package main is the entrypoint for the KeyHub API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/keyhub/internal/api"
	"github.com/kiranshivaraju/keyhub/internal/api/handler"
	mw "github.com/kiranshivaraju/keyhub/internal/api/middleware"
	"github.com/kiranshivaraju/keyhub/internal/api/response"
	"github.com/kiranshivaraju/keyhub/internal/apikey"
	"github.com/kiranshivaraju/keyhub/internal/cache"
	"github.com/kiranshivaraju/keyhub/internal/config"
	"github.com/kiranshivaraju/keyhub/internal/credential"
	"github.com/kiranshivaraju/keyhub/internal/customer"
	"github.com/kiranshivaraju/keyhub/internal/events"
	"github.com/kiranshivaraju/keyhub/internal/metrics"
	"github.com/kiranshivaraju/keyhub/internal/store"
	"github.com/kiranshivaraju/keyhub/internal/tenant"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "kafka", len(cfg.Kafka.Brokers) > 0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Credentials
	cipher := credential.NewCipher(credential.Params{
		Time:       cfg.Auth.Argon2Time,
		Memory:     cfg.Auth.Argon2MemoryKiB,
		BcryptCost: cfg.Auth.BcryptCost,
	})
	signer, err := credential.NewSigner(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("create token signer: %w", err)
	}

	// 6. Key event publisher
	var publisher events.Publisher = events.NewLogPublisher(slog.Default())
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
		slog.Info("kafka publisher configured", "topic", cfg.Kafka.Topic)
	}

	// 7. Services
	m := metrics.New(prometheus.DefaultRegisterer)
	repos := store.NewRepos(pool)
	uow := store.NewUnitOfWork(pool)

	tenants := tenant.NewService(repos.Tenants, cipher, signer)
	keys := apikey.NewService(uow, repos.APIKeys, cipher, publisher, m)
	guard := apikey.NewGuard(repos.APIKeys, cipher)
	customers := customer.NewService(uow, m)

	// 8. Build router with dependencies
	router := api.NewRouter(api.Dependencies{
		SessionAuth: mw.NewSessionAuth(tenants, m),
		APIKeyAuth:  mw.NewAPIKeyAuth(guard, m),
		RateLimit:   mw.NewRateLimit(redisCache, cfg.RateLimit.SyncPerMinute, m),

		HealthHandler:  healthHandler(pool, redisCache),
		MetricsHandler: promhttp.Handler(),

		RegisterHandler: handler.NewRegisterHandler(tenants),
		LoginHandler:    handler.NewLoginHandler(tenants, m),

		CreateKeyHandler:  handler.NewCreateKeyHandler(keys),
		ListKeysHandler:   handler.NewListKeysHandler(keys),
		UpdateKeyHandler:  handler.NewUpdateKeyHandler(keys),
		RotateKeyHandler:  handler.NewRotateKeyHandler(keys),
		KeyHistoryHandler: handler.NewKeyHistoryHandler(keys),
		RemoveKeyHandler:  handler.NewRemoveKeyHandler(keys),

		SyncCustomerHandler: handler.NewSyncCustomerHandler(customers),
	})

	// 9. Serve until signalled
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.Data(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
