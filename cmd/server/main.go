package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/taskman/taskman/internal/adapter/httpserver"
	"github.com/taskman/taskman/internal/adapter/metrics"
	"github.com/taskman/taskman/internal/adapter/postgres"
	"github.com/taskman/taskman/internal/adapter/redis"
	"github.com/taskman/taskman/internal/adapter/websocket"
	"github.com/taskman/taskman/internal/app"
	"github.com/taskman/taskman/internal/auth"
	"github.com/taskman/taskman/internal/broadcast"
	"github.com/taskman/taskman/internal/domain"
	"github.com/taskman/taskman/internal/platform/config"
	"github.com/taskman/taskman/internal/platform/logging"
	"github.com/taskman/taskman/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const circuitBreakerDelay = 30 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(ctx context.Context, cfg *config.Config, m *metrics.DBMetrics) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, m)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(cfg *config.Config, m *metrics.RelayMetrics) *goredis.Client {
	client, err := redis.NewClient(cfg.RedisURL,
		redis.NewMetricsHook(m),
		redis.NewCircuitBreakerHook(circuitBreakerDelay, m),
	)
	if err != nil {
		slog.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}
	return client
}

func setupVerifier(cfg *config.Config, users domain.UserRepository, clock clockwork.Clock, m *metrics.AuthMetrics) (*auth.Verifier, func()) {
	authCfg := auth.Config{
		SigningKey: []byte(cfg.JWTSigningKey),
		Audience:   cfg.JWTAudience,
		Issuer:     cfg.JWTIssuer,
		TokenType:  cfg.JWTTokenType,
		Leeway:     cfg.JWTLeeway,
	}

	cleanup := func() {}
	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    10 * time.Second,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				slog.Warn("Failed to refresh JWKS", "error", err)
			},
		})
		if err != nil {
			slog.Error("Failed to load JWKS", "url", cfg.JWKSURL, "error", err)
			os.Exit(1)
		}
		authCfg.JWKS = jwks
		cleanup = jwks.EndBackground
	}

	verifier, err := auth.NewVerifier(authCfg, users, clock, m)
	if err != nil {
		slog.Error("Failed to create token verifier", "error", err)
		os.Exit(1)
	}
	return verifier, cleanup
}

func healthChecks(pool *pgxpool.Pool, rdb *goredis.Client) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
	}
	if rdb != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	return checks
}

func main() {
	clock := clockwork.NewRealClock()
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	v := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", v.Version, "commit", v.Commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	broadcastMetrics := metrics.NewBroadcastMetrics(reg)
	authMetrics := metrics.NewAuthMetrics(reg)
	relayMetrics := metrics.NewRelayMetrics(reg)
	dbMetrics := metrics.NewDBMetrics(reg)

	pool := setupDB(ctx, cfg, dbMetrics)
	defer pool.Close()

	registry := broadcast.NewRegistry(clock, broadcastMetrics)

	var (
		publisher domain.EventPublisher = registry
		relay     *redis.Relay
		rdb       *goredis.Client
	)
	if cfg.RedisURL != "" {
		rdb = setupRedis(cfg, relayMetrics)
		defer func() { _ = rdb.Close() }()
		relay = redis.NewRelay(rdb, registry, relayMetrics)
		publisher = relay
	} else {
		slog.Info("REDIS_URL not set, events are delivered to this instance only")
	}

	users := postgres.NewUserRepo(pool)
	tasks := postgres.NewTaskRepo(pool)

	verifier, closeJWKS := setupVerifier(cfg, users, clock, authMetrics)
	defer closeJWKS()

	notifier := broadcast.NewNotifier(publisher, clock, broadcastMetrics)
	taskService := app.NewTaskService(tasks, notifier, clock)

	wsHandler := websocket.NewHandler(websocket.HandlerConfig{
		AllowedOrigins: cfg.AllowedOrigins(),
		IsDevelopment:  cfg.IsDevelopment(),
		MaxConnections: cfg.MaxWebSocketConnections,
		MailboxSize:    cfg.MemberBufferSize,
	}, verifier, registry, clock, wsMetrics)

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		Tasks:            taskService,
		Verifier:         verifier,
		WebSocketHandler: wsHandler,
		MetricsHandler:   metrics.Handler(reg),
		HTTPMetrics:      httpMetrics,
		HealthChecks:     healthChecks(pool, rdb),
		Clock:            clock,
	})

	g, gctx := errgroup.WithContext(ctx)

	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(gctx, nil); err != nil {
				return fmt.Errorf("event relay: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Signals every member so open connections run their close path.
		registry.Stop()
		if err := wsHandler.Wait(shutdownCtx); err != nil {
			slog.Warn("WebSocket connections still open at shutdown deadline", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
