package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shelfmart/authcore/authkit"
	"github.com/shelfmart/authcore/internal/config"
	"github.com/shelfmart/authcore/pkg/repository"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := authkit.Dependencies{Logger: logger}

	// Connect to database
	if cfg.Store.Backend == config.BackendPostgres {
		db, err := repository.Open(ctx, repository.Config{
			URL:          cfg.Database.DSN(),
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("connected to database", "host", cfg.Database.Host, "database", cfg.Database.Name)

		if cfg.Store.EnsureSchema {
			if err := repository.EnsureSchema(ctx, db); err != nil {
				return err
			}
		}
		deps.DB = db
	} else {
		logger.Warn("using in-memory store; state is lost on restart")
	}

	// Connect to Redis for shared lockout counters
	if cfg.Lockout.Backend == config.BackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
		deps.Redis = client
	}

	kit, err := authkit.New(*cfg, deps)
	if err != nil {
		return err
	}
	if kit.TwoFactor != nil {
		logger.Info("two-factor authentication enabled")
	}
	go kit.RunSessionCleanup(ctx)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go reloadSigningKey(ctx, hup, kit, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      kit.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	kit.Drain()
	return err
}

// reloadSigningKey re-reads JWT_SECRET, from .env too, on every SIGHUP and
// rotates the signing key when it changed.
func reloadSigningKey(ctx context.Context, hup <-chan os.Signal, kit *authkit.Kit, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			_ = godotenv.Overload()
			rotated, err := kit.RotateSigningKey([]byte(os.Getenv("JWT_SECRET")))
			if err != nil {
				logger.Error("failed to rotate signing key", "error", err)
				continue
			}
			if !rotated {
				logger.Info("signing key unchanged")
			}
		}
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
