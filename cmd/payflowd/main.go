// Command payflowd runs the Payflow HTTP server: invoice submission,
// workflow inspection, the review queue, and reviewer decisions over a
// configurable store backend.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/payflow/ability"
	"github.com/xraph/payflow/api"
	"github.com/xraph/payflow/engine"
	"github.com/xraph/payflow/ext"
	"github.com/xraph/payflow/observability"
	"github.com/xraph/payflow/store"
	bunstore "github.com/xraph/payflow/store/bun"
	"github.com/xraph/payflow/store/memory"
	mongostore "github.com/xraph/payflow/store/mongo"
	redisstore "github.com/xraph/payflow/store/redis"
	"github.com/xraph/payflow/toolsel"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("payflowd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	logger.Info("store ready", slog.String("backend", cfg.Store.Backend))

	business := cfg.businessConfig()

	selector, err := buildSelector(cfg, logger)
	if err != nil {
		return err
	}

	invoker := ability.NewInvoker(
		ability.NewLocal(business),
		ability.NewSimulator(business),
		ability.WithLogger(logger),
	)

	hooks := ext.NewRegistry(logger)
	hooks.Register(observability.NewMetricsExtension())

	eng, err := engine.New(st, st, invoker,
		engine.WithLogger(logger),
		engine.WithConfig(business),
		engine.WithSelector(selector),
		engine.WithHooks(hooks),
	)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      api.New(eng).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Listen))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.String("error", err.Error()))
		}
		hooks.EmitShutdown(shutdownCtx)
	}

	logger.Info("server stopped")

	return nil
}

func buildSelector(cfg Config, logger *slog.Logger) (*toolsel.Selector, error) {
	toolCfg := toolsel.DefaultConfig()
	if cfg.Tools.ConfigPath != "" {
		loaded, err := toolsel.LoadConfig(cfg.Tools.ConfigPath)
		if err != nil {
			return nil, err
		}
		toolCfg = loaded
	}

	return toolsel.New(toolCfg, toolsel.WithLogger(logger))
}

// openStore builds the configured backend. The returned cleanup closes
// the underlying connection.
func openStore(cfg Config, logger *slog.Logger) (store.Store, func(), error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "memory":
		return memory.New(), func() {}, nil

	case "postgres":
		if cfg.Store.DSN == "" {
			return nil, nil, fmt.Errorf("postgres backend requires store.dsn")
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Store.DSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		s := bunstore.New(db, bunstore.WithLogger(logger))

		return s, func() { _ = db.Close() }, nil

	case "redis":
		if cfg.Store.Addr == "" {
			return nil, nil, fmt.Errorf("redis backend requires store.addr")
		}
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Store.Addr})
		s := redisstore.New(client, redisstore.WithLogger(logger))

		return s, func() { _ = client.Close() }, nil

	case "mongo":
		if cfg.Store.URI == "" {
			return nil, nil, fmt.Errorf("mongo backend requires store.uri")
		}
		client, err := mongod.Connect(options.Client().ApplyURI(cfg.Store.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		s := mongostore.New(client.Database(cfg.Store.Database), mongostore.WithLogger(logger))
		cleanup := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		}

		return s, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
