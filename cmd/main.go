package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"natours/internal/auth"
	"natours/internal/config"
	"natours/internal/db"
	"natours/internal/handler"
	"natours/internal/logger"
	"natours/internal/mail"
	"natours/internal/model"
	"natours/internal/router"
	"natours/internal/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	debugFlag := flag.Bool("d", false, "enable debug logging")
	flag.Parse()

	cfg := config.LoadConfig()
	if err := logger.Init(cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "log init failed: %v\n", err)
		os.Exit(1)
	}
	logger.SetDebug(*debugFlag)
	handler.ExposeErrors(!cfg.IsProduction())

	if err := model.InitRegistry(cfg.SchemasDir); err != nil {
		logger.Error("registry_init_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	logger.Info("models_initialized", map[string]any{"count": len(model.Registry)})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("store_init_failed", map[string]any{"store": cfg.Store, "error": err.Error()})
		os.Exit(1)
	}
	defer closeStore()
	logger.Info("store_connected", map[string]any{"store": cfg.Store})

	issuer, err := auth.NewIssuer(cfg.Auth.JWT)
	if err != nil {
		logger.Error("jwt_init_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(router.Deps{
			Config: cfg,
			Store:  st,
			Issuer: issuer,
			Mailer: mail.New(cfg.Email),
			Redis:  openRedis(ctx, cfg.RedisAddr),
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	defer func() { _ = db.CloseRedis() }()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_start", map[string]any{"port": cfg.Port, "env": cfg.Env})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_error", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("server_shutdown", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server_shutdown_failed", map[string]any{"error": err.Error()})
		}
	}
}

// openStore connects the backend selected by STORE and returns its closer.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store {
	case config.StoreMongo:
		if err := db.InitMongo(ctx, cfg.MongoURI, cfg.MongoDB); err != nil {
			return nil, nil, err
		}
		st := store.NewMongo(db.Mongo)
		if err := st.EnsureIndexes(ctx, model.Registry); err != nil {
			_ = db.CloseMongo(context.Background())
			return nil, nil, err
		}
		return st, func() { _ = db.CloseMongo(context.Background()) }, nil

	case config.StorePostgres:
		if cfg.Postgres.MigrateOnStart {
			if err := db.Migrate(cfg.Postgres.DSN, cfg.Postgres.MigrationsDir); err != nil {
				return nil, nil, err
			}
		}
		if err := db.InitPostgres(ctx, cfg.Postgres.DSN); err != nil {
			return nil, nil, err
		}
		return store.NewPostgres(db.Pool), db.ClosePostgres, nil

	case config.StoreMemory:
		logger.Warn("memory_store", map[string]any{"note": "data is lost on restart"})
		return store.NewMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE %q", cfg.Store)
}

// openRedis returns nil when Redis is not configured or not answering, so
// rate limits fall back to per-process counters.
func openRedis(ctx context.Context, addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.InitRedis(ctx, addr); err != nil {
		logger.Warn("redis_unavailable", map[string]any{"addr": addr, "error": err.Error()})
		return nil
	}
	logger.Info("redis_connected", map[string]any{"addr": addr})
	return db.RDB
}
