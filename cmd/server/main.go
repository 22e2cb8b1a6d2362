// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jason-s-yu/tabletop/internal/auth"
	"github.com/jason-s-yu/tabletop/internal/cache"
	"github.com/jason-s-yu/tabletop/internal/config"
	"github.com/jason-s-yu/tabletop/internal/database"
	"github.com/jason-s-yu/tabletop/internal/handlers"
	"github.com/jason-s-yu/tabletop/internal/session"
)

func main() {
	logger := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	lvl, err := cfg.Level()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(lvl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	results, closeResults, err := openResults(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeResults()

	keys, err := loadKeys(cfg)
	if err != nil {
		return err
	}

	hub := handlers.NewHub(logger)
	ctrl, err := session.NewController(session.Deps{
		Store:       cache.NewRedisStore(rdb, cfg.SessionTTL),
		Results:     results,
		Events:      cache.NewEventBus(rdb, cfg.FinishChannel),
		Actions:     cache.NewActionLog(rdb, cfg.HistorianQueue),
		Broadcaster: hub,
		Logger:      logger,
	}, cfg.SessionOptions())
	if err != nil {
		return err
	}
	defer ctrl.Shutdown()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewServer(ctrl, keys, hub, logger).Routes(cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"results": cfg.ResultBackend,
		}).Info("session service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openResults connects the configured result backend.
func openResults(ctx context.Context, cfg config.Config) (database.ResultStore, func(), error) {
	if cfg.ResultBackend == config.BackendSQLite {
		store, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	pool, err := database.ConnectDB(ctx, cfg.PostgresURL())
	if err != nil {
		return nil, nil, err
	}
	store := database.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

func loadKeys(cfg config.Config) (*auth.Keys, error) {
	expire, err := auth.ParseExpire(cfg.TokenExpireTime)
	if err != nil {
		return nil, err
	}
	if cfg.JWTPrivateKeyPath != "" {
		return auth.LoadKeys(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, expire)
	}
	return auth.GenerateKeys(expire)
}
