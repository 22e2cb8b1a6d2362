// cmd/historian is an asynchronous historian service that pops session actions from
// a Redis queue and persists them to the result database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/tabletop/internal/cache"
	"github.com/jason-s-yu/tabletop/internal/config"
	"github.com/jason-s-yu/tabletop/internal/database"
	"github.com/jason-s-yu/tabletop/internal/historian"
)

func main() {
	logger := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if lvl, err := cfg.Level(); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatal(err)
	}
	defer rdb.Close()

	var sink database.ActionSink
	if cfg.ResultBackend == config.BackendSQLite {
		store, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Fatal(err)
		}
		defer store.Close()
		sink = store
	} else {
		pool, err := database.ConnectDB(ctx, cfg.PostgresURL())
		if err != nil {
			logger.Fatal(err)
		}
		defer pool.Close()
		store := database.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal(err)
		}
		sink = store
	}

	svc := historian.New(rdb, sink, historian.Config{
		Queue:         cfg.HistorianQueue,
		BatchSize:     cfg.HistorianBatchSize,
		FlushInterval: cfg.HistorianFlush(),
	}, logger)
	if err := svc.Run(ctx); err != nil {
		logger.Errorf("historian: %v", err)
	}
}
