package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/congo_save/internal/config"
	"github.com/congo-pay/congo_save/internal/infra"
	"github.com/congo-pay/congo_save/internal/logging"
	"github.com/congo-pay/congo_save/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg, os.Args[2:], logger); err != nil {
			logger.WithError(err).Error("migrate")
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

// runMigrate handles `migrate up`, `migrate down [steps]` and `migrate status`.
func runMigrate(cfg config.Config, args []string, logger *logrus.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set")
	}
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}
	switch cmd {
	case "up":
		return infra.MigrateUp(cfg.DatabaseURL, logger)
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid steps %q: %w", args[1], err)
			}
			steps = n
		}
		return infra.MigrateDown(cfg.DatabaseURL, steps, logger)
	case "status":
		return infra.MigrateStatus(cfg.DatabaseURL, logger)
	default:
		return fmt.Errorf("unknown migrate command %q", cmd)
	}
}

func run(cfg config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if err := infra.MigrateUp(cfg.DatabaseURL, logger); err != nil {
			return err
		}
		pool, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		db = pool
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.WithError(err).Warn("close redis")
			}
		}()
		cache = client
	}

	nc, err := infra.NewNATSConn(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		return err
	}
	if nc != nil {
		defer drainNATS(nc, logger)
	}

	srv, err := server.New(ctx, cfg, db, cache, nc, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	srv.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func drainNATS(nc *nats.Conn, logger logrus.FieldLogger) {
	if err := nc.Drain(); err != nil {
		logger.WithError(err).Warn("drain nats")
	}
}
