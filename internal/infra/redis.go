package infra

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewRedisClient connects the client shared by the idempotency cache, the
// login rate limiter, the job lease and the event sink.
func NewRedisClient(ctx context.Context, url string, logger logrus.FieldLogger) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.WithFields(logrus.Fields{"addr": opt.Addr, "db": opt.DB}).Info("connected to redis")
	return client, nil
}
