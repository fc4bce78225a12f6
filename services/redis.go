package services

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"murmur/chat-server/config"
	"murmur/chat-server/utils"
)

// RedisConns holds the three process-wide Redis connections: one for general
// operations, one dedicated to publishing and one dedicated to subscribing.
// A subscribed connection cannot issue regular commands, so the split is a
// protocol requirement, not a preference. All three are created once at
// startup and closed at shutdown.
type RedisConns struct {
	Client *redis.Client
	Pub    *redis.Client
	Sub    *redis.Client
}

func NewRedisConns(cfg *config.Config, logger *utils.Logger) (*RedisConns, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.DB = cfg.RedisDB

	conns := &RedisConns{
		Client: redis.NewClient(opt),
		Pub:    redis.NewClient(opt),
		Sub:    redis.NewClient(opt),
	}

	// Test connection
	ctx := context.Background()
	if err := conns.Client.Ping(ctx).Err(); err != nil {
		conns.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", "url", cfg.RedisURL, "db", cfg.RedisDB)
	return conns, nil
}

// Close closes all three connections, returning the first error encountered.
func (rc *RedisConns) Close() error {
	var firstErr error
	for _, c := range []*redis.Client{rc.Client, rc.Pub, rc.Sub} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
