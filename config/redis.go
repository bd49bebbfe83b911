package config

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ConnectRedis returns nil when Redis is not configured or not reachable;
// the dashboard then runs with its in-process cache only.
func ConnectRedis(cfg *Config, log zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" && cfg.RedisAddr == "" {
		return nil
	}

	var opt *redis.Options
	if cfg.RedisURL != "" {
		parsed, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to parse Redis URL, running without shared cache")
			return nil
		}
		opt = parsed
	} else {
		opt = &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		}
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis connection failed, running without shared cache")
		client.Close()
		return nil
	}

	log.Info().Str("addr", opt.Addr).Msg("Redis connected")
	return client
}
