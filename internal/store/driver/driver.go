// Package driver opens the configured ConfigStore backend.
package driver

import (
	"context"
	"fmt"

	"github.com/fghsg9075-lab/aios/internal/config"
	"github.com/fghsg9075-lab/aios/internal/store"
	"github.com/fghsg9075-lab/aios/internal/store/memory"
	"github.com/fghsg9075-lab/aios/internal/store/redis"
	"github.com/fghsg9075-lab/aios/internal/store/sqlite"
	"go.uber.org/zap"
)

func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (store.ConfigStore, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.Open(cfg.DSN, log.Named("sqlite"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := redis.Open(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		log.Info("Connected to redis", zap.String("addr", cfg.Redis.Addr), zap.Int("db", cfg.Redis.DB))
		return s, nil
	case "memory":
		log.Warn("Using in-memory store, configuration is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
