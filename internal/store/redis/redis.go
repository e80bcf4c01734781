package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/fghsg9075-lab/aios/internal/store"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key this service writes.
const keyPrefix = "aios:"

type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store implements store.ConfigStore on Redis.
type Store struct {
	rdb *redis.Client
}

// Open connects and verifies the connection with a PING.
func Open(ctx context.Context, opts Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return New(rdb), nil
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	return data, err
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.rdb.Set(ctx, keyPrefix+key, value, 0).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

var _ store.ConfigStore = (*Store)(nil)
