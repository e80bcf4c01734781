package store

import (
	"context"
	"errors"
	"time"

	"github.com/fghsg9075-lab/aios/internal/store/model"
)

// SettingsKey is the key under which the provider registry and routing table are persisted.
const SettingsKey = "nst_system_settings"

// ErrNotFound is returned by ConfigStore.Get for a missing key.
var ErrNotFound = errors.New("not found")

// ConfigStore is a durable key/value store for opaque settings blobs.
type ConfigStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

type AttemptRepository interface {
	// Log stores a dispatch attempt.
	Log(ctx context.Context, attempt *model.Attempt) error
	// ProviderStats aggregates attempts made since the given time, grouped by provider.
	ProviderStats(ctx context.Context, since time.Time) ([]model.ProviderStats, error)
}
