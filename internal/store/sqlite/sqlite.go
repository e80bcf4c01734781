package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fghsg9075-lab/aios/internal/store"
	"github.com/fghsg9075-lab/aios/internal/store/model"
	"github.com/jmoiron/sqlx"
)

// Store implements store.ConfigStore and store.AttemptRepository on SQLite.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var setting model.Setting
	err := s.db.GetContext(ctx, &setting, `SELECT key, value, updated_at FROM kv_store WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return setting.Value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	query := `
	INSERT INTO kv_store (key, value, updated_at)
	VALUES (:key, :value, :updated_at)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`
	_, err := s.db.NamedExecContext(ctx, query, model.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()})
	return err
}

func (s *Store) Log(ctx context.Context, attempt *model.Attempt) error {
	query := `
	INSERT INTO dispatch_attempts (
		id, request_id, provider_id, model_id, task_kind, outcome,
		reason, error_message, latency_ms, input_tokens, output_tokens, created_at
	) VALUES (
		:id, :request_id, :provider_id, :model_id, :task_kind, :outcome,
		:reason, :error_message, :latency_ms, :input_tokens, :output_tokens, :created_at
	)`
	_, err := s.db.NamedExecContext(ctx, query, attempt)
	return err
}

func (s *Store) ProviderStats(ctx context.Context, since time.Time) ([]model.ProviderStats, error) {
	var stats []model.ProviderStats
	query := `
		SELECT
			provider_id,
			COUNT(*) AS attempts,
			SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END) AS successes,
			SUM(CASE WHEN outcome = 'failure' THEN 1 ELSE 0 END) AS failures,
			SUM(CASE WHEN outcome = 'skipped' THEN 1 ELSE 0 END) AS skips,
			AVG(latency_ms) AS avg_latency
		FROM dispatch_attempts
		WHERE created_at >= ?
		GROUP BY provider_id
		ORDER BY provider_id
	`
	err := s.db.SelectContext(ctx, &stats, query, since.UTC())
	return stats, err
}

var (
	_ store.ConfigStore       = (*Store)(nil)
	_ store.AttemptRepository = (*Store)(nil)
)
