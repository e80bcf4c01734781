package model

import (
	"database/sql"
	"time"
)

// Setting is one row of the key/value settings table.
type Setting struct {
	Key       string    `db:"key" json:"key"`
	Value     []byte    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Attempt is one provider attempt made while dispatching a task.
type Attempt struct {
	ID           string         `db:"id" json:"id"`
	RequestID    string         `db:"request_id" json:"request_id"`
	ProviderID   string         `db:"provider_id" json:"provider_id"`
	ModelID      string         `db:"model_id" json:"model_id"`
	TaskKind     string         `db:"task_kind" json:"task_kind"`
	Outcome      string         `db:"outcome" json:"outcome"` // success, failure, skipped
	Reason       sql.NullString `db:"reason" json:"reason,omitempty"`
	ErrorMessage sql.NullString `db:"error_message" json:"error_message,omitempty"`
	LatencyMs    int64          `db:"latency_ms" json:"latency_ms"`
	InputTokens  int            `db:"input_tokens" json:"input_tokens"`
	OutputTokens int            `db:"output_tokens" json:"output_tokens"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// ProviderStats aggregates attempts per provider.
type ProviderStats struct {
	ProviderID string  `db:"provider_id" json:"provider_id"`
	Attempts   int64   `db:"attempts" json:"attempts"`
	Successes  int64   `db:"successes" json:"successes"`
	Failures   int64   `db:"failures" json:"failures"`
	Skips      int64   `db:"skips" json:"skips"`
	AvgLatency float64 `db:"avg_latency" json:"avg_latency_ms"`
}
