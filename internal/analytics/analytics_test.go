package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fghsg9075-lab/aios/internal/store/memory"
	"github.com/fghsg9075-lab/aios/internal/store/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func attempt(provider, outcome string, at time.Time) *model.Attempt {
	return &model.Attempt{
		ID:         provider + "-" + outcome,
		RequestID:  "req-1",
		ProviderID: provider,
		Outcome:    outcome,
		LatencyMs:  10,
		CreatedAt:  at,
	}
}

func TestIngestor_FlushesOnBatchSize(t *testing.T) {
	repo := memory.New()
	ing := NewIngestor(zap.NewNop(), repo, Options{BatchSize: 2, FlushInterval: time.Hour})
	ing.Start(context.Background())
	defer ing.Stop()

	now := time.Now()
	ing.Log(attempt("gemini", model.OutcomeFailure, now))
	ing.Log(attempt("groq", model.OutcomeSuccess, now))

	assert.Eventually(t, func() bool { return len(repo.Attempts()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestIngestor_FlushesOnTicker(t *testing.T) {
	repo := memory.New()
	ing := NewIngestor(zap.NewNop(), repo, Options{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	ing.Start(context.Background())
	defer ing.Stop()

	ing.Log(attempt("gemini", model.OutcomeSuccess, time.Now()))

	assert.Eventually(t, func() bool { return len(repo.Attempts()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestIngestor_StopDrainsBuffer(t *testing.T) {
	repo := memory.New()
	ing := NewIngestor(zap.NewNop(), repo, Options{BatchSize: 100, FlushInterval: time.Hour})
	ing.Start(context.Background())

	for range 5 {
		ing.Log(attempt("openai", model.OutcomeSkipped, time.Now()))
	}
	ing.Stop()

	assert.Len(t, repo.Attempts(), 5)

	// logging after stop is a silent no-op
	ing.Log(attempt("openai", model.OutcomeSkipped, time.Now()))
	ing.Stop()
	assert.Len(t, repo.Attempts(), 5)
}

func TestIngestor_OutlivesCancelledParent(t *testing.T) {
	repo := memory.New()
	ing := NewIngestor(zap.NewNop(), repo, Options{BatchSize: 100, FlushInterval: time.Hour})

	serving, shutdown := context.WithCancel(context.Background())
	ing.Start(context.WithoutCancel(serving))

	// a signal cancels serving while requests are still finishing
	shutdown()
	for range 3 {
		ing.Log(attempt("groq", model.OutcomeSuccess, time.Now()))
	}

	ing.Stop()
	assert.Len(t, repo.Attempts(), 3)
}

func TestIngestor_FullBufferDrops(t *testing.T) {
	repo := memory.New()
	ing := NewIngestor(zap.NewNop(), repo, Options{BufferSize: 2, BatchSize: 100, FlushInterval: time.Hour})

	// not started: nothing consumes the channel
	for range 5 {
		ing.Log(attempt("groq", model.OutcomeFailure, time.Now()))
	}

	ing.Start(context.Background())
	ing.Stop()
	assert.Len(t, repo.Attempts(), 2)
}

type brokenRepo struct{ *memory.Store }

func (brokenRepo) ProviderStats(context.Context, time.Time) ([]model.ProviderStats, error) {
	return nil, errors.New("database is locked")
}

func TestService_GetProviderStats(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Log(ctx, attempt("gemini", model.OutcomeSuccess, now.Add(-time.Hour))))
	require.NoError(t, repo.Log(ctx, attempt("groq", model.OutcomeFailure, now.Add(-3*24*time.Hour))))

	svc := &service{repo: repo, now: func() time.Time { return now }}

	stats, err := svc.GetProviderStats(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "gemini", stats[0].ProviderID)

	stats, err = svc.GetProviderStats(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, stats, 2, "defaults to a week")

	empty := &service{repo: memory.New(), now: time.Now}
	stats, err = empty.GetProviderStats(ctx, 7)
	require.NoError(t, err)
	assert.NotNil(t, stats)
	assert.Empty(t, stats)

	_, err = NewService(brokenRepo{memory.New()}).GetProviderStats(ctx, 7)
	assert.Error(t, err)
}
