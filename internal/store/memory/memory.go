package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fghsg9075-lab/aios/internal/store"
	"github.com/fghsg9075-lab/aios/internal/store/model"
)

// Store keeps settings and attempts in process memory. Nothing survives a restart.
type Store struct {
	items    map[string][]byte
	attempts []model.Attempt
	mu       sync.RWMutex
}

func New() *Store {
	return &Store{
		items: make(map[string][]byte),
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.items[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	return slices.Clone(value), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = slices.Clone(value)
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Log(ctx context.Context, attempt *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, *attempt)
	return nil
}

// Attempts returns every logged attempt in insertion order.
func (s *Store) Attempts() []model.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.attempts)
}

func (s *Store) ProviderStats(ctx context.Context, since time.Time) ([]model.ProviderStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProvider := map[string]*model.ProviderStats{}
	latency := map[string]int64{}
	for _, a := range s.attempts {
		if a.CreatedAt.Before(since) {
			continue
		}
		st, ok := byProvider[a.ProviderID]
		if !ok {
			st = &model.ProviderStats{ProviderID: a.ProviderID}
			byProvider[a.ProviderID] = st
		}
		st.Attempts++
		latency[a.ProviderID] += a.LatencyMs
		switch a.Outcome {
		case model.OutcomeSuccess:
			st.Successes++
		case model.OutcomeFailure:
			st.Failures++
		case model.OutcomeSkipped:
			st.Skips++
		}
	}

	out := make([]model.ProviderStats, 0, len(byProvider))
	for id, st := range byProvider {
		st.AvgLatency = float64(latency[id]) / float64(st.Attempts)
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b model.ProviderStats) int {
		return strings.Compare(a.ProviderID, b.ProviderID)
	})
	return out, nil
}

var (
	_ store.ConfigStore       = (*Store)(nil)
	_ store.AttemptRepository = (*Store)(nil)
)
