package analytics

import (
	"context"
	"time"

	"github.com/fghsg9075-lab/aios/internal/store"
	"github.com/fghsg9075-lab/aios/internal/store/model"
)

const defaultWindowDays = 7

type Service interface {
	GetProviderStats(ctx context.Context, days int) ([]model.ProviderStats, error)
}

type service struct {
	repo store.AttemptRepository
	now  func() time.Time
}

func NewService(repo store.AttemptRepository) Service {
	return &service{
		repo: repo,
		now:  time.Now,
	}
}

func (s *service) GetProviderStats(ctx context.Context, days int) ([]model.ProviderStats, error) {
	if days <= 0 {
		days = defaultWindowDays
	}
	since := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	stats, err := s.repo.ProviderStats(ctx, since)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []model.ProviderStats{}
	}
	return stats, nil
}
