package service

import (
	"context"

	"marketgw/internal/market"
	"marketgw/internal/repository"
)

// StatsService reports per-contract collection coverage.
type StatsService struct {
	Repo repository.Repository
}

func (s *StatsService) CollectionStats(ctx context.Context, symbol string) ([]repository.CollectionStat, error) {
	const op = "service.StatsService.CollectionStats"
	stats, err := s.Repo.CollectionStats(ctx, symbol)
	if err != nil {
		return nil, market.E(market.KindStoreUnavailable, op, err)
	}
	if stats == nil {
		stats = []repository.CollectionStat{}
	}
	return stats, nil
}
