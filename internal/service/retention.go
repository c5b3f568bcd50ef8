package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"marketgw/internal/config"
	"marketgw/internal/market"
	"marketgw/internal/repository"
)

// RetentionService prunes bars past their per-timeframe window. A
// zero window keeps that timeframe forever.
type RetentionService struct {
	Repo   repository.Repository
	Config config.RetentionConfig
	Logger *zap.Logger
}

type CleanResult struct {
	BarsDeleted       map[string]int64 `json:"bars_deleted"`
	IndicatorsDeleted int64            `json:"indicators_deleted"`
	RawEventsDeleted  int64            `json:"raw_events_deleted"`
}

func (s *RetentionService) CleanOldData(ctx context.Context) (CleanResult, error) {
	const op = "service.RetentionService.CleanOldData"
	result := CleanResult{BarsDeleted: map[string]int64{}}
	now := time.Now().UTC()

	for _, tf := range market.Timeframes() {
		window, ok := s.Config.Windows[tf.String()]
		if !ok || window <= 0 {
			continue
		}
		cutoff := now.Add(-window)
		n, err := s.Repo.PruneBarsBefore(ctx, tf.String(), cutoff)
		if err != nil {
			return result, market.E(market.KindStoreUnavailable, op, err)
		}
		if n > 0 {
			result.BarsDeleted[tf.String()] = n
		}
		if s.Config.IndicatorsFollow {
			m, err := s.Repo.PruneIndicatorsBefore(ctx, tf.String(), cutoff)
			if err != nil {
				return result, market.E(market.KindStoreUnavailable, op, err)
			}
			result.IndicatorsDeleted += m
		}
	}

	if s.Config.RawEventWindow > 0 {
		n, err := s.Repo.PruneRawFeedEventsBefore(ctx, now.Add(-s.Config.RawEventWindow))
		if err != nil {
			return result, market.E(market.KindStoreUnavailable, op, err)
		}
		result.RawEventsDeleted = n
	}
	return result, nil
}

// Run is the cron entrypoint; it logs and absorbs errors so a failed
// sweep retries on the next tick.
func (s *RetentionService) Run(ctx context.Context) {
	result, err := s.CleanOldData(ctx)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("retention sweep failed", zap.Error(err))
		}
		return
	}
	if s.Logger != nil {
		s.Logger.Info("retention sweep ok",
			zap.Any("bars_deleted", result.BarsDeleted),
			zap.Int64("indicators_deleted", result.IndicatorsDeleted),
			zap.Int64("raw_events_deleted", result.RawEventsDeleted),
		)
	}
}
