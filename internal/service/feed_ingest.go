package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"marketgw/internal/hub"
	"marketgw/internal/market"
	"marketgw/internal/models"
	"marketgw/internal/repository"
)

// FeedIngestService sits between the upstream feed and the
// multiplexer: every tick is fanned out, and optionally audited to
// the raw event table. The audit write never blocks or fails the
// fan-out.
type FeedIngestService struct {
	Repo   repository.Repository
	Mux    *hub.Multiplexer
	Audit  bool
	Logger *zap.Logger
}

func (s *FeedIngestService) HandleTick(symbol string, tick market.Tick, raw []byte) {
	if s == nil || s.Mux == nil {
		return
	}
	s.Mux.Publish(symbol, tick)

	if !s.Audit || s.Repo == nil || len(raw) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	item := &models.RawFeedEvent{
		Symbol:     symbol,
		EventType:  "tick",
		ReceivedAt: time.Now().UTC(),
		Payload:    datatypes.JSON(raw),
	}
	if err := s.Repo.InsertRawFeedEvent(ctx, item); err != nil && s.Logger != nil {
		s.Logger.Warn("raw feed audit write failed", zap.String("symbol", symbol), zap.Error(err))
	}
}
