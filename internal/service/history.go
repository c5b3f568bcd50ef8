package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"marketgw/internal/broker"
	"marketgw/internal/indicator"
	"marketgw/internal/market"
	"marketgw/internal/models"
	"marketgw/internal/quotecache"
	"marketgw/internal/repository"
)

// HistoryService is the read-through coordinator for historical bars:
// serve from the store when the range has any data, otherwise fetch
// upstream, write back, and serve. Concurrent identical misses
// coalesce into one upstream call.
type HistoryService struct {
	Repo     repository.Repository
	Upstream broker.MarketData
	Resolver *ContractResolver
	Cache    *quotecache.Cache
	Logger   *zap.Logger

	group singleflight.Group
}

type HistoryRequest struct {
	Spec              market.ContractSpec
	Timeframe         market.Timeframe
	Start             time.Time
	End               time.Time
	IncludeIndicators bool
}

type HistoryResult struct {
	ContractID uint64               `json:"contract_id"`
	Symbol     string               `json:"symbol"`
	Timeframe  market.Timeframe     `json:"timeframe"`
	Source     string               `json:"source"`
	Degraded   bool                 `json:"degraded,omitempty"`
	Bars       []market.EnrichedBar `json:"bars"`
}

func (s *HistoryService) GetHistoricalData(ctx context.Context, req HistoryRequest) (HistoryResult, error) {
	const op = "service.HistoryService.GetHistoricalData"

	if !req.Timeframe.Valid() {
		return HistoryResult{}, market.Ef(market.KindInvalidRange, op, "unknown timeframe %q", req.Timeframe)
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return HistoryResult{}, market.Ef(market.KindInvalidRange, op, "start and end are required")
	}
	if req.End.Before(req.Start) {
		return HistoryResult{}, market.Ef(market.KindInvalidRange, op, "end %s before start %s",
			req.End.Format(time.RFC3339), req.Start.Format(time.RFC3339))
	}
	req.Start = req.Start.UTC()
	req.End = req.End.UTC()

	contract, err := s.Resolver.Resolve(ctx, req.Spec)
	if err != nil {
		if market.IsKind(err, market.KindContractResolutionFailed) {
			return HistoryResult{}, err
		}
		return HistoryResult{}, market.E(market.KindContractResolutionFailed, op, err)
	}

	key := fmt.Sprintf("%d|%s|%d|%d|%t",
		contract.ID, req.Timeframe, req.Start.Unix(), req.End.Unix(), req.IncludeIndicators)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.fetch(ctx, contract, req)
	})
	if err != nil {
		return HistoryResult{}, err
	}
	return v.(HistoryResult), nil
}

func (s *HistoryService) fetch(ctx context.Context, contract *models.Contract, req HistoryRequest) (HistoryResult, error) {
	result := HistoryResult{
		ContractID: contract.ID,
		Symbol:     contract.Symbol,
		Timeframe:  req.Timeframe,
	}

	cacheKey := quotecache.HistoryKey(contract.ID, req.Timeframe, req.Start, req.End, req.IncludeIndicators)
	if bars, ok := s.Cache.GetHistory(ctx, cacheKey); ok {
		result.Source = market.SourceCache
		result.Bars = bars
		return result, nil
	}

	// Any stored row in range counts as a hit; gaps inside the window
	// are not detected.
	stored, storeErr := s.queryStore(ctx, contract.ID, req)
	if storeErr != nil {
		result.Degraded = true
		if s.Logger != nil {
			s.Logger.Warn("bar store read failed, falling through to upstream",
				zap.Uint64("contract_id", contract.ID), zap.Error(storeErr))
		}
	}
	if len(stored) > 0 {
		result.Source = market.SourceCache
		result.Bars = stored
		s.Cache.SetHistory(ctx, cacheKey, stored)
		return result, nil
	}

	fetched, err := s.Upstream.FetchHistoricalBars(ctx, req.Spec.Normalize(), req.Timeframe, req.Start, req.End)
	if err != nil {
		return HistoryResult{}, err
	}

	var values []models.IndicatorValue
	if req.IncludeIndicators {
		values = indicator.Compute(contract.ID, req.Timeframe, fetched)
	}

	// Write-back is soft: the caller keeps the fetched data even when
	// persistence fails.
	if !result.Degraded {
		s.persist(ctx, contract.ID, req.Timeframe, fetched, values)
	}

	result.Source = market.SourceUpstream
	result.Bars = enrich(fetched, values)
	s.Cache.SetHistory(ctx, cacheKey, result.Bars)
	return result, nil
}

func (s *HistoryService) queryStore(ctx context.Context, contractID uint64, req HistoryRequest) ([]market.EnrichedBar, error) {
	if req.IncludeIndicators {
		rows, err := s.Repo.BarsWithIndicators(ctx, contractID, req.Timeframe.String(), req.Start, req.End)
		if err != nil {
			return nil, err
		}
		out := make([]market.EnrichedBar, 0, len(rows))
		for _, row := range rows {
			out = append(out, market.EnrichedBar{
				BarData:    barData(row.Bar),
				Indicators: row.Indicators,
			})
		}
		return out, nil
	}
	bars, err := s.Repo.BarsInRange(ctx, contractID, req.Timeframe.String(), req.Start, req.End)
	if err != nil {
		return nil, err
	}
	out := make([]market.EnrichedBar, 0, len(bars))
	for _, b := range bars {
		out = append(out, market.EnrichedBar{BarData: barData(b)})
	}
	return out, nil
}

func (s *HistoryService) persist(ctx context.Context, contractID uint64, timeframe market.Timeframe, fetched []market.BarData, values []models.IndicatorValue) {
	if len(fetched) == 0 {
		return
	}
	rows := make([]models.Bar, 0, len(fetched))
	for _, b := range fetched {
		rows = append(rows, models.Bar{
			ContractID: contractID,
			Timeframe:  timeframe.String(),
			Timestamp:  b.Timestamp.UTC(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			WAP:        b.WAP,
			TradeCount: b.TradeCount,
		})
	}
	res, err := s.Repo.UpsertBars(ctx, rows)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("bar write-back failed",
				zap.Uint64("contract_id", contractID), zap.Error(err))
		}
		return
	}
	if s.Logger != nil {
		s.Logger.Info("bars persisted",
			zap.Uint64("contract_id", contractID),
			zap.String("timeframe", timeframe.String()),
			zap.Int64("inserted", res.Inserted),
			zap.Int64("updated", res.Updated),
		)
	}
	// An indicator failure never rolls back the bar write.
	if len(values) > 0 {
		if err := s.Repo.UpsertIndicators(ctx, values); err != nil && s.Logger != nil {
			s.Logger.Warn("indicator write-back failed",
				zap.Uint64("contract_id", contractID), zap.Error(err))
		}
	}
}

func enrich(fetched []market.BarData, values []models.IndicatorValue) []market.EnrichedBar {
	byTS := map[int64]map[string]float64{}
	for _, v := range repository.FiniteValues(values) {
		key := v.Timestamp.UTC().UnixNano()
		if byTS[key] == nil {
			byTS[key] = map[string]float64{}
		}
		byTS[key][v.Key()] = v.Value
	}
	out := make([]market.EnrichedBar, 0, len(fetched))
	for _, b := range fetched {
		out = append(out, market.EnrichedBar{
			BarData:    b,
			Indicators: byTS[b.Timestamp.UTC().UnixNano()],
		})
	}
	return out
}

func barData(b models.Bar) market.BarData {
	return market.BarData{
		Timestamp:  b.Timestamp.UTC(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		WAP:        b.WAP,
		TradeCount: b.TradeCount,
	}
}
