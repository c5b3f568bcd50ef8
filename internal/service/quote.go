package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"marketgw/internal/broker"
	"marketgw/internal/market"
	"marketgw/internal/quotecache"
)

// QuoteService serves point-in-time quotes with a short-TTL cache in
// front of the upstream poll. Timeout caps the upstream call; quotes
// are latency-sensitive and must not inherit the long backfill
// timeout of the shared HTTP client.
type QuoteService struct {
	Upstream broker.MarketData
	Cache    *quotecache.Cache
	Timeout  time.Duration
	Logger   *zap.Logger
}

type QuoteResult struct {
	Quote  market.Quote `json:"quote"`
	Source string       `json:"source"`
}

func (s *QuoteService) GetQuote(ctx context.Context, symbol string) (QuoteResult, error) {
	if q, ok := s.Cache.GetQuote(ctx, symbol); ok {
		return QuoteResult{Quote: q, Source: market.SourceCache}, nil
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	q, err := s.Upstream.FetchQuote(ctx, symbol)
	if err != nil {
		return QuoteResult{}, err
	}
	s.Cache.SetQuote(ctx, symbol, q)
	return QuoteResult{Quote: q, Source: market.SourceUpstream}, nil
}

func (s *QuoteService) SearchContracts(ctx context.Context, query string) ([]market.ContractSpec, error) {
	return s.Upstream.SearchContracts(ctx, query)
}
