// Package quotecache is an optional Redis layer in front of the
// durable store: cached historical payloads and realtime quotes with
// short TTLs plus hit/miss counters. A nil *Cache disables caching
// without any behavior change beyond extra store traffic.
package quotecache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"marketgw/internal/config"
	"marketgw/internal/market"
)

const keyPrefix = "marketgw"

type Cache struct {
	rdb        *redis.Client
	historyTTL time.Duration
	quoteTTL   time.Duration
	logger     *zap.Logger

	historyHits   atomic.Int64
	historyMisses atomic.Int64
	quoteHits     atomic.Int64
	quoteMisses   atomic.Int64
	sets          atomic.Int64
	errors        atomic.Int64
}

type Stats struct {
	HistoryHits   int64 `json:"history_hits"`
	HistoryMisses int64 `json:"history_misses"`
	QuoteHits     int64 `json:"quote_hits"`
	QuoteMisses   int64 `json:"quote_misses"`
	Sets          int64 `json:"sets"`
	Errors        int64 `json:"errors"`
}

func New(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{
		rdb:        rdb,
		historyTTL: cfg.HistoryTTL,
		quoteTTL:   cfg.QuoteTTL,
		logger:     logger,
	}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

func HistoryKey(contractID uint64, timeframe market.Timeframe, start, end time.Time, indicators bool) string {
	ind := "plain"
	if indicators {
		ind = "ind"
	}
	return fmt.Sprintf("%s:history:%d:%s:%d:%d:%s",
		keyPrefix, contractID, timeframe, start.UTC().Unix(), end.UTC().Unix(), ind)
}

func quoteKey(symbol string) string {
	return fmt.Sprintf("%s:quote:%s", keyPrefix, strings.ToUpper(strings.TrimSpace(symbol)))
}

func (c *Cache) GetHistory(ctx context.Context, key string) ([]market.EnrichedBar, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.historyMisses.Add(1)
		return nil, false
	}
	if err != nil {
		c.errors.Add(1)
		c.historyMisses.Add(1)
		return nil, false
	}
	var bars []market.EnrichedBar
	if err := json.Unmarshal(raw, &bars); err != nil {
		c.errors.Add(1)
		c.historyMisses.Add(1)
		return nil, false
	}
	c.historyHits.Add(1)
	return bars, true
}

// SetHistory is best-effort; a failed write only costs a future
// cache miss.
func (c *Cache) SetHistory(ctx context.Context, key string, bars []market.EnrichedBar) {
	if c == nil || c.rdb == nil || len(bars) == 0 {
		return
	}
	raw, err := json.Marshal(bars)
	if err != nil {
		c.errors.Add(1)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.historyTTL).Err(); err != nil {
		c.errors.Add(1)
		if c.logger != nil {
			c.logger.Warn("history cache write failed", zap.Error(err))
		}
		return
	}
	c.sets.Add(1)
}

func (c *Cache) GetQuote(ctx context.Context, symbol string) (market.Quote, bool) {
	if c == nil || c.rdb == nil {
		return market.Quote{}, false
	}
	raw, err := c.rdb.Get(ctx, quoteKey(symbol)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.errors.Add(1)
		}
		c.quoteMisses.Add(1)
		return market.Quote{}, false
	}
	var q market.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		c.errors.Add(1)
		c.quoteMisses.Add(1)
		return market.Quote{}, false
	}
	c.quoteHits.Add(1)
	return q, true
}

func (c *Cache) SetQuote(ctx context.Context, symbol string, q market.Quote) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(q)
	if err != nil {
		c.errors.Add(1)
		return
	}
	if err := c.rdb.Set(ctx, quoteKey(symbol), raw, c.quoteTTL).Err(); err != nil {
		c.errors.Add(1)
		return
	}
	c.sets.Add(1)
}

func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		HistoryHits:   c.historyHits.Load(),
		HistoryMisses: c.historyMisses.Load(),
		QuoteHits:     c.quoteHits.Load(),
		QuoteMisses:   c.quoteMisses.Load(),
		Sets:          c.sets.Load(),
		Errors:        c.errors.Load(),
	}
}

// Clear deletes keys matching pattern under the gateway prefix;
// "history", "quote", or "all".
func (c *Cache) Clear(ctx context.Context, scope string) (int64, error) {
	if c == nil || c.rdb == nil {
		return 0, nil
	}
	pattern := keyPrefix + ":*"
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "", "all":
	case "history":
		pattern = keyPrefix + ":history:*"
	case "quote":
		pattern = keyPrefix + ":quote:*"
	default:
		return 0, fmt.Errorf("unknown cache scope %q", scope)
	}
	var deleted int64
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.errors.Add(1)
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	return deleted, nil
}
