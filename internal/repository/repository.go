package repository

import (
	"context"
	"math"
	"time"

	"marketgw/internal/models"
)

// UpsertResult reports the exact insert/update split of a batch
// upsert; used for observability and tests.
type UpsertResult struct {
	Inserted int64 `json:"inserted"`
	Updated  int64 `json:"updated"`
}

// CollectionStat is one row of the data-collection report: how many
// bars exist for a contract/timeframe and what window they cover.
type CollectionStat struct {
	ContractID uint64     `json:"contract_id"`
	Symbol     string     `json:"symbol"`
	SecType    string     `json:"sec_type"`
	Timeframe  string     `json:"timeframe"`
	BarCount   int64      `json:"bar_count"`
	FirstBar   *time.Time `json:"first_bar,omitempty"`
	LastBar    *time.Time `json:"last_bar,omitempty"`
}

// BarWithIndicators pairs a bar with the indicator values on its
// timestamp; Indicators is empty when none exist.
type BarWithIndicators struct {
	Bar        models.Bar
	Indicators map[string]float64
}

type Repository interface {
	// ResolveContract inserts item if its natural key is unseen and
	// returns the surviving row either way.
	ResolveContract(ctx context.Context, item *models.Contract) (*models.Contract, error)
	GetContract(ctx context.Context, id uint64) (*models.Contract, error)
	ListContracts(ctx context.Context, symbol string) ([]models.Contract, error)

	UpsertBars(ctx context.Context, bars []models.Bar) (UpsertResult, error)
	BarsInRange(ctx context.Context, contractID uint64, timeframe string, start, end time.Time) ([]models.Bar, error)
	PruneBarsBefore(ctx context.Context, timeframe string, cutoff time.Time) (int64, error)

	UpsertIndicators(ctx context.Context, values []models.IndicatorValue) error
	BarsWithIndicators(ctx context.Context, contractID uint64, timeframe string, start, end time.Time) ([]BarWithIndicators, error)
	PruneIndicatorsBefore(ctx context.Context, timeframe string, cutoff time.Time) (int64, error)

	CollectionStats(ctx context.Context, symbol string) ([]CollectionStat, error)
	InsertRawFeedEvent(ctx context.Context, item *models.RawFeedEvent) error
	PruneRawFeedEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// FiniteValues drops indicator values that are NaN or infinite. The
// filter is silent: malformed entries are skipped, not errors.
func FiniteValues(values []models.IndicatorValue) []models.IndicatorValue {
	out := make([]models.IndicatorValue, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}
