package gormrepository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketgw/internal/models"
	"marketgw/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- contracts ---------------------------------------------------------------

var contractKeyColumns = []clause.Column{
	{Name: "symbol"},
	{Name: "sec_type"},
	{Name: "exchange"},
	{Name: "currency"},
	{Name: "expiry"},
	{Name: "strike"},
	{Name: "right"},
}

// ResolveContract is insert-or-fetch on the natural key. Two
// concurrent calls with the same key race on the insert; the loser
// hits DoNothing and re-selects the winner's row.
func (s *Store) ResolveContract(ctx context.Context, item *models.Contract) (*models.Contract, error) {
	if s == nil || s.db == nil || item == nil {
		return nil, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   contractKeyColumns,
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return item, nil
	}
	var existing models.Contract
	err := s.db.WithContext(ctx).
		Where("symbol = ?", item.Symbol).
		Where("sec_type = ?", item.SecType).
		Where("exchange = ?", item.Exchange).
		Where("currency = ?", item.Currency).
		Where("expiry = ?", item.Expiry).
		Where("strike = ?", item.Strike).
		Where(`"right" = ?`, item.Right).
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *Store) GetContract(ctx context.Context, id uint64) (*models.Contract, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Contract
	err := s.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListContracts(ctx context.Context, symbol string) ([]models.Contract, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Contract{})
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		query = query.Where("symbol = ?", strings.ToUpper(symbol))
	}
	var items []models.Contract
	if err := query.Order("symbol asc, sec_type asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- bars --------------------------------------------------------------------

// UpsertBars inserts new (contract, timeframe, timestamp) rows and
// overwrites existing ones, reporting the exact split. Duplicate keys
// within one batch collapse to the last occurrence so the single
// upsert statement never hits the same row twice.
func (s *Store) UpsertBars(ctx context.Context, bars []models.Bar) (repository.UpsertResult, error) {
	if s == nil || s.db == nil || len(bars) == 0 {
		return repository.UpsertResult{}, nil
	}
	bars = dedupeBars(bars)

	tuples := make([][]any, 0, len(bars))
	for _, b := range bars {
		tuples = append(tuples, []any{b.ContractID, b.Timeframe, b.Timestamp.UTC()})
	}

	var result repository.UpsertResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.Bar
		if err := tx.Model(&models.Bar{}).
			Select("contract_id", "timeframe", "timestamp").
			Where("(contract_id, timeframe, timestamp) IN ?", tuples).
			Find(&existing).Error; err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(existing))
		for _, b := range existing {
			seen[barKey(b)] = struct{}{}
		}

		if err := createInBatches(tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "contract_id"}, {Name: "timeframe"}, {Name: "timestamp"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"open", "high", "low", "close", "volume", "wap", "trade_count", "updated_at",
			}),
		}), bars, 500); err != nil {
			return err
		}

		for _, b := range bars {
			if _, ok := seen[barKey(b)]; ok {
				result.Updated++
			} else {
				result.Inserted++
			}
		}
		return nil
	})
	if err != nil {
		return repository.UpsertResult{}, err
	}
	return result, nil
}

func (s *Store) BarsInRange(ctx context.Context, contractID uint64, timeframe string, start, end time.Time) ([]models.Bar, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	items := []models.Bar{}
	err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Where("timeframe = ?", timeframe).
		Where("timestamp >= ?", start.UTC()).
		Where("timestamp <= ?", end.UTC()).
		Order("timestamp asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) PruneBarsBefore(ctx context.Context, timeframe string, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("timeframe = ?", timeframe).
		Where("timestamp < ?", cutoff.UTC()).
		Delete(&models.Bar{})
	return res.RowsAffected, res.Error
}

// --- indicators --------------------------------------------------------------

func (s *Store) UpsertIndicators(ctx context.Context, values []models.IndicatorValue) error {
	if s == nil || s.db == nil {
		return nil
	}
	values = repository.FiniteValues(values)
	if len(values) == 0 {
		return nil
	}
	return createInBatches(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "contract_id"}, {Name: "timeframe"}, {Name: "timestamp"},
			{Name: "name"}, {Name: "period"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}), values, 500)
}

func (s *Store) BarsWithIndicators(ctx context.Context, contractID uint64, timeframe string, start, end time.Time) ([]repository.BarWithIndicators, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	bars, err := s.BarsInRange(ctx, contractID, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return []repository.BarWithIndicators{}, nil
	}
	var values []models.IndicatorValue
	err = s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Where("timeframe = ?", timeframe).
		Where("timestamp >= ?", start.UTC()).
		Where("timestamp <= ?", end.UTC()).
		Find(&values).Error
	if err != nil {
		return nil, err
	}
	byTS := make(map[int64]map[string]float64, len(bars))
	for _, v := range values {
		key := v.Timestamp.UTC().UnixNano()
		if byTS[key] == nil {
			byTS[key] = map[string]float64{}
		}
		byTS[key][v.Key()] = v.Value
	}
	out := make([]repository.BarWithIndicators, 0, len(bars))
	for _, b := range bars {
		ind := byTS[b.Timestamp.UTC().UnixNano()]
		if ind == nil {
			ind = map[string]float64{}
		}
		out = append(out, repository.BarWithIndicators{Bar: b, Indicators: ind})
	}
	return out, nil
}

func (s *Store) PruneIndicatorsBefore(ctx context.Context, timeframe string, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("timeframe = ?", timeframe).
		Where("timestamp < ?", cutoff.UTC()).
		Delete(&models.IndicatorValue{})
	return res.RowsAffected, res.Error
}

// --- stats and audit ---------------------------------------------------------

func (s *Store) CollectionStats(ctx context.Context, symbol string) ([]repository.CollectionStat, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Table("bars AS b").
		Select(`
			b.contract_id AS contract_id,
			c.symbol AS symbol,
			c.sec_type AS sec_type,
			b.timeframe AS timeframe,
			COUNT(*) AS bar_count,
			MIN(b.timestamp) AS first_bar,
			MAX(b.timestamp) AS last_bar
		`).
		Joins("JOIN contracts AS c ON c.id = b.contract_id").
		Group("b.contract_id, c.symbol, c.sec_type, b.timeframe")
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		query = query.Where("c.symbol = ?", strings.ToUpper(symbol))
	}
	var rows []repository.CollectionStat
	if err := query.Order("symbol asc, timeframe asc").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) InsertRawFeedEvent(ctx context.Context, item *models.RawFeedEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) PruneRawFeedEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("received_at < ?", cutoff.UTC()).
		Delete(&models.RawFeedEvent{})
	return res.RowsAffected, res.Error
}

// --- helpers -----------------------------------------------------------------

func barKey(b models.Bar) string {
	return strconv.FormatUint(b.ContractID, 10) + "|" + b.Timeframe + "|" + b.Timestamp.UTC().Format(time.RFC3339Nano)
}

func dedupeBars(bars []models.Bar) []models.Bar {
	seen := make(map[string]int, len(bars))
	out := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		b.Timestamp = b.Timestamp.UTC()
		key := barKey(b)
		if idx, ok := seen[key]; ok {
			out[idx] = b
			continue
		}
		seen[key] = len(out)
		out = append(out, b)
	}
	return out
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := db.CreateInBatches(items[i:end], batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}
