package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketgw/internal/market"
	"marketgw/internal/models"
	"marketgw/internal/repository"
)

// stubRepo is an in-memory Repository for service tests.
type stubRepo struct {
	mu sync.Mutex

	nextID     uint64
	contracts  []*models.Contract
	bars       map[string]models.Bar
	indicators map[string]models.IndicatorValue

	readErr    error
	writeErr   error
	resolveErr error
	emptyReads bool

	upsertCalls   int
	upsertResults []repository.UpsertResult
	prunedBars    map[string]int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		bars:       map[string]models.Bar{},
		indicators: map[string]models.IndicatorValue{},
		prunedBars: map[string]int64{},
	}
}

func contractKey(c *models.Contract) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		c.Symbol, c.SecType, c.Exchange, c.Currency, c.Expiry, c.Strike.String(), c.Right)
}

func barKey(contractID uint64, timeframe string, ts time.Time) string {
	return fmt.Sprintf("%d|%s|%d", contractID, timeframe, ts.UTC().UnixNano())
}

func (r *stubRepo) ResolveContract(_ context.Context, item *models.Contract) (*models.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	key := contractKey(item)
	for _, c := range r.contracts {
		if contractKey(c) == key {
			out := *c
			return &out, nil
		}
	}
	r.nextID++
	stored := *item
	stored.ID = r.nextID
	r.contracts = append(r.contracts, &stored)
	out := stored
	return &out, nil
}

func (r *stubRepo) GetContract(_ context.Context, id uint64) (*models.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contracts {
		if c.ID == id {
			out := *c
			return &out, nil
		}
	}
	return nil, nil
}

func (r *stubRepo) ListContracts(_ context.Context, symbol string) ([]models.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Contract{}
	for _, c := range r.contracts {
		if symbol == "" || c.Symbol == symbol {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *stubRepo) UpsertBars(_ context.Context, bars []models.Bar) (repository.UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertCalls++
	if r.writeErr != nil {
		return repository.UpsertResult{}, r.writeErr
	}
	var res repository.UpsertResult
	for _, b := range bars {
		key := barKey(b.ContractID, b.Timeframe, b.Timestamp)
		if _, ok := r.bars[key]; ok {
			res.Updated++
		} else {
			res.Inserted++
		}
		r.bars[key] = b
	}
	r.upsertResults = append(r.upsertResults, res)
	return res, nil
}

func (r *stubRepo) BarsInRange(_ context.Context, contractID uint64, timeframe string, start, end time.Time) ([]models.Bar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return nil, r.readErr
	}
	if r.emptyReads {
		return []models.Bar{}, nil
	}
	out := []models.Bar{}
	for _, b := range r.bars {
		if b.ContractID != contractID || b.Timeframe != timeframe {
			continue
		}
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *stubRepo) PruneBarsBefore(_ context.Context, timeframe string, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return 0, r.writeErr
	}
	var removed int64
	for key, b := range r.bars {
		if b.Timeframe == timeframe && b.Timestamp.Before(cutoff) {
			delete(r.bars, key)
			removed++
		}
	}
	r.prunedBars[timeframe] += removed
	return removed, nil
}

func (r *stubRepo) UpsertIndicators(_ context.Context, values []models.IndicatorValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	for _, v := range repository.FiniteValues(values) {
		key := fmt.Sprintf("%s|%s", barKey(v.ContractID, v.Timeframe, v.Timestamp), v.Key())
		r.indicators[key] = v
	}
	return nil
}

func (r *stubRepo) BarsWithIndicators(ctx context.Context, contractID uint64, timeframe string, start, end time.Time) ([]repository.BarWithIndicators, error) {
	bars, err := r.BarsInRange(ctx, contractID, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]repository.BarWithIndicators, 0, len(bars))
	for _, b := range bars {
		row := repository.BarWithIndicators{Bar: b, Indicators: map[string]float64{}}
		for _, v := range r.indicators {
			if v.ContractID == contractID && v.Timeframe == timeframe && v.Timestamp.Equal(b.Timestamp) {
				row.Indicators[v.Key()] = v.Value
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *stubRepo) PruneIndicatorsBefore(_ context.Context, timeframe string, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for key, v := range r.indicators {
		if v.Timeframe == timeframe && v.Timestamp.Before(cutoff) {
			delete(r.indicators, key)
			removed++
		}
	}
	return removed, nil
}

func (r *stubRepo) CollectionStats(_ context.Context, symbol string) ([]repository.CollectionStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return nil, r.readErr
	}
	type groupKey struct {
		contractID uint64
		timeframe  string
	}
	groups := map[groupKey]*repository.CollectionStat{}
	for _, b := range r.bars {
		var contract *models.Contract
		for _, c := range r.contracts {
			if c.ID == b.ContractID {
				contract = c
				break
			}
		}
		if contract == nil || (symbol != "" && contract.Symbol != symbol) {
			continue
		}
		gk := groupKey{b.ContractID, b.Timeframe}
		stat := groups[gk]
		if stat == nil {
			stat = &repository.CollectionStat{
				ContractID: b.ContractID,
				Symbol:     contract.Symbol,
				SecType:    contract.SecType,
				Timeframe:  b.Timeframe,
			}
			groups[gk] = stat
		}
		stat.BarCount++
		ts := b.Timestamp
		if stat.FirstBar == nil || ts.Before(*stat.FirstBar) {
			t := ts
			stat.FirstBar = &t
		}
		if stat.LastBar == nil || ts.After(*stat.LastBar) {
			t := ts
			stat.LastBar = &t
		}
	}
	out := []repository.CollectionStat{}
	for _, stat := range groups {
		out = append(out, *stat)
	}
	return out, nil
}

func (r *stubRepo) InsertRawFeedEvent(_ context.Context, item *models.RawFeedEvent) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	return nil
}

func (r *stubRepo) PruneRawFeedEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// stubUpstream counts calls and replays canned data.
type stubUpstream struct {
	mu            sync.Mutex
	bars          []market.BarData
	quote         market.Quote
	historyErr    error
	quoteErr      error
	historyCalls  int
	quoteCalls    int
	lastTimeframe market.Timeframe
	quoteDeadline time.Duration
}

func (u *stubUpstream) FetchHistoricalBars(_ context.Context, _ market.ContractSpec, timeframe market.Timeframe, _, _ time.Time) ([]market.BarData, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.historyCalls++
	u.lastTimeframe = timeframe
	if u.historyErr != nil {
		return nil, u.historyErr
	}
	return u.bars, nil
}

func (u *stubUpstream) FetchQuote(ctx context.Context, symbol string) (market.Quote, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.quoteCalls++
	if deadline, ok := ctx.Deadline(); ok {
		u.quoteDeadline = time.Until(deadline)
	}
	if u.quoteErr != nil {
		return market.Quote{}, u.quoteErr
	}
	q := u.quote
	q.Symbol = symbol
	return q, nil
}

func (u *stubUpstream) SearchContracts(_ context.Context, _ string) ([]market.ContractSpec, error) {
	return nil, errors.New("not implemented")
}
