// Package hub is the subscription multiplexer: it refcounts one
// upstream feed per symbol across many downstream subscribers and
// fans incoming ticks out to all of them.
package hub

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"marketgw/internal/market"
)

// UpstreamFeed opens and closes per-symbol real-time streams.
type UpstreamFeed interface {
	Subscribe(ctx context.Context, symbol string) error
	Unsubscribe(ctx context.Context, symbol string) error
}

// DeliverFunc pushes one tick to a subscriber. A non-nil error marks
// the subscriber dead; the hub drops it and keeps delivering to the
// rest.
type DeliverFunc func(tick market.Tick) error

type entry struct {
	mu          sync.RWMutex
	subscribers map[string]DeliverFunc
	open        bool
}

// Multiplexer keeps the symbol registry. Per-symbol membership and
// broadcast run under the entry's own lock so unrelated symbols do
// not serialize; the registry lock only guards the maps.
type Multiplexer struct {
	upstream UpstreamFeed
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	conns   map[string]map[string]struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewMultiplexer(upstream UpstreamFeed, logger *zap.Logger) *Multiplexer {
	return &Multiplexer{
		upstream: upstream,
		logger:   logger,
		entries:  map[string]*entry{},
		conns:    map[string]map[string]struct{}{},
	}
}

// Subscribe registers connID for symbol, opening the upstream feed
// when this is the first subscriber. An upstream failure leaves no
// entry behind and is returned to the caller.
func (m *Multiplexer) Subscribe(ctx context.Context, connID, symbol string, deliver DeliverFunc) error {
	const op = "hub.Subscribe"
	symbol = normalizeSymbol(symbol)
	if symbol == "" || connID == "" || deliver == nil {
		return market.Ef(market.KindUpstreamSubscribeFailed, op, "connection id, symbol and delivery callback are required")
	}

	m.mu.Lock()
	e, ok := m.entries[symbol]
	if !ok {
		e = &entry{subscribers: map[string]DeliverFunc{}}
		m.entries[symbol] = e
	}
	m.mu.Unlock()

	e.mu.Lock()
	var subErr error
	if !e.open {
		if subErr = m.upstream.Subscribe(ctx, symbol); subErr == nil {
			e.open = true
		}
	}
	if subErr == nil {
		e.subscribers[connID] = deliver
	}
	e.mu.Unlock()

	if subErr != nil {
		m.removeEntryIfIdle(symbol, e)
		if market.IsKind(subErr, market.KindUpstreamSubscribeFailed) {
			return subErr
		}
		return market.E(market.KindUpstreamSubscribeFailed, op, subErr)
	}

	m.mu.Lock()
	if m.conns[connID] == nil {
		m.conns[connID] = map[string]struct{}{}
	}
	m.conns[connID][symbol] = struct{}{}
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Debug("subscriber added", zap.String("symbol", symbol), zap.String("conn", connID))
	}
	return nil
}

// Unsubscribe removes connID from symbol; the last removal closes the
// upstream feed. Unknown pairs are a no-op.
func (m *Multiplexer) Unsubscribe(ctx context.Context, connID, symbol string) {
	symbol = normalizeSymbol(symbol)
	m.mu.Lock()
	if set := m.conns[connID]; set != nil {
		delete(set, symbol)
		if len(set) == 0 {
			delete(m.conns, connID)
		}
	}
	e := m.entries[symbol]
	m.mu.Unlock()
	if e == nil {
		return
	}
	m.dropSubscriber(ctx, connID, symbol, e)
}

// OnConnectionClosed is the implicit unsubscribe for every symbol the
// connection held; it guarantees no feed leaks after abrupt
// disconnects.
func (m *Multiplexer) OnConnectionClosed(ctx context.Context, connID string) {
	m.mu.Lock()
	set := m.conns[connID]
	delete(m.conns, connID)
	symbols := make([]string, 0, len(set))
	for sym := range set {
		symbols = append(symbols, sym)
	}
	entries := make([]*entry, 0, len(symbols))
	for _, sym := range symbols {
		entries = append(entries, m.entries[sym])
	}
	m.mu.Unlock()

	for i, sym := range symbols {
		if entries[i] == nil {
			continue
		}
		m.dropSubscriber(ctx, connID, sym, entries[i])
	}
}

// Publish fans one tick out to every current subscriber of symbol, in
// call order. A failing subscriber is disconnected; the rest still
// receive the tick.
func (m *Multiplexer) Publish(symbol string, tick market.Tick) {
	symbol = normalizeSymbol(symbol)
	m.mu.Lock()
	e := m.entries[symbol]
	m.mu.Unlock()
	if e == nil {
		return
	}

	type target struct {
		connID  string
		deliver DeliverFunc
	}
	e.mu.RLock()
	targets := make([]target, 0, len(e.subscribers))
	for id, fn := range e.subscribers {
		targets = append(targets, target{connID: id, deliver: fn})
	}
	e.mu.RUnlock()

	var failed []string
	for _, t := range targets {
		if err := t.deliver(tick); err != nil {
			failed = append(failed, t.connID)
			m.dropped.Add(1)
			continue
		}
		m.delivered.Add(1)
	}
	for _, connID := range failed {
		if m.logger != nil {
			m.logger.Warn("subscriber delivery failed, disconnecting",
				zap.String("symbol", symbol), zap.String("conn", connID))
		}
		m.OnConnectionClosed(context.Background(), connID)
	}
}

// ActiveSymbols returns the symbols with an open upstream feed.
func (m *Multiplexer) ActiveSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for sym := range m.entries {
		out = append(out, sym)
	}
	return out
}

func (m *Multiplexer) SubscriberCount(symbol string) int {
	symbol = normalizeSymbol(symbol)
	m.mu.Lock()
	e := m.entries[symbol]
	m.mu.Unlock()
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers)
}

type Stats struct {
	ActiveSymbols int    `json:"active_symbols"`
	Connections   int    `json:"connections"`
	Delivered     uint64 `json:"delivered"`
	Dropped       uint64 `json:"dropped"`
}

func (m *Multiplexer) CurrentStats() Stats {
	m.mu.Lock()
	symbols := len(m.entries)
	conns := len(m.conns)
	m.mu.Unlock()
	return Stats{
		ActiveSymbols: symbols,
		Connections:   conns,
		Delivered:     m.delivered.Load(),
		Dropped:       m.dropped.Load(),
	}
}

// dropSubscriber removes connID from the entry and closes the
// upstream feed when the entry empties. The open flag flips under the
// entry lock, so the close frame is sent exactly once.
func (m *Multiplexer) dropSubscriber(ctx context.Context, connID, symbol string, e *entry) {
	// Open and close both run under the entry lock, so they cannot
	// interleave for one symbol.
	e.mu.Lock()
	delete(e.subscribers, connID)
	closeFeed := len(e.subscribers) == 0 && e.open
	if closeFeed {
		e.open = false
		if err := m.upstream.Unsubscribe(ctx, symbol); err != nil && m.logger != nil {
			m.logger.Warn("upstream unsubscribe failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	e.mu.Unlock()
	if !closeFeed {
		return
	}

	m.removeEntryIfIdle(symbol, e)
	if m.logger != nil {
		m.logger.Info("upstream feed closed", zap.String("symbol", symbol))
	}
}

// removeEntryIfIdle deletes the registry entry unless a concurrent
// subscribe revived it.
func (m *Multiplexer) removeEntryIfIdle(symbol string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[symbol]
	if !ok || cur != e {
		return
	}
	e.mu.RLock()
	idle := len(e.subscribers) == 0 && !e.open
	e.mu.RUnlock()
	if idle {
		delete(m.entries, symbol)
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
