package hub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"marketgw/internal/market"
)

type stubFeed struct {
	mu          sync.Mutex
	subscribed  map[string]int
	unsubbed    map[string]int
	failSymbols map[string]error
}

func newStubFeed() *stubFeed {
	return &stubFeed{
		subscribed:  map[string]int{},
		unsubbed:    map[string]int{},
		failSymbols: map[string]error{},
	}
}

func (f *stubFeed) Subscribe(_ context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSymbols[symbol]; err != nil {
		return err
	}
	f.subscribed[symbol]++
	return nil
}

func (f *stubFeed) Unsubscribe(_ context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubbed[symbol]++
	return nil
}

func (f *stubFeed) counts(symbol string) (subs, unsubs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[symbol], f.unsubbed[symbol]
}

func nopDeliver(market.Tick) error { return nil }

func tick(symbol string, price int64) market.Tick {
	return market.Tick{Symbol: symbol, Price: decimal.NewFromInt(price)}
}

func TestSubscribe_OpensFeedOnce(t *testing.T) {
	feed := newStubFeed()
	m := NewMultiplexer(feed, nil)
	ctx := context.Background()

	for i, conn := range []string{"c1", "c2", "c3"} {
		if err := m.Subscribe(ctx, conn, "msft", nopDeliver); err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
	}
	subs, _ := feed.counts("MSFT")
	if subs != 1 {
		t.Fatalf("upstream subscribes=%d want 1", subs)
	}
	if got := m.SubscriberCount("MSFT"); got != 3 {
		t.Fatalf("subscribers=%d want 3", got)
	}
}

func TestUnsubscribe_LastCloseClosesExactlyOnce(t *testing.T) {
	feed := newStubFeed()
	m := NewMultiplexer(feed, nil)
	ctx := context.Background()

	m.Subscribe(ctx, "c1", "MSFT", nopDeliver)
	m.Subscribe(ctx, "c2", "MSFT", nopDeliver)

	m.Unsubscribe(ctx, "c1", "MSFT")
	if _, unsubs := feed.counts("MSFT"); unsubs != 0 {
		t.Fatalf("feed closed while a subscriber remains")
	}

	m.Unsubscribe(ctx, "c2", "MSFT")
	if _, unsubs := feed.counts("MSFT"); unsubs != 1 {
		t.Fatalf("unsubscribes=%d want 1", unsubs)
	}
	if got := len(m.ActiveSymbols()); got != 0 {
		t.Fatalf("active symbols=%d want 0", got)
	}

	// Repeating the unsubscribe must not close again.
	m.Unsubscribe(ctx, "c2", "MSFT")
	if _, unsubs := feed.counts("MSFT"); unsubs != 1 {
		t.Fatalf("duplicate unsubscribe closed the feed again")
	}
}

func TestPublish_FansOutAndStopsAfterClose(t *testing.T) {
	feed := newStubFeed()
	m := NewMultiplexer(feed, nil)
	ctx := context.Background()

	var mu sync.Mutex
	received := map[string]int{}
	deliverTo := func(conn string) DeliverFunc {
		return func(market.Tick) error {
			mu.Lock()
			received[conn]++
			mu.Unlock()
			return nil
		}
	}

	m.Subscribe(ctx, "a", "AAPL", deliverTo("a"))
	m.Subscribe(ctx, "b", "AAPL", deliverTo("b"))

	m.Publish("AAPL", tick("AAPL", 190))
	if received["a"] != 1 || received["b"] != 1 {
		t.Fatalf("received=%v want both connections at 1", received)
	}

	m.OnConnectionClosed(ctx, "a")
	m.Publish("AAPL", tick("AAPL", 191))
	if received["a"] != 1 {
		t.Fatalf("closed connection still receiving")
	}
	if received["b"] != 2 {
		t.Fatalf("b received=%d want 2", received["b"])
	}
	if _, unsubs := feed.counts("AAPL"); unsubs != 0 {
		t.Fatalf("feed closed while b is subscribed")
	}

	m.Unsubscribe(ctx, "b", "AAPL")
	if _, unsubs := feed.counts("AAPL"); unsubs != 1 {
		t.Fatalf("feed not closed after last unsubscribe")
	}
}

func TestPublish_FailingSubscriberIsEvicted(t *testing.T) {
	feed := newStubFeed()
	m := NewMultiplexer(feed, nil)
	ctx := context.Background()

	var healthy int
	m.Subscribe(ctx, "bad", "TSLA", func(market.Tick) error {
		return errors.New("send buffer full")
	})
	m.Subscribe(ctx, "good", "TSLA", func(market.Tick) error {
		healthy++
		return nil
	})

	m.Publish("TSLA", tick("TSLA", 250))
	if healthy != 1 {
		t.Fatalf("healthy subscriber received=%d want 1", healthy)
	}
	if got := m.SubscriberCount("TSLA"); got != 1 {
		t.Fatalf("subscribers=%d want 1 after eviction", got)
	}

	m.Publish("TSLA", tick("TSLA", 251))
	if healthy != 2 {
		t.Fatalf("healthy subscriber received=%d want 2", healthy)
	}
}

func TestSubscribe_UpstreamFailureLeavesNoEntry(t *testing.T) {
	feed := newStubFeed()
	feed.failSymbols["NVDA"] = errors.New("refused")
	m := NewMultiplexer(feed, nil)

	err := m.Subscribe(context.Background(), "c1", "NVDA", nopDeliver)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !market.IsKind(err, market.KindUpstreamSubscribeFailed) {
		t.Fatalf("kind=%q want upstream_subscribe_failed", market.KindOf(err))
	}
	if got := len(m.ActiveSymbols()); got != 0 {
		t.Fatalf("entries leaked after failed subscribe: %d", got)
	}

	// The symbol stays subscribable once the upstream recovers.
	delete(feed.failSymbols, "NVDA")
	if err := m.Subscribe(context.Background(), "c1", "NVDA", nopDeliver); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
}

func TestSubscribe_SymbolNormalization(t *testing.T) {
	feed := newStubFeed()
	m := NewMultiplexer(feed, nil)
	ctx := context.Background()

	m.Subscribe(ctx, "c1", " msft ", nopDeliver)
	m.Subscribe(ctx, "c2", "MSFT", nopDeliver)
	subs, _ := feed.counts("MSFT")
	if subs != 1 {
		t.Fatalf("normalized symbol opened %d feeds want 1", subs)
	}
}
