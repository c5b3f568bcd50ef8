package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"marketgw/internal/market"
)

type feedCommand struct {
	Command string `json:"command"`
	Symbol  string `json:"symbol"`
}

type feedEnvelope struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Timestamp string `json:"timestamp"`
}

type wireTick struct {
	Symbol    string           `json:"symbol"`
	Price     decimal.Decimal  `json:"price"`
	Bid       *decimal.Decimal `json:"bid,omitempty"`
	Ask       *decimal.Decimal `json:"ask,omitempty"`
	Size      int64            `json:"size,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// TickHandler receives every tick read from the upstream feed, in
// arrival order. raw is the unparsed frame for auditing.
type TickHandler func(symbol string, tick market.Tick, raw []byte)

type FeedOptions struct {
	URL               string
	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	Logger            *zap.Logger
}

// Feed maintains one upstream websocket connection and the set of
// symbols subscribed on it. Run owns the reconnect loop; Subscribe
// and Unsubscribe may be called from any goroutine.
type Feed struct {
	opts FeedOptions

	mu        sync.Mutex
	conn      *websocket.Conn
	symbols   map[string]struct{}
	seenFirst bool
}

func NewFeed(opts FeedOptions) *Feed {
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 20 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = 1 * time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	return &Feed{
		opts:    opts,
		symbols: map[string]struct{}{},
	}
}

// Subscribe opens the upstream real-time stream for symbol. Failing
// to reach the feed is a hard error; callers must not assume the
// subscription exists afterward.
func (f *Feed) Subscribe(ctx context.Context, symbol string) error {
	const op = "broker.Feed.Subscribe"
	if f == nil {
		return market.Ef(market.KindUpstreamSubscribeFailed, op, "feed is nil")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return market.Ef(market.KindUpstreamSubscribeFailed, op, "symbol is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return market.Ef(market.KindUpstreamSubscribeFailed, op, "feed not connected")
	}
	if err := writeCommand(ctx, f.conn, "subscribe", symbol); err != nil {
		return market.E(market.KindUpstreamSubscribeFailed, op, err)
	}
	f.symbols[symbol] = struct{}{}
	return nil
}

// Unsubscribe is best-effort; a failed frame only means the upstream
// keeps streaming a symbol nobody reads until reconnect.
func (f *Feed) Unsubscribe(ctx context.Context, symbol string) error {
	if f == nil {
		return nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.symbols, symbol)
	if f.conn == nil {
		return nil
	}
	if err := writeCommand(ctx, f.conn, "unsubscribe", symbol); err != nil {
		if f.opts.Logger != nil {
			f.opts.Logger.Warn("feed unsubscribe failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return nil
}

func writeCommand(ctx context.Context, conn *websocket.Conn, command, symbol string) error {
	payload, err := json.Marshal(feedCommand{Command: command, Symbol: symbol})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (f *Feed) Run(ctx context.Context, onTick TickHandler) error {
	if f == nil {
		return fmt.Errorf("feed is nil")
	}
	if f.opts.URL == "" {
		return fmt.Errorf("feed url is empty")
	}
	backoff := f.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.Dial(ctx, f.opts.URL, nil)
		if err != nil {
			if f.opts.Logger != nil {
				f.opts.Logger.Warn("feed connect failed", zap.Error(err))
			}
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, f.opts.BackoffMax)
			continue
		}
		conn.SetReadLimit(1 << 20)
		if f.opts.Logger != nil {
			f.opts.Logger.Info("feed connected")
		}

		f.mu.Lock()
		f.conn = conn
		resub := make([]string, 0, len(f.symbols))
		for sym := range f.symbols {
			resub = append(resub, sym)
		}
		f.mu.Unlock()
		for _, sym := range resub {
			if err := writeCommand(ctx, conn, "subscribe", sym); err != nil && f.opts.Logger != nil {
				f.opts.Logger.Warn("feed resubscribe failed", zap.String("symbol", sym), zap.Error(err))
			}
		}
		backoff = f.opts.BackoffMin

		err = f.consume(ctx, conn, onTick)
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, f.opts.BackoffMax)
	}
}

func (f *Feed) consume(ctx context.Context, conn *websocket.Conn, onTick TickHandler) error {
	heartbeatErr := make(chan error, 1)
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(f.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				heartbeatErr <- heartbeatCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(heartbeatCtx, f.opts.PingTimeout)
				err := conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case err := <-heartbeatErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if f.opts.Logger != nil && !errors.Is(err, context.Canceled) {
				f.opts.Logger.Warn("feed read failed", zap.Error(err))
			}
			return err
		}
		var env feedEnvelope
		_ = json.Unmarshal(raw, &env)
		if strings.EqualFold(env.Type, "ping") {
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"pong"}`))
			continue
		}
		if !strings.EqualFold(env.Type, "tick") {
			continue
		}
		tick, err := parseTick(raw)
		if err != nil {
			if f.opts.Logger != nil {
				f.opts.Logger.Warn("feed tick parse failed", zap.Error(err))
			}
			continue
		}
		if f.opts.Logger != nil && !f.seenFirst {
			f.seenFirst = true
			f.opts.Logger.Info("feed first tick", zap.String("symbol", tick.Symbol))
		}
		if onTick != nil {
			onTick(tick.Symbol, tick, raw)
		}
	}
}

func parseTick(raw []byte) (market.Tick, error) {
	var w wireTick
	if err := json.Unmarshal(raw, &w); err != nil {
		return market.Tick{}, err
	}
	w.Symbol = strings.ToUpper(strings.TrimSpace(w.Symbol))
	if w.Symbol == "" {
		return market.Tick{}, fmt.Errorf("tick missing symbol")
	}
	tick := market.Tick{
		Symbol:    w.Symbol,
		Price:     w.Price,
		Bid:       w.Bid,
		Ask:       w.Ask,
		Size:      w.Size,
		Timestamp: w.Timestamp.UTC(),
	}
	if tick.Timestamp.IsZero() {
		tick.Timestamp = time.Now().UTC()
	}
	return tick, nil
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base / 2)))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
