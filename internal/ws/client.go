package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"marketgw/internal/market"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

type command struct {
	Command string `json:"command"`
	Symbol  string `json:"symbol"`
}

type ack struct {
	Symbol string `json:"symbol"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type tickEvent struct {
	Type   string      `json:"type"`
	Symbol string      `json:"symbol"`
	Tick   market.Tick `json:"tick"`
}

// Client is one viewer connection. writePump owns all writes to the
// underlying socket; everything else enqueues on the send channel.
type Client struct {
	id     string
	server *Server
	conn   *websocket.Conn

	send     chan []byte
	quit     chan struct{}
	quitOnce sync.Once
	closed   atomic.Bool
}

func (c *Client) readPump() {
	defer func() {
		c.closed.Store(true)
		c.server.Mux.OnConnectionClosed(context.Background(), c.id)
		c.shutdown()
		c.conn.Close()
		if c.server.Logger != nil {
			c.server.Logger.Info("viewer disconnected", zap.String("conn", c.id))
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.server.Logger != nil {
				c.server.Logger.Warn("viewer read error", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.enqueueJSON(ack{Status: "error", Detail: "invalid message"})
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd command) {
	switch cmd.Command {
	case "subscribe":
		err := c.server.Mux.Subscribe(context.Background(), c.id, cmd.Symbol, c.deliver)
		if err != nil {
			c.enqueueJSON(ack{Symbol: cmd.Symbol, Status: "error", Detail: err.Error()})
			return
		}
		c.enqueueJSON(ack{Symbol: cmd.Symbol, Status: "confirmed"})
	case "unsubscribe":
		c.server.Mux.Unsubscribe(context.Background(), c.id, cmd.Symbol)
		c.enqueueJSON(ack{Symbol: cmd.Symbol, Status: "confirmed"})
	default:
		c.enqueueJSON(ack{Symbol: cmd.Symbol, Status: "error", Detail: "unknown command"})
	}
}

// deliver is handed to the multiplexer as this connection's sink. A
// full send buffer reports an error so the hub evicts the slow viewer
// instead of blocking the fan-out.
func (c *Client) deliver(tick market.Tick) error {
	if c.closed.Load() {
		return market.Ef(market.KindInternal, "ws.deliver", "connection closed")
	}
	payload, err := json.Marshal(tickEvent{Type: "tick", Symbol: tick.Symbol, Tick: tick})
	if err != nil {
		return err
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return market.Ef(market.KindInternal, "ws.deliver", "send buffer full")
	}
}

func (c *Client) enqueueJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) shutdown() {
	c.quitOnce.Do(func() { close(c.quit) })
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
