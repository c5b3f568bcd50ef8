// Package ws is the downstream push boundary: each viewer connection
// speaks a small subscribe/unsubscribe protocol and receives
// {symbol, tick} events for everything it subscribed to.
package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"marketgw/internal/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Server struct {
	Mux        *hub.Multiplexer
	Logger     *zap.Logger
	SendBuffer int
}

func (s *Server) Register(r *gin.Engine) {
	r.GET("/ws", s.handle)
}

func (s *Server) handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("websocket upgrade failed", zap.Error(err))
		}
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan []byte, s.sendBuffer()),
		quit:   make(chan struct{}),
	}
	if s.Logger != nil {
		s.Logger.Info("viewer connected", zap.String("conn", client.id))
	}

	go client.writePump()
	go client.readPump()
}

func (s *Server) sendBuffer() int {
	if s.SendBuffer <= 0 {
		return 64
	}
	return s.SendBuffer
}
