// Package ws provides WebSocket server functionality for client connections.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xiaot623/gigchat/internal/config"
	"github.com/xiaot623/gigchat/internal/hub"
	"github.com/xiaot623/gigchat/internal/protocol"
	"github.com/xiaot623/gigchat/internal/service"
	"github.com/xiaot623/gigchat/internal/support"
)

// handlerTimeout bounds the work done for a single frame.
const handlerTimeout = 30 * time.Second

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	relay    *service.Relay
	support  *support.Service
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, relay *service.Relay, sup *support.Service, log *zap.Logger) *Server {
	origins := cfg.Origins()
	return &Server{
		cfg:     cfg,
		hub:     relay.Hub(),
		relay:   relay,
		support: sup,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || lo.Contains(origins, origin)
			},
		},
	}
}

// Register mounts the socket endpoints.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/ws", s.HandleWebSocket)
	e.GET("/ws/support", s.HandleSupport)
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("failed to upgrade WebSocket", zap.Error(err))
		return nil
	}

	// Create and register connection
	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	// Set up connection parameters
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	s.log.Debug("connection opened", zap.String("conn_id", conn.ID), zap.String("remote", c.RealIP()))

	// Start reader and writer goroutines
	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection. Frames are handled
// one at a time, in arrival order.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.relay.Disconnect(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("WebSocket error", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Debug("failed to write message", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses one frame and runs it through the relay. Failures,
// including panics, are reported to this connection only.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panic", zap.String("conn_id", conn.ID), zap.Any("panic", r), zap.Stack("stack"))
			s.sendError(conn, protocol.ReasonInternal)
		}
	}()

	msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		s.sendError(conn, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := s.relay.Handle(ctx, conn, msg); err != nil {
		var relayErr *service.Error
		if !errors.As(err, &relayErr) {
			s.log.Error("unexpected handler error", zap.String("conn_id", conn.ID), zap.String("type", msg.Type), zap.Error(err))
		}
		s.sendError(conn, service.ReasonOf(err))
	}
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, reason string) {
	if err := s.hub.SendJSONToConnection(conn, protocol.NewError(reason)); err != nil {
		s.log.Debug("failed to send error", zap.String("conn_id", conn.ID), zap.Error(err))
	}
}
