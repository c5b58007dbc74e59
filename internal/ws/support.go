package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gigchat/internal/protocol"
	"github.com/xiaot623/gigchat/internal/support"
)

// supportFrame is a visitor message on the support socket.
type supportFrame struct {
	Type string `json:"type"`
	support.Request
}

// ReplyMessage answers a support frame.
type ReplyMessage struct {
	protocol.BaseMessage
	support.Response
}

// HandleSupport serves the stateless support socket. It needs no handshake;
// every message frame gets exactly one reply or error frame.
func (s *Server) HandleSupport(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("failed to upgrade support WebSocket", zap.Error(err))
		return nil
	}
	go s.supportLoop(ws)
	return nil
}

func (s *Server) supportLoop(ws *websocket.Conn) {
	defer ws.Close()

	ws.SetReadLimit(s.cfg.MaxMessageSize)
	for {
		ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("support socket closed", zap.Error(err))
			}
			return
		}

		out := s.handleSupportFrame(data)
		payload, err := json.Marshal(out)
		if err != nil {
			s.log.Error("failed to marshal support reply", zap.Error(err))
			return
		}
		ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (s *Server) handleSupportFrame(data []byte) (out interface{}) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("support handler panic", zap.Any("panic", r), zap.Stack("stack"))
			out = protocol.NewError(protocol.ReasonInternal)
		}
	}()

	var frame supportFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		return protocol.NewError(protocol.ReasonInvalidFormat)
	}
	if frame.Type != protocol.TypeMessage {
		return protocol.NewError("Unknown message type: " + frame.Type)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	resp, err := s.support.Handle(ctx, frame.Request)
	if err != nil {
		if errors.Is(err, support.ErrInvalidRequest) {
			return protocol.NewError(protocol.ReasonInvalidMessage)
		}
		s.log.Error("support request failed", zap.Error(err))
		return protocol.NewError(protocol.ReasonInternal)
	}

	return ReplyMessage{BaseMessage: protocol.NewBase(protocol.TypeReply), Response: *resp}
}
