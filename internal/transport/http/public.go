package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gigchat/internal/support"
)

// SocketMounter registers WebSocket routes on a router.
type SocketMounter interface {
	Register(e *echo.Echo)
}

// NewPublicServer serves the browser-facing sockets and the support API.
func NewPublicServer(sockets SocketMounter, sup *support.Service, log *zap.Logger) *Server {
	s := newServer(log)
	if sockets != nil {
		sockets.Register(s.echo)
	}

	h := &publicHandler{support: sup, log: log}
	s.echo.POST("/v1/support/chat", h.handleSupportChat)

	return s
}

type publicHandler struct {
	support *support.Service
	log     *zap.Logger
}

// handleSupportChat answers one support message over plain HTTP.
func (h *publicHandler) handleSupportChat(c echo.Context) error {
	var req support.Request
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	resp, err := h.support.Handle(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, support.ErrInvalidRequest) {
			return errorJSON(c, http.StatusBadRequest, err.Error())
		}
		h.log.Error("support chat failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, resp)
}
