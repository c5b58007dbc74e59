package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gigchat/internal/domain"
	"github.com/xiaot623/gigchat/internal/protocol"
	"github.com/xiaot623/gigchat/internal/service"
)

// NewInternalServer serves health, history and presence for operators and
// other backends. It must not be exposed publicly.
func NewInternalServer(relay *service.Relay, log *zap.Logger) *Server {
	s := newServer(log)
	h := &internalHandler{relay: relay, log: log}

	s.echo.GET("/health", h.handleHealth)

	g := s.echo.Group("/internal")
	g.POST("/conversations", h.handleCreateConversation)
	g.GET("/conversations/:id/messages", h.handleMessages)
	g.GET("/conversations/:id/presence", h.handlePresence)

	return s
}

type internalHandler struct {
	relay *service.Relay
	log   *zap.Logger
}

// handleHealth handles health check requests.
func (h *internalHandler) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"connections":   h.relay.Hub().GetConnectionCount(),
		"conversations": h.relay.Hub().GetConversationCount(),
	})
}

// CreateConversationRequest is the body of POST /internal/conversations.
type CreateConversationRequest struct {
	UserID  int64                     `json:"userId" validate:"required,gt=0"`
	AdminID int64                     `json:"adminId" validate:"gte=0"`
	Status  domain.ConversationStatus `json:"status" validate:"omitempty,oneof=open pending closed"`
	Subject string                    `json:"subject" validate:"max=200"`
}

func (h *internalHandler) handleCreateConversation(c echo.Context) error {
	var req CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	conv := &domain.Conversation{
		UserID:  req.UserID,
		AdminID: req.AdminID,
		Status:  req.Status,
		Subject: req.Subject,
	}
	if err := h.relay.CreateConversation(c.Request().Context(), conv); err != nil {
		var relayErr *service.Error
		if errors.As(err, &relayErr) {
			return errorJSON(c, http.StatusNotFound, relayErr.Reason)
		}
		h.log.Error("create conversation failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "failed to create conversation")
	}

	return c.JSON(http.StatusCreated, conv)
}

// MessagesResponse is the body of GET /internal/conversations/:id/messages.
type MessagesResponse struct {
	ConversationID int64                     `json:"conversationId"`
	Messages       []protocol.HistoryMessage `json:"messages"`
}

func (h *internalHandler) handleMessages(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid conversation id")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return errorJSON(c, http.StatusBadRequest, "invalid limit")
		}
	}

	messages, err := h.relay.History(c.Request().Context(), id, limit)
	if err != nil {
		h.log.Error("history lookup failed", zap.Int64("conversation_id", id), zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "failed to get messages")
	}

	return c.JSON(http.StatusOK, MessagesResponse{ConversationID: id, Messages: messages})
}

// PresenceResponse is the body of GET /internal/conversations/:id/presence.
type PresenceResponse struct {
	ConversationID int64   `json:"conversationId"`
	UserIDs        []int64 `json:"userIds"`
}

func (h *internalHandler) handlePresence(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid conversation id")
	}

	ids := h.relay.Presence(id)
	if ids == nil {
		ids = []int64{}
	}
	return c.JSON(http.StatusOK, PresenceResponse{ConversationID: id, UserIDs: ids})
}

func conversationID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
