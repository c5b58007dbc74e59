package support

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xiaot623/gigchat/internal/domain"
)

// ErrInvalidRequest is returned for support requests that fail validation.
var ErrInvalidRequest = errors.New("invalid support request")

// Request is one visitor message on the support surface.
type Request struct {
	Message string `json:"message" validate:"required,max=4000"`
	History []Turn `json:"history,omitempty" validate:"max=50,dive"`
	UserID  int64  `json:"userId,omitempty" validate:"gte=0"`
}

// Response is the answer to a Request.
type Response struct {
	Reply          string `json:"message"`
	Source         Source `json:"source"`
	NeedsHuman     bool   `json:"needsHuman"`
	ConversationID int64  `json:"conversationId,omitempty"`
}

// HandoffStore is the storage the handoff needs.
type HandoffStore interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	CreateConversation(ctx context.Context, conversation *domain.Conversation) error
}

// Service answers support requests and opens a pending conversation when a
// known user asks for a person.
type Service struct {
	responder *Responder
	store     HandoffStore
	validate  *validator.Validate
	log       *zap.Logger
}

// NewService creates a support service. store may be nil, which disables the
// handoff conversation.
func NewService(responder *Responder, store HandoffStore, log *zap.Logger) *Service {
	return &Service{
		responder: responder,
		store:     store,
		validate:  validator.New(),
		log:       log,
	}
}

// Handle answers one request.
func (s *Service) Handle(ctx context.Context, req Request) (*Response, error) {
	if err := s.validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if !DetectHumanRequest(req.Message) {
		reply := s.responder.Reply(ctx, req.Message, req.History)
		return &Response{Reply: reply.Text, Source: reply.Source}, nil
	}

	resp := &Response{Reply: handoffReply, Source: SourceHandoff, NeedsHuman: true}
	if conversationID, err := s.openHandoff(ctx, req); err != nil {
		s.log.Error("handoff conversation failed", zap.Int64("user_id", req.UserID), zap.Error(err))
	} else {
		resp.ConversationID = conversationID
	}
	return resp, nil
}

// openHandoff creates a pending, unassigned conversation for a known user.
// Anonymous visitors get 0.
func (s *Service) openHandoff(ctx context.Context, req Request) (int64, error) {
	if s.store == nil || req.UserID == 0 {
		return 0, nil
	}

	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return 0, nil
	}

	conv := &domain.Conversation{
		UserID:  user.ID,
		Status:  domain.ConversationStatusPending,
		Subject: subjectFrom(req.Message),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return 0, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.log.Info("support handoff requested", zap.Int64("user_id", user.ID), zap.Int64("conversation_id", conv.ID))
	return conv.ID, nil
}

func subjectFrom(message string) string {
	const max = 80
	runes := []rune(message)
	if len(runes) <= max {
		return message
	}
	return string(runes[:max]) + "..."
}
