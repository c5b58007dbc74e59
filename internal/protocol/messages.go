// Package protocol defines the WebSocket message protocol between browsers and the relay.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xiaot623/gigchat/internal/domain"
)

// Message types from client to relay
const (
	TypeAuth             = "auth"
	TypeJoinConversation = "join_conversation"
	TypeMessage          = "message"
	TypeTyping           = "typing"
	TypeStopTyping       = "stop_typing"
)

// Message types from relay to client
const (
	TypeAuthSuccess        = "auth_success"
	TypeConversationJoined = "conversation_joined"
	TypeUserJoined         = "user_joined"
	TypeUserLeft           = "user_left"
	TypeReply              = "reply"
	TypeError              = "error"
	// TypeMessage, TypeTyping and TypeStopTyping are relayed under the same name.
)

// Client-visible error reasons.
const (
	ReasonInvalidFormat       = "Invalid message format"
	ReasonUserIDRequired      = "User ID required"
	ReasonUserNotFound        = "User not found"
	ReasonAuthFailed          = "Authentication failed"
	ReasonAlreadyAuthed       = "Already authenticated"
	ReasonJoinPrecondition    = "Authentication and conversation ID required"
	ReasonConversationMissing = "Conversation not found"
	ReasonAccessDenied        = "Access denied"
	ReasonJoinFailed          = "Failed to join conversation"
	ReasonInvalidMessage      = "Invalid message data"
	ReasonMessageTooLong      = "Message too long"
	ReasonSendFailed          = "Failed to send message"
	ReasonInternal            = "Internal server error"
)

// ClientMessage is the union of all client frames. Unknown fields are ignored.
// UserRole is accepted for compatibility but never trusted.
type ClientMessage struct {
	Type           string `json:"type" validate:"required,oneof=auth join_conversation message typing stop_typing"`
	UserID         int64  `json:"userId,omitempty"`
	UserRole       string `json:"userRole,omitempty"`
	ConversationID int64  `json:"conversationId,omitempty"`
	Message        string `json:"message,omitempty"`
}

var validate = validator.New()

// ParseClientMessage decodes a frame and checks its type. The returned error
// text is safe to show to the client.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%s", ReasonInvalidFormat)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%s", ReasonInvalidFormat)
	}
	if err := validate.Struct(&msg); err != nil {
		return nil, fmt.Errorf("Unknown message type: %s", msg.Type)
	}
	return &msg, nil
}

// BaseMessage contains common fields for all relay frames.
type BaseMessage struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
}

// NewBase stamps a frame of the given type with the current time.
func NewBase(msgType string) BaseMessage {
	return BaseMessage{Type: msgType, Ts: time.Now().UnixMilli()}
}

// PublicUser is the minimal identity returned on successful auth.
type PublicUser struct {
	ID   int64       `json:"id"`
	Name string      `json:"name"`
	Role domain.Role `json:"role"`
}

// AuthSuccessMessage acknowledges a successful handshake.
type AuthSuccessMessage struct {
	BaseMessage
	User PublicUser `json:"user"`
}

// HistoryMessage is one persisted message as sent in conversation history.
type HistoryMessage struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversationId"`
	Sender         string      `json:"sender"`
	SenderID       int64       `json:"senderId"`
	SenderRole     domain.Role `json:"senderRole"`
	Message        string      `json:"message"`
	Timestamp      time.Time   `json:"timestamp"`
}

// NewHistoryMessage converts a stored message. Unparseable sender tags keep the
// raw tag with zero sender fields.
func NewHistoryMessage(m domain.ChatMessage) HistoryMessage {
	role, id, _ := domain.ParseSenderTag(m.Sender)
	return HistoryMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         m.Sender,
		SenderID:       id,
		SenderRole:     role,
		Message:        m.Content,
		Timestamp:      m.CreatedAt,
	}
}

// ConversationJoinedMessage acknowledges a join and carries the ordered history.
type ConversationJoinedMessage struct {
	BaseMessage
	ConversationID int64            `json:"conversationId"`
	Messages       []HistoryMessage `json:"messages"`
}

// ChatEvent is a relayed chat message.
type ChatEvent struct {
	BaseMessage
	HistoryMessage
}

// PresenceEvent covers user_joined, user_left, typing and stop_typing.
type PresenceEvent struct {
	BaseMessage
	ConversationID int64       `json:"conversationId"`
	UserID         int64       `json:"userId"`
	UserRole       domain.Role `json:"userRole"`
}

// ErrorMessage is sent by the relay when a request fails.
type ErrorMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// NewError builds an error frame.
func NewError(reason string) ErrorMessage {
	return ErrorMessage{BaseMessage: NewBase(TypeError), Message: reason}
}
