// Package service implements the conversation relay: the auth handshake,
// conversation membership, message relay and presence signals.
package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xiaot623/gigchat/internal/domain"
	"github.com/xiaot623/gigchat/internal/hub"
	"github.com/xiaot623/gigchat/internal/policy"
	"github.com/xiaot623/gigchat/internal/protocol"
	"github.com/xiaot623/gigchat/internal/store"
)

// Options bounds what the relay sends and accepts.
type Options struct {
	HistoryLimit    int
	MaxMessageChars int
}

// Relay owns one connection registry and routes client frames through it.
type Relay struct {
	store  store.Store
	hub    *hub.Hub
	policy *policy.Engine
	log    *zap.Logger
	opts   Options
	locks  *convLocks
}

// NewRelay creates a relay. Zero options fall back to 200 messages of history
// and 4000 characters per message.
func NewRelay(st store.Store, h *hub.Hub, pe *policy.Engine, log *zap.Logger, opts Options) *Relay {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 200
	}
	if opts.MaxMessageChars <= 0 {
		opts.MaxMessageChars = 4000
	}
	return &Relay{
		store:  st,
		hub:    h,
		policy: pe,
		log:    log,
		opts:   opts,
		locks:  newConvLocks(),
	}
}

// Hub returns the registry the relay routes through.
func (r *Relay) Hub() *hub.Hub {
	return r.hub
}

// Handle dispatches one parsed client frame.
func (r *Relay) Handle(ctx context.Context, conn *hub.Connection, msg *protocol.ClientMessage) error {
	switch msg.Type {
	case protocol.TypeAuth:
		return r.Authenticate(ctx, conn, msg.UserID)
	case protocol.TypeJoinConversation:
		return r.JoinConversation(ctx, conn, msg.ConversationID)
	case protocol.TypeMessage:
		return r.SendMessage(ctx, conn, msg.Message)
	case protocol.TypeTyping:
		r.Typing(conn, true)
		return nil
	case protocol.TypeStopTyping:
		r.Typing(conn, false)
		return nil
	default:
		return fail(fmt.Sprintf("Unknown message type: %s", msg.Type), nil)
	}
}

// Authenticate binds conn to a stored user. The role always comes from the
// store. Repeating the handshake with the same user re-sends auth_success.
func (r *Relay) Authenticate(ctx context.Context, conn *hub.Connection, userID int64) error {
	if userID <= 0 {
		return fail(protocol.ReasonUserIDRequired, nil)
	}
	if current, _, ok := conn.Identity(); ok && current != userID {
		return fail(protocol.ReasonAlreadyAuthed, nil)
	}

	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		r.log.Error("user lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return fail(protocol.ReasonAuthFailed, err)
	}
	if user == nil {
		return fail(protocol.ReasonUserNotFound, nil)
	}

	if !conn.Authenticate(user.ID, user.Role) {
		if current, _, _ := conn.Identity(); current != user.ID {
			return fail(protocol.ReasonAlreadyAuthed, nil)
		}
	}

	r.log.Info("connection authenticated",
		zap.String("conn_id", conn.ID),
		zap.Int64("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)

	return r.hub.SendJSONToConnection(conn, protocol.AuthSuccessMessage{
		BaseMessage: protocol.NewBase(protocol.TypeAuthSuccess),
		User:        protocol.PublicUser{ID: user.ID, Name: user.Name, Role: user.Role},
	})
}

// JoinConversation authorizes conn for a conversation, subscribes it and sends
// the history. The joiner receives its history before any live message.
func (r *Relay) JoinConversation(ctx context.Context, conn *hub.Connection, conversationID int64) error {
	userID, role, ok := conn.Identity()
	if !ok || conversationID <= 0 {
		return fail(protocol.ReasonJoinPrecondition, nil)
	}

	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		r.log.Error("conversation lookup failed", zap.Int64("conversation_id", conversationID), zap.Error(err))
		return fail(protocol.ReasonJoinFailed, err)
	}
	if conv == nil {
		return fail(protocol.ReasonConversationMissing, nil)
	}

	allowed, err := r.policy.CanJoin(ctx, userID, role, conv)
	if err != nil {
		r.log.Error("policy evaluation failed", zap.Int64("conversation_id", conversationID), zap.Error(err))
		return fail(protocol.ReasonJoinFailed, err)
	}
	if !allowed {
		r.log.Info("join denied", zap.Int64("user_id", userID), zap.Int64("conversation_id", conversationID))
		return fail(protocol.ReasonAccessDenied, nil)
	}

	unlock := r.locks.lock(conversationID)
	defer unlock()

	history, err := r.store.GetConversationMessages(ctx, conversationID, r.opts.HistoryLimit)
	if err != nil {
		r.log.Error("history lookup failed", zap.Int64("conversation_id", conversationID), zap.Error(err))
		return fail(protocol.ReasonJoinFailed, err)
	}

	previous, already := r.hub.Join(conversationID, conn)

	messages := make([]protocol.HistoryMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, protocol.NewHistoryMessage(m))
	}
	if err := r.hub.SendJSONToConnection(conn, protocol.ConversationJoinedMessage{
		BaseMessage:    protocol.NewBase(protocol.TypeConversationJoined),
		ConversationID: conversationID,
		Messages:       messages,
	}); err != nil {
		r.hub.Leave(conversationID, conn)
		if previous != 0 {
			r.broadcastPresence(previous, protocol.TypeUserLeft, userID, role, conn.ID)
		}
		return fail(protocol.ReasonJoinFailed, err)
	}

	if previous != 0 {
		r.broadcastPresence(previous, protocol.TypeUserLeft, userID, role, conn.ID)
	}
	if !already {
		r.broadcastPresence(conversationID, protocol.TypeUserJoined, userID, role, conn.ID)
	}

	r.log.Info("conversation joined",
		zap.String("conn_id", conn.ID),
		zap.Int64("user_id", userID),
		zap.Int64("conversation_id", conversationID),
		zap.Int("history", len(messages)),
	)
	return nil
}

// SendMessage persists a chat message and broadcasts it to every member of the
// sender's conversation, the sender included. Nothing is broadcast when
// persistence fails.
func (r *Relay) SendMessage(ctx context.Context, conn *hub.Connection, text string) error {
	userID, role, ok := conn.Identity()
	conversationID := conn.ConversationID()
	if !ok || conversationID == 0 || strings.TrimSpace(text) == "" {
		return fail(protocol.ReasonInvalidMessage, nil)
	}
	if utf8.RuneCountInString(text) > r.opts.MaxMessageChars {
		return fail(protocol.ReasonMessageTooLong, nil)
	}

	unlock := r.locks.lock(conversationID)
	defer unlock()

	msg := &domain.ChatMessage{
		ConversationID: conversationID,
		Sender:         domain.SenderTag(role, userID),
		Content:        text,
	}
	if err := r.store.CreateChatMessage(ctx, msg); err != nil {
		r.log.Error("persist message failed", zap.Int64("conversation_id", conversationID), zap.Error(err))
		return fail(protocol.ReasonSendFailed, err)
	}

	if err := r.hub.BroadcastJSON(conversationID, protocol.ChatEvent{
		BaseMessage:    protocol.NewBase(protocol.TypeMessage),
		HistoryMessage: protocol.NewHistoryMessage(*msg),
	}, ""); err != nil {
		r.log.Error("broadcast message failed", zap.Int64("message_id", msg.ID), zap.Error(err))
	}
	return nil
}

// Typing relays a typing or stop_typing signal to the other members. It is a
// no-op for connections that have not joined a conversation.
func (r *Relay) Typing(conn *hub.Connection, started bool) {
	userID, role, ok := conn.Identity()
	conversationID := conn.ConversationID()
	if !ok || conversationID == 0 {
		return
	}

	msgType := protocol.TypeStopTyping
	if started {
		msgType = protocol.TypeTyping
	}
	r.broadcastPresence(conversationID, msgType, userID, role, conn.ID)
}

// Disconnect removes conn from its conversation, tells the remaining members
// once, and unregisters it from the hub.
func (r *Relay) Disconnect(conn *hub.Connection) {
	if conversationID := r.hub.Detach(conn); conversationID != 0 {
		userID, role, _ := conn.Identity()
		r.broadcastPresence(conversationID, protocol.TypeUserLeft, userID, role, conn.ID)
	}
	r.hub.Unregister(conn)
}

// History returns the latest limit messages of a conversation, oldest first.
func (r *Relay) History(ctx context.Context, conversationID int64, limit int) ([]protocol.HistoryMessage, error) {
	if limit <= 0 || limit > r.opts.HistoryLimit {
		limit = r.opts.HistoryLimit
	}
	history, err := r.store.GetConversationMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	out := make([]protocol.HistoryMessage, 0, len(history))
	for _, m := range history {
		out = append(out, protocol.NewHistoryMessage(m))
	}
	return out, nil
}

// Presence returns the distinct users with a live connection in a conversation.
func (r *Relay) Presence(conversationID int64) []int64 {
	return r.hub.LiveUserIDs(conversationID)
}

// CreateConversation opens a conversation for an existing user.
func (r *Relay) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	owner, err := r.store.GetUser(ctx, conv.UserID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if owner == nil {
		return fail(protocol.ReasonUserNotFound, nil)
	}
	if conv.Status == "" {
		conv.Status = domain.ConversationStatusOpen
	}
	if err := r.store.CreateConversation(ctx, conv); err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (r *Relay) broadcastPresence(conversationID int64, msgType string, userID int64, role domain.Role, excludeID string) {
	err := r.hub.BroadcastJSON(conversationID, protocol.PresenceEvent{
		BaseMessage:    protocol.NewBase(msgType),
		ConversationID: conversationID,
		UserID:         userID,
		UserRole:       role,
	}, excludeID)
	if err != nil {
		r.log.Warn("presence broadcast failed", zap.String("type", msgType), zap.Error(err))
	}
}
