// Package hub provides connection management for WebSocket clients and the
// per-conversation broadcast groups.
package hub

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Conversations maps conversation ID to the set of member connections.
	// Keying by connection ID makes a repeated join idempotent.
	conversations map[int64]map[string]*Connection

	// Channels for registration/unregistration
	register   chan *Connection
	unregister chan *Connection
	quit       chan struct{}
	stopOnce   sync.Once

	bufferSize int
	log        *zap.Logger
	mu         sync.RWMutex
}

// NewHub creates a new Hub. bufferSize is the per-connection send buffer.
func NewHub(bufferSize int, log *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Hub{
		connections:   make(map[string]*Connection),
		conversations: make(map[int64]map[string]*Connection),
		register:      make(chan *Connection),
		unregister:    make(chan *Connection),
		quit:          make(chan struct{}),
		bufferSize:    bufferSize,
		log:           log,
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.quit) })

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			h.log.Debug("connection registered", zap.String("conn_id", conn.ID))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
			}
			// The conversation ID stays on conn so Detach can still report it.
			if convID := conn.ConversationID(); convID != 0 {
				h.removeMemberLocked(convID, conn)
			}
			h.mu.Unlock()
			conn.shutdown()
			h.log.Debug("connection unregistered", zap.String("conn_id", conn.ID))
		}
	}
}

// NewConnection creates a new connection. ws may be nil for connections that
// are driven without a socket.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, h.bufferSize),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.quit:
	}
}

// Unregister hands a connection to the hub loop, which drops it from its
// conversation group and closes its send channel. It returns as soon as the
// loop has received it, not after removal.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.quit:
		conn.shutdown()
	}
}

// Join subscribes conn to the conversation's broadcast group, moving it out of
// any previous group. previous is the conversation it left (0 if none) and
// already reports whether conn was a member of conversationID before the call.
func (h *Hub) Join(conversationID int64, conn *Connection) (previous int64, already bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	previous = conn.ConversationID()
	if previous == conversationID {
		previous = 0
	} else if previous != 0 {
		h.removeMemberLocked(previous, conn)
	}

	members := h.conversations[conversationID]
	if members == nil {
		members = make(map[string]*Connection)
		h.conversations[conversationID] = members
	}
	_, already = members[conn.ID]
	members[conn.ID] = conn
	conn.setConversation(conversationID)
	return previous, already
}

// Leave removes conn from the conversation's group. It reports whether conn was
// a member. Unknown conversations are a no-op.
func (h *Hub) Leave(conversationID int64, conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := h.removeMemberLocked(conversationID, conn)
	if removed && conn.ConversationID() == conversationID {
		conn.setConversation(0)
	}
	return removed
}

// Detach clears conn's conversation and removes it from that group if it is
// still a member. It returns the conversation conn was in, or 0 if none. Only
// the first call after a join sees a non-zero ID, including when the hub loop
// already dropped conn from the group.
func (h *Hub) Detach(conn *Connection) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	conversationID := conn.ConversationID()
	if conversationID != 0 {
		h.removeMemberLocked(conversationID, conn)
		conn.setConversation(0)
	}
	return conversationID
}

func (h *Hub) removeMemberLocked(conversationID int64, conn *Connection) bool {
	members, ok := h.conversations[conversationID]
	if !ok {
		return false
	}
	if _, ok := members[conn.ID]; !ok {
		return false
	}
	delete(members, conn.ID)
	if len(members) == 0 {
		delete(h.conversations, conversationID)
	}
	return true
}

// LiveUserIDs returns the distinct user IDs subscribed to a conversation whose
// connection is still open, in ascending order.
func (h *Hub) LiveUserIDs(conversationID int64) []int64 {
	h.mu.RLock()
	members := lo.Values(h.conversations[conversationID])
	h.mu.RUnlock()

	ids := lo.Uniq(lo.FilterMap(members, func(c *Connection, _ int) (int64, bool) {
		userID, _, ok := c.Identity()
		return userID, ok && c.IsOpen()
	}))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Members returns the connections currently subscribed to a conversation.
func (h *Hub) Members(conversationID int64) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Values(h.conversations[conversationID])
}

// Broadcast delivers data to every open member of a conversation except the
// connection with ID excludeID (empty excludes nobody). Delivery into each
// member's buffer happens before Broadcast returns, so callers that serialize
// their broadcasts get the same order on every connection.
func (h *Hub) Broadcast(conversationID int64, data []byte, excludeID string) int {
	h.mu.RLock()
	members := lo.Values(h.conversations[conversationID])
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range members {
		if conn.ID == excludeID || !conn.IsOpen() {
			continue
		}
		switch err := conn.enqueue(data); err {
		case nil:
			delivered++
		case ErrBufferFull:
			// Slow consumer, drop it
			h.log.Warn("connection buffer full, closing", zap.String("conn_id", conn.ID), zap.Int64("conversation_id", conversationID))
			go h.Unregister(conn)
		}
	}
	return delivered
}

// BroadcastJSON sends a JSON message to a conversation. See Broadcast.
func (h *Hub) BroadcastJSON(conversationID int64, v interface{}, excludeID string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(conversationID, data, excludeID)
	return nil
}

// SendToConnection sends a message to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	return conn.enqueue(data)
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// GetConversationCount returns the number of conversations with at least one member.
func (h *Hub) GetConversationCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conversations)
}
