package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gigchat/internal/domain"
)

var (
	// ErrBufferFull is returned when the send buffer is full.
	ErrBufferFull = errors.New("send buffer full")
	// ErrConnectionClosed is returned when sending to a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection represents a single WebSocket connection.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	writeMu sync.Mutex // serializes socket writes

	mu             sync.RWMutex // guards the fields below and Send
	userID         int64
	role           domain.Role
	conversationID int64
	closed         bool
}

// Identity returns the authenticated user. ok is false before the handshake.
func (c *Connection) Identity() (userID int64, role domain.Role, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.role, c.userID != 0
}

// Authenticate binds the connection to a user. The identity can be set only
// once; later calls return false and leave it unchanged.
func (c *Connection) Authenticate(userID int64, role domain.Role) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != 0 {
		return false
	}
	c.userID = userID
	c.role = role
	return true
}

// ConversationID returns the joined conversation, 0 if none.
func (c *Connection) ConversationID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conversationID
}

func (c *Connection) setConversation(id int64) {
	c.mu.Lock()
	c.conversationID = id
	c.mu.Unlock()
}

// IsOpen reports whether the connection can still receive messages.
func (c *Connection) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *Connection) enqueue(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// shutdown marks the connection closed and closes its send channel once.
func (c *Connection) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	if c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}
