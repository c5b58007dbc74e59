package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/gigchat/internal/domain"
)

func newRunningHub(t *testing.T, bufferSize int) *Hub {
	t.Helper()
	h := NewHub(bufferSize, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func newAuthedConn(t *testing.T, h *Hub, userID int64) *Connection {
	t.Helper()
	c := h.NewConnection(nil)
	require.True(t, c.Authenticate(userID, domain.RoleUser))
	h.Register(c)
	return c
}

func drain(c *Connection) []string {
	var out []string
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			out = append(out, string(data))
		default:
			return out
		}
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	h := newRunningHub(t, 8)
	c := newAuthedConn(t, h, 7)

	prev, already := h.Join(42, c)
	assert.Zero(t, prev)
	assert.False(t, already)

	prev, already = h.Join(42, c)
	assert.Zero(t, prev)
	assert.True(t, already)

	assert.Len(t, h.Members(42), 1)
	h.Broadcast(42, []byte("x"), "")
	assert.Equal(t, []string{"x"}, drain(c))
}

func TestJoinMovesBetweenConversations(t *testing.T) {
	h := newRunningHub(t, 8)
	c := newAuthedConn(t, h, 7)

	h.Join(1, c)
	prev, already := h.Join(2, c)
	assert.Equal(t, int64(1), prev)
	assert.False(t, already)
	assert.Equal(t, int64(2), c.ConversationID())
	assert.Empty(t, h.Members(1))
	assert.Equal(t, 1, h.GetConversationCount())
}

func TestLeave(t *testing.T) {
	h := newRunningHub(t, 8)
	c := newAuthedConn(t, h, 7)

	assert.False(t, h.Leave(99, c), "unknown conversation is a no-op")

	h.Join(42, c)
	assert.True(t, h.Leave(42, c))
	assert.Zero(t, c.ConversationID())
	assert.Zero(t, h.GetConversationCount(), "empty group is removed")
	assert.False(t, h.Leave(42, c))
}

func TestLiveUserIDsDistinctAndOpenOnly(t *testing.T) {
	h := newRunningHub(t, 8)
	a1 := newAuthedConn(t, h, 7)
	a2 := newAuthedConn(t, h, 7)
	b := newAuthedConn(t, h, 3)
	gone := newAuthedConn(t, h, 9)

	for _, c := range []*Connection{a1, a2, b, gone} {
		h.Join(42, c)
	}
	gone.shutdown()

	assert.Equal(t, []int64{3, 7}, h.LiveUserIDs(42))
	assert.Empty(t, h.LiveUserIDs(100))
}

func TestBroadcastExcludesAndSkipsClosed(t *testing.T) {
	h := newRunningHub(t, 8)
	sender := newAuthedConn(t, h, 1)
	peer := newAuthedConn(t, h, 2)
	closed := newAuthedConn(t, h, 3)
	for _, c := range []*Connection{sender, peer, closed} {
		h.Join(5, c)
	}
	closed.shutdown()

	n := h.Broadcast(5, []byte("typing"), sender.ID)
	assert.Equal(t, 1, n)
	assert.Empty(t, drain(sender))
	assert.Equal(t, []string{"typing"}, drain(peer))
}

func TestUnregisterRemovesMembershipAndClosesSend(t *testing.T) {
	h := newRunningHub(t, 8)
	c := newAuthedConn(t, h, 1)
	h.Join(5, c)

	h.Unregister(c)

	require.Eventually(t, func() bool { return !c.IsOpen() }, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.Members(5))
	assert.Equal(t, 0, h.GetConnectionCount())
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.ErrorIs(t, h.SendToConnection(c, []byte("late")), ErrConnectionClosed)
}

func TestBroadcastDropsSlowConsumer(t *testing.T) {
	h := newRunningHub(t, 1)
	slow := newAuthedConn(t, h, 1)
	h.Join(5, slow)

	h.Broadcast(5, []byte("one"), "")
	h.Broadcast(5, []byte("two"), "")

	require.Eventually(t, func() bool { return !slow.IsOpen() }, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.Members(5))

	// The dropped connection still knows where it was until detached.
	assert.Equal(t, int64(5), h.Detach(slow))
	assert.Zero(t, h.Detach(slow))
}

func TestDetach(t *testing.T) {
	h := newRunningHub(t, 8)
	c := newAuthedConn(t, h, 1)
	other := newAuthedConn(t, h, 2)

	assert.Zero(t, h.Detach(c))

	h.Join(5, c)
	h.Join(5, other)
	assert.Equal(t, int64(5), h.Detach(c))
	assert.Zero(t, c.ConversationID())
	assert.Equal(t, []*Connection{other}, h.Members(5))
	assert.Zero(t, h.Detach(c))
}

func TestAuthenticateOnlyOnce(t *testing.T) {
	h := NewHub(1, zap.NewNop())
	c := h.NewConnection(nil)

	_, _, ok := c.Identity()
	assert.False(t, ok)

	assert.True(t, c.Authenticate(7, domain.RoleUser))
	assert.False(t, c.Authenticate(8, domain.RoleAdmin))

	id, role, ok := c.Identity()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, domain.RoleUser, role)
}
