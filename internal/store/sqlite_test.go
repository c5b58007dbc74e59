package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gigchat/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreUsers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := &domain.User{Name: "Dana", Email: "dana@example.com", Role: domain.RoleAdmin}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected user ID to be assigned")
	}

	got, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil || got.Name != "Dana" || got.Role != domain.RoleAdmin {
		t.Fatalf("unexpected user: %+v", got)
	}

	missing, err := store.GetUser(ctx, 999)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown user, got %+v", missing)
	}
}

func TestSQLiteStoreConversations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	owner := &domain.User{Name: "Owner"}
	require.NoError(t, store.CreateUser(ctx, owner))
	assert.Equal(t, domain.RoleUser, owner.Role)

	unassigned := &domain.Conversation{UserID: owner.ID}
	require.NoError(t, store.CreateConversation(ctx, unassigned))

	got, err := store.GetConversation(ctx, unassigned.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, owner.ID, got.UserID)
	assert.False(t, got.HasAdmin())
	assert.Equal(t, domain.ConversationStatusOpen, got.Status)

	assigned := &domain.Conversation{UserID: owner.ID, AdminID: 42, Status: domain.ConversationStatusPending, Subject: "Venue"}
	require.NoError(t, store.CreateConversation(ctx, assigned))
	got, err = store.GetConversation(ctx, assigned.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.AdminID)
	assert.Equal(t, "Venue", got.Subject)
	assert.Equal(t, domain.ConversationStatusPending, got.Status)

	missing, err := store.GetConversation(ctx, 12345)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStoreMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	owner := &domain.User{Name: "Owner"}
	require.NoError(t, store.CreateUser(ctx, owner))
	conv := &domain.Conversation{UserID: owner.ID}
	require.NoError(t, store.CreateConversation(ctx, conv))

	contents := []string{"first", "second", "third"}
	for _, c := range contents {
		msg := &domain.ChatMessage{ConversationID: conv.ID, Sender: domain.SenderTag(domain.RoleUser, owner.ID), Content: c}
		require.NoError(t, store.CreateChatMessage(ctx, msg))
		assert.NotZero(t, msg.ID)
		assert.False(t, msg.CreatedAt.IsZero())
	}

	messages, err := store.GetConversationMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for i, m := range messages {
		assert.Equal(t, contents[i], m.Content)
		assert.Equal(t, conv.ID, m.ConversationID)
		assert.Equal(t, "user:1", m.Sender)
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(messages[i-1].CreatedAt))
		}
	}
}

func TestSQLiteStoreMessagesLimitKeepsLatest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	owner := &domain.User{Name: "Owner"}
	require.NoError(t, store.CreateUser(ctx, owner))
	conv := &domain.Conversation{UserID: owner.ID}
	require.NoError(t, store.CreateConversation(ctx, conv))

	for _, c := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.CreateChatMessage(ctx, &domain.ChatMessage{ConversationID: conv.ID, Sender: "user:1", Content: c}))
	}

	messages, err := store.GetConversationMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "c", messages[0].Content)
	assert.Equal(t, "d", messages[1].Content)

	empty, err := store.GetConversationMessages(ctx, conv.ID+1, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
}

func TestSQLiteStoreMessageTimestampNeverGoesBackwards(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	owner := &domain.User{Name: "Owner"}
	require.NoError(t, store.CreateUser(ctx, owner))
	conv := &domain.Conversation{UserID: owner.ID}
	require.NoError(t, store.CreateConversation(ctx, conv))

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	store.now = func() time.Time {
		next := clock[0]
		clock = clock[1:]
		return next
	}

	var stamps []time.Time
	for i := 0; i < 3; i++ {
		msg := &domain.ChatMessage{ConversationID: conv.ID, Sender: "user:1", Content: "m"}
		require.NoError(t, store.CreateChatMessage(ctx, msg))
		stamps = append(stamps, msg.CreatedAt)
	}

	assert.True(t, stamps[1].Equal(stamps[0]), "clock step back must not reorder history")
	assert.True(t, stamps[2].After(stamps[1]))
}

func TestSQLiteStoreCatalog(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateCatalogItem(ctx, &domain.CatalogItem{Category: "sound", Name: "PA", PriceCents: 25000, Unit: "per day"}))
	require.NoError(t, store.CreateCatalogItem(ctx, &domain.CatalogItem{Category: "artist", Name: "DJ", PriceCents: 45000}))

	items, err := store.ListCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "artist", items[0].Category)
	assert.Equal(t, "per day", items[1].Unit)
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, SeedDemo(ctx, store))
	require.NoError(t, SeedDemo(ctx, store))

	conv, err := store.GetConversation(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, int64(1), conv.UserID)
	assert.Equal(t, int64(2), conv.AdminID)

	items, err := store.ListCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 6)
}

func TestSQLiteStoreKeepsPresetIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := &domain.User{ID: 7, Name: "Seven"}
	require.NoError(t, store.CreateUser(ctx, user))
	assert.Equal(t, int64(7), user.ID)

	conv := &domain.Conversation{ID: 42, UserID: user.ID}
	require.NoError(t, store.CreateConversation(ctx, conv))
	assert.Equal(t, int64(42), conv.ID)

	next := &domain.Conversation{UserID: user.ID}
	require.NoError(t, store.CreateConversation(ctx, next))
	assert.Equal(t, int64(43), next.ID)
}
