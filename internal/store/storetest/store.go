// Package storetest provides store helpers for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/xiaot623/gigchat/internal/domain"
	"github.com/xiaot623/gigchat/internal/store"
)

// NewSQLiteStore opens an in-memory store that is closed when the test ends.
func NewSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// MustCreateUser inserts a user and returns it with its assigned ID.
func MustCreateUser(t *testing.T, s store.Store, name string, role domain.Role) *domain.User {
	t.Helper()

	u := &domain.User{Name: name, Role: role}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

// MustCreateConversation inserts a conversation owned by userID, optionally assigned to adminID.
func MustCreateConversation(t *testing.T, s store.Store, userID, adminID int64) *domain.Conversation {
	t.Helper()

	c := &domain.Conversation{UserID: userID, AdminID: adminID, Status: domain.ConversationStatusOpen}
	if err := s.CreateConversation(context.Background(), c); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return c
}
