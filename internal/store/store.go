// Package store defines the storage interface and its SQLite implementation.
package store

import (
	"context"

	"github.com/xiaot623/gigchat/internal/domain"
)

// Store defines the interface for data persistence.
//
// Lookups return (nil, nil) when the row does not exist.
type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, userID int64) (*domain.User, error)

	// Conversation operations
	CreateConversation(ctx context.Context, conversation *domain.Conversation) error
	GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)

	// Message operations
	CreateChatMessage(ctx context.Context, message *domain.ChatMessage) error
	// GetConversationMessages returns the latest limit messages, oldest first.
	// A non-positive limit returns the whole history.
	GetConversationMessages(ctx context.Context, conversationID int64, limit int) ([]domain.ChatMessage, error)

	// Catalog operations
	CreateCatalogItem(ctx context.Context, item *domain.CatalogItem) error
	ListCatalog(ctx context.Context) ([]domain.CatalogItem, error)

	// Lifecycle
	Close() error
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
