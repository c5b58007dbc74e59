// Package domain defines the core domain models for the chat relay.
package domain

import "time"

// Role is the authoritative role of a user, as recorded in the user store.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleArtist     Role = "artist"
	RoleInfluencer Role = "influencer"
)

// ConversationStatus represents the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationStatusOpen    ConversationStatus = "open"
	ConversationStatusPending ConversationStatus = "pending"
	ConversationStatusClosed  ConversationStatus = "closed"
)

// User is a registered account. Only the fields the relay needs are loaded.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is a thread between one end user and, optionally, one assigned admin.
type Conversation struct {
	ID        int64              `json:"id"`
	UserID    int64              `json:"userId"`
	AdminID   int64              `json:"adminId,omitempty"` // 0 when unassigned
	Status    ConversationStatus `json:"status"`
	Subject   string             `json:"subject,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// HasAdmin reports whether an admin is assigned.
func (c *Conversation) HasAdmin() bool {
	return c.AdminID > 0
}

// ChatMessage is a persisted message. Messages are never mutated or deleted by the relay.
type ChatMessage struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CatalogItem is a bookable offering with its current price, used as live
// context for the support responder.
type CatalogItem struct {
	ID         int64  `json:"id"`
	Category   string `json:"category"`
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
	Unit       string `json:"unit,omitempty"`
}
