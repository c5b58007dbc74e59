package store

import (
	"context"
	"fmt"

	"github.com/xiaot623/gigchat/internal/domain"
)

// SeedDemo inserts a small data set for local development: a customer, an
// admin, a second customer, one conversation and a priced catalog.
// It is a no-op when users already exist.
func SeedDemo(ctx context.Context, s Store) error {
	if existing, err := s.GetUser(ctx, 1); err != nil {
		return fmt.Errorf("failed to check seed state: %w", err)
	} else if existing != nil {
		return nil
	}

	customer := &domain.User{Name: "Dana Customer", Email: "dana@example.com", Role: domain.RoleUser}
	admin := &domain.User{Name: "Alex Admin", Email: "alex@example.com", Role: domain.RoleAdmin}
	other := &domain.User{Name: "Sam Artist", Email: "sam@example.com", Role: domain.RoleArtist}
	for _, u := range []*domain.User{customer, admin, other} {
		if err := s.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("failed to seed user %q: %w", u.Name, err)
		}
	}

	conv := &domain.Conversation{
		UserID:  customer.ID,
		AdminID: admin.ID,
		Status:  domain.ConversationStatusOpen,
		Subject: "Wedding booking",
	}
	if err := s.CreateConversation(ctx, conv); err != nil {
		return fmt.Errorf("failed to seed conversation: %w", err)
	}

	catalog := []domain.CatalogItem{
		{Category: "artist", Name: "Acoustic duo", PriceCents: 60000, Unit: "per set"},
		{Category: "artist", Name: "DJ", PriceCents: 45000, Unit: "per night"},
		{Category: "sound", Name: "PA system (200 guests)", PriceCents: 25000, Unit: "per day"},
		{Category: "sound", Name: "Wireless microphone", PriceCents: 3000, Unit: "per day"},
		{Category: "venue", Name: "Riverside hall", PriceCents: 150000, Unit: "per day"},
		{Category: "influencer", Name: "Event promotion post", PriceCents: 20000, Unit: "per post"},
	}
	for i := range catalog {
		if err := s.CreateCatalogItem(ctx, &catalog[i]); err != nil {
			return fmt.Errorf("failed to seed catalog: %w", err)
		}
	}
	return nil
}
