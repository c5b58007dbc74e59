package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SenderTag builds the persisted sender identity, e.g. "user:7" or "admin:3".
func SenderTag(role Role, userID int64) string {
	return fmt.Sprintf("%s:%d", role, userID)
}

// ParseSenderTag splits a sender tag back into role and user ID.
func ParseSenderTag(tag string) (Role, int64, error) {
	role, id, ok := strings.Cut(tag, ":")
	if !ok || role == "" {
		return "", 0, fmt.Errorf("invalid sender tag %q", tag)
	}
	userID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid sender tag %q: %w", tag, err)
	}
	return Role(role), userID, nil
}
