package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderTagRoundTrip(t *testing.T) {
	tag := SenderTag(RoleAdmin, 3)
	assert.Equal(t, "admin:3", tag)

	role, id, err := ParseSenderTag(tag)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
	assert.Equal(t, int64(3), id)
}

func TestParseSenderTagInvalid(t *testing.T) {
	for _, tag := range []string{"", "user", ":7", "user:abc"} {
		_, _, err := ParseSenderTag(tag)
		assert.Error(t, err, "tag %q", tag)
	}
}
