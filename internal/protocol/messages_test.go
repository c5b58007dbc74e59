package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gigchat/internal/domain"
)

func TestParseClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    *ClientMessage
		wantErr string
	}{
		{
			name: "auth",
			data: `{"type":"auth","userId":7,"userRole":"admin"}`,
			want: &ClientMessage{Type: TypeAuth, UserID: 7, UserRole: "admin"},
		},
		{
			name: "join ignores unknown fields",
			data: `{"type":"join_conversation","conversationId":42,"extra":true}`,
			want: &ClientMessage{Type: TypeJoinConversation, ConversationID: 42},
		},
		{
			name: "message",
			data: `{"type":"message","message":"hi"}`,
			want: &ClientMessage{Type: TypeMessage, Message: "hi"},
		},
		{name: "not json", data: `{`, wantErr: ReasonInvalidFormat},
		{name: "missing type", data: `{"userId":7}`, wantErr: ReasonInvalidFormat},
		{name: "wrong field type", data: `{"type":"auth","userId":"seven"}`, wantErr: ReasonInvalidFormat},
		{name: "unknown type", data: `{"type":"dance"}`, wantErr: "Unknown message type: dance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClientMessage([]byte(tt.data))
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewHistoryMessage(t *testing.T) {
	at := time.UnixMilli(1700000000000).UTC()

	got := NewHistoryMessage(domain.ChatMessage{ID: 5, ConversationID: 42, Sender: "admin:3", Content: "hello", CreatedAt: at})
	assert.Equal(t, HistoryMessage{
		ID:             5,
		ConversationID: 42,
		Sender:         "admin:3",
		SenderID:       3,
		SenderRole:     domain.Role("admin"),
		Message:        "hello",
		Timestamp:      at,
	}, got)

	raw := NewHistoryMessage(domain.ChatMessage{Sender: "system", Content: "x"})
	assert.Equal(t, "system", raw.Sender)
	assert.Zero(t, raw.SenderID)
	assert.Empty(t, raw.SenderRole)
}

func TestNewErrorEncoding(t *testing.T) {
	data, err := json.Marshal(NewError(ReasonAccessDenied))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, TypeError, decoded["type"])
	assert.Equal(t, ReasonAccessDenied, decoded["message"])
	assert.NotZero(t, decoded["ts"])
}
