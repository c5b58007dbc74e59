package support

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/gigchat/internal/adapter/llm"
	"github.com/xiaot623/gigchat/internal/domain"
	"github.com/xiaot623/gigchat/internal/store"
	"github.com/xiaot623/gigchat/internal/store/storetest"
)

func replyOf(name string) string {
	for _, g := range keywordGroups {
		if g.name == name {
			return g.reply
		}
	}
	panic("unknown group " + name)
}

func TestFallback(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Do you rent SOUND gear?", replyOf("sound")},
		{"what about the soundcheck", replyOf("sound")},
		{"We need a DJ for Saturday", replyOf("artists")},
		{"Looking for a jazz band", replyOf("artists")},
		{"my husband asked me", genericReply},
		{"Is the hall free in June?", replyOf("venues")},
		{"What does it cost?", replyOf("pricing")},
		{"what are your rates", replyOf("pricing")},
		{"let's celebrate", genericReply},
		{"Planning a wedding", replyOf("events")},
		{"We are hosting an event in May", replyOf("events")},
		{"how can we prevent feedback", genericReply},
		{"it will eventually matter", genericReply},
		{"an aerospace company", genericReply},
		{"Do you have an outdoor space?", replyOf("venues")},
		{"costume ideas", genericReply},
		{"Hello there", replyOf("greeting")},
		{"Good morning!", replyOf("greeting")},
		{"this is high quality", genericReply},
		{"ship it", genericReply},
		{"", genericReply},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Fallback(tt.text))
		})
	}
}

func TestFallbackGroupOrder(t *testing.T) {
	assert.Equal(t, replyOf("artists"), Fallback("an artist with their own sound system"))
}

func TestDetectHumanRequest(t *testing.T) {
	assert.True(t, DetectHumanRequest("I want to speak to a human"))
	assert.True(t, DetectHumanRequest("Can I talk to a REAL person?"))
	assert.True(t, DetectHumanRequest("please escalate"))
	assert.True(t, DetectHumanRequest("get me an agent"))
	assert.False(t, DetectHumanRequest("How much is a DJ for a wedding?"))
	assert.False(t, DetectHumanRequest("send me the agenda"))
	assert.False(t, DetectHumanRequest("Can someone recommend a sound system for 200 guests?"))
	assert.False(t, DetectHumanRequest("Is your staff able to set up the speakers?"))
	assert.True(t, DetectHumanRequest("I'd like to talk to someone"))
	assert.True(t, DetectHumanRequest("Can I speak with staff please"))
	assert.False(t, DetectHumanRequest(""))
}

type recordingClient struct {
	mu   sync.Mutex
	reqs []*llm.ChatCompletionRequest
	llm.MockClient
}

func (c *recordingClient) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	c.mu.Unlock()
	return c.MockClient.CreateChatCompletion(ctx, req)
}

type failingCatalog struct{}

func (failingCatalog) ListCatalog(context.Context) ([]domain.CatalogItem, error) {
	return nil, errors.New("catalog offline")
}

func TestResponderWithoutClientUsesFallback(t *testing.T) {
	r := NewResponder(nil, nil, "", 0, zap.NewNop())
	reply := r.Reply(context.Background(), "Do you have speakers?", nil)
	assert.Equal(t, SourceFallback, reply.Source)
	assert.Equal(t, replyOf("sound"), reply.Text)
}

func TestResponderUsesCompletion(t *testing.T) {
	st := storetest.NewSQLiteStore(t)
	require.NoError(t, store.SeedDemo(context.Background(), st))

	client := &recordingClient{MockClient: llm.MockClient{Reply: "  A DJ starts at $450.  "}}
	r := NewResponder(client, st, "gpt-4o-mini", time.Second, zap.NewNop())

	history := make([]Turn, 14)
	for i := range history {
		history[i] = Turn{Role: "user", Content: "old"}
	}
	history[13] = Turn{Role: "assistant", Content: "latest answer"}

	reply := r.Reply(context.Background(), "How much is a DJ?", history)
	assert.Equal(t, SourceAI, reply.Source)
	assert.Equal(t, "A DJ starts at $450.", reply.Text)

	require.Len(t, client.reqs, 1)
	req := client.reqs[0]
	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.Len(t, req.Messages, 1+maxHistoryTurns+1)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "DJ (artist): $450.00 per night")
	assert.Equal(t, llm.ChatMessage{Role: llm.RoleAssistant, Content: "latest answer"}, req.Messages[maxHistoryTurns])
	assert.Equal(t, llm.ChatMessage{Role: llm.RoleUser, Content: "How much is a DJ?"}, req.Messages[len(req.Messages)-1])
}

func TestResponderCatalogFailureStillAnswers(t *testing.T) {
	client := &recordingClient{MockClient: llm.MockClient{Reply: "ok"}}
	r := NewResponder(client, failingCatalog{}, "m", time.Second, zap.NewNop())

	reply := r.Reply(context.Background(), "hi", nil)
	assert.Equal(t, SourceAI, reply.Source)
	require.Len(t, client.reqs, 1)
	assert.NotContains(t, client.reqs[0].Messages[0].Content, "Current prices")
}

func TestResponderDegradesToFallback(t *testing.T) {
	tests := []struct {
		name   string
		client *llm.MockClient
	}{
		{"error", &llm.MockClient{Err: errors.New("upstream 502")}},
		{"timeout", &llm.MockClient{Delay: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResponder(tt.client, nil, "m", 20*time.Millisecond, zap.NewNop())
			start := time.Now()
			reply := r.Reply(context.Background(), "Looking for a venue", nil)
			assert.Equal(t, SourceFallback, reply.Source)
			assert.Equal(t, replyOf("venues"), reply.Text)
			assert.Less(t, time.Since(start), 500*time.Millisecond)
		})
	}
}

type emptyClient struct{}

func (emptyClient) CreateChatCompletion(context.Context, *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return &llm.ChatCompletionResponse{}, nil
}

func TestResponderEmptyCompletionFallsBack(t *testing.T) {
	r := NewResponder(emptyClient{}, nil, "m", time.Second, zap.NewNop())
	reply := r.Reply(context.Background(), "random", nil)
	assert.Equal(t, SourceFallback, reply.Source)
	assert.Equal(t, genericReply, reply.Text)
}

func TestServiceHandle(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewSQLiteStore(t)
	known := storetest.MustCreateUser(t, st, "Dana", domain.RoleUser)

	svc := NewService(NewResponder(nil, st, "", 0, zap.NewNop()), st, zap.NewNop())

	resp, err := svc.Handle(ctx, Request{Message: "Do you have microphones?"})
	require.NoError(t, err)
	assert.Equal(t, &Response{Reply: replyOf("sound"), Source: SourceFallback}, resp)

	resp, err = svc.Handle(ctx, Request{Message: "Can someone recommend a sound system for 200 guests?", UserID: known.ID})
	require.NoError(t, err)
	assert.Equal(t, &Response{Reply: replyOf("sound"), Source: SourceFallback}, resp)

	resp, err = svc.Handle(ctx, Request{Message: "I want to speak to a human"})
	require.NoError(t, err)
	assert.True(t, resp.NeedsHuman)
	assert.Equal(t, SourceHandoff, resp.Source)
	assert.Zero(t, resp.ConversationID, "anonymous visitors get no conversation")

	resp, err = svc.Handle(ctx, Request{Message: "I want to speak to a human about " + strings.Repeat("x", 100), UserID: known.ID})
	require.NoError(t, err)
	require.NotZero(t, resp.ConversationID)

	conv, err := st.GetConversation(ctx, resp.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, known.ID, conv.UserID)
	assert.Equal(t, domain.ConversationStatusPending, conv.Status)
	assert.False(t, conv.HasAdmin())
	assert.True(t, strings.HasSuffix(conv.Subject, "..."))

	resp, err = svc.Handle(ctx, Request{Message: "human please", UserID: 999})
	require.NoError(t, err)
	assert.True(t, resp.NeedsHuman)
	assert.Zero(t, resp.ConversationID)
}

func TestServiceHandleValidation(t *testing.T) {
	svc := NewService(NewResponder(nil, nil, "", 0, zap.NewNop()), nil, zap.NewNop())

	_, err := svc.Handle(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Handle(context.Background(), Request{Message: "hi", History: []Turn{{Role: "system", Content: "x"}}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Handle(context.Background(), Request{Message: strings.Repeat("a", 4001)})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
