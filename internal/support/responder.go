// Package support answers visitor questions on the support chat: an AI
// completion when one is configured, canned keyword replies otherwise.
package support

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xiaot623/gigchat/internal/adapter/llm"
	"github.com/xiaot623/gigchat/internal/domain"
)

// Source tells where a reply came from.
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
	SourceHandoff  Source = "handoff"
)

// maxHistoryTurns bounds the history forwarded to the completion service.
const maxHistoryTurns = 10

// Turn is one earlier exchange supplied by the client.
type Turn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"max=4000"`
}

// Reply is a generated answer.
type Reply struct {
	Text   string
	Source Source
}

// CatalogSource supplies live prices for the system prompt.
type CatalogSource interface {
	ListCatalog(ctx context.Context) ([]domain.CatalogItem, error)
}

// Responder produces support replies. It never returns an error: any AI
// failure degrades to Fallback.
type Responder struct {
	client  llm.Client
	catalog CatalogSource
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// NewResponder creates a responder. client and catalog may be nil.
func NewResponder(client llm.Client, catalog CatalogSource, model string, timeout time.Duration, log *zap.Logger) *Responder {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Responder{
		client:  client,
		catalog: catalog,
		model:   model,
		timeout: timeout,
		log:     log,
	}
}

// Reply answers text, using history as context for the AI path.
func (r *Responder) Reply(ctx context.Context, text string, history []Turn) Reply {
	if r.client == nil {
		return Reply{Text: Fallback(text), Source: SourceFallback}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model:    r.model,
		Messages: r.buildMessages(ctx, text, history),
	})
	if err != nil {
		r.log.Warn("AI completion failed, using fallback", zap.Error(err))
		return Reply{Text: Fallback(text), Source: SourceFallback}
	}

	content := strings.TrimSpace(resp.FirstContent())
	if content == "" {
		r.log.Warn("AI completion was empty, using fallback", zap.String("model", r.model))
		return Reply{Text: Fallback(text), Source: SourceFallback}
	}
	return Reply{Text: content, Source: SourceAI}
}

func (r *Responder) buildMessages(ctx context.Context, text string, history []Turn) []llm.ChatMessage {
	messages := []llm.ChatMessage{{Role: llm.RoleSystem, Content: r.systemPrompt(ctx)}}

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, turn := range history {
		role := llm.RoleUser
		if turn.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: turn.Content})
	}

	return append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: text})
}

const systemFraming = `You are the support assistant of an event booking agency.
The agency books artists (musicians, bands, DJs, performers), rents sound and lighting equipment,
arranges venues and promotes events with influencers.
Answer briefly and politely. Never invent availability or confirm bookings; offer to connect the
visitor with the team when they need a firm commitment.`

func (r *Responder) systemPrompt(ctx context.Context) string {
	if r.catalog == nil {
		return systemFraming
	}

	items, err := r.catalog.ListCatalog(ctx)
	if err != nil {
		r.log.Warn("catalog lookup failed, prompting without prices", zap.Error(err))
		return systemFraming
	}
	if len(items) == 0 {
		return systemFraming
	}

	lines := lo.Map(items, func(item domain.CatalogItem, _ int) string {
		line := fmt.Sprintf("- %s (%s): $%d.%02d", item.Name, item.Category, item.PriceCents/100, item.PriceCents%100)
		if item.Unit != "" {
			line += " " + item.Unit
		}
		return line
	})
	return systemFraming + "\n\nCurrent prices:\n" + strings.Join(lines, "\n")
}
