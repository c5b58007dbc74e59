// Package policy decides conversation access with an embedded rego policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/xiaot623/gigchat/internal/domain"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content. The
// module must define data.conversation_access.allow.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.conversation_access.allow"),
		rego.Module("conversation_access.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewDefaultEngine prepares DefaultPolicy.
func NewDefaultEngine(ctx context.Context) (*Engine, error) {
	return NewEngine(ctx, DefaultPolicy)
}

// CanJoin reports whether the user may subscribe to the conversation.
// An undefined result is a deny.
func (e *Engine) CanJoin(ctx context.Context, userID int64, role domain.Role, conv *domain.Conversation) (bool, error) {
	input := map[string]interface{}{
		"user_id": userID,
		"role":    string(role),
		"conversation": map[string]interface{}{
			"id":       conv.ID,
			"user_id":  conv.UserID,
			"admin_id": conv.AdminID,
			"status":   string(conv.Status),
		},
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	return allowed, nil
}

// DefaultPolicy grants access to the owning user, the assigned admin and any
// user with the admin role. admin_id is 0 when nobody is assigned.
const DefaultPolicy = `
package conversation_access

default allow := false

allow if input.user_id == input.conversation.user_id

allow if {
	input.conversation.admin_id != 0
	input.user_id == input.conversation.admin_id
}

allow if input.role == "admin"
`
