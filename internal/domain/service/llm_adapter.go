package service

import (
	"context"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
)

// ChatRole is one of the four roles a ChatMessage may carry.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleTool      ChatRole = "tool"
)

// ChatMessage is one entry of the kernel's chat history. An assistant
// message's ToolCalls must be preserved verbatim when replayed back to the
// LLM — the adapter contract requires it so a later tool-role reply can be
// correlated via ToolCallID.
type ChatMessage struct {
	Role       ChatRole              `json:"role"`
	Content    string                `json:"content"`
	ToolCalls  []entity.ToolCallInfo `json:"tool_calls,omitempty"`
	ToolCallID string                `json:"tool_call_id,omitempty"`
	Name       string                `json:"name,omitempty"`
}

// ChatOptions configures one Chat call.
type ChatOptions struct {
	Tools       []domaintool.Definition
	Model       string
	Temperature float64
}

// ChatResponse is the LLM's reply to a Chat call.
type ChatResponse struct {
	Content    string
	ToolCalls  []entity.ToolCallInfo
	ModelUsed  string
	TokensUsed int
}

// LLMAdapter is the capability contract every concrete LLM provider must
// satisfy: a plain completion, an embedding, and a tool-calling chat turn.
// Exact wire formats are explicitly out of scope; only this Go-level
// contract is specified.
type LLMAdapter interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float64, error)
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (ChatResponse, error)
}
