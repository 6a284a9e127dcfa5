package tool

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/memory"
	"go.uber.org/zap"
)

// RegisterMemoryTools wires the general-purpose semantic memory (distinct
// from the kernel's own skill/failure/karma retrieval, which it consults
// automatically) as tools an agent can call directly to remember or recall
// arbitrary facts across a run.
func RegisterMemoryTools(reg domaintool.Registry, manager *memory.MemoryManager, logger *zap.Logger) error {
	tools := []domaintool.Tool{
		NewRememberTool(manager, logger),
		NewRecallTool(manager, logger),
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("register tool %q: %w", t.Name(), err)
		}
	}
	return nil
}

// RememberTool stores a fact in the semantic memory store.
type RememberTool struct {
	manager *memory.MemoryManager
	logger  *zap.Logger
}

func NewRememberTool(manager *memory.MemoryManager, logger *zap.Logger) *RememberTool {
	return &RememberTool{manager: manager, logger: logger}
}

func (t *RememberTool) Name() string         { return "remember" }
func (t *RememberTool) Kind() domaintool.Kind { return domaintool.KindThink }

func (t *RememberTool) Description() string {
	return "Store a fact or observation in semantic memory for later recall, even across a context reset."
}

func (t *RememberTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{"type": "string", "description": "the fact to remember"},
		},
		"required": []string{"content"},
	}
}

func (t *RememberTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return &Result{Success: false, Error: "content is required"}, nil
	}

	entry, err := t.manager.Remember(ctx, content, map[string]interface{}{})
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Output: fmt.Sprintf("remembered as %s", entry.ID), Success: true, Metadata: map[string]interface{}{"id": entry.ID}}, nil
}

// RecallTool retrieves the facts most relevant to a query from semantic memory.
type RecallTool struct {
	manager *memory.MemoryManager
	logger  *zap.Logger
}

func NewRecallTool(manager *memory.MemoryManager, logger *zap.Logger) *RecallTool {
	return &RecallTool{manager: manager, logger: logger}
}

func (t *RecallTool) Name() string         { return "recall" }
func (t *RecallTool) Kind() domaintool.Kind { return domaintool.KindRead }

func (t *RecallTool) Description() string {
	return "Retrieve previously remembered facts most relevant to a query."
}

func (t *RecallTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "what to recall"},
			"top_k": map[string]interface{}{"type": "integer", "description": "max results, default 5"},
		},
		"required": []string{"query"},
	}
}

func (t *RecallTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return &Result{Success: false, Error: "query is required"}, nil
	}
	topK := 5
	if raw, ok := args["top_k"].(float64); ok && raw > 0 {
		topK = int(raw)
	}

	entries, err := t.manager.Recall(ctx, query, topK, nil)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(e.Content)
	}
	out := b.String()
	if out == "" {
		out = "no relevant memories found"
	}
	return &Result{Output: out, Success: true, Metadata: map[string]interface{}{"count": len(entries)}}, nil
}
