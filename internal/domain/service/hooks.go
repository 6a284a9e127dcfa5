package service

import (
	"context"
	"strings"
	"sync"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// AgentResult is what a kernel run produces once it reaches a terminal
// state — the final delta, the milestone standing, and a tally of what ran.
type AgentResult struct {
	FinalDelta     entity.Delta
	MilestonesHit  int
	TotalMilestones int
	TotalSteps     int
	TotalTokens    int
	ToolsUsed      []string
	TanhaFlagged   bool
}

// AgentHook defines lifecycle hooks for extending kernel behavior. All
// methods are optional — embed NoOpHook to only implement what you need.
// Hooks execute synchronously; keep them fast to avoid blocking the loop.
type AgentHook interface {
	// BeforeLLMCall is called before each LLM request.
	BeforeLLMCall(ctx context.Context, messages []ChatMessage, step int)

	// AfterLLMCall is called after each successful LLM response.
	AfterLLMCall(ctx context.Context, resp *ChatResponse, step int)

	// AfterDelta is called once per iteration, right after the delta is
	// computed and the milestone check runs, before the decision pipeline is
	// invoked. Returning vetoed=true skips straight to the next iteration —
	// no action is chosen, and none of BeforeToolCall/action:start ever run.
	AfterDelta(ctx context.Context, delta entity.Delta) (vetoed bool, reason string)

	// BeforeToolCall is called before each tool execution. Return false to
	// veto the call — any hook in a chain can veto.
	BeforeToolCall(ctx context.Context, toolName string, args map[string]interface{}) bool

	// AfterToolCall is called after each tool execution completes.
	AfterToolCall(ctx context.Context, toolName string, output string, success bool)

	// OnError is called when an error occurs in the loop.
	OnError(ctx context.Context, err error, step int)

	// OnComplete is called when the loop finishes, successfully or not.
	OnComplete(ctx context.Context, result *AgentResult)

	// OnStateChange is called on each state machine transition.
	OnStateChange(from, to AgentState, snap StateSnapshot)
}

// NoOpHook provides a default no-op implementation of all hooks. Embed this
// in your custom hook to only override methods you care about.
type NoOpHook struct{}

func (NoOpHook) BeforeLLMCall(_ context.Context, _ []ChatMessage, _ int)                    {}
func (NoOpHook) AfterLLMCall(_ context.Context, _ *ChatResponse, _ int)                     {}
func (NoOpHook) AfterDelta(_ context.Context, _ entity.Delta) (bool, string)                { return false, "" }
func (NoOpHook) BeforeToolCall(_ context.Context, _ string, _ map[string]interface{}) bool  { return true }
func (NoOpHook) AfterToolCall(_ context.Context, _ string, _ string, _ bool)                {}
func (NoOpHook) OnError(_ context.Context, _ error, _ int)                                  {}
func (NoOpHook) OnComplete(_ context.Context, _ *AgentResult)                               {}
func (NoOpHook) OnStateChange(_, _ AgentState, _ StateSnapshot)                             {}

// HookChain aggregates multiple hooks — all hooks run in registration order,
// and any one of them can veto a tool call.
type HookChain struct {
	mu    sync.RWMutex
	hooks []AgentHook
}

// NewHookChain creates a hook chain from the given hooks.
func NewHookChain(hooks ...AgentHook) *HookChain {
	return &HookChain{hooks: hooks}
}

// Add appends a hook to the chain.
func (c *HookChain) Add(h AgentHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

func (c *HookChain) snapshot() []AgentHook {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AgentHook, len(c.hooks))
	copy(out, c.hooks)
	return out
}

func (c *HookChain) BeforeLLMCall(ctx context.Context, messages []ChatMessage, step int) {
	for _, h := range c.snapshot() {
		h.BeforeLLMCall(ctx, messages, step)
	}
}

func (c *HookChain) AfterLLMCall(ctx context.Context, resp *ChatResponse, step int) {
	for _, h := range c.snapshot() {
		h.AfterLLMCall(ctx, resp, step)
	}
}

// AfterDelta runs every hook; any hook vetoing stops the chain early and
// returns its reason — the rest of the chain does not get a say once one
// veto has already decided the iteration's fate.
func (c *HookChain) AfterDelta(ctx context.Context, delta entity.Delta) (bool, string) {
	for _, h := range c.snapshot() {
		if vetoed, reason := h.AfterDelta(ctx, delta); vetoed {
			return true, reason
		}
	}
	return false, ""
}

// BeforeToolCall runs every hook; any hook returning false vetoes the call
// for the whole chain (later hooks still run so their own bookkeeping stays
// consistent, but the combined verdict is false).
func (c *HookChain) BeforeToolCall(ctx context.Context, toolName string, args map[string]interface{}) bool {
	ok := true
	for _, h := range c.snapshot() {
		if !h.BeforeToolCall(ctx, toolName, args) {
			ok = false
		}
	}
	return ok
}

func (c *HookChain) AfterToolCall(ctx context.Context, toolName string, output string, success bool) {
	for _, h := range c.snapshot() {
		h.AfterToolCall(ctx, toolName, output, success)
	}
}

func (c *HookChain) OnError(ctx context.Context, err error, step int) {
	for _, h := range c.snapshot() {
		h.OnError(ctx, err, step)
	}
}

func (c *HookChain) OnComplete(ctx context.Context, result *AgentResult) {
	for _, h := range c.snapshot() {
		h.OnComplete(ctx, result)
	}
}

func (c *HookChain) OnStateChange(from, to AgentState, snap StateSnapshot) {
	for _, h := range c.snapshot() {
		h.OnStateChange(from, to, snap)
	}
}

var _ AgentHook = (*HookChain)(nil)

// --- Built-in observability hooks ---

// LoggingHook accumulates every lifecycle event it observes, for later
// export or inspection — the same bookkeeping role the teacher's
// LoggingHook plays, generalized to the new AgentEvent taxonomy.
type LoggingHook struct {
	NoOpHook
	mu     sync.Mutex
	events []entity.AgentEvent
}

func (h *LoggingHook) record(ev entity.AgentEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *LoggingHook) Events() []entity.AgentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]entity.AgentEvent, len(h.events))
	copy(out, h.events)
	return out
}

func (h *LoggingHook) AfterToolCall(_ context.Context, toolName, output string, success bool) {
	h.record(entity.AgentEvent{
		Type: entity.EventActionComplete,
		Result: &entity.ToolResult{Success: success, Output: output},
	})
}

func (h *LoggingHook) OnError(_ context.Context, err error, step int) {
	h.record(entity.AgentEvent{Type: entity.EventAgentError, Step: step, Error: err.Error()})
}

// MetricsHook tracks timing and count metrics across a run.
type MetricsHook struct {
	NoOpHook
	LLMCallCount  int
	ToolCallCount int
	ErrorCount    int
}

func (h *MetricsHook) AfterLLMCall(_ context.Context, _ *ChatResponse, _ int)      { h.LLMCallCount++ }
func (h *MetricsHook) AfterToolCall(_ context.Context, _ string, _ string, _ bool) { h.ToolCallCount++ }
func (h *MetricsHook) OnError(_ context.Context, _ error, _ int)                   { h.ErrorCount++ }

// --- Sila: the ethics/veto plugin ---

// SilaHook vetoes tool calls whose name or argument values match a denylist
// substring. After maxVetoes vetoes in a single run it latches a hard stop:
// every subsequent tool call is vetoed regardless of content, signalling the
// kernel that the run's intentions can no longer be trusted.
type SilaHook struct {
	NoOpHook
	mu          sync.Mutex
	denyList    []string
	maxVetoes   int
	vetoCount   int
	hardStopped bool
	onVeto      func(toolName, reason string)
}

// NewSilaHook builds the ethics gate. maxVetoes <= 0 means no hard stop —
// every call is checked independently.
func NewSilaHook(denyList []string, maxVetoes int, onVeto func(toolName, reason string)) *SilaHook {
	return &SilaHook{denyList: denyList, maxVetoes: maxVetoes, onVeto: onVeto}
}

func (h *SilaHook) BeforeToolCall(_ context.Context, toolName string, args map[string]interface{}) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hardStopped {
		return false
	}

	reason := h.violates(toolName, args)
	if reason == "" {
		return true
	}

	h.vetoCount++
	if h.maxVetoes > 0 && h.vetoCount >= h.maxVetoes {
		h.hardStopped = true
	}
	if h.onVeto != nil {
		h.onVeto(toolName, reason)
	}
	return false
}

// HardStopped reports whether the veto budget has been exhausted.
func (h *SilaHook) HardStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hardStopped
}

func (h *SilaHook) violates(toolName string, args map[string]interface{}) string {
	lowerName := strings.ToLower(toolName)
	for _, pattern := range h.denyList {
		p := strings.ToLower(pattern)
		if strings.Contains(lowerName, p) {
			return "tool name matches denylisted pattern: " + pattern
		}
		for _, v := range args {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), p) {
				return "argument matches denylisted pattern: " + pattern
			}
		}
	}
	return ""
}

// --- Dana: the knowledge-sharing plugin ---

// DanaHook has no veto power — it exists to export and merge
// entity.KnowledgePacket snapshots across agent lineages. Lifecycle methods
// are no-ops; the sharing surface is its Export/Import/Merge API, which
// the kernel loop and the self-evolver do not call.
type DanaHook struct {
	NoOpHook
	sourceAgentID string
}

func NewDanaHook(sourceAgentID string) *DanaHook {
	return &DanaHook{sourceAgentID: sourceAgentID}
}

// Export packages the current self-model into a shareable knowledge packet.
func (h *DanaHook) Export(model *entity.SelfModel, gifts []entity.KnowledgeGift, version int) entity.KnowledgePacket {
	return entity.KnowledgePacket{
		Version:          version,
		SourceAgentID:    h.sourceAgentID,
		Gifts:            gifts,
		Strategies:       model.ActiveStrategies,
		EvolutionSummary: summarizeEvolution(model.EvolutionLog),
	}
}

// Import filters an incoming packet before it is ever merged: a packet
// sourced from this same agent is rejected outright (self-gifting), and
// otherwise only gifts meeting minConfidence survive, capped at maxGifts.
// The returned bool is false when the whole packet was rejected.
func (h *DanaHook) Import(packet entity.KnowledgePacket, minConfidence float64, maxGifts int) (entity.KnowledgePacket, bool) {
	if packet.SourceAgentID == h.sourceAgentID {
		return entity.KnowledgePacket{}, false
	}

	var kept []entity.KnowledgeGift
	for _, g := range packet.Gifts {
		if g.Confidence >= minConfidence {
			kept = append(kept, g)
		}
	}
	if maxGifts > 0 && len(kept) > maxGifts {
		kept = kept[:maxGifts]
	}
	packet.Gifts = kept
	return packet, true
}

// Merge folds an imported packet's strategies into the local self-model.
// Tool preferences the local model already tracks are averaged rather than
// overwritten so a gift can nudge behavior without erasing locally learned
// preferences; tool preferences the local model has no opinion on yet are
// discounted to 0.7 of the gift's value rather than adopted outright.
// AvoidPatterns/ApproachHints are merged as a deduplicated union.
func (h *DanaHook) Merge(model *entity.SelfModel, packet entity.KnowledgePacket) {
	for tool, pref := range packet.Strategies.ToolPreferences {
		if existing, ok := model.ActiveStrategies.ToolPreferences[tool]; ok {
			model.ActiveStrategies.ToolPreferences[tool] = (existing + pref) / 2
		} else {
			model.ActiveStrategies.ToolPreferences[tool] = pref * 0.7
		}
	}
	for _, p := range packet.Strategies.AvoidPatterns {
		if !containsString(model.ActiveStrategies.AvoidPatterns, p) {
			model.ActiveStrategies.AppendAvoidPattern(p)
		}
	}
	for _, hint := range packet.Strategies.ApproachHints {
		if !containsString(model.ActiveStrategies.ApproachHints, hint) {
			model.ActiveStrategies.AppendApproachHint(hint)
		}
	}
}

func containsString(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}

func summarizeEvolution(log []entity.EvolutionRecord) string {
	if len(log) == 0 {
		return ""
	}
	var b strings.Builder
	for i, rec := range log {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(rec.Change)
	}
	return b.String()
}

// --- Virya: the tool-synthesis plugin ---

// ViryaHook gates tool-synthesis calls — a tool whose implementation is a
// source string the kernel wrote itself — against a denylist of dangerous
// source substrings before it ever reaches the sandbox. This inverts the
// teacher's ProcessSandbox allowlist-of-binaries: here the *content* being
// proposed is checked, not the binary invoking it.
type ViryaHook struct {
	NoOpHook
	synthesisToolName string
	sourceDenyList    []string
}

func NewViryaHook(synthesisToolName string, sourceDenyList []string) *ViryaHook {
	return &ViryaHook{synthesisToolName: synthesisToolName, sourceDenyList: sourceDenyList}
}

func (h *ViryaHook) BeforeToolCall(_ context.Context, toolName string, args map[string]interface{}) bool {
	if toolName != h.synthesisToolName {
		return true
	}
	src, _ := args["source"].(string)
	lower := strings.ToLower(src)
	for _, pattern := range h.sourceDenyList {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return false
		}
	}
	return true
}

// DefaultSourceDenyList flags the JS/TS keywords and globals a synthesized
// tool could use to escape its sandbox: module loading (require/import),
// arbitrary code execution (eval/Function), process access, and outbound
// network calls (fetch).
func DefaultSourceDenyList() []string {
	return []string{"process", "require", "import", "eval", "Function", "fetch"}
}
