package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/memory"
	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
)

// ChatHistory is the decision pipeline's own record of the chat turns it has
// exchanged with the LLM for one run. The kernel itself is agnostic to chat
// history — it drives the loop through Snapshot/Delta/Action alone — so the
// pipeline owns replay state and wires RecordResult as the kernel's
// SetResultObserver callback to learn of tool outcomes.
type ChatHistory struct {
	mu       sync.Mutex
	messages []ChatMessage
}

// NewChatHistory returns an empty chat history.
func NewChatHistory() *ChatHistory {
	return &ChatHistory{}
}

// Append adds one message to the end of the history.
func (h *ChatHistory) Append(msg ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

// Recent returns (a copy of) the last n messages, oldest first.
func (h *ChatHistory) Recent(n int) []ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > len(h.messages) {
		n = len(h.messages)
	}
	out := make([]ChatMessage, n)
	copy(out, h.messages[len(h.messages)-n:])
	return out
}

// Clear drops every recorded message, used at a milestone's context-reset
// boundary — failure/skill knowledge survives the reset via their own
// stores, but raw chat turns do not.
func (h *ChatHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

// RecordResult appends a dispatched action's tool result as a tool-role
// message correlated by ToolCallID (the tool name when the action carries
// no ToolCallID), matching the LLM adapter contract's requirement that tool
// replies be correlated back to their call. Wire this directly as the
// kernel's SetResultObserver callback.
func (h *ChatHistory) RecordResult(action *entity.Action, result entity.ToolResult) {
	content := fmt.Sprintf("%q", fmt.Sprint(result.Output))
	if raw, err := json.Marshal(result.Output); err == nil {
		content = string(raw)
	}
	if !result.Success {
		content = fmt.Sprintf("error: %s", result.Error)
	}
	callID := action.ToolCallID
	if callID == "" {
		callID = action.ToolName
	}
	h.Append(ChatMessage{
		Role:       RoleTool,
		Content:    content,
		Name:       action.ToolName,
		ToolCallID: callID,
	})
}

// DecideFunc is the shape the kernel's Run loop expects from a decision
// pipeline: turn an Observation+Delta into the next Action, or nil when the
// pipeline judges the goal unreachable (or satisfied) this iteration.
type DecideFunc func(ctx context.Context, goal entity.Goal, obs entity.Observation, delta entity.Delta) (*entity.Action, []entity.AgentEvent, error)

// DecisionPipeline wires the single-pass and Seven-Factor decision
// procedures over a shared LLM adapter, tool registry, memory stack, and
// self-model. Which pipeline runs is chosen once at construction: a
// karma store present selects the Seven-Factor path, its absence selects
// single-pass — matching the kernel's §4.1.2 dispatch rule.
type DecisionPipeline struct {
	llm      LLMAdapter
	tools    domaintool.Registry
	skills   *memory.SkillStore
	failures *memory.FailureStore
	karma    *memory.KarmaStore
	model    *entity.SelfModel
	history  *ChatHistory
	config   KernelConfig
	logger   *zap.Logger
}

// NewDecisionPipeline builds a decision pipeline. karma may be nil, in which
// case Decide always runs the single-pass path.
func NewDecisionPipeline(
	llm LLMAdapter,
	tools domaintool.Registry,
	skills *memory.SkillStore,
	failures *memory.FailureStore,
	karma *memory.KarmaStore,
	model *entity.SelfModel,
	history *ChatHistory,
	config KernelConfig,
	logger *zap.Logger,
) *DecisionPipeline {
	return &DecisionPipeline{
		llm: llm, tools: tools, skills: skills, failures: failures,
		karma: karma, model: model, history: history, config: config, logger: logger,
	}
}

// Decide runs the selected pipeline for one kernel iteration.
func (p *DecisionPipeline) Decide(ctx context.Context, goal entity.Goal, obs entity.Observation, delta entity.Delta) (*entity.Action, []entity.AgentEvent, error) {
	if p.karma != nil {
		return p.decideSevenFactor(ctx, goal, obs, delta)
	}
	return p.decideSinglePass(ctx, goal, obs, delta)
}

// --- Single-pass pipeline ---

func (p *DecisionPipeline) decideSinglePass(ctx context.Context, goal entity.Goal, obs entity.Observation, delta entity.Delta) (*entity.Action, []entity.AgentEvent, error) {
	skills := p.skills.Retrieve(ctx, delta.Description, 3)
	warnings := p.failures.Retrieve(ctx, delta.Description, 3)

	systemMsg := buildSystemMessage(goal, delta, skills, warnings, p.model.ActiveStrategies)
	messages := sanitizeMessages(append([]ChatMessage{{Role: RoleSystem, Content: systemMsg}}, p.history.Recent(10)...))

	resp, err := callWithRetry(ctx, p.logger, p.config.MaxRetries, p.config.RetryBaseWait, func(c context.Context) (ChatResponse, error) {
		return p.llm.Chat(c, messages, ChatOptions{Tools: p.tools.List(), Model: p.config.Model, Temperature: p.config.Temperature})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("single-pass decide: %w", err)
	}

	return p.interpretResponse(resp)
}

// interpretResponse turns one chat response into an Action, applying the
// DONE/empty-response completion rule and pushing the assistant message
// (content + tool calls, required for correlation) onto chat history. Any
// <think>/<thought> reasoning content the model leaked into its response is
// stripped before it reaches history or the caller.
func (p *DecisionPipeline) interpretResponse(resp ChatResponse) (*entity.Action, []entity.AgentEvent, error) {
	resp.Content = StripReasoningTags(resp.Content)
	trimmed := strings.TrimSpace(resp.Content)
	if len(resp.ToolCalls) == 0 {
		if trimmed != "" {
			p.history.Append(ChatMessage{Role: RoleAssistant, Content: resp.Content})
		}
		return nil, nil, nil
	}
	if strings.EqualFold(trimmed, "DONE") {
		p.history.Append(ChatMessage{Role: RoleAssistant, Content: resp.Content})
		return nil, nil, nil
	}

	call := resp.ToolCalls[0]
	p.history.Append(ChatMessage{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})

	return &entity.Action{
		ToolName:   call.Name,
		Parameters: call.Arguments,
		ToolCallID: call.ID,
	}, nil, nil
}

// --- Seven-Factor pipeline ---

// AwakeningStage identifies one stage of the Seven-Factor decision procedure.
type AwakeningStage string

const (
	StageInvestigation AwakeningStage = "investigation"
	StageMindfulness   AwakeningStage = "mindfulness"
	StageFinalDecision AwakeningStage = "final_decision"
)

func (p *DecisionPipeline) decideSevenFactor(ctx context.Context, goal entity.Goal, obs entity.Observation, delta entity.Delta) (*entity.Action, []entity.AgentEvent, error) {
	var events []entity.AgentEvent

	skills := p.skills.Retrieve(ctx, delta.Description, 3)
	warnings := p.failures.Retrieve(ctx, delta.Description, 3)
	wisdom := p.karma.Retrieve(ctx, delta.Description, 3)
	habitual := p.karma.GetHabitualPatterns(3)

	investigation, err := p.runInvestigation(ctx, goal, delta, skills, warnings, wisdom, habitual)
	if err != nil {
		return nil, events, fmt.Errorf("seven-factor investigation: %w", err)
	}
	events = append(events, entity.AgentEvent{
		Type:    entity.EventAwakeningStage,
		Payload: map[string]interface{}{"stage": string(StageInvestigation), "output": investigation, "confidence": 0.0},
	})

	mindfulness, filtered, err := p.runMindfulness(ctx, delta, investigation)
	if err != nil {
		return nil, events, fmt.Errorf("seven-factor mindfulness: %w", err)
	}
	events = append(events, entity.AgentEvent{
		Type: entity.EventAwakeningStage,
		Payload: map[string]interface{}{
			"stage": string(StageMindfulness), "output": mindfulness, "filtered": filtered,
		},
	})

	resp, err := p.runFinalDecision(ctx, goal, delta, investigation, mindfulness)
	if err != nil {
		return nil, events, fmt.Errorf("seven-factor final decision: %w", err)
	}
	events = append(events, entity.AgentEvent{
		Type:    entity.EventAwakeningStage,
		Payload: map[string]interface{}{"stage": string(StageFinalDecision), "output": resp.Content},
	})

	action, _, err := p.interpretResponse(resp)
	return action, events, err
}

// runInvestigation asks the LLM to propose 2-3 candidate approaches given the
// retrieved skills, failure warnings, karmic wisdom, and habitual patterns.
func (p *DecisionPipeline) runInvestigation(
	ctx context.Context,
	goal entity.Goal,
	delta entity.Delta,
	skills []entity.SkillEntry,
	warnings []entity.FailureEntry,
	wisdom []entity.KarmaEntry,
	habitual []entity.KarmaEntry,
) (string, error) {
	var b strings.Builder
	b.WriteString("You are investigating how to close this gap. Goal: ")
	b.WriteString(goal.Description())
	b.WriteString("\nCurrent gap: ")
	b.WriteString(delta.Description)
	writeSkillSection(&b, skills)
	writeWarningSection(&b, warnings)
	writeKarmaSection(&b, "Karmic wisdom (causal lessons from similar situations)", wisdom)
	writeKarmaSection(&b, "Habitual patterns (repeated at least 3 times)", habitual)
	b.WriteString("\n\nPropose 2-3 distinct candidate approaches to close the gap. Be concrete about which tool each would use.")

	resp, err := callWithRetry(ctx, p.logger, p.config.MaxRetries, p.config.RetryBaseWait, func(c context.Context) (ChatResponse, error) {
		out, err := p.llm.Complete(c, b.String())
		return ChatResponse{Content: out}, err
	})
	return StripReasoningTags(resp.Content), err
}

// runMindfulness asks the LLM to filter the investigation's hypotheses for
// repeated-failure patterns, ego bias, and confirmation bias.
func (p *DecisionPipeline) runMindfulness(ctx context.Context, delta entity.Delta, investigation string) (string, bool, error) {
	prompt := fmt.Sprintf(
		"Current gap: %s\n\nCandidate approaches under consideration:\n%s\n\n"+
			"Examine these candidates for: repeated-failure (craving) patterns, ego bias, and confirmation bias. "+
			"Discard any candidate that exhibits one of these, and explain which survive and why.",
		delta.Description, investigation,
	)
	resp, err := callWithRetry(ctx, p.logger, p.config.MaxRetries, p.config.RetryBaseWait, func(c context.Context) (ChatResponse, error) {
		out, err := p.llm.Complete(c, prompt)
		return ChatResponse{Content: out}, err
	})
	if err != nil {
		return "", false, err
	}
	out := StripReasoningTags(resp.Content)
	filtered := strings.Contains(strings.ToLower(out), "discard") || strings.Contains(strings.ToLower(out), "reject")
	return out, filtered, nil
}

// runFinalDecision combines the investigation and mindfulness stage outputs
// into one prompt instructing the LLM to weigh the remaining five factors
// (energy, joy, tranquility, concentration, equanimity) as internal criteria
// and either pick a tool or respond DONE.
func (p *DecisionPipeline) runFinalDecision(ctx context.Context, goal entity.Goal, delta entity.Delta, investigation, mindfulness string) (ChatResponse, error) {
	systemMsg := fmt.Sprintf(
		"Goal: %s\nCurrent gap: %s\n\n"+
			"Investigation stage proposed:\n%s\n\n"+
			"Mindfulness stage filtered these for craving/bias:\n%s\n\n"+
			"Apply energy, joy, tranquility, concentration, and equanimity as internal "+
			"criteria to choose among the surviving candidates. Call exactly one tool, "+
			"or reply with the single word DONE if the goal is already satisfied.",
		goal.Description(), delta.Description, investigation, mindfulness,
	)
	messages := sanitizeMessages(append([]ChatMessage{{Role: RoleSystem, Content: systemMsg}}, p.history.Recent(10)...))

	return callWithRetry(ctx, p.logger, p.config.MaxRetries, p.config.RetryBaseWait, func(c context.Context) (ChatResponse, error) {
		return p.llm.Chat(c, messages, ChatOptions{Tools: p.tools.List(), Model: p.config.Model, Temperature: p.config.Temperature})
	})
}

// --- shared system-message assembly ---

// buildSystemMessage assembles the single-pass system prompt: goal, delta
// summary, retrieved skills/warnings, and — when non-empty — the three
// active-strategy sections the closed-loop evolver writes back.
func buildSystemMessage(goal entity.Goal, delta entity.Delta, skills []entity.SkillEntry, warnings []entity.FailureEntry, strategies entity.ActiveStrategies) string {
	var b strings.Builder
	b.WriteString("Goal: ")
	b.WriteString(goal.Description())
	if criteria := goal.SuccessCriteria(); len(criteria) > 0 {
		b.WriteString("\nSuccess criteria:\n")
		for _, c := range criteria {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nCurrent gap: ")
	b.WriteString(delta.Description)
	fmt.Fprintf(&b, " (progress %.0f%%)\n", delta.Progress*100)
	if len(delta.Gaps) > 0 {
		b.WriteString("Outstanding gaps:\n")
		for _, g := range delta.Gaps {
			b.WriteString("- ")
			b.WriteString(g)
			b.WriteString("\n")
		}
	}

	writeSkillSection(&b, skills)
	writeWarningSection(&b, warnings)
	writeStrategySections(&b, strategies)

	b.WriteString("\nCall exactly one tool to make progress, or reply with the single word DONE if the goal is satisfied.")
	return b.String()
}

func writeSkillSection(b *strings.Builder, skills []entity.SkillEntry) {
	if len(skills) == 0 {
		return
	}
	b.WriteString("\nRelevant skills:\n")
	for _, s := range skills {
		fmt.Fprintf(b, "- when %s: %s (condition: %s)\n", s.Trigger, s.Command, s.Condition)
	}
}

func writeWarningSection(b *strings.Builder, warnings []entity.FailureEntry) {
	if len(warnings) == 0 {
		return
	}
	b.WriteString("\nFailure warnings:\n")
	for _, w := range warnings {
		fmt.Fprintf(b, "- [%s] %s (%s)\n", w.Severity, w.Proverb, w.Condition)
	}
}

func writeKarmaSection(b *strings.Builder, label string, entries []entity.KarmaEntry) {
	if len(entries) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(label)
	b.WriteString(":\n")
	for _, e := range entries {
		fmt.Fprintf(b, "- [%s] %s (seen %d times, transfer weight %.2f)\n", e.KarmaType, e.Proverb, e.Occurrences, e.TransferWeight)
	}
}

// writeStrategySections emits the three closed-loop sections the self-evolver
// writes back into — tool preferences sorted descending, avoid patterns,
// approach hints — only when at least one is non-empty.
func writeStrategySections(b *strings.Builder, s entity.ActiveStrategies) {
	if len(s.ToolPreferences) == 0 && len(s.AvoidPatterns) == 0 && len(s.ApproachHints) == 0 {
		return
	}

	if len(s.ToolPreferences) > 0 {
		type pref struct {
			tool   string
			weight float64
		}
		prefs := make([]pref, 0, len(s.ToolPreferences))
		for t, w := range s.ToolPreferences {
			prefs = append(prefs, pref{t, w})
		}
		sort.Slice(prefs, func(i, j int) bool { return prefs[i].weight > prefs[j].weight })

		b.WriteString("\nTool Preferences (learned):\n")
		for _, p := range prefs {
			fmt.Fprintf(b, "- %s: %.0f%% preference\n", p.tool, p.weight*100)
		}
	}

	if len(s.AvoidPatterns) > 0 {
		b.WriteString("\nPatterns to avoid:\n")
		for _, a := range s.AvoidPatterns {
			b.WriteString("- ")
			b.WriteString(a)
			b.WriteString("\n")
		}
	}

	if len(s.ApproachHints) > 0 {
		b.WriteString("\nApproach hints:\n")
		for _, h := range s.ApproachHints {
			b.WriteString("- ")
			b.WriteString(h)
			b.WriteString("\n")
		}
	}
}
