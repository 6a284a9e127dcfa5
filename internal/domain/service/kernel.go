package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/memory"
	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
)

// ErrAlreadyRunning is returned by Run when a caller tries to start a second
// run against a kernel that already has one in flight.
var ErrAlreadyRunning = fmt.Errorf("kernel: a run is already in progress")

// KernelConfig mirrors the teacher's AgentLoopConfig shape, narrowed and
// renamed for the Delta/Action/Milestone loop instead of a free-form chat.
type KernelConfig struct {
	MaxSteps         int
	MaxOutputChars   int
	Temperature      float64
	Model            string
	MaxRetries       int
	RetryBaseWait    time.Duration
	MaxParallelTools int
	MaxTokenBudget   int64
	MaxRunDuration   time.Duration
	ToolTimeout      time.Duration
	ContextMaxTokens int
	ContextWarnRatio float64
	ContextHardRatio float64
	LoopWindowSize   int
	LoopThreshold    int
	LoopNameThreshold int
	SufferingGateThreshold float64 // self-evolver's gate triggers an evolution cycle once the trailing suffering average exceeds this
}

// DefaultKernelConfig returns sensible defaults grounded on the teacher's
// DefaultAgentLoopConfig.
func DefaultKernelConfig() KernelConfig {
	return KernelConfig{
		MaxSteps:               50,
		MaxOutputChars:         8000,
		Temperature:            0.3,
		Model:                  "default",
		MaxRetries:             3,
		RetryBaseWait:          2 * time.Second,
		MaxParallelTools:       4,
		MaxTokenBudget:         200_000,
		MaxRunDuration:         30 * time.Minute,
		ToolTimeout:            60 * time.Second,
		ContextMaxTokens:       128_000,
		ContextWarnRatio:       0.75,
		ContextHardRatio:       0.92,
		LoopWindowSize:         10,
		LoopThreshold:          3,
		LoopNameThreshold:      8,
		SufferingGateThreshold: 0.6,
	}
}

// ObserveFunc is the caller-supplied pure function the kernel invokes at the
// start of every iteration to capture the world as a Snapshot.
type ObserveFunc func(ctx context.Context) (entity.Snapshot, error)

// Kernel is the Agent Kernel: the 10-step observe→delta→milestone-check→
// plugin-gate→decide→dispatch→self-model→causal-analysis→failure-recording
// loop described as the runtime's core.
type Kernel struct {
	llm      LLMAdapter
	tools    domaintool.Registry
	policy   *domaintool.Policy
	config   KernelConfig
	hooks    *HookChain
	mw       *MiddlewarePipeline
	state    *StateMachine
	cost     *CostGuard
	ctxGuard *ContextGuard
	tanha    *TanhaDetector
	logger   *zap.Logger

	selfModel     *entity.SelfModel
	skills        *memory.SkillStore
	failures      *memory.FailureStore
	karma         *memory.KarmaStore
	hierarchical  *memory.HierarchicalMemory

	milestoneRunner *MilestoneRunner
	evolver         *SelfEvolver
	recentActions   []string // ring buffer of recent tool names, for causal inference

	// causalFn, when set, replaces inferCausalLink's local heuristic with an
	// LLM-backed judgement of whether a prior action caused the failure.
	// May be nil — the heuristic is then used instead.
	causalFn func(ctx context.Context, cause string, effect entity.FailureEntry) (entity.CausalLink, bool)

	// resultObserver lets the decision pipeline correlate a dispatched
	// tool's result back into its own chat history.
	resultObserver func(action *entity.Action, result entity.ToolResult)

	running      int32 // atomic: 1 while a Run is in flight
	stopRequested int32

	// deltaFn computes the LLM-backed Delta. Defaults to carrying the
	// previous Delta forward unchanged, so a kernel used only for tool
	// dispatch in tests doesn't need one wired up.
	deltaFn func(snapshot entity.Snapshot, goal entity.Goal, previous entity.Delta) entity.Delta
}

// SetDeltaFn wires a caller-supplied delta computation into the kernel
// loop; without one, the previous delta is carried forward unchanged.
func (k *Kernel) SetDeltaFn(fn func(snapshot entity.Snapshot, goal entity.Goal, previous entity.Delta) entity.Delta) {
	k.deltaFn = fn
}

// NewKernel wires every collaborator the 10-step loop depends on.
func NewKernel(
	llm LLMAdapter,
	tools domaintool.Registry,
	policy *domaintool.Policy,
	config KernelConfig,
	skills *memory.SkillStore,
	failures *memory.FailureStore,
	karma *memory.KarmaStore,
	hierarchical *memory.HierarchicalMemory,
	logger *zap.Logger,
) *Kernel {
	return &Kernel{
		llm:          llm,
		tools:        tools,
		policy:       policy,
		config:       config,
		hooks:        NewHookChain(),
		mw:           NewMiddlewarePipeline(),
		state:        NewStateMachine(config.MaxSteps, logger),
		cost:         NewCostGuard(config.MaxTokenBudget, config.MaxRunDuration, logger),
		ctxGuard:     NewContextGuard(config.ContextMaxTokens, config.ContextWarnRatio, config.ContextHardRatio, logger),
		tanha:        NewTanhaDetector(config.LoopWindowSize, config.LoopThreshold, config.LoopNameThreshold, logger),
		logger:       logger,
		selfModel:    entity.NewSelfModel(),
		skills:       skills,
		failures:     failures,
		karma:        karma,
		hierarchical: hierarchical,
	}
}

// SetHooks replaces the kernel's plugin hook chain wholesale (Sila/Dana/
// Virya are registered by the caller via HookChain.Add before this is set,
// or after via the chain reference returned by Hooks()).
func (k *Kernel) SetHooks(h *HookChain) { k.hooks = h }

// Hooks returns the live hook chain for incremental registration.
func (k *Kernel) Hooks() *HookChain { return k.hooks }

// SetMiddleware replaces the kernel's middleware pipeline.
func (k *Kernel) SetMiddleware(mw *MiddlewarePipeline) { k.mw = mw }

// SelfModel exposes the live self-model for the self-evolver to read and
// mutate between runs.
func (k *Kernel) SelfModel() *entity.SelfModel { return k.selfModel }

// RestoreSelfModel replaces the kernel's self-model, used when resuming from
// a persisted SelfModelRepository record.
func (k *Kernel) RestoreSelfModel(m *entity.SelfModel) {
	if m != nil {
		k.selfModel = m
	}
}

// StateMachine exposes the kernel's run-state machine for external
// observation (CLI/REPL progress rendering).
func (k *Kernel) StateMachine() *StateMachine { return k.state }

// SetMilestoneRunner wires the two-phase, LLM-confirmed milestone checker
// into the kernel loop, replacing the fallback substring-only check used
// when none is configured.
func (k *Kernel) SetMilestoneRunner(r *MilestoneRunner) { k.milestoneRunner = r }

// SetEvolver wires the Anatta self-evolution closed loop, invoked once a
// run reaches a terminal state.
func (k *Kernel) SetEvolver(e *SelfEvolver) { k.evolver = e }

// SetCausalFn wires an LLM-backed causal-inference callback, replacing
// the built-in immediate-predecessor heuristic.
func (k *Kernel) SetCausalFn(fn func(ctx context.Context, cause string, effect entity.FailureEntry) (entity.CausalLink, bool)) {
	k.causalFn = fn
}

// SetResultObserver wires a callback invoked with every dispatched action's
// result, so a decision pipeline can append it to its chat history.
func (k *Kernel) SetResultObserver(fn func(action *entity.Action, result entity.ToolResult)) {
	k.resultObserver = fn
}

// AddTool registers (or replaces) a single tool against the kernel's
// registry — used both for initial wiring and for Virya's runtime tool
// synthesis.
func (k *Kernel) AddTool(tool domaintool.Tool) error { return k.tools.Register(tool) }

// GetToolNames returns every tool name currently registered.
func (k *Kernel) GetToolNames() []string {
	defs := k.tools.List()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}

// GetState returns a point-in-time snapshot of the kernel's run state.
func (k *Kernel) GetState() StateSnapshot { return k.state.Snapshot() }

// Stop requests that an in-flight Run terminate at its next loop boundary.
// It has no effect when no run is active.
func (k *Kernel) Stop() { atomic.StoreInt32(&k.stopRequested, 1) }

// Step is the outcome of one iteration of the kernel loop.
type Step struct {
	Observation entity.Observation
	Delta       entity.Delta
	Action      *entity.Action
	Result      *entity.ToolResult
	Vetoed      bool
	VetoReason  string
	MilestoneHit *entity.Milestone
	TanhaFlagged bool
	Events      []entity.AgentEvent
}

// Run executes the kernel loop against goal until either every milestone of
// a non-empty milestone list is reached, the goal's delta reports
// completion, decide returns no action, maxSteps is exhausted, or a hard
// error/cancellation terminates the run. observe is invoked once per
// iteration; decide is the decision-pipeline callback (single-pass or
// Seven-Factor, chosen by the caller) that turns an Observation+Delta into
// an Action.
func (k *Kernel) Run(
	ctx context.Context,
	goal entity.Goal,
	milestones []entity.Milestone,
	observe ObserveFunc,
	decide func(ctx context.Context, goal entity.Goal, obs entity.Observation, delta entity.Delta) (*entity.Action, []entity.AgentEvent, error),
) (*AgentResult, []entity.AgentEvent, error) {
	if !atomic.CompareAndSwapInt32(&k.running, 0, 1) {
		return nil, nil, ErrAlreadyRunning
	}
	defer atomic.StoreInt32(&k.running, 0)
	atomic.StoreInt32(&k.stopRequested, 0)

	k.state = NewStateMachine(k.config.MaxSteps, k.logger)
	k.cost = NewCostGuard(k.config.MaxTokenBudget, k.config.MaxRunDuration, k.logger)
	k.tanha.Reset()

	if err := k.state.Transition(StateStreaming); err != nil {
		return nil, nil, err
	}

	ctx = WithTraceID(ctx, TraceIDFromContext(ctx))
	traceID := TraceIDFromContext(ctx)
	runLogger := k.logger.With(zap.String("trace_id", traceID))
	runLogger.Info("agent run started", zap.String("goal", goal.Description()))

	events := make([]entity.AgentEvent, 0, 64)
	emit := func(ev entity.AgentEvent) { events = append(events, ev) }
	emit(entity.AgentEvent{Type: entity.EventAgentStart, Payload: map[string]interface{}{"goal": goal.Description(), "trace_id": traceID}})

	result := &AgentResult{TotalMilestones: len(milestones)}
	milestoneIdx := 0
	var lastDelta entity.Delta

	for step := 0; step < k.config.MaxSteps; step++ {
		result.TotalSteps = step + 1
		k.state.SetStep(step)

		if err := ctx.Err(); err != nil {
			_ = k.state.Transition(StateAborted)
			return result, events, err
		}
		if atomic.LoadInt32(&k.stopRequested) == 1 {
			_ = k.state.Transition(StateAborted)
			emit(entity.AgentEvent{Type: entity.EventAgentError, Step: step, Error: "stop requested"})
			result.FinalDelta = lastDelta
			result.TanhaFlagged = k.tanha.Flagged()
			return result, events, nil
		}
		if err := k.cost.CheckBudget(); err != nil {
			_ = k.state.Transition(StateError)
			emit(entity.AgentEvent{Type: entity.EventAgentError, Step: step, Error: err.Error()})
			return result, events, err
		}

		snapshot, err := observe(ctx)
		if err != nil {
			_ = k.state.Transition(StateError)
			k.state.RecordError()
			emit(entity.AgentEvent{Type: entity.EventAgentError, Step: step, Error: err.Error()})
			return result, events, fmt.Errorf("observe failed at step %d: %w", step, err)
		}

		obs := entity.Observation{Snapshot: snapshot, ObservedAt: time.Now().Unix(), BiasScore: 0.1, MindfulnessLevel: 0.9}
		if k.tanha.Flagged() {
			obs.MindfulnessLevel = 0.3
			obs.BiasScore = 0.8
		}
		emit(entity.AgentEvent{Type: entity.EventObservationCaptured, Step: step, Payload: map[string]interface{}{"snapshot": snapshot.String()}})

		delta := k.computeDelta(snapshot, goal, lastDelta)
		lastDelta = delta
		if delta.SufferingDelta != nil && delta.EgoNoise != nil {
			emit(entity.AgentEvent{Type: entity.EventDukkhaEvaluated, Step: step, Delta: &delta})
		}

		if delta.IsComplete || (len(milestones) > 0 && milestoneIdx >= len(milestones)) {
			result.FinalDelta = delta
			result.TanhaFlagged = k.tanha.Flagged()
			_ = k.state.Transition(StateComplete)
			emit(entity.AgentEvent{Type: entity.EventAgentComplete, Step: step, Delta: &delta})
			k.evolve(ctx, emit)
			k.hooks.OnComplete(ctx, result)
			runLogger.Info("agent run complete", zap.Int("steps", result.TotalSteps), zap.Int("milestones_hit", result.MilestonesHit))
			return result, events, nil
		}

		if milestoneIdx < len(milestones) {
			var hit entity.Milestone
			var reached bool
			if k.milestoneRunner != nil {
				var mErr error
				hit, reached, mErr = k.milestoneRunner.CheckReached(ctx, snapshot)
				if mErr != nil {
					k.logger.Warn("milestone judge failed", zap.Error(mErr))
				}
			} else {
				hit, reached = checkMilestoneReached(milestones[milestoneIdx], snapshot)
				if reached {
					hit = hit.Reached(time.Now())
				}
			}
			if reached {
				milestones[milestoneIdx] = hit
				result.MilestonesHit++
				emit(entity.AgentEvent{Type: entity.EventMilestoneReached, Step: step, Milestone: &hit})
				milestoneIdx++

				if k.milestoneRunner != nil {
					if rErr := k.milestoneRunner.Reset(ctx); rErr != nil {
						_ = k.state.Transition(StateError)
						k.state.RecordError()
						emit(entity.AgentEvent{Type: entity.EventAgentError, Step: step, Error: rErr.Error()})
						return result, events, fmt.Errorf("context reset failed at step %d: %w", step, rErr)
					} else {
						lastDelta = entity.Delta{}
						emit(entity.AgentEvent{Type: entity.EventContextReset, Step: step})
					}
				}
			}
		}

		if vetoed, reason := k.hooks.AfterDelta(ctx, delta); vetoed {
			emit(entity.AgentEvent{Type: entity.EventPluginVeto, Step: step, Error: reason})
			continue
		}

		action, err := decide(ctx, goal, obs, delta)
		if err != nil {
			_ = k.state.Transition(StateError)
			k.state.RecordError()
			emit(entity.AgentEvent{Type: entity.EventAgentError, Step: step, Error: err.Error()})
			return result, events, fmt.Errorf("decide failed at step %d: %w", step, err)
		}
		if action == nil {
			// The decision pipeline returned no action (a DONE reply or an
			// empty response): the run ends cleanly.
			result.FinalDelta = delta
			result.TanhaFlagged = k.tanha.Flagged()
			_ = k.state.Transition(StateComplete)
			emit(entity.AgentEvent{Type: entity.EventAgentComplete, Step: step, Delta: &delta})
			k.evolve(ctx, emit)
			k.hooks.OnComplete(ctx, result)
			runLogger.Info("agent run complete", zap.Int("steps", result.TotalSteps), zap.Int("milestones_hit", result.MilestonesHit))
			return result, events, nil
		}

		if !k.hooks.BeforeToolCall(ctx, action.ToolName, action.Parameters) {
			emit(entity.AgentEvent{Type: entity.EventPluginVeto, Step: step, Action: action})
			continue
		}
		emit(entity.AgentEvent{Type: entity.EventActionStart, Step: step, Action: action})

		toolResult := k.dispatch(ctx, action)
		result.ToolsUsed = append(result.ToolsUsed, action.ToolName)
		k.state.RecordToolExec(action.ToolName)
		outputJSON, jsonErr := json.Marshal(toolResult.Output)
		if jsonErr != nil {
			outputJSON = []byte(fmt.Sprintf("%q", fmt.Sprint(toolResult.Output)))
		}
		k.hooks.AfterToolCall(ctx, action.ToolName, string(outputJSON), toolResult.Success)
		emit(entity.AgentEvent{Type: entity.EventActionComplete, Step: step, Action: action, Result: &toolResult})
		if k.resultObserver != nil {
			k.resultObserver(action, toolResult)
		}

		sufferingDelta := 0.0
		if delta.SufferingDelta != nil {
			sufferingDelta = *delta.SufferingDelta
		}
		k.selfModel.RecordToolUse(action.ToolName, toolResult.Success, sufferingDelta)

		outcomeTag := "ok"
		if !toolResult.Success {
			outcomeTag = tagFromError(toolResult.Error)
			entry := entity.FailureEntry{
				ID:        fmt.Sprintf("%s-%d", action.ToolName, step),
				Proverb:   fmt.Sprintf("Avoid using %s with these parameters when %s", action.ToolName, outcomeTag),
				Condition: outcomeTag,
				Severity:  entity.SeverityMedium,
				Source:    action.ToolName,
			}
			_ = k.failures.Store(ctx, entry)
			emit(entity.AgentEvent{Type: entity.EventFailureRecorded, Step: step, Failure: &entry})

			if k.karma != nil {
				karmaEntry := k.recordKarma(ctx, action.ToolName, outcomeTag, entry)
				emit(entity.AgentEvent{Type: entity.EventKarmaStored, Step: step, Karma: &karmaEntry})

				if link, ok := k.inferCausalLink(ctx, karmaEntry.ID, entry); ok {
					k.mergeCausalLink(ctx, karmaEntry.ID, link)
					emit(entity.AgentEvent{Type: entity.EventCausalAnalyzed, Step: step, Causal: &link})
				}
			}
		}
		k.recordRecentAction(action.ToolName)

		wasFlagged := k.tanha.Flagged()
		if reflection := k.tanha.Observe(action.ToolName, outcomeTag); reflection != "" {
			k.logger.Info("tanha reflection injected", zap.String("tool", action.ToolName))
		}
		if !wasFlagged && k.tanha.Flagged() {
			info := k.tanha.Info()
			emit(entity.AgentEvent{Type: entity.EventTanhaLoopDetected, Step: step, Payload: map[string]interface{}{
				"pattern": info.Pattern, "count": info.Count,
			}})
		}
	}

	result.FinalDelta = lastDelta
	result.TanhaFlagged = k.tanha.Flagged()
	_ = k.state.Transition(StateError)
	emit(entity.AgentEvent{Type: entity.EventAgentError, Error: "max steps exhausted"})
	k.evolve(ctx, emit)
	runErr := fmt.Errorf("kernel run exhausted %d steps without completion", k.config.MaxSteps)
	k.hooks.OnError(ctx, runErr, k.config.MaxSteps)
	return result, events, runErr
}

// computeDelta invokes the wired deltaFn, or carries
// the previous delta forward unchanged if none was configured.
func (k *Kernel) computeDelta(snapshot entity.Snapshot, goal entity.Goal, previous entity.Delta) entity.Delta {
	if k.deltaFn != nil {
		return k.deltaFn(snapshot, goal, previous)
	}
	return previous
}

const causalWindowSize = 5

// recordRecentAction appends toolName to the causal-inference ring buffer,
// evicting the oldest entry once causalWindowSize is exceeded.
func (k *Kernel) recordRecentAction(toolName string) {
	k.recentActions = append(k.recentActions, toolName)
	if len(k.recentActions) > causalWindowSize {
		k.recentActions = k.recentActions[len(k.recentActions)-causalWindowSize:]
	}
}

// recordKarma upserts the karma entry for a recurring (tool, outcome)
// pattern: a fresh pattern is stored at the base transfer weight; a
// recurrence bumps occurrence count/weight and escalates severity once it
// has repeated three or more times.
func (k *Kernel) recordKarma(ctx context.Context, toolName, outcomeTag string, failure entity.FailureEntry) entity.KarmaEntry {
	id := fmt.Sprintf("karma-%s-%s", toolName, outcomeTag)

	if existing, ok := k.karma.Get(id); ok {
		k.karma.RecordOccurrence(id, time.Now())
		updated, _ := k.karma.Get(id)
		if updated.Occurrences >= 3 {
			updated.Severity = entity.SeverityHigh
			_ = k.karma.Store(ctx, updated)
		}
		return updated
	}

	entry := entity.KarmaEntry{
		FailureEntry:   failure,
		TransferWeight: 0.4,
		KarmaType:      entity.KarmaUnskillful,
		Occurrences:    1,
		LastSeen:       time.Now(),
	}
	entry.ID = id
	_ = k.karma.Store(ctx, entry)
	return entry
}

// inferCausalLink treats the action immediately preceding the one that just
// failed as its probable cause — a cheap, local analogue of the ring
// buffer + LLM causal inference approach: strength is 1 divided by the
// number of actions in the ring buffer, and no link is inferred when there
// is no preceding action to blame.
func (k *Kernel) inferCausalLink(ctx context.Context, effectID string, effect entity.FailureEntry) (entity.CausalLink, bool) {
	if len(k.recentActions) == 0 {
		return entity.CausalLink{}, false
	}
	cause := k.recentActions[len(k.recentActions)-1]

	if k.causalFn != nil {
		link, ok := k.causalFn(ctx, cause, effect)
		if ok {
			link.EffectID = effectID
		}
		return link, ok
	}

	return entity.CausalLink{
		CauseID:   cause,
		EffectID:  effectID,
		Strength:  1.0 / float64(len(k.recentActions)),
		Reasoning: fmt.Sprintf("%s immediately preceded the failure recorded as %s", cause, effectID),
	}, true
}

// mergeCausalLink appends link's cause into the karma entry's causal chain.
func (k *Kernel) mergeCausalLink(ctx context.Context, entryID string, link entity.CausalLink) {
	entry, ok := k.karma.Get(entryID)
	if !ok {
		return
	}
	for _, existing := range entry.CausalChain {
		if existing == link.CauseID {
			return
		}
	}
	entry.CausalChain = append(entry.CausalChain, link.CauseID)
	_ = k.karma.Store(ctx, entry)
}

// evolve applies karma impermanence decay (rate 0.05) when a karma store is
// wired, then runs one Anatta self-evolution cycle against the kernel's live
// self-model, emitting anatta:evolved on an accepted proposal. Errors are
// logged, not fatal; an untripped suffering gate is not an error.
func (k *Kernel) evolve(ctx context.Context, emit func(entity.AgentEvent)) {
	if k.karma != nil {
		k.karma.ApplyImpermanence(0.05)
	}
	if k.evolver == nil {
		return
	}
	rec, err := k.evolver.Evolve(ctx, k.selfModel, k.tanha.Flagged())
	if err != nil {
		k.logger.Info("self-evolution cycle declined", zap.Error(err))
		return
	}
	if rec == nil {
		return
	}
	emit(entity.AgentEvent{Type: entity.EventAnattaEvolved, Evolution: rec})
}

// dispatch executes action against the tool registry/policy, honoring the
// configured per-call timeout.
func (k *Kernel) dispatch(ctx context.Context, action *entity.Action) entity.ToolResult {
	if k.policy != nil && !k.policy.IsAllowed(action.ToolName) {
		return entity.ToolResult{Success: false, Error: fmt.Sprintf("tool %q not allowed by policy", action.ToolName)}
	}
	tool, ok := k.tools.Get(action.ToolName)
	if !ok {
		return entity.ToolResult{Success: false, Error: fmt.Sprintf("Tool not found: %s", action.ToolName)}
	}

	execCtx, cancel := context.WithTimeout(ctx, k.config.ToolTimeout)
	defer cancel()

	res, err := tool.Execute(execCtx, action.Parameters)
	if err != nil {
		return entity.ToolResult{Success: false, Error: err.Error()}
	}
	out := res.ToEntity()
	out.Output = truncateOutput(fmt.Sprint(out.Output), k.config.MaxOutputChars)
	return out
}

func checkMilestoneReached(m entity.Milestone, snapshot entity.Snapshot) (entity.Milestone, bool) {
	if len(m.ResourceTokens) == 0 {
		return m, false
	}
	rendered := snapshot.String()
	for _, tok := range m.ResourceTokens {
		if !contains(rendered, tok) {
			return m, false
		}
	}
	return m, true
}

func contains(haystack, needle string) bool {
	return needle == "" || indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}

func tagFromError(errMsg string) string {
	if errMsg == "" {
		return "unknown"
	}
	if len(errMsg) > 40 {
		return errMsg[:40]
	}
	return errMsg
}
