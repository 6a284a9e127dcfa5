package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/memory"
	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
)

func newTestKernel(t *testing.T, cfg KernelConfig) *Kernel {
	t.Helper()
	skills := memory.NewSkillStore(nil)
	failures := memory.NewFailureStore(nil)
	return NewKernel(nil, domaintool.NewInMemoryRegistry(), nil, cfg, skills, failures, nil, nil, zap.NewNop())
}

func testGoal(t *testing.T) entity.Goal {
	t.Helper()
	g, err := entity.NewGoal("reach the target state")
	if err != nil {
		t.Fatalf("NewGoal: %v", err)
	}
	return *g
}

func eventsOfType(events []entity.AgentEvent, typ entity.AgentEventType) []entity.AgentEvent {
	var out []entity.AgentEvent
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func noopObserve(ctx context.Context) (entity.Snapshot, error) {
	return entity.Snapshot{}, nil
}

func noActionDecide(ctx context.Context, goal entity.Goal, obs entity.Observation, delta entity.Delta) (*entity.Action, []entity.AgentEvent, error) {
	return nil, nil, nil
}

// TestRun_DukkhaEmittedOnlyWhenBothSufferingMetricsPresent guards against
// regressing dukkha:evaluated back to an unconditional emit.
func TestRun_DukkhaEmittedOnlyWhenBothSufferingMetricsPresent(t *testing.T) {
	cfg := DefaultKernelConfig()
	cfg.MaxSteps = 1

	k := newTestKernel(t, cfg)
	k.SetDeltaFn(func(snapshot entity.Snapshot, goal entity.Goal, previous entity.Delta) entity.Delta {
		return entity.Delta{IsComplete: true} // no milestones either, exits after one iteration
	})

	_, events, err := k.Run(context.Background(), testGoal(t), nil, noopObserve, noActionDecide)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := eventsOfType(events, entity.EventDukkhaEvaluated); len(got) != 0 {
		t.Errorf("expected no dukkha:evaluated when suffering metrics are absent, got %v", got)
	}
}

func TestRun_DukkhaEmittedWhenBothSufferingMetricsPresent(t *testing.T) {
	cfg := DefaultKernelConfig()
	cfg.MaxSteps = 1

	suffering, ego := 0.3, 0.2
	k := newTestKernel(t, cfg)
	k.SetDeltaFn(func(snapshot entity.Snapshot, goal entity.Goal, previous entity.Delta) entity.Delta {
		return entity.Delta{IsComplete: true, SufferingDelta: &suffering, EgoNoise: &ego}
	})

	_, events, err := k.Run(context.Background(), testGoal(t), nil, noopObserve, noActionDecide)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := eventsOfType(events, entity.EventDukkhaEvaluated); len(got) != 1 {
		t.Errorf("expected exactly one dukkha:evaluated, got %v", got)
	}
}

// TestRun_IsCompleteExitsBeforeMilestoneCheck guards the fixed step order:
// an IsComplete delta must end the run before the milestone check ever runs,
// even when the same snapshot would also satisfy the pending milestone.
func TestRun_IsCompleteExitsBeforeMilestoneCheck(t *testing.T) {
	cfg := DefaultKernelConfig()
	cfg.MaxSteps = 3

	k := newTestKernel(t, cfg)
	k.SetDeltaFn(func(snapshot entity.Snapshot, goal entity.Goal, previous entity.Delta) entity.Delta {
		return entity.Delta{IsComplete: true}
	})

	milestones := []entity.Milestone{{ID: "m1", ResourceTokens: []string{"anything"}}}
	observe := func(ctx context.Context) (entity.Snapshot, error) {
		return entity.Snapshot{"status": "anything"}, nil
	}

	result, events, err := k.Run(context.Background(), testGoal(t), milestones, observe, noActionDecide)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MilestonesHit != 0 {
		t.Errorf("expected the isComplete exit to pre-empt the milestone check, got %d milestones hit", result.MilestonesHit)
	}
	if got := eventsOfType(events, entity.EventMilestoneReached); len(got) != 0 {
		t.Errorf("expected no milestone:reached event, got %v", got)
	}
	if got := eventsOfType(events, entity.EventAgentComplete); len(got) != 1 {
		t.Errorf("expected exactly one agent:complete event, got %v", got)
	}
}

// TestRun_MilestoneReachDoesNotResetTanhaFlag guards against the sticky
// tanha flag being cleared when a milestone is reached mid-run.
func TestRun_MilestoneReachDoesNotResetTanhaFlag(t *testing.T) {
	cfg := DefaultKernelConfig()
	cfg.MaxSteps = 10
	cfg.LoopWindowSize = 10
	cfg.LoopThreshold = 3
	cfg.LoopNameThreshold = 100 // disable the name-frequency path, isolate exact-match looping

	k := newTestKernel(t, cfg)
	k.SetDeltaFn(func(snapshot entity.Snapshot, goal entity.Goal, previous entity.Delta) entity.Delta {
		return entity.Delta{IsComplete: false}
	})

	calls := 0
	observe := func(ctx context.Context) (entity.Snapshot, error) {
		calls++
		snap := entity.Snapshot{}
		if calls >= 4 {
			snap["status"] = "milestone-token"
		}
		return snap, nil
	}
	decide := func(ctx context.Context, goal entity.Goal, obs entity.Observation, delta entity.Delta) (*entity.Action, []entity.AgentEvent, error) {
		return &entity.Action{ToolName: "flaky"}, nil, nil // never registered: dispatch fails identically every time
	}
	milestones := []entity.Milestone{{ID: "m1", ResourceTokens: []string{"milestone-token"}}}

	result, _, err := k.Run(context.Background(), testGoal(t), milestones, observe, decide)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MilestonesHit != 1 {
		t.Fatalf("expected the milestone to be reached once, got %d", result.MilestonesHit)
	}
	if !result.TanhaFlagged {
		t.Error("expected the tanha flag to stay set after the milestone reach, not be reset")
	}
}

// TestRun_ToolCallVetoSuppressesActionStart guards against a plugin veto
// being applied after action:start has already been emitted.
func TestRun_ToolCallVetoSuppressesActionStart(t *testing.T) {
	cfg := DefaultKernelConfig()
	cfg.MaxSteps = 1

	k := newTestKernel(t, cfg)
	k.SetDeltaFn(func(snapshot entity.Snapshot, goal entity.Goal, previous entity.Delta) entity.Delta {
		return entity.Delta{IsComplete: false}
	})
	k.Hooks().Add(&vetoingToolCallHook{})

	decide := func(ctx context.Context, goal entity.Goal, obs entity.Observation, delta entity.Delta) (*entity.Action, []entity.AgentEvent, error) {
		return &entity.Action{ToolName: "dangerous"}, nil, nil
	}

	// A veto on every iteration never lets the run complete, so it exhausts
	// MaxSteps — the error itself isn't the point of this test, the absence
	// of action:start is.
	_, events, err := k.Run(context.Background(), testGoal(t), nil, noopObserve, decide)
	if err == nil {
		t.Fatal("expected the run to exhaust its steps since every action is vetoed")
	}
	if got := eventsOfType(events, entity.EventActionStart); len(got) != 0 {
		t.Errorf("expected action:start to be suppressed by a tool-call veto, got %v", got)
	}
	if got := eventsOfType(events, entity.EventPluginVeto); len(got) != 1 {
		t.Errorf("expected exactly one plugin:veto event, got %v", got)
	}
}

type vetoingToolCallHook struct{ NoOpHook }

func (vetoingToolCallHook) BeforeToolCall(_ context.Context, _ string, _ map[string]interface{}) bool {
	return false
}

// TestRun_AfterDeltaVetoSkipsDecide guards the afterDelta veto point: a
// vetoed iteration must never reach the decision pipeline at all.
func TestRun_AfterDeltaVetoSkipsDecide(t *testing.T) {
	cfg := DefaultKernelConfig()
	cfg.MaxSteps = 1

	k := newTestKernel(t, cfg)
	k.SetDeltaFn(func(snapshot entity.Snapshot, goal entity.Goal, previous entity.Delta) entity.Delta {
		return entity.Delta{IsComplete: false}
	})
	k.Hooks().Add(&vetoingDeltaHook{})

	decideCalled := false
	decide := func(ctx context.Context, goal entity.Goal, obs entity.Observation, delta entity.Delta) (*entity.Action, []entity.AgentEvent, error) {
		decideCalled = true
		return nil, nil, nil
	}

	// A veto on every iteration never lets the run complete, so it exhausts
	// MaxSteps — the error itself isn't the point of this test, decide never
	// running is.
	_, events, err := k.Run(context.Background(), testGoal(t), nil, noopObserve, decide)
	if err == nil {
		t.Fatal("expected the run to exhaust its steps since every iteration is vetoed")
	}
	if decideCalled {
		t.Error("decide must not run once afterDelta vetoes the iteration")
	}
	if got := eventsOfType(events, entity.EventPluginVeto); len(got) != 1 {
		t.Errorf("expected exactly one plugin:veto event, got %v", got)
	}
}

type vetoingDeltaHook struct{ NoOpHook }

func (vetoingDeltaHook) AfterDelta(_ context.Context, _ entity.Delta) (bool, string) {
	return true, "vetoed for test"
}
