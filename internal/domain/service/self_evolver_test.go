package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

func newTestEvolver(t *testing.T, gate float64, propose ProposeFunc) *SelfEvolver {
	t.Helper()
	return NewSelfEvolver(propose, gate, 0.5, zap.NewNop())
}

func TestEvolve_GateRequiresFiveSamples(t *testing.T) {
	called := false
	e := newTestEvolver(t, 0.1, func(ctx context.Context, model *entity.SelfModel) (entity.EvolutionRecord, bool, error) {
		called = true
		return entity.EvolutionRecord{}, false, nil
	})
	model := entity.NewSelfModel()
	model.SufferingTrend = []float64{0.9, 0.9, 0.9, 0.9} // only 4 samples, well above gate

	rec, err := e.Evolve(context.Background(), model, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no proposal with fewer than 5 samples, got %+v", rec)
	}
	if called {
		t.Error("propose should not run before the sample floor is met")
	}
}

func TestEvolve_TriggersOnTrailingAverageAboveGate(t *testing.T) {
	called := false
	e := newTestEvolver(t, 0.3, func(ctx context.Context, model *entity.SelfModel) (entity.EvolutionRecord, bool, error) {
		called = true
		return entity.EvolutionRecord{Change: "prefer safer tools", Type: EvolutionTypeApproachShift, Confidence: 0.9}, true, nil
	})
	model := entity.NewSelfModel()
	model.SufferingTrend = []float64{0, 0, 0.9, 0.9, 0.9} // last five average well above 0.3

	rec, err := e.Evolve(context.Background(), model, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected propose to run once the trailing average exceeds the gate")
	}
	if rec == nil {
		t.Fatal("expected an applied record")
	}
}

func TestEvolve_TriggersOnTanhaFlagAloneEvenWithCalmTrend(t *testing.T) {
	called := false
	e := newTestEvolver(t, 0.9, func(ctx context.Context, model *entity.SelfModel) (entity.EvolutionRecord, bool, error) {
		called = true
		return entity.EvolutionRecord{Change: "approach shift", Type: EvolutionTypeApproachShift, Confidence: 0.9}, true, nil
	})
	model := entity.NewSelfModel()
	model.SufferingTrend = []float64{0, 0, 0, 0, 0} // trailing average 0, far below the 0.9 gate

	rec, err := e.Evolve(context.Background(), model, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("a flagged tanha loop must trigger evolution even with a calm suffering trend")
	}
	if rec == nil {
		t.Fatal("expected an applied record")
	}
}

func TestEvolve_NoTriggerReturnsNilNilNotError(t *testing.T) {
	e := newTestEvolver(t, 0.9, func(ctx context.Context, model *entity.SelfModel) (entity.EvolutionRecord, bool, error) {
		t.Fatal("propose must not run when the gate does not trigger")
		return entity.EvolutionRecord{}, false, nil
	})
	model := entity.NewSelfModel()
	model.SufferingTrend = []float64{0, 0, 0, 0, 0}

	rec, err := e.Evolve(context.Background(), model, false)
	if err != nil {
		t.Fatalf("an untripped gate is not a failure, got error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no proposal, got %+v", rec)
	}
}

func TestEvolve_ProposeErrorPropagates(t *testing.T) {
	wantErr := errors.New("llm unavailable")
	e := newTestEvolver(t, 0.1, func(ctx context.Context, model *entity.SelfModel) (entity.EvolutionRecord, bool, error) {
		return entity.EvolutionRecord{}, false, wantErr
	})
	model := entity.NewSelfModel()
	model.SufferingTrend = []float64{0.9, 0.9, 0.9, 0.9, 0.9}

	_, err := e.Evolve(context.Background(), model, false)
	if err == nil {
		t.Fatal("expected propose's error to propagate")
	}
}

func TestEvolve_ToolPreferenceDispatchPositive(t *testing.T) {
	e := newTestEvolver(t, 0.1, func(ctx context.Context, model *entity.SelfModel) (entity.EvolutionRecord, bool, error) {
		return entity.EvolutionRecord{Change: "prefer using grep more often", Type: EvolutionTypeToolPreference, Confidence: 0.9}, true, nil
	})
	model := entity.NewSelfModel()
	model.SufferingTrend = []float64{0.9, 0.9, 0.9, 0.9, 0.9}
	model.ToolStats["grep"] = &entity.ToolStat{Uses: 10, Successes: 9}
	model.ActiveStrategies.ToolPreferences["grep"] = 0.3

	if _, err := e.Evolve(context.Background(), model, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := model.ActiveStrategies.ToolPreferences["grep"]; got != 0.5 {
		t.Errorf("expected grep preference nudged up to 0.5, got %v", got)
	}
}

func TestEvolve_ToolPreferenceDispatchNegativeLexeme(t *testing.T) {
	e := newTestEvolver(t, 0.1, func(ctx context.Context, model *entity.SelfModel) (entity.EvolutionRecord, bool, error) {
		return entity.EvolutionRecord{Change: "avoid grep, it keeps failing", Type: EvolutionTypeToolPreference, Confidence: 0.9}, true, nil
	})
	model := entity.NewSelfModel()
	model.SufferingTrend = []float64{0.9, 0.9, 0.9, 0.9, 0.9}
	model.ToolStats["grep"] = &entity.ToolStat{Uses: 10, Failures: 9}
	model.ActiveStrategies.ToolPreferences["grep"] = 0.5

	if _, err := e.Evolve(context.Background(), model, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := model.ActiveStrategies.ToolPreferences["grep"]; got != 0.3 {
		t.Errorf("expected grep preference nudged down to 0.3, got %v", got)
	}
}

func TestEvolve_ApproachShiftAppendsHint(t *testing.T) {
	e := newTestEvolver(t, 0.1, func(ctx context.Context, model *entity.SelfModel) (entity.EvolutionRecord, bool, error) {
		return entity.EvolutionRecord{Change: "slow down between retries", Type: EvolutionTypeApproachShift, Confidence: 0.9}, true, nil
	})
	model := entity.NewSelfModel()
	model.SufferingTrend = []float64{0.9, 0.9, 0.9, 0.9, 0.9}

	if _, err := e.Evolve(context.Background(), model, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(model.ActiveStrategies.ApproachHints) != 1 || model.ActiveStrategies.ApproachHints[0] != "slow down between retries" {
		t.Errorf("expected approach hint appended, got %v", model.ActiveStrategies.ApproachHints)
	}
}

func TestEvolve_MilestoneReorderPrefixesHint(t *testing.T) {
	e := newTestEvolver(t, 0.1, func(ctx context.Context, model *entity.SelfModel) (entity.EvolutionRecord, bool, error) {
		return entity.EvolutionRecord{Change: "tackle setup before validation", Type: EvolutionTypeMilestoneReorder, Confidence: 0.9}, true, nil
	})
	model := entity.NewSelfModel()
	model.SufferingTrend = []float64{0.9, 0.9, 0.9, 0.9, 0.9}

	if _, err := e.Evolve(context.Background(), model, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(model.ActiveStrategies.ApproachHints) != 1 {
		t.Fatalf("expected one approach hint, got %v", model.ActiveStrategies.ApproachHints)
	}
	if model.ActiveStrategies.ApproachHints[0] != "milestone order: tackle setup before validation" {
		t.Errorf("expected prefixed hint, got %q", model.ActiveStrategies.ApproachHints[0])
	}
}

func TestEvolve_UnknownTypeRecordedWithoutEffect(t *testing.T) {
	e := newTestEvolver(t, 0.1, func(ctx context.Context, model *entity.SelfModel) (entity.EvolutionRecord, bool, error) {
		return entity.EvolutionRecord{Change: "something", Type: "strategy_adjustment", Confidence: 0.9}, true, nil
	})
	model := entity.NewSelfModel()
	model.SufferingTrend = []float64{0.9, 0.9, 0.9, 0.9, 0.9}

	rec, err := e.Evolve(context.Background(), model, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected the record to still be applied to the log")
	}
	if len(model.EvolutionLog) != 1 {
		t.Errorf("expected evolution log to record the proposal, got %v", model.EvolutionLog)
	}
	if len(model.ActiveStrategies.ApproachHints) != 0 || len(model.ActiveStrategies.ToolPreferences) != 0 {
		t.Error("expected an unrecognized type to have no effect on active strategies")
	}
}

func TestEvolve_BelowConfidenceDiscarded(t *testing.T) {
	e := newTestEvolver(t, 0.1, func(ctx context.Context, model *entity.SelfModel) (entity.EvolutionRecord, bool, error) {
		return entity.EvolutionRecord{Change: "x", Type: EvolutionTypeApproachShift, Confidence: 0.1}, true, nil
	})
	model := entity.NewSelfModel()
	model.SufferingTrend = []float64{0.9, 0.9, 0.9, 0.9, 0.9}

	rec, err := e.Evolve(context.Background(), model, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected low-confidence proposal discarded, got %+v", rec)
	}
	if len(model.EvolutionLog) != 0 {
		t.Error("discarded proposal must not be recorded")
	}
}
