package service

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

func TestDefaultSourceDenyList_MatchesMandatedSet(t *testing.T) {
	got := DefaultSourceDenyList()
	want := []string{"process", "require", "import", "eval", "Function", "fetch"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DefaultSourceDenyList() = %v, want %v", got, want)
	}
}

func TestDanaHook_ImportRejectsSameSource(t *testing.T) {
	h := NewDanaHook("agent-a")
	packet := entity.KnowledgePacket{
		SourceAgentID: "agent-a",
		Gifts:         []entity.KnowledgeGift{{ID: "g1", Confidence: 0.9}},
	}

	_, ok := h.Import(packet, 0.5, 10)
	if ok {
		t.Error("expected a packet from our own agent id to be rejected")
	}
}

func TestDanaHook_ImportFiltersByConfidenceAndCaps(t *testing.T) {
	h := NewDanaHook("agent-a")
	packet := entity.KnowledgePacket{
		SourceAgentID: "agent-b",
		Gifts: []entity.KnowledgeGift{
			{ID: "low", Confidence: 0.2},
			{ID: "mid", Confidence: 0.6},
			{ID: "high1", Confidence: 0.8},
			{ID: "high2", Confidence: 0.9},
		},
	}

	filtered, ok := h.Import(packet, 0.5, 2)
	if !ok {
		t.Fatal("expected a packet from a different agent to be accepted")
	}
	if len(filtered.Gifts) != 2 {
		t.Fatalf("expected gifts capped at 2, got %d: %+v", len(filtered.Gifts), filtered.Gifts)
	}
	for _, g := range filtered.Gifts {
		if g.Confidence < 0.5 {
			t.Errorf("gift %q below confidence threshold survived filtering", g.ID)
		}
	}
}

func TestDanaHook_MergeAveragesExistingPreferences(t *testing.T) {
	h := NewDanaHook("agent-a")
	model := entity.NewSelfModel()
	model.ActiveStrategies.ToolPreferences["grep"] = 0.4

	h.Merge(model, entity.KnowledgePacket{
		Strategies: entity.ActiveStrategies{ToolPreferences: map[string]float64{"grep": 0.8}},
	})

	if got := model.ActiveStrategies.ToolPreferences["grep"]; math.Abs(got-0.6) > 1e-9 {
		t.Errorf("expected existing preference averaged to 0.6, got %v", got)
	}
}

func TestDanaHook_MergeDiscountsNewPreferences(t *testing.T) {
	h := NewDanaHook("agent-a")
	model := entity.NewSelfModel()

	h.Merge(model, entity.KnowledgePacket{
		Strategies: entity.ActiveStrategies{ToolPreferences: map[string]float64{"curl": 1.0}},
	})

	if got := model.ActiveStrategies.ToolPreferences["curl"]; got != 0.7 {
		t.Errorf("expected a brand new preference discounted to 0.7, got %v", got)
	}
}

func TestDanaHook_MergeDeduplicatesAvoidPatternsAndHints(t *testing.T) {
	h := NewDanaHook("agent-a")
	model := entity.NewSelfModel()
	model.ActiveStrategies.AppendAvoidPattern("curl: 80% failure rate")
	model.ActiveStrategies.AppendApproachHint("slow down")

	h.Merge(model, entity.KnowledgePacket{
		Strategies: entity.ActiveStrategies{
			AvoidPatterns: []string{"curl: 80% failure rate", "wget: 90% failure rate"},
			ApproachHints: []string{"slow down", "double-check inputs"},
		},
	})

	if len(model.ActiveStrategies.AvoidPatterns) != 2 {
		t.Errorf("expected the duplicate avoid pattern dropped, got %v", model.ActiveStrategies.AvoidPatterns)
	}
	if len(model.ActiveStrategies.ApproachHints) != 2 {
		t.Errorf("expected the duplicate hint dropped, got %v", model.ActiveStrategies.ApproachHints)
	}
}

func TestHookChain_AfterDelta_FirstVetoWins(t *testing.T) {
	allow := &NoOpHook{}
	veto := vetoHook{reason: "ethics violation"}
	chain := NewHookChain(allow, veto)

	vetoed, reason := chain.AfterDelta(context.Background(), entity.Delta{})
	if !vetoed || reason != "ethics violation" {
		t.Errorf("expected chain veto with reason, got vetoed=%v reason=%q", vetoed, reason)
	}
}

type vetoHook struct {
	NoOpHook
	reason string
}

func (h vetoHook) AfterDelta(_ context.Context, _ entity.Delta) (bool, string) {
	return true, h.reason
}
