package memory

import (
	"context"
	"testing"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

func TestSkillStoreSubstringFallback(t *testing.T) {
	s := NewSkillStore(nil)
	ctx := context.Background()
	_ = s.Store(ctx, entity.SkillEntry{ID: "s1", Trigger: "file missing", Command: "create_file"})
	_ = s.Store(ctx, entity.SkillEntry{ID: "s2", Trigger: "network down", Command: "retry_later"})

	got := s.Retrieve(ctx, "file", 5)
	if len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("expected s1, got %+v", got)
	}
}

func TestFailureStoreCoalescesDuplicates(t *testing.T) {
	s := NewFailureStore(nil)
	ctx := context.Background()
	entry := entity.FailureEntry{ID: "f1", Proverb: "avoid X", Condition: "when Y", Severity: entity.SeverityMedium}
	_ = s.Store(ctx, entry)
	entry.ID = "f2"
	entry.Severity = entity.SeverityHigh
	_ = s.Store(ctx, entry)

	all := s.ExportCurrent()
	if len(all) != 1 {
		t.Fatalf("expected coalesced single entry, got %d", len(all))
	}
	if all[0].Severity != entity.SeverityHigh {
		t.Fatalf("expected latest severity to win, got %v", all[0].Severity)
	}
}

func TestKarmaStoreImpermanenceDecaysMonotonically(t *testing.T) {
	s := NewKarmaStore(nil)
	ctx := context.Background()
	_ = s.Store(ctx, entity.KarmaEntry{
		FailureEntry:   entity.FailureEntry{ID: "k1", Proverb: "p", Condition: "c"},
		TransferWeight: 1.0,
		Occurrences:    1,
	})

	s.ApplyImpermanence(0.05)
	e, ok := s.Get("k1")
	if !ok {
		t.Fatal("entry should survive one decay pass")
	}
	if e.TransferWeight >= 1.0 {
		t.Fatalf("expected weight to strictly decrease, got %v", e.TransferWeight)
	}
}

func TestKarmaStoreImpermanenceEvictsBelowFloor(t *testing.T) {
	s := NewKarmaStore(nil)
	ctx := context.Background()
	_ = s.Store(ctx, entity.KarmaEntry{
		FailureEntry:   entity.FailureEntry{ID: "k1"},
		TransferWeight: 0.04,
	})
	s.ApplyImpermanence(0.05)
	if _, ok := s.Get("k1"); ok {
		t.Fatal("entry below floor should be evicted")
	}
}

func TestKarmaStoreTraceCausalChain(t *testing.T) {
	s := NewKarmaStore(nil)
	ctx := context.Background()
	_ = s.Store(ctx, entity.KarmaEntry{FailureEntry: entity.FailureEntry{ID: "a"}, CausalChain: []string{"b"}, TransferWeight: 1})
	_ = s.Store(ctx, entity.KarmaEntry{FailureEntry: entity.FailureEntry{ID: "b"}, CausalChain: []string{"c"}, TransferWeight: 1})
	_ = s.Store(ctx, entity.KarmaEntry{FailureEntry: entity.FailureEntry{ID: "c"}, TransferWeight: 1})

	chain := s.TraceCausalChain("a")
	if len(chain) != 2 {
		t.Fatalf("expected transitive closure of 2, got %d", len(chain))
	}
}

func TestHierarchicalMemoryPromotionOnConsolidate(t *testing.T) {
	cfg := DefaultHierarchicalMemoryConfig()
	cfg.Working.PromotionAccessMin = 1
	cfg.Working.PromotionThreshold = 0.5
	cfg.Working.DecayPerConsolidate = 0
	m := NewHierarchicalMemory(cfg)

	id := m.Store(entity.LayerWorking, "remember this", nil, 0.9)
	m.Retrieve("remember", entity.LayerWorking) // bump AccessCount to 1
	m.Consolidate()

	stats := m.Stats()
	if stats[entity.LayerEpisodic] != 1 {
		t.Fatalf("expected promotion to episodic, stats=%+v", stats)
	}
	_ = id
}

func TestHierarchicalMemoryDecayEvictsAtZero(t *testing.T) {
	cfg := DefaultHierarchicalMemoryConfig()
	cfg.Working.DecayPerConsolidate = 1.0
	m := NewHierarchicalMemory(cfg)
	m.Store(entity.LayerWorking, "ephemeral", nil, 0.5)
	m.Consolidate()

	stats := m.Stats()
	if stats[entity.LayerWorking] != 0 {
		t.Fatalf("expected full decay to evict entry, stats=%+v", stats)
	}
}

func TestHierarchicalMemorySaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultHierarchicalMemoryConfig()
	m := NewHierarchicalMemory(cfg)
	m.Store(entity.LayerSemantic, "durable fact", map[string]interface{}{"k": "v"}, 1.0)

	if err := m.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded := NewHierarchicalMemory(cfg)
	if err := reloaded.Load(dir); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	stats := reloaded.Stats()
	if stats[entity.LayerSemantic] != 1 {
		t.Fatalf("expected 1 restored semantic entry, stats=%+v", stats)
	}
}
