package tool

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/memory"
	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
)

// fakeVectorStore is an in-memory memory.VectorStore for testing, returning
// the first topK stored entries regardless of the query.
type fakeVectorStore struct {
	entries []*memory.MemoryEntry
}

func (s *fakeVectorStore) Insert(ctx context.Context, entry *memory.MemoryEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeVectorStore) Search(ctx context.Context, query []float32, topK int, filter *memory.SearchFilter) ([]*memory.MemoryEntry, error) {
	if topK > len(s.entries) {
		topK = len(s.entries)
	}
	return s.entries[:topK], nil
}

func (s *fakeVectorStore) Delete(ctx context.Context, id string) error {
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeVectorStore) Update(ctx context.Context, entry *memory.MemoryEntry) error { return nil }

func (s *fakeVectorStore) GetBySession(ctx context.Context, sessionID string) ([]*memory.MemoryEntry, error) {
	return nil, nil
}

// fakeEmbedder returns a fixed-dimension zero vector; tests here care about
// plumbing, not real semantic similarity.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0, 0, 0}, nil
}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0, 0, 0}
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 3 }

func TestRememberTool_StoresAndReturnsID(t *testing.T) {
	store := &fakeVectorStore{}
	manager := memory.NewMemoryManager(store, fakeEmbedder{})
	tl := NewRememberTool(manager, zap.NewNop())

	result, err := tl.Execute(context.Background(), map[string]interface{}{"content": "the sky is blue"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if len(store.entries) != 1 || store.entries[0].Content != "the sky is blue" {
		t.Errorf("expected fact stored in vector store, got %+v", store.entries)
	}
}

func TestRememberTool_RequiresContent(t *testing.T) {
	manager := memory.NewMemoryManager(&fakeVectorStore{}, fakeEmbedder{})
	tl := NewRememberTool(manager, zap.NewNop())

	result, err := tl.Execute(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Error("expected failure when content is missing")
	}
}

func TestRecallTool_ReturnsStoredFacts(t *testing.T) {
	store := &fakeVectorStore{}
	manager := memory.NewMemoryManager(store, fakeEmbedder{})
	remember := NewRememberTool(manager, zap.NewNop())
	recall := NewRecallTool(manager, zap.NewNop())

	if _, err := remember.Execute(context.Background(), map[string]interface{}{"content": "fact one"}); err != nil {
		t.Fatalf("seed remember: %v", err)
	}
	if _, err := remember.Execute(context.Background(), map[string]interface{}{"content": "fact two"}); err != nil {
		t.Fatalf("seed remember: %v", err)
	}

	result, err := recall.Execute(context.Background(), map[string]interface{}{"query": "fact", "top_k": float64(5)})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if result.Metadata["count"] != 2 {
		t.Errorf("expected count=2, got %v", result.Metadata["count"])
	}
}

func TestRecallTool_NoResultsMessage(t *testing.T) {
	manager := memory.NewMemoryManager(&fakeVectorStore{}, fakeEmbedder{})
	recall := NewRecallTool(manager, zap.NewNop())

	result, err := recall.Execute(context.Background(), map[string]interface{}{"query": "anything"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output != "no relevant memories found" {
		t.Errorf("unexpected output: %q", result.Output)
	}
}

func TestRecallTool_RequiresQuery(t *testing.T) {
	manager := memory.NewMemoryManager(&fakeVectorStore{}, fakeEmbedder{})
	recall := NewRecallTool(manager, zap.NewNop())

	result, err := recall.Execute(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Error("expected failure when query is missing")
	}
}

func TestRegisterMemoryTools(t *testing.T) {
	reg := domaintool.NewInMemoryRegistry()
	manager := memory.NewMemoryManager(&fakeVectorStore{}, fakeEmbedder{})

	if err := RegisterMemoryTools(reg, manager, zap.NewNop()); err != nil {
		t.Fatalf("RegisterMemoryTools: %v", err)
	}
	if _, ok := reg.Get("remember"); !ok {
		t.Error("expected remember tool registered")
	}
	if _, ok := reg.Get("recall"); !ok {
		t.Error("expected recall tool registered")
	}
}
