package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// FailureStore is shaped identically to SkillStore but stores lessons learned
// from failed actions. exportCurrent() is what the kernel calls at a
// context-reset boundary: failure knowledge survives the reset.
type FailureStore struct {
	mu       sync.RWMutex
	order    []string
	entries  map[string]entity.FailureEntry
	embedder EmbeddingProvider
}

// NewFailureStore creates a failure store; embedder may be nil.
func NewFailureStore(embedder EmbeddingProvider) *FailureStore {
	return &FailureStore{entries: make(map[string]entity.FailureEntry), embedder: embedder}
}

// Store inserts or replaces (coalesces) a failure entry by proverb+condition.
func (s *FailureStore) Store(ctx context.Context, entry entity.FailureEntry) error {
	if s.embedder != nil && len(entry.Embedding) == 0 {
		emb, err := s.embedder.Embed(ctx, entry.Proverb+" "+entry.Condition)
		if err == nil {
			entry.Embedding = emb
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if existing := s.entries[id]; existing.Proverb == entry.Proverb && existing.Condition == entry.Condition {
			s.entries[id] = entry
			return nil
		}
	}
	s.order = append(s.order, entry.ID)
	s.entries[entry.ID] = entry
	return nil
}

// Retrieve returns up to topK entries most relevant to query.
func (s *FailureStore) Retrieve(ctx context.Context, query string, topK int) []entity.FailureEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.embedder != nil {
		if qEmb, err := s.embedder.Embed(ctx, query); err == nil {
			return s.retrieveByEmbedding(qEmb, topK)
		}
	}

	q := strings.ToLower(query)
	var out []entity.FailureEntry
	for _, id := range s.order {
		e := s.entries[id]
		if strings.Contains(strings.ToLower(e.Proverb), q) || strings.Contains(strings.ToLower(e.Condition), q) {
			out = append(out, e)
			if len(out) >= topK {
				break
			}
		}
	}
	return out
}

func (s *FailureStore) retrieveByEmbedding(qEmb []float32, topK int) []entity.FailureEntry {
	type scored struct {
		entry entity.FailureEntry
		score float32
	}
	candidates := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		candidates = append(candidates, scored{entry: e, score: cosineSimilarity(qEmb, e.Embedding)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]entity.FailureEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}

// ExportCurrent returns every entry stored so far, for transfer across a
// context-reset boundary.
func (s *FailureStore) ExportCurrent() []entity.FailureEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.FailureEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id])
	}
	return out
}
