package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// SkillStore retrieves skill entries by semantic similarity to a query,
// falling back to substring search over trigger/command when no embedder is
// configured.
type SkillStore struct {
	mu       sync.RWMutex
	order    []string
	entries  map[string]entity.SkillEntry
	embedder EmbeddingProvider
}

// NewSkillStore creates a skill store. embedder may be nil, in which case
// retrieval falls back to substring matching.
func NewSkillStore(embedder EmbeddingProvider) *SkillStore {
	return &SkillStore{entries: make(map[string]entity.SkillEntry), embedder: embedder}
}

// Store inserts or replaces a skill entry by id, computing its embedding
// when an embedder is configured.
func (s *SkillStore) Store(ctx context.Context, entry entity.SkillEntry) error {
	if s.embedder != nil && len(entry.Embedding) == 0 {
		emb, err := s.embedder.Embed(ctx, entry.Trigger+" "+entry.Command)
		if err == nil {
			entry.Embedding = emb
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[entry.ID]; !exists {
		s.order = append(s.order, entry.ID)
	}
	s.entries[entry.ID] = entry
	return nil
}

// Retrieve returns up to topK entries most relevant to query.
func (s *SkillStore) Retrieve(ctx context.Context, query string, topK int) []entity.SkillEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.embedder != nil {
		if qEmb, err := s.embedder.Embed(ctx, query); err == nil {
			return s.retrieveByEmbedding(qEmb, topK)
		}
	}
	return s.retrieveBySubstring(query, topK)
}

func (s *SkillStore) retrieveByEmbedding(qEmb []float32, topK int) []entity.SkillEntry {
	type scored struct {
		entry entity.SkillEntry
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
	out := make([]entity.SkillEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}

func (s *SkillStore) retrieveBySubstring(query string, topK int) []entity.SkillEntry {
	q := strings.ToLower(query)
	var out []entity.SkillEntry
	for _, id := range s.order {
		e := s.entries[id]
		if strings.Contains(strings.ToLower(e.Trigger), q) || strings.Contains(strings.ToLower(e.Command), q) {
			out = append(out, e)
			if len(out) >= topK {
				break
			}
		}
	}
	return out
}

// List returns all entries in insertion order.
func (s *SkillStore) List() []entity.SkillEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.SkillEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id])
	}
	return out
}
