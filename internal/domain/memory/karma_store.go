package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// KarmaStore extends a failure-shaped store with causal-chain tracing and
// impermanence decay of transfer weight.
type KarmaStore struct {
	mu       sync.RWMutex
	order    []string
	entries  map[string]entity.KarmaEntry
	embedder EmbeddingProvider
}

// NewKarmaStore creates a karma store; embedder may be nil.
func NewKarmaStore(embedder EmbeddingProvider) *KarmaStore {
	return &KarmaStore{entries: make(map[string]entity.KarmaEntry), embedder: embedder}
}

// Store inserts or replaces a karma entry by id.
func (s *KarmaStore) Store(ctx context.Context, entry entity.KarmaEntry) error {
	if s.embedder != nil && len(entry.Embedding) == 0 {
		emb, err := s.embedder.Embed(ctx, entry.Proverb+" "+entry.Condition)
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

// Get returns a single karma entry by id.
func (s *KarmaStore) Get(id string) (entity.KarmaEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Retrieve returns up to topK entries most relevant to query (embedding
// search only — karma retrieval has no substring fallback since its wisdom
// is only meaningful via similarity to the current delta).
func (s *KarmaStore) Retrieve(ctx context.Context, query string, topK int) []entity.KarmaEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.embedder == nil {
		return nil
	}
	qEmb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil
	}

	type scored struct {
		entry entity.KarmaEntry
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
	out := make([]entity.KarmaEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}

// TraceCausalChain walks the transitive closure of CausalChain ids
// breadth-first, returning every karma entry reachable from entryID.
func (s *KarmaStore) TraceCausalChain(entryID string) []entity.KarmaEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := map[string]bool{entryID: true}
	queue := []string{entryID}
	var out []entity.KarmaEntry

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		entry, ok := s.entries[id]
		if !ok {
			continue
		}
		if id != entryID {
			out = append(out, entry)
		}
		for _, causeID := range entry.CausalChain {
			if !visited[causeID] {
				visited[causeID] = true
				queue = append(queue, causeID)
			}
		}
	}
	return out
}

// GetHabitualPatterns returns every karma entry whose Occurrences reaches
// minOccurrences (default interpretation: 3 when minOccurrences <= 0).
func (s *KarmaStore) GetHabitualPatterns(minOccurrences int) []entity.KarmaEntry {
	if minOccurrences <= 0 {
		minOccurrences = 3
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.KarmaEntry
	for _, id := range s.order {
		if e := s.entries[id]; e.Occurrences >= minOccurrences {
			out = append(out, e)
		}
	}
	return out
}

const impermanenceFloor = 0.05

// ApplyImpermanence multiplies every TransferWeight by (1 - decayRate) and
// drops entries whose weight falls below the floor. decayRate <= 0 defaults
// to 0.05. This is strictly monotonically decreasing in value even though
// repeated calls are idempotent in type.
func (s *KarmaStore) ApplyImpermanence(decayRate float64) {
	if decayRate <= 0 {
		decayRate = 0.05
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, id := range s.order {
		e := s.entries[id]
		e.TransferWeight *= 1 - decayRate
		if e.TransferWeight < impermanenceFloor {
			delete(s.entries, id)
			continue
		}
		s.entries[id] = e
		kept = append(kept, id)
	}
	s.order = kept
}

// RecordOccurrence increments Occurrences, bumps TransferWeight toward
// min(1.0, 0.3+0.1*occurrences), and refreshes LastSeen.
func (s *KarmaStore) RecordOccurrence(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.Occurrences++
	weight := 0.3 + 0.1*float64(e.Occurrences)
	if weight > 1.0 {
		weight = 1.0
	}
	e.TransferWeight = weight
	e.LastSeen = now
	s.entries[id] = e
}
