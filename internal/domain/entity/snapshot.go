package entity

import (
	"encoding/json"
	"sort"
	"strings"
)

// Snapshot is an opaque mapping captured by a caller-supplied pure function
// at the start of every kernel iteration. Ordering of keys is irrelevant;
// a Snapshot is replaced wholesale each iteration, never merged.
type Snapshot map[string]interface{}

// String renders the snapshot as a deterministic, human-readable object for
// inclusion in LLM prompts and for the milestone runner's substring checks.
func (s Snapshot) String() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		if raw, err := json.Marshal(s[k]); err == nil {
			b.Write(raw)
		} else {
			b.WriteString("null")
		}
	}
	b.WriteByte('}')
	return b.String()
}

// Observation wraps a Snapshot with Buddhist-metric bias/mindfulness scores
// computed by the kernel each iteration (elevated when a Tanha loop is
// flagged).
type Observation struct {
	Snapshot          Snapshot `json:"snapshot"`
	BiasScore         float64  `json:"bias_score"`
	MindfulnessLevel  float64  `json:"mindfulness_level"`
	ObservedAt        int64    `json:"observed_at"`
}
