package entity

import "time"

// Milestone is one waypoint in an ordered sequence the milestone runner
// steps through. ResourceTokens are substrings that must all appear in the
// serialized Snapshot before the LLM is even consulted about reach.
type Milestone struct {
	ID             string    `json:"id"`
	Description    string    `json:"description"`
	ResourceTokens []string  `json:"resources"`
	ReachedAt      *time.Time `json:"reached_at,omitempty"`
}

// Reached marks the milestone as reached at t, mutating a defensive copy.
func (m Milestone) Reached(t time.Time) Milestone {
	m.ReachedAt = &t
	return m
}
