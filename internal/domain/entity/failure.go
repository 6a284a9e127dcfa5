package entity

import "time"

// Severity grades how costly a recorded failure pattern is.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// FailureEntry is a short imperative lesson learned from a failed action.
type FailureEntry struct {
	ID        string    `json:"id"`
	Proverb   string    `json:"proverb"`
	Condition string    `json:"condition"`
	Severity  Severity  `json:"severity"`
	Source    string    `json:"source"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// KarmaType classifies the moral valence of a karma entry's causal pattern.
type KarmaType string

const (
	KarmaSkillful   KarmaType = "skillful"
	KarmaUnskillful KarmaType = "unskillful"
	KarmaNeutral    KarmaType = "neutral"
)

// KarmaEntry extends a FailureEntry with causal history and a decaying
// transfer weight: the more a pattern recurs, the more it is weighted in
// retrieval, but impermanence decay erodes that weight between recordings.
type KarmaEntry struct {
	FailureEntry
	CausalChain    []string  `json:"causal_chain"`
	TransferWeight float64   `json:"transfer_weight"`
	KarmaType      KarmaType `json:"karma_type"`
	Occurrences    int       `json:"occurrences"`
	LastSeen       time.Time `json:"last_seen"`
}
