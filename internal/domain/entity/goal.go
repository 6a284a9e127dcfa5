package entity

// Goal is the immutable objective that drives one agent run. It never changes
// after construction — every component that reads it treats it as read-only.
type Goal struct {
	description      string
	successCriteria  []string
}

// NewGoal constructs a Goal. successCriteria is advisory: it is surfaced to
// the LLM but never mechanically checked.
func NewGoal(description string, successCriteria ...string) (*Goal, error) {
	if description == "" {
		return nil, ErrInvalidGoalDescription
	}
	criteria := make([]string, len(successCriteria))
	copy(criteria, successCriteria)
	return &Goal{description: description, successCriteria: criteria}, nil
}

// Description returns the goal's free-text description.
func (g *Goal) Description() string { return g.description }

// SuccessCriteria returns a defensive copy of the advisory success criteria.
func (g *Goal) SuccessCriteria() []string {
	out := make([]string, len(g.successCriteria))
	copy(out, g.successCriteria)
	return out
}
