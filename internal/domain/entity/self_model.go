package entity

import "time"

// ToolStat tracks per-tool outcome statistics used both by the self-evolver
// and by the auto-avoid-pattern recomputation after each evolution.
type ToolStat struct {
	Uses              int     `json:"uses"`
	Successes         int     `json:"successes"`
	Failures          int     `json:"failures"`
	AvgSufferingDelta float64 `json:"avg_suffering_delta"`
}

// EvolutionRecord is one accepted self-evolution proposal.
type EvolutionRecord struct {
	Change     string    `json:"change"`
	Reason     string    `json:"reason"`
	Type       string    `json:"type"`
	Confidence float64   `json:"confidence"`
	AppliedAt  time.Time `json:"applied_at"`
}

// ActiveStrategies is the closed-loop output of the self-evolver: the
// decision pipeline reads this directly on the very next iteration.
type ActiveStrategies struct {
	ToolPreferences map[string]float64 `json:"tool_preferences"`
	AvoidPatterns   []string           `json:"avoid_patterns"`
	ApproachHints   []string           `json:"approach_hints"`
}

// NewActiveStrategies returns an empty, ready-to-use strategy set.
func NewActiveStrategies() ActiveStrategies {
	return ActiveStrategies{ToolPreferences: make(map[string]float64)}
}

const maxStrategyListLen = 5

// AppendAvoidPattern appends p, evicting the oldest entry once the cap is
// exceeded (insertion-order eviction per the self-model invariant).
func (s *ActiveStrategies) AppendAvoidPattern(p string) {
	s.AvoidPatterns = appendCapped(s.AvoidPatterns, p, maxStrategyListLen)
}

// AppendApproachHint appends h under the same cap-and-evict rule.
func (s *ActiveStrategies) AppendApproachHint(h string) {
	s.ApproachHints = appendCapped(s.ApproachHints, h, maxStrategyListLen)
}

func appendCapped(list []string, item string, cap int) []string {
	list = append(list, item)
	if len(list) > cap {
		list = list[len(list)-cap:]
	}
	return list
}

// SelfModel is an agent's per-run introspective state.
type SelfModel struct {
	ToolStats        map[string]*ToolStat `json:"tool_stats"`
	SufferingTrend   []float64            `json:"suffering_trend"`
	EvolutionLog     []EvolutionRecord    `json:"evolution_log"`
	ActiveStrategies ActiveStrategies     `json:"active_strategies"`
}

// NewSelfModel returns an empty self-model ready for a fresh run.
func NewSelfModel() *SelfModel {
	return &SelfModel{
		ToolStats:        make(map[string]*ToolStat),
		ActiveStrategies: NewActiveStrategies(),
	}
}

const sufferingTrendWindow = 20

// RecordToolUse updates per-tool statistics and the suffering trend FIFO
// after one executed tool call.
func (m *SelfModel) RecordToolUse(toolName string, success bool, sufferingDelta float64) {
	st, ok := m.ToolStats[toolName]
	if !ok {
		st = &ToolStat{}
		m.ToolStats[toolName] = st
	}
	st.Uses++
	if success {
		st.Successes++
	} else {
		st.Failures++
	}
	st.AvgSufferingDelta = (st.AvgSufferingDelta*float64(st.Uses-1) + sufferingDelta) / float64(st.Uses)

	m.SufferingTrend = append(m.SufferingTrend, sufferingDelta)
	if len(m.SufferingTrend) > sufferingTrendWindow {
		m.SufferingTrend = m.SufferingTrend[len(m.SufferingTrend)-sufferingTrendWindow:]
	}
}
