package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// evolutionGateSamples is the minimum number of suffering-trend samples that
// must exist before the evolution gate will ever trigger.
const evolutionGateSamples = 5

// EvolutionTypeToolPreference through EvolutionTypeStrategyChange are the
// closed set of proposal types the evolver knows how to apply. Any other
// Type is recorded to the evolution log but has no effect on the model.
const (
	EvolutionTypeToolPreference = "tool_preference"
	EvolutionTypeApproachShift  = "approach_shift"
	EvolutionTypeMilestoneReorder = "milestone_reorder"
	EvolutionTypeStrategyChange = "strategy_change"
)

// toolPreferenceStep is the magnitude by which a tool_preference proposal
// nudges a named tool's preference weight.
const toolPreferenceStep = 0.2

// negativeLexemes are the words whose presence in a tool_preference change
// description flips the adjustment from a boost to a penalty.
var negativeLexemes = []string{"avoid", "reduce", "less"}

// ProposeFunc is the LLM-backed call that turns a self-model snapshot into a
// candidate evolution — a proposed change to active strategies along with
// its stated type/reason/confidence. Returning ok=false means the LLM
// declined to propose anything this cycle.
type ProposeFunc func(ctx context.Context, model *entity.SelfModel) (rec entity.EvolutionRecord, ok bool, err error)

// SelfEvolver is the Anatta closed-loop self-modification component: it
// reads a SelfModel's accumulated tool statistics and suffering trend, and —
// once the evolution gate triggers — asks an LLM to propose a strategy
// change and applies it directly into ActiveStrategies so the very next
// decision-pipeline iteration reads it.
type SelfEvolver struct {
	propose       ProposeFunc
	sufferingGate float64
	minConfidence float64
	logger        *zap.Logger
}

// NewSelfEvolver builds an evolver. sufferingGate is the trailing-average
// (last five samples) suffering threshold above which the gate triggers.
// minConfidence <= 0 defaults to 0.5.
func NewSelfEvolver(propose ProposeFunc, sufferingGate, minConfidence float64, logger *zap.Logger) *SelfEvolver {
	if minConfidence <= 0 {
		minConfidence = 0.5
	}
	return &SelfEvolver{propose: propose, sufferingGate: sufferingGate, minConfidence: minConfidence, logger: logger}
}

// Evolve runs one evolution cycle against model, mutating it in place when a
// confident proposal is accepted. The gate is a trigger, not a refusal: it
// must first see at least evolutionGateSamples trend samples, and then
// either the trailing average of the last five must exceed sufferingGate or
// tanhaFlagged must be true — a Tanha (craving-loop) flag alone is reason
// enough to evolve even with a calm suffering trend. A nil, nil return means
// the gate did not trigger or the proposal was declined/under-confident,
// none of which are error conditions.
func (e *SelfEvolver) Evolve(ctx context.Context, model *entity.SelfModel, tanhaFlagged bool) (*entity.EvolutionRecord, error) {
	trend := model.SufferingTrend
	if len(trend) < evolutionGateSamples {
		return nil, nil
	}
	avg := trailingAverage(lastN(trend, evolutionGateSamples))
	if avg <= e.sufferingGate && !tanhaFlagged {
		return nil, nil
	}
	e.logger.Info("self-evolution gate triggered",
		zap.Float64("trailing_avg", avg),
		zap.Float64("gate", e.sufferingGate),
		zap.Bool("tanha_flagged", tanhaFlagged),
	)

	rec, ok, err := e.propose(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("evolution proposal failed: %w", err)
	}
	if !ok {
		return nil, nil
	}
	if rec.Confidence < e.minConfidence {
		e.logger.Info("evolution proposal below confidence threshold, discarded",
			zap.Float64("confidence", rec.Confidence),
			zap.Float64("min", e.minConfidence),
		)
		return nil, nil
	}

	rec.AppliedAt = time.Now()
	model.EvolutionLog = append(model.EvolutionLog, rec)
	e.apply(model, rec)
	e.recomputeAvoidPatterns(model)

	return &rec, nil
}

// apply dispatches a proposal onto the self-model by its closed-set Type,
// each with its own distinct effect. An unrecognized Type is logged and
// otherwise has no effect — it still sits in the evolution log as a record
// of what was proposed.
func (e *SelfEvolver) apply(model *entity.SelfModel, rec entity.EvolutionRecord) {
	switch rec.Type {
	case EvolutionTypeToolPreference:
		e.applyToolPreference(model, rec.Change)
	case EvolutionTypeApproachShift, EvolutionTypeStrategyChange:
		model.ActiveStrategies.AppendApproachHint(rec.Change)
	case EvolutionTypeMilestoneReorder:
		model.ActiveStrategies.AppendApproachHint("milestone order: " + rec.Change)
	default:
		e.logger.Warn("evolution proposal has unrecognized type, recorded without effect",
			zap.String("type", rec.Type))
	}
}

// applyToolPreference adjusts toolPreferences for every known tool name that
// appears in change, by ±toolPreferenceStep clamped to [0,1]. The direction
// is negative when change contains one of negativeLexemes, positive
// otherwise.
func (e *SelfEvolver) applyToolPreference(model *entity.SelfModel, change string) {
	lower := strings.ToLower(change)
	step := toolPreferenceStep
	for _, neg := range negativeLexemes {
		if strings.Contains(lower, neg) {
			step = -toolPreferenceStep
			break
		}
	}
	if model.ActiveStrategies.ToolPreferences == nil {
		model.ActiveStrategies.ToolPreferences = make(map[string]float64)
	}
	for tool := range model.ToolStats {
		if !strings.Contains(lower, strings.ToLower(tool)) {
			continue
		}
		next := model.ActiveStrategies.ToolPreferences[tool] + step
		model.ActiveStrategies.ToolPreferences[tool] = clampUnit(next)
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// recomputeAvoidPatterns derives fresh avoid-patterns from tool stats whose
// failure rate dominates: any tool with more than 3 uses and a failure rate
// over 60% is appended (capped, oldest-evicted, per ActiveStrategies'
// invariant).
func (e *SelfEvolver) recomputeAvoidPatterns(model *entity.SelfModel) {
	type rate struct {
		tool string
		fail float64
	}
	var rates []rate
	for tool, st := range model.ToolStats {
		if st.Uses <= 3 {
			continue
		}
		failRate := float64(st.Failures) / float64(st.Uses)
		if failRate > 0.6 {
			rates = append(rates, rate{tool, failRate})
		}
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].fail > rates[j].fail })

	for _, r := range rates {
		model.ActiveStrategies.AppendAvoidPattern(fmt.Sprintf("%s: %.0f%% failure rate", r.tool, r.fail*100))
	}
}

func trailingAverage(trend []float64) float64 {
	if len(trend) == 0 {
		return 0
	}
	var sum float64
	for _, v := range trend {
		sum += v
	}
	return sum / float64(len(trend))
}

// lastN returns the last n elements of trend (or all of it, if shorter).
func lastN(trend []float64, n int) []float64 {
	if len(trend) <= n {
		return trend
	}
	return trend[len(trend)-n:]
}
