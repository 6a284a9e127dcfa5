package entity

import "time"

// AgentEventType enumerates every event the kernel may emit. This is the
// exhaustive taxonomy: no other event name is ever emitted.
type AgentEventType string

const (
	EventAgentStart        AgentEventType = "agent:start"
	EventAgentComplete     AgentEventType = "agent:complete"
	EventAgentError        AgentEventType = "agent:error"
	EventActionStart       AgentEventType = "action:start"
	EventActionComplete    AgentEventType = "action:complete"
	EventMilestoneReached  AgentEventType = "milestone:reached"
	EventMilestoneFailed   AgentEventType = "milestone:failed"
	EventContextReset      AgentEventType = "context:reset"
	EventFailureRecorded   AgentEventType = "failure:recorded"
	EventSkillAcquired     AgentEventType = "skill:acquired"
	EventObservationCaptured AgentEventType = "observation:captured"
	EventDukkhaEvaluated   AgentEventType = "dukkha:evaluated"
	EventKarmaStored       AgentEventType = "karma:stored"
	EventCausalAnalyzed    AgentEventType = "causal:analyzed"
	EventAwakeningStage    AgentEventType = "awakening:stage"
	EventTanhaLoopDetected AgentEventType = "tanha:loop:detected"
	EventAnattaEvolved     AgentEventType = "anatta:evolved"
	EventPluginVeto        AgentEventType = "plugin:veto"
)

// ToolCallInfo is a tool call parsed from an LLM response, correlated back
// to its result via ID.
type ToolCallInfo struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// AgentEvent is one entry in the kernel's event stream. Only the fields
// relevant to Type are populated; the rest are left at their zero value.
type AgentEvent struct {
	Type      AgentEventType         `json:"type"`
	Step      int                    `json:"step,omitempty"`
	Action    *Action                `json:"action,omitempty"`
	Result    *ToolResult            `json:"result,omitempty"`
	Milestone *Milestone             `json:"milestone,omitempty"`
	Failure   *FailureEntry          `json:"failure,omitempty"`
	Karma     *KarmaEntry            `json:"karma,omitempty"`
	Causal    *CausalLink            `json:"causal,omitempty"`
	Delta     *Delta                 `json:"delta,omitempty"`
	Evolution *EvolutionRecord       `json:"evolution,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
