package entity

// CausalLink records the kernel's inference that one action caused a
// subsequent failure, used to extend a karma entry's causal chain.
type CausalLink struct {
	CauseID   string  `json:"cause_id"`
	EffectID  string  `json:"effect_id"`
	Strength  float64 `json:"strength"`
	Reasoning string  `json:"reasoning"`
}

// KnowledgePacket is the versioned, atomic unit exchanged between agents by
// the Dana plugin pattern.
type KnowledgePacket struct {
	Version          int              `json:"version"`
	SourceAgentID    string           `json:"source_agent_id"`
	CreatedAt        int64            `json:"created_at"`
	Gifts            []KnowledgeGift  `json:"gifts"`
	Strategies       ActiveStrategies `json:"strategies"`
	EvolutionSummary string           `json:"evolution_summary"`
}

// KnowledgeGift is one shareable unit inside a KnowledgePacket.
type KnowledgeGift struct {
	ID            string      `json:"id"`
	Type          string      `json:"type"`
	Description   string      `json:"description"`
	Payload       interface{} `json:"payload"`
	Confidence    float64     `json:"confidence"`
	SourceContext string      `json:"source_context"`
}
