package repository

import (
	"context"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// AgentState is the serializable snapshot persisted for crash recovery
// (see the Agent state export format contract).
type AgentState struct {
	RunID           string            `json:"run_id"`
	Goal            entity.Goal       `json:"-"`
	GoalDescription string            `json:"goal_description"`
	MilestoneIndex  int               `json:"milestone_index"`
	Step            int               `json:"step"`
	LastSnapshot    entity.Snapshot   `json:"last_snapshot"`
	LastDelta       *entity.Delta     `json:"last_delta"`
	Failures        []entity.FailureEntry `json:"failures"`
	TanhaFlagged    bool              `json:"tanha_flagged"`
	UpdatedAt       int64             `json:"updated_at"`
}

// StateRepository persists and recovers AgentState documents. Implementations
// must tolerate missing or corrupt records by returning (nil, nil) rather
// than an error — state recovery is best-effort, never fatal.
type StateRepository interface {
	Save(ctx context.Context, state *AgentState) error
	Load(ctx context.Context, runID string) (*AgentState, error)
}

// SelfModelRepository persists and recovers a SelfModel independently of
// AgentState, following the same tolerant-read contract.
type SelfModelRepository interface {
	Save(ctx context.Context, runID string, model *entity.SelfModel) error
	Load(ctx context.Context, runID string) (*entity.SelfModel, error)
}
