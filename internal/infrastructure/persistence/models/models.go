// Package models holds the GORM row definitions persisted by the gateway's
// database-backed repositories.
package models

import "time"

// AgentStateModel is the GORM row backing GormStateRepository — one row per
// run, keyed by run ID, re-saved in place on every Save call.
type AgentStateModel struct {
	RunID           string `gorm:"primaryKey"`
	GoalDescription string
	MilestoneIndex  int
	Step            int
	SnapshotJSON    string `gorm:"type:text"`
	DeltaJSON       string `gorm:"type:text"`
	FailuresJSON    string `gorm:"type:text"`
	TanhaFlagged    bool
	UpdatedAt       time.Time
}

// TableName pins the row to a stable name regardless of struct name changes.
func (AgentStateModel) TableName() string { return "agent_states" }

// SelfModelModel is the GORM row backing GormSelfModelRepository — one row
// per run, holding the entire SelfModel as a JSON blob since its shape
// (tool stats, suffering trend, evolution log, active strategies) has no
// natural relational decomposition worth the join cost.
type SelfModelModel struct {
	RunID     string `gorm:"primaryKey"`
	ModelJSON string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName pins the row to a stable name regardless of struct name changes.
func (SelfModelModel) TableName() string { return "self_models" }
