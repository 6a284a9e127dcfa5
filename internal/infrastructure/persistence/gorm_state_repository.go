package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/persistence/models"
)

// GormStateRepository is the database-backed AgentState store, used when the
// gateway is configured with a sqlite or postgres DSN instead of the plain
// file-based repository.
type GormStateRepository struct {
	db *gorm.DB
}

// NewGormStateRepository wraps an already-migrated *gorm.DB.
func NewGormStateRepository(db *gorm.DB) repository.StateRepository {
	return &GormStateRepository{db: db}
}

// Save upserts state's row keyed by RunID.
func (r *GormStateRepository) Save(ctx context.Context, state *repository.AgentState) error {
	snapshotJSON, err := json.Marshal(state.LastSnapshot)
	if err != nil {
		return err
	}
	deltaJSON, err := json.Marshal(state.LastDelta)
	if err != nil {
		return err
	}
	failuresJSON, err := json.Marshal(state.Failures)
	if err != nil {
		return err
	}

	row := &models.AgentStateModel{
		RunID:           state.RunID,
		GoalDescription: state.GoalDescription,
		MilestoneIndex:  state.MilestoneIndex,
		Step:            state.Step,
		SnapshotJSON:    string(snapshotJSON),
		DeltaJSON:       string(deltaJSON),
		FailuresJSON:    string(failuresJSON),
		TanhaFlagged:    state.TanhaFlagged,
		UpdatedAt:       time.Unix(state.UpdatedAt, 0).UTC(),
	}
	return r.db.WithContext(ctx).Save(row).Error
}

// Load tolerantly reads back a previously-saved state: a missing row or
// corrupt JSON blob returns (nil, nil) rather than an error, per the
// repository contract's best-effort recovery rule.
func (r *GormStateRepository) Load(ctx context.Context, runID string) (*repository.AgentState, error) {
	var row models.AgentStateModel
	if err := r.db.WithContext(ctx).First(&row, "run_id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	state := &repository.AgentState{
		RunID:           row.RunID,
		GoalDescription: row.GoalDescription,
		MilestoneIndex:  row.MilestoneIndex,
		Step:            row.Step,
		TanhaFlagged:    row.TanhaFlagged,
		UpdatedAt:       row.UpdatedAt.Unix(),
	}
	if err := json.Unmarshal([]byte(row.SnapshotJSON), &state.LastSnapshot); err != nil {
		return nil, nil
	}
	var delta entity.Delta
	if row.DeltaJSON != "" && row.DeltaJSON != "null" {
		if err := json.Unmarshal([]byte(row.DeltaJSON), &delta); err != nil {
			return nil, nil
		}
		state.LastDelta = &delta
	}
	if err := json.Unmarshal([]byte(row.FailuresJSON), &state.Failures); err != nil {
		return nil, nil
	}
	return state, nil
}

// GormSelfModelRepository is the database-backed SelfModel store.
type GormSelfModelRepository struct {
	db *gorm.DB
}

// NewGormSelfModelRepository wraps an already-migrated *gorm.DB.
func NewGormSelfModelRepository(db *gorm.DB) repository.SelfModelRepository {
	return &GormSelfModelRepository{db: db}
}

// Save upserts model's row keyed by runID.
func (r *GormSelfModelRepository) Save(ctx context.Context, runID string, model *entity.SelfModel) error {
	raw, err := json.Marshal(model)
	if err != nil {
		return err
	}
	row := &models.SelfModelModel{RunID: runID, ModelJSON: string(raw), UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).Save(row).Error
}

// Load tolerantly reads back a previously-saved self-model.
func (r *GormSelfModelRepository) Load(ctx context.Context, runID string) (*entity.SelfModel, error) {
	var row models.SelfModelModel
	if err := r.db.WithContext(ctx).First(&row, "run_id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	model := entity.NewSelfModel()
	if err := json.Unmarshal([]byte(row.ModelJSON), model); err != nil {
		return nil, nil
	}
	return model, nil
}
