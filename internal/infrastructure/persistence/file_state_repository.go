package persistence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/repository"
)

// FileStateRepository is the opt-in, file-path-based AgentState store: one
// JSON file per run, throttled so a kernel looping many times a second
// doesn't thrash the filesystem. Reads are tolerant — a missing or corrupt
// file returns (nil, nil), never an error, matching the best-effort
// recovery contract every StateRepository implementation must honor.
type FileStateRepository struct {
	mu            sync.Mutex
	dir           string
	minInterval   time.Duration
	lastSavedAt   map[string]time.Time
}

// NewFileStateRepository roots state files under dir, throttling successive
// saves for the same run to no more than one per minInterval. minInterval
// <= 0 disables throttling (every Save call writes immediately).
func NewFileStateRepository(dir string, minInterval time.Duration) *FileStateRepository {
	return &FileStateRepository{dir: dir, minInterval: minInterval, lastSavedAt: make(map[string]time.Time)}
}

func (r *FileStateRepository) path(runID string) string {
	return filepath.Join(r.dir, runID+".state.json")
}

// Save writes state to disk, skipping the write if the run was saved more
// recently than minInterval ago.
func (r *FileStateRepository) Save(ctx context.Context, state *repository.AgentState) error {
	r.mu.Lock()
	if r.minInterval > 0 {
		if last, ok := r.lastSavedAt[state.RunID]; ok && time.Since(last) < r.minInterval {
			r.mu.Unlock()
			return nil
		}
	}
	r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.path(state.RunID), raw, 0o644); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastSavedAt[state.RunID] = time.Now()
	r.mu.Unlock()
	return nil
}

// Load tolerantly reads back a run's last saved state.
func (r *FileStateRepository) Load(ctx context.Context, runID string) (*repository.AgentState, error) {
	raw, err := os.ReadFile(r.path(runID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, nil
	}

	var state repository.AgentState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, nil
	}
	return &state, nil
}

// FileSelfModelRepository is the file-based SelfModel store, persisted
// independently of AgentState (per the repository contract) so the
// self-evolver's learned strategies survive even when a run's working state
// is discarded.
type FileSelfModelRepository struct {
	mu  sync.Mutex
	dir string
}

// NewFileSelfModelRepository roots self-model files under dir.
func NewFileSelfModelRepository(dir string) *FileSelfModelRepository {
	return &FileSelfModelRepository{dir: dir}
}

func (r *FileSelfModelRepository) path(runID string) string {
	return filepath.Join(r.dir, runID+".self_model.json")
}

// Save writes model to disk.
func (r *FileSelfModelRepository) Save(ctx context.Context, runID string, model *entity.SelfModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	raw, err := json.Marshal(model)
	if err != nil {
		return err
	}
	return os.WriteFile(r.path(runID), raw, 0o644)
}

// Load tolerantly reads back a run's self-model.
func (r *FileSelfModelRepository) Load(ctx context.Context, runID string) (*entity.SelfModel, error) {
	raw, err := os.ReadFile(r.path(runID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, nil
	}

	model := entity.NewSelfModel()
	if err := json.Unmarshal(raw, model); err != nil {
		return nil, nil
	}
	return model, nil
}
