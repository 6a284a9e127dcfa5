package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// JudgeFunc is the LLM-backed semantic confirmation a MilestoneRunner asks
// for once a milestone's resource tokens are all present — it decides
// whether the snapshot genuinely satisfies the milestone's description, not
// merely its cheap substring proxy.
type JudgeFunc func(ctx context.Context, m entity.Milestone, snapshot entity.Snapshot) (bool, error)

// ResetFunc performs whatever side effects a context reset requires
// (clearing working memory, re-seeding the system prompt, persisting
// exported failure/skill knowledge) and reports success or failure.
type ResetFunc func(ctx context.Context) error

// MilestoneRunner steps an ordered milestone sequence with two-phase
// reach detection: a cheap resource-token substring check (phase one) gates
// an LLM semantic judgement (phase two), so the judge is only ever consulted
// once the obviously-necessary resources are already present. Resetting the
// kernel's context at a milestone boundary is retried with backoff up to
// MaxResetRetries times before the reset is considered failed.
type MilestoneRunner struct {
	milestones      []entity.Milestone
	index           int
	judge           JudgeFunc
	reset           ResetFunc
	maxResetRetries int
	resetBaseWait   time.Duration
	logger          *zap.Logger
}

// NewMilestoneRunner constructs a runner over an ordered milestone sequence.
// judge may be nil, in which case phase two always passes (resource-token
// presence alone is taken as sufficient).
func NewMilestoneRunner(milestones []entity.Milestone, judge JudgeFunc, reset ResetFunc, logger *zap.Logger) *MilestoneRunner {
	return &MilestoneRunner{
		milestones:      milestones,
		judge:           judge,
		reset:           reset,
		maxResetRetries: 3,
		resetBaseWait:   100 * time.Millisecond,
		logger:          logger,
	}
}

// Current returns the milestone currently being pursued, or (zero, false)
// once the sequence is exhausted.
func (r *MilestoneRunner) Current() (entity.Milestone, bool) {
	if r.index >= len(r.milestones) {
		return entity.Milestone{}, false
	}
	return r.milestones[r.index], true
}

// Done reports whether every milestone in the sequence has been reached.
func (r *MilestoneRunner) Done() bool { return r.index >= len(r.milestones) }

// Progress returns (reached, total) milestone counts.
func (r *MilestoneRunner) Progress() (int, int) { return r.index, len(r.milestones) }

// CheckReached runs the two-phase check against the current milestone. On a
// true result the milestone is marked reached and the internal cursor
// advances; the caller is responsible for invoking Reset afterward if a
// context reset is desired at this boundary.
func (r *MilestoneRunner) CheckReached(ctx context.Context, snapshot entity.Snapshot) (entity.Milestone, bool, error) {
	m, ok := r.Current()
	if !ok {
		return entity.Milestone{}, false, nil
	}

	if !resourceTokensPresent(m, snapshot) {
		return entity.Milestone{}, false, nil
	}

	if r.judge != nil {
		confirmed, err := r.judge(ctx, m, snapshot)
		if err != nil {
			return entity.Milestone{}, false, fmt.Errorf("milestone judge failed for %q: %w", m.ID, err)
		}
		if !confirmed {
			return entity.Milestone{}, false, nil
		}
	}

	reached := m.Reached(time.Now())
	r.milestones[r.index] = reached
	r.index++
	return reached, true, nil
}

// Reset invokes the configured ResetFunc with exponential backoff, retrying
// up to maxResetRetries times. A reset that never succeeds is reported to
// the caller as an error — the milestone is still considered reached (the
// cursor already advanced in CheckReached); only the side-effecting reset
// itself is retried.
func (r *MilestoneRunner) Reset(ctx context.Context) error {
	if r.reset == nil {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxResetRetries; attempt++ {
		if attempt > 0 {
			wait := r.resetBaseWait * (1 << (attempt - 1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := r.reset(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			r.logger.Warn("context reset attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", r.maxResetRetries),
				zap.Error(err),
			)
		}
	}
	return fmt.Errorf("context reset failed after %d attempts: %w", r.maxResetRetries+1, lastErr)
}

func resourceTokensPresent(m entity.Milestone, snapshot entity.Snapshot) bool {
	if len(m.ResourceTokens) == 0 {
		return true
	}
	rendered := snapshot.String()
	for _, tok := range m.ResourceTokens {
		if !contains(rendered, tok) {
			return false
		}
	}
	return true
}
