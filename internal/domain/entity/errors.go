package entity

import "errors"

var (
	// Goal errors
	ErrInvalidGoalDescription = errors.New("invalid goal description")

	// Milestone errors
	ErrNoMilestones      = errors.New("no milestones configured")
	ErrMilestonesExhausted = errors.New("all milestones already reached")

	// Memory entry errors
	ErrInvalidSkillID   = errors.New("invalid skill id")
	ErrInvalidSkillName = errors.New("invalid skill name")
	ErrSkillNotFound    = errors.New("skill not found")
	ErrEntryNotFound    = errors.New("memory entry not found")
)
