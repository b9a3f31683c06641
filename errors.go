package payflow

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("payflow: no store configured")
	ErrStoreClosed     = errors.New("payflow: store closed")
	ErrMigrationFailed = errors.New("payflow: migration failed")

	// Not found errors.
	ErrWorkflowNotFound   = errors.New("payflow: workflow not found")
	ErrCheckpointNotFound = errors.New("payflow: checkpoint not found")

	// Checkpoint lifecycle errors.
	ErrInvalidDecision  = errors.New("payflow: invalid review decision")
	ErrAlreadyReviewed  = errors.New("payflow: checkpoint already reviewed")
	ErrCheckpointClosed = errors.New("payflow: checkpoint not awaiting review")

	// Execution errors.
	ErrValidation        = errors.New("payflow: invoice payload validation failed")
	ErrInvalidState      = errors.New("payflow: invalid state transition")
	ErrWorkflowSuspended = errors.New("payflow: workflow awaiting human review")

	// Ability and tool-selection errors.
	ErrUnknownAbility    = errors.New("payflow: unknown ability")
	ErrUnknownCapability = errors.New("payflow: unknown tool capability")
)
