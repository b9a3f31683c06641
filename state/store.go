package state

import (
	"context"

	"github.com/xraph/payflow/id"
)

// ListOpts controls filtering and pagination for workflow state queries.
type ListOpts struct {
	// Limit is the maximum number of states to return. Zero means no limit.
	Limit int
	// Offset is the number of states to skip.
	Offset int
	// Status filters by workflow status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for workflow states.
type Store interface {
	// CreateState persists a new workflow state.
	CreateState(ctx context.Context, st *WorkflowState) error

	// GetState retrieves a workflow state by workflow ID.
	GetState(ctx context.Context, workflowID id.WorkflowID) (*WorkflowState, error)

	// UpdateState persists changes to an existing workflow state.
	UpdateState(ctx context.Context, st *WorkflowState) error

	// ListStates returns workflow states matching the given options,
	// newest first.
	ListStates(ctx context.Context, opts ListOpts) ([]*WorkflowState, error)
}
