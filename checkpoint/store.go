package checkpoint

import (
	"context"

	"github.com/xraph/payflow/id"
)

// Store defines the persistence contract for checkpoints and the
// review queue projection.
type Store interface {
	// CreateCheckpoint persists a checkpoint and its queue projection
	// atomically. A failure leaves neither behind.
	CreateCheckpoint(ctx context.Context, cp *Checkpoint, item *ReviewQueueItem) error

	// GetCheckpoint retrieves a checkpoint by ID.
	GetCheckpoint(ctx context.Context, checkpointID id.CheckpointID) (*Checkpoint, error)

	// ApplyDecision records a reviewer decision with compare-and-set
	// semantics: it succeeds only while the checkpoint is
	// AWAITING_REVIEW, moving it to REVIEWED, stamping the decision
	// fields, computing the next stage, and issuing the single-use
	// resume token. The queue projection is updated in the same
	// transaction. A second call returns payflow.ErrAlreadyReviewed
	// and never issues a second token.
	ApplyDecision(ctx context.Context, checkpointID id.CheckpointID, decision Decision, reviewerID, notes string) (*Checkpoint, error)

	// MarkResumed moves a REVIEWED checkpoint to RESUMED once the
	// engine has re-entered the workflow.
	MarkResumed(ctx context.Context, checkpointID id.CheckpointID) error

	// PendingReviews lists AWAITING_REVIEW queue items ordered by
	// priority ascending, then created_at ascending.
	PendingReviews(ctx context.Context) ([]*ReviewQueueItem, error)

	// ListWorkflowCheckpoints returns all checkpoints for a workflow,
	// oldest first.
	ListWorkflowCheckpoints(ctx context.Context, workflowID id.WorkflowID) ([]*Checkpoint, error)
}
