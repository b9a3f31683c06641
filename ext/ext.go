// Package ext defines the extension system for Payflow.
// Extensions are notified of lifecycle events (workflow started,
// suspended, resumed, etc.) and can react to them — logging, metrics,
// alerting on pending reviews.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/state"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Workflow lifecycle hooks
// ──────────────────────────────────────────────────

// WorkflowStarted is called when a workflow begins executing.
type WorkflowStarted interface {
	OnWorkflowStarted(ctx context.Context, st *state.WorkflowState) error
}

// StageCompleted is called after a stage completes.
type StageCompleted interface {
	OnStageCompleted(ctx context.Context, st *state.WorkflowState, stage state.Stage, elapsed time.Duration) error
}

// StageFailed is called when a stage fails and aborts the workflow.
type StageFailed interface {
	OnStageFailed(ctx context.Context, st *state.WorkflowState, stage state.Stage, err error) error
}

// WorkflowSuspended is called when execution checkpoints for human
// review.
type WorkflowSuspended interface {
	OnWorkflowSuspended(ctx context.Context, st *state.WorkflowState, cp *checkpoint.Checkpoint) error
}

// WorkflowResumed is called when a reviewer decision re-enters a
// suspended workflow.
type WorkflowResumed interface {
	OnWorkflowResumed(ctx context.Context, st *state.WorkflowState, decision checkpoint.Decision) error
}

// WorkflowCompleted is called after a workflow reaches a completed
// terminal state, including manual handoff.
type WorkflowCompleted interface {
	OnWorkflowCompleted(ctx context.Context, st *state.WorkflowState, elapsed time.Duration) error
}

// WorkflowFailed is called when a workflow fails terminally.
type WorkflowFailed interface {
	OnWorkflowFailed(ctx context.Context, st *state.WorkflowState, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
