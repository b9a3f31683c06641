// Package ext defines the extension system for Payflow.
//
// Extensions are notified of workflow lifecycle events and can react to
// them, recording metrics, emitting webhooks, writing audit logs, and
// so on. Each lifecycle hook is a separate interface so extensions opt
// in only to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnStageCompleted(ctx context.Context, st *state.WorkflowState, stage state.Stage, elapsed time.Duration) error {
//	    log.Printf("stage %s of %s completed in %s", stage, st.WorkflowID, elapsed)
//	    return nil
//	}
//
// # Lifecycle Hooks
//
//   - [WorkflowStarted] — a workflow began executing
//   - [StageCompleted] — a stage finished successfully
//   - [StageFailed] — a stage failed and the workflow aborted
//   - [WorkflowSuspended] — execution checkpointed for human review
//   - [WorkflowResumed] — a reviewer decision re-entered the workflow
//   - [WorkflowCompleted] — the workflow reached a completed terminal state
//   - [WorkflowFailed] — the workflow failed terminally
//   - [Shutdown] — the host process is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
