package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/ability"
	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/decision"
	"github.com/xraph/payflow/ext"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
	"github.com/xraph/payflow/toolsel"
)

// Engine drives workflow instances through the stage graph, persisting
// the full state after every stage so any process can pick up a
// suspended workflow later.
type Engine struct {
	states      state.Store
	checkpoints checkpoint.Store
	invoker     *ability.Invoker
	selector    *toolsel.Selector
	hooks       *ext.Registry
	cfg         payflow.Config
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConfig overrides the business thresholds.
func WithConfig(cfg payflow.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithSelector supplies a custom tool selector. Without it the engine
// compiles the built-in tool pool configuration.
func WithSelector(s *toolsel.Selector) Option {
	return func(e *Engine) { e.selector = s }
}

// WithHooks attaches an extension registry for lifecycle events.
func WithHooks(r *ext.Registry) Option {
	return func(e *Engine) { e.hooks = r }
}

// New builds an Engine over the given stores and ability invoker.
func New(states state.Store, checkpoints checkpoint.Store, invoker *ability.Invoker, opts ...Option) (*Engine, error) {
	if states == nil || checkpoints == nil {
		return nil, payflow.ErrNoStore
	}
	if invoker == nil {
		return nil, errors.New("engine: nil ability invoker")
	}

	e := &Engine{
		states:      states,
		checkpoints: checkpoints,
		invoker:     invoker,
		cfg:         payflow.DefaultConfig(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.selector == nil {
		sel, err := toolsel.New(toolsel.DefaultConfig(), toolsel.WithLogger(e.logger))
		if err != nil {
			return nil, fmt.Errorf("engine: default tool selector: %w", err)
		}
		e.selector = sel
	}
	if e.hooks == nil {
		e.hooks = ext.NewRegistry(e.logger)
	}

	return e, nil
}

// States exposes the workflow state store for read paths.
func (e *Engine) States() state.Store { return e.states }

// Checkpoints exposes the checkpoint store for read paths.
func (e *Engine) Checkpoints() checkpoint.Store { return e.checkpoints }

// Config returns the business thresholds the engine runs with.
func (e *Engine) Config() payflow.Config { return e.cfg }

// Result is the outcome of an Execute or Resume call. Suspended is set
// when execution checkpointed for human review instead of reaching a
// terminal status; Checkpoint then holds the review context. After a
// Resume it holds the reviewed checkpoint, including the resume token
// and the stage execution re-entered at.
type Result struct {
	State      *state.WorkflowState
	Checkpoint *checkpoint.Checkpoint
	Suspended  bool
}

// Execute runs a new workflow for the given invoice payload. It returns
// when the workflow reaches a terminal status or suspends for review.
// Stage failures are a domain outcome, recorded on the state as FAILED;
// the returned error is reserved for infrastructure failures and for
// intake validation, which wraps payflow.ErrValidation so the caller
// can reject the submission.
func (e *Engine) Execute(ctx context.Context, payload state.InvoicePayload) (*Result, error) {
	st := state.New(payload)
	if err := e.states.CreateState(ctx, st); err != nil {
		return nil, fmt.Errorf("engine: create workflow: %w", err)
	}

	e.logger.Info("workflow started",
		slog.String("workflow_id", st.WorkflowID.String()),
		slog.String("invoice_id", payload.InvoiceID),
		slog.String("vendor", payload.VendorName),
	)
	e.hooks.EmitWorkflowStarted(ctx, st)

	return e.run(ctx, st, state.StageIntake)
}

// Resume applies a reviewer decision to a suspended workflow and
// continues execution. The decision is recorded with compare-and-set
// semantics; a second decision on the same checkpoint returns
// payflow.ErrAlreadyReviewed. The workflow is reconstructed from the
// checkpoint's state snapshot, so Resume works long after the
// suspending process is gone.
func (e *Engine) Resume(ctx context.Context, checkpointID id.CheckpointID, dec checkpoint.Decision, reviewerID, notes string) (*Result, error) {
	cp, err := e.checkpoints.ApplyDecision(ctx, checkpointID, dec, reviewerID, notes)
	if err != nil {
		return nil, err
	}

	st, err := cp.State()
	if err != nil {
		return nil, err
	}

	st.CurrentStage = state.StageHITLDecision
	st.Apply(&state.Update{
		Status:        state.StatusPtr(state.StatusInProgress),
		CheckpointID:  &cp.CheckpointID,
		HumanDecision: state.Str(string(dec)),
		ReviewerID:    state.Str(reviewerID),
		ReviewNotes:   state.Str(notes),
		DecidedAt:     state.Time(cp.ReviewedAt),
		StageOutput: &state.StageOutput{
			Stage:  state.StageHITLDecision,
			Status: state.StageOK,
			Data: map[string]any{
				"decision":   string(dec),
				"reviewer":   reviewerID,
				"next_stage": string(cp.NextStage),
			},
			Timestamp: time.Now().UTC(),
		},
		AuditLog: []string{fmt.Sprintf("HITL_DECISION: %s by %s", dec, reviewerID)},
	})

	if err := e.states.UpdateState(ctx, st); err != nil {
		return nil, fmt.Errorf("engine: persist resumed state: %w", err)
	}
	if err := e.checkpoints.MarkResumed(ctx, checkpointID); err != nil {
		return nil, fmt.Errorf("engine: mark checkpoint resumed: %w", err)
	}

	e.logger.Info("workflow resumed",
		slog.String("workflow_id", st.WorkflowID.String()),
		slog.String("checkpoint_id", checkpointID.String()),
		slog.String("decision", string(dec)),
		slog.String("reviewer", reviewerID),
	)
	e.hooks.EmitWorkflowResumed(ctx, st, dec)

	res, err := e.run(ctx, st, cp.NextStage)
	if err != nil {
		return nil, err
	}
	res.Checkpoint = cp

	return res, nil
}

// run executes stages from the given entry point until the workflow
// suspends, fails, or completes. The state is persisted after every
// stage.
func (e *Engine) run(ctx context.Context, st *state.WorkflowState, from state.Stage) (*Result, error) {
	stage := from
	for {
		if stage == state.StageCheckpoint {
			return e.suspend(ctx, st)
		}

		st.CurrentStage = stage
		started := time.Now()

		upd, stageErr := e.execStage(ctx, st, stage)
		if upd != nil {
			st.Apply(upd)
		}
		if stageErr != nil {
			return e.failWorkflow(ctx, st, stage, stageErr)
		}

		if err := e.states.UpdateState(ctx, st); err != nil {
			return nil, fmt.Errorf("engine: persist state after %s: %w", stage, err)
		}

		elapsed := time.Since(started)
		e.logger.Debug("stage completed",
			slog.String("workflow_id", st.WorkflowID.String()),
			slog.String("stage", string(stage)),
			slog.Duration("elapsed", elapsed),
		)
		e.hooks.EmitStageCompleted(ctx, st, stage, elapsed)

		if stage == state.StageComplete {
			total := time.Since(st.CreatedAt)
			e.logger.Info("workflow finished",
				slog.String("workflow_id", st.WorkflowID.String()),
				slog.String("status", string(st.Status)),
				slog.Duration("elapsed", total),
			)
			e.hooks.EmitWorkflowCompleted(ctx, st, total)

			return &Result{State: st}, nil
		}

		stage = nextStage(st, stage)
	}
}

// nextStage routes the graph. The only branch point is MATCH: a
// matched invoice goes straight to RECONCILE, anything else suspends
// at CHECKPOINT.
func nextStage(st *state.WorkflowState, stage state.Stage) state.Stage {
	switch stage {
	case state.StageIntake:
		return state.StageUnderstand
	case state.StageUnderstand:
		return state.StagePrepare
	case state.StagePrepare:
		return state.StageRetrieve
	case state.StageRetrieve:
		return state.StageMatch
	case state.StageMatch:
		if st.MatchResult == state.MatchMatched {
			return state.StageReconcile
		}

		return state.StageCheckpoint
	case state.StageReconcile:
		return state.StageApprove
	case state.StageApprove:
		return state.StagePosting
	case state.StagePosting:
		return state.StageNotify
	case state.StageNotify:
		return state.StageComplete
	default:
		return state.StageComplete
	}
}

// suspend checkpoints the workflow for human review. The state
// snapshot is taken before the awaiting-review transition so Resume
// reconstructs execution exactly as it stood at the suspend point.
func (e *Engine) suspend(ctx context.Context, st *state.WorkflowState) (*Result, error) {
	st.CurrentStage = state.StageCheckpoint

	var discrepancy float64
	if st.MatchEvidence != nil {
		discrepancy = st.MatchEvidence.Discrepancy
	}
	priority := decision.Priority(st.MatchScore)
	reason := decision.CheckpointReason(st.MatchScore, discrepancy)

	cp, item, err := checkpoint.New(st, reason, priority, e.cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: build checkpoint: %w", err)
	}
	if err := e.checkpoints.CreateCheckpoint(ctx, cp, item); err != nil {
		return nil, fmt.Errorf("engine: persist checkpoint: %w", err)
	}

	st.Apply(&state.Update{
		Status:       state.StatusPtr(state.StatusAwaitingHuman),
		CheckpointID: &cp.CheckpointID,
		StageOutput: &state.StageOutput{
			Stage:  state.StageCheckpoint,
			Status: state.StageOK,
			Data: map[string]any{
				"checkpoint_id": cp.CheckpointID.String(),
				"reason":        reason,
				"priority":      priority,
				"review_url":    cp.ReviewURL,
			},
			Timestamp: time.Now().UTC(),
		},
		AuditLog: []string{fmt.Sprintf("CHECKPOINT: suspended for review (%s)", reason)},
	})
	st.CurrentStage = state.StageHITLDecision

	if err := e.states.UpdateState(ctx, st); err != nil {
		return nil, fmt.Errorf("engine: persist suspended state: %w", err)
	}

	e.logger.Info("workflow suspended",
		slog.String("workflow_id", st.WorkflowID.String()),
		slog.String("checkpoint_id", cp.CheckpointID.String()),
		slog.Int("priority", priority),
		slog.String("reason", reason),
	)
	e.hooks.EmitWorkflowSuspended(ctx, st, cp)

	return &Result{State: st, Checkpoint: cp, Suspended: true}, nil
}

// failWorkflow records a stage failure as a terminal FAILED status.
// The partial update from the failing stage has already been folded in,
// so the ability-call audit trail survives the failure. Validation
// failures additionally surface as an error so callers can reject the
// submission instead of reporting a created workflow.
func (e *Engine) failWorkflow(ctx context.Context, st *state.WorkflowState, stage state.Stage, stageErr error) (*Result, error) {
	st.Apply(&state.Update{
		Status: state.StatusPtr(state.StatusFailed),
		StageOutput: &state.StageOutput{
			Stage:     stage,
			Status:    state.StageFailed,
			Errors:    []string{stageErr.Error()},
			Timestamp: time.Now().UTC(),
		},
		Errors:   []string{fmt.Sprintf("%s: %v", stage, stageErr)},
		AuditLog: []string{fmt.Sprintf("%s: failed: %v", stage, stageErr)},
	})

	if err := e.states.UpdateState(ctx, st); err != nil {
		return nil, fmt.Errorf("engine: persist failed state: %w", err)
	}

	e.logger.Error("workflow failed",
		slog.String("workflow_id", st.WorkflowID.String()),
		slog.String("stage", string(stage)),
		slog.String("error", stageErr.Error()),
	)
	e.hooks.EmitStageFailed(ctx, st, stage, stageErr)
	e.hooks.EmitWorkflowFailed(ctx, st, stageErr)

	if errors.Is(stageErr, payflow.ErrValidation) {
		return nil, stageErr
	}

	return &Result{State: st}, nil
}

// execStage dispatches to the per-stage executor.
func (e *Engine) execStage(ctx context.Context, st *state.WorkflowState, stage state.Stage) (*state.Update, error) {
	switch stage {
	case state.StageIntake:
		return e.stageIntake(ctx, st)
	case state.StageUnderstand:
		return e.stageUnderstand(ctx, st)
	case state.StagePrepare:
		return e.stagePrepare(ctx, st)
	case state.StageRetrieve:
		return e.stageRetrieve(ctx, st)
	case state.StageMatch:
		return e.stageMatch(ctx, st)
	case state.StageReconcile:
		return e.stageReconcile(ctx, st)
	case state.StageApprove:
		return e.stageApprove(ctx, st)
	case state.StagePosting:
		return e.stagePosting(ctx, st)
	case state.StageNotify:
		return e.stageNotify(ctx, st)
	case state.StageComplete:
		return e.stageComplete(ctx, st)
	default:
		return nil, fmt.Errorf("engine: no executor for stage %q", stage)
	}
}
