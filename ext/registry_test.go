package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/ext"
	"github.com/xraph/payflow/state"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnWorkflowStarted(_ context.Context, _ *state.WorkflowState) error {
	e.calls = append(e.calls, "OnWorkflowStarted")
	return nil
}

func (e *allHooksExt) OnStageCompleted(_ context.Context, _ *state.WorkflowState, _ state.Stage, _ time.Duration) error {
	e.calls = append(e.calls, "OnStageCompleted")
	return nil
}

func (e *allHooksExt) OnStageFailed(_ context.Context, _ *state.WorkflowState, _ state.Stage, _ error) error {
	e.calls = append(e.calls, "OnStageFailed")
	return nil
}

func (e *allHooksExt) OnWorkflowSuspended(_ context.Context, _ *state.WorkflowState, _ *checkpoint.Checkpoint) error {
	e.calls = append(e.calls, "OnWorkflowSuspended")
	return nil
}

func (e *allHooksExt) OnWorkflowResumed(_ context.Context, _ *state.WorkflowState, _ checkpoint.Decision) error {
	e.calls = append(e.calls, "OnWorkflowResumed")
	return nil
}

func (e *allHooksExt) OnWorkflowCompleted(_ context.Context, _ *state.WorkflowState, _ time.Duration) error {
	e.calls = append(e.calls, "OnWorkflowCompleted")
	return nil
}

func (e *allHooksExt) OnWorkflowFailed(_ context.Context, _ *state.WorkflowState, _ error) error {
	e.calls = append(e.calls, "OnWorkflowFailed")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// suspendOnlyExt only implements the suspend hook.
type suspendOnlyExt struct {
	calls []string
}

func (e *suspendOnlyExt) Name() string { return "suspend-only" }

func (e *suspendOnlyExt) OnWorkflowSuspended(_ context.Context, _ *state.WorkflowState, _ *checkpoint.Checkpoint) error {
	e.calls = append(e.calls, "OnWorkflowSuspended")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnWorkflowStarted(_ context.Context, _ *state.WorkflowState) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func testState() *state.WorkflowState {
	return state.New(state.InvoicePayload{
		InvoiceID: "INV-001", VendorName: "Acme Corp", InvoiceDate: "2025-01-15",
		Amount: 5500, Currency: "USD",
	})
}

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	so := &suspendOnlyExt{}
	r.Register(all)
	r.Register(so)

	ctx := context.Background()
	st := testState()

	// Both implement OnWorkflowSuspended → both called.
	r.EmitWorkflowSuspended(ctx, st, &checkpoint.Checkpoint{})
	if len(all.calls) != 1 || all.calls[0] != "OnWorkflowSuspended" {
		t.Fatalf("all: expected [OnWorkflowSuspended], got %v", all.calls)
	}
	if len(so.calls) != 1 {
		t.Fatalf("so: expected 1 call, got %v", so.calls)
	}

	// Only all implements OnWorkflowStarted → so not called.
	r.EmitWorkflowStarted(ctx, st)
	if len(all.calls) != 2 || all.calls[1] != "OnWorkflowStarted" {
		t.Fatalf("all: expected OnWorkflowStarted as 2nd, got %v", all.calls)
	}
	if len(so.calls) != 1 {
		t.Fatalf("so: should still have 1 call, got %v", so.calls)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	st := testState()

	r.EmitWorkflowStarted(ctx, st)
	r.EmitStageCompleted(ctx, st, state.StageMatch, time.Second)
	r.EmitStageFailed(ctx, st, state.StagePosting, errors.New("stage fail"))
	r.EmitWorkflowSuspended(ctx, st, &checkpoint.Checkpoint{})
	r.EmitWorkflowResumed(ctx, st, checkpoint.DecisionAccept)
	r.EmitWorkflowCompleted(ctx, st, 2*time.Second)
	r.EmitWorkflowFailed(ctx, st, errors.New("wf fail"))
	r.EmitShutdown(ctx)

	expected := []string{
		"OnWorkflowStarted", "OnStageCompleted", "OnStageFailed",
		"OnWorkflowSuspended", "OnWorkflowResumed",
		"OnWorkflowCompleted", "OnWorkflowFailed", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	failing := &failingExt{}
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(failing)
	r.Register(all)

	ctx := context.Background()

	// No panic, no error propagation. allHooksExt should still fire.
	r.EmitWorkflowStarted(ctx, testState())

	if len(all.calls) != 1 || all.calls[0] != "OnWorkflowStarted" {
		t.Fatalf("all: expected [OnWorkflowStarted] despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(slog.Default())
	ctx := context.Background()
	st := testState()

	// None of these should panic or error.
	r.EmitWorkflowStarted(ctx, st)
	r.EmitStageCompleted(ctx, st, state.StageIntake, time.Second)
	r.EmitStageFailed(ctx, st, state.StageIntake, errors.New("x"))
	r.EmitWorkflowSuspended(ctx, st, &checkpoint.Checkpoint{})
	r.EmitWorkflowResumed(ctx, st, checkpoint.DecisionReject)
	r.EmitWorkflowCompleted(ctx, st, time.Second)
	r.EmitWorkflowFailed(ctx, st, errors.New("x"))
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	ext1 := &allHooksExt{}
	ext2 := &allHooksExt{}
	r.Register(ext1)
	r.Register(ext2)

	ctx := context.Background()
	r.EmitWorkflowStarted(ctx, testState())

	// Both should be called.
	if len(ext1.calls) != 1 {
		t.Errorf("ext1: expected 1 call, got %d", len(ext1.calls))
	}
	if len(ext2.calls) != 1 {
		t.Errorf("ext2: expected 1 call, got %d", len(ext2.calls))
	}
}
