package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/ability"
	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/engine"
	"github.com/xraph/payflow/ext"
	"github.com/xraph/payflow/state"
	"github.com/xraph/payflow/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func invoice(amount float64, poRef string) state.InvoicePayload {
	return state.InvoicePayload{
		InvoiceID:   "INV-001",
		VendorName:  "Acme Corp",
		InvoiceDate: "2025-01-15",
		DueDate:     "2025-02-15",
		Amount:      amount,
		Currency:    "USD",
		POReference: poRef,
	}
}

func newEngine(t *testing.T, simOpts ...ability.SimOption) (*engine.Engine, *memory.Store) {
	t.Helper()

	cfg := payflow.DefaultConfig()
	st := memory.New()
	inv := ability.NewInvoker(
		ability.NewLocal(cfg),
		ability.NewSimulator(cfg, simOpts...),
		ability.WithLogger(testLogger()),
	)

	eng, err := engine.New(st, st, inv, engine.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	return eng, st
}

func stageSequence(st *state.WorkflowState) []state.Stage {
	stages := make([]state.Stage, 0, len(st.StageOutputs))
	for _, out := range st.StageOutputs {
		stages = append(stages, out.Stage)
	}

	return stages
}

func TestExecuteMatchedEndToEnd(t *testing.T) {
	t.Parallel()

	eng, store := newEngine(t,
		ability.WithPurchaseOrders(state.PurchaseOrder{PONumber: "PO-2024-456", Amount: 5500}),
	)

	res, err := eng.Execute(context.Background(), invoice(5500, "PO-2024-456"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Suspended {
		t.Fatal("matched invoice should not suspend")
	}

	got := res.State
	if got.Status != state.StatusCompleted {
		t.Fatalf("Status = %q, want %q", got.Status, state.StatusCompleted)
	}
	if !got.Validated {
		t.Error("Validated = false, want true")
	}
	if got.MatchScore != 1.0 {
		t.Errorf("MatchScore = %v, want 1.0", got.MatchScore)
	}
	if got.MatchResult != state.MatchMatched {
		t.Errorf("MatchResult = %q, want %q", got.MatchResult, state.MatchMatched)
	}
	if got.ApprovalStatus != state.ApprovalAuto {
		t.Errorf("ApprovalStatus = %q, want %q", got.ApprovalStatus, state.ApprovalAuto)
	}
	if got.Approver != "system" {
		t.Errorf("Approver = %q, want %q", got.Approver, "system")
	}
	if !got.Posted || got.ERPTxnID == "" {
		t.Errorf("Posted = %t, ERPTxnID = %q, want posted with a txn id", got.Posted, got.ERPTxnID)
	}
	if got.ScheduledPaymentID == "" {
		t.Error("ScheduledPaymentID is empty")
	}
	if got.VendorNotificationID == "" || got.FinanceNotificationID == "" {
		t.Error("notification ids not recorded")
	}
	if len(got.AccountingEntries) != 2 {
		t.Errorf("len(AccountingEntries) = %d, want 2", len(got.AccountingEntries))
	}
	if got.Reconciliation == nil || !got.Reconciliation.Balanced {
		t.Error("reconciliation report missing or unbalanced")
	}

	wantStages := []state.Stage{
		state.StageIntake, state.StageUnderstand, state.StagePrepare,
		state.StageRetrieve, state.StageMatch, state.StageReconcile,
		state.StageApprove, state.StagePosting, state.StageNotify,
		state.StageComplete,
	}
	gotStages := stageSequence(got)
	if len(gotStages) != len(wantStages) {
		t.Fatalf("stage sequence = %v, want %v", gotStages, wantStages)
	}
	for i, s := range wantStages {
		if gotStages[i] != s {
			t.Errorf("stage[%d] = %q, want %q", i, gotStages[i], s)
		}
	}

	wantTools := map[string]string{
		"ocr":           "tesseract_local",
		"enrichment":    "internal_vendor_db",
		"db":            "postgres_primary",
		"erp_connector": "quickbooks_connector",
		"email":         "sendgrid",
	}
	for capability, provider := range wantTools {
		if got.ToolSelections[capability] != provider {
			t.Errorf("ToolSelections[%q] = %q, want %q", capability, got.ToolSelections[capability], provider)
		}
	}

	// The terminal state must be what the store holds.
	persisted, err := store.GetState(context.Background(), got.WorkflowID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if persisted.Status != state.StatusCompleted {
		t.Errorf("persisted Status = %q, want %q", persisted.Status, state.StatusCompleted)
	}
	if persisted.FinalSummary["final_status"] != string(state.StatusCompleted) {
		t.Errorf("FinalSummary[final_status] = %v, want %q", persisted.FinalSummary["final_status"], state.StatusCompleted)
	}
}

func TestExecuteLargeAmountRequiresApproval(t *testing.T) {
	t.Parallel()

	eng, _ := newEngine(t,
		ability.WithPurchaseOrders(state.PurchaseOrder{PONumber: "PO-2024-456", Amount: 25000}),
	)

	res, err := eng.Execute(context.Background(), invoice(25000, "PO-2024-456"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.State.ApprovalStatus != state.ApprovalRequired {
		t.Errorf("ApprovalStatus = %q, want %q", res.State.ApprovalStatus, state.ApprovalRequired)
	}
	if res.State.Approver != "finance_manager" {
		t.Errorf("Approver = %q, want %q", res.State.Approver, "finance_manager")
	}
	if res.State.Status != state.StatusCompleted {
		t.Errorf("Status = %q, want %q", res.State.Status, state.StatusCompleted)
	}
}

func TestExecuteSuspendsOnMismatch(t *testing.T) {
	t.Parallel()

	eng, store := newEngine(t,
		ability.WithPurchaseOrders(state.PurchaseOrder{PONumber: "PO-2024-456", Amount: 4000}),
	)

	res, err := eng.Execute(context.Background(), invoice(5500, "PO-2024-456"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Suspended {
		t.Fatal("mismatched invoice should suspend")
	}
	if res.Checkpoint == nil {
		t.Fatal("suspended result has no checkpoint")
	}

	got := res.State
	if got.Status != state.StatusAwaitingHuman {
		t.Errorf("Status = %q, want %q", got.Status, state.StatusAwaitingHuman)
	}
	if got.CurrentStage != state.StageHITLDecision {
		t.Errorf("CurrentStage = %q, want %q", got.CurrentStage, state.StageHITLDecision)
	}
	if got.CheckpointID.String() != res.Checkpoint.CheckpointID.String() {
		t.Error("checkpoint id not recorded on state")
	}

	cp := res.Checkpoint
	if cp.Status != checkpoint.StatusAwaitingReview {
		t.Errorf("checkpoint Status = %q, want %q", cp.Status, checkpoint.StatusAwaitingReview)
	}
	// Score 0.625 here is a moderate discrepancy, not an urgent one.
	if cp.Priority != 5 {
		t.Errorf("Priority = %d, want 5", cp.Priority)
	}
	if !strings.HasPrefix(cp.ReviewURL, "/human-review/review/") {
		t.Errorf("ReviewURL = %q, want /human-review/review/ prefix", cp.ReviewURL)
	}
	if cp.Evidence == nil || cp.Evidence.Discrepancy != 1500 {
		t.Errorf("Evidence = %+v, want discrepancy 1500", cp.Evidence)
	}

	pending, err := store.PendingReviews(context.Background())
	if err != nil {
		t.Fatalf("PendingReviews: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	if pending[0].CheckpointID.String() != cp.CheckpointID.String() {
		t.Error("pending review does not reference the checkpoint")
	}
}

func TestExecuteNoPOIsUrgent(t *testing.T) {
	t.Parallel()

	eng, _ := newEngine(t)

	res, err := eng.Execute(context.Background(), invoice(5500, "PO-MISSING"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Suspended {
		t.Fatal("invoice without a PO should suspend")
	}
	if res.State.MatchScore != 0 {
		t.Errorf("MatchScore = %v, want 0", res.State.MatchScore)
	}
	if res.Checkpoint.Priority != 3 {
		t.Errorf("Priority = %d, want 3", res.Checkpoint.Priority)
	}
}

func TestResumeAcceptCompletes(t *testing.T) {
	t.Parallel()

	eng, store := newEngine(t,
		ability.WithPurchaseOrders(state.PurchaseOrder{PONumber: "PO-2024-456", Amount: 4000}),
	)

	sus, err := eng.Execute(context.Background(), invoice(5500, "PO-2024-456"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !sus.Suspended {
		t.Fatal("setup: expected suspension")
	}

	res, err := eng.Resume(context.Background(), sus.Checkpoint.CheckpointID,
		checkpoint.DecisionAccept, "reviewer-7", "amounts verified")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if res.Suspended {
		t.Fatal("resumed workflow should not suspend again")
	}
	if res.Checkpoint == nil {
		t.Fatal("resumed result missing the reviewed checkpoint")
	}
	if res.Checkpoint.ResumeToken.String() == "" {
		t.Error("resumed result missing resume token")
	}
	if res.Checkpoint.NextStage != state.StageReconcile {
		t.Errorf("NextStage = %q, want %q", res.Checkpoint.NextStage, state.StageReconcile)
	}

	got := res.State
	if got.Status != state.StatusCompleted {
		t.Fatalf("Status = %q, want %q", got.Status, state.StatusCompleted)
	}
	if got.HumanDecision != string(checkpoint.DecisionAccept) {
		t.Errorf("HumanDecision = %q, want %q", got.HumanDecision, checkpoint.DecisionAccept)
	}
	if got.ReviewerID != "reviewer-7" {
		t.Errorf("ReviewerID = %q, want %q", got.ReviewerID, "reviewer-7")
	}
	if got.DecidedAt.IsZero() {
		t.Error("DecidedAt not set")
	}
	if len(got.AccountingEntries) == 0 || !got.Posted {
		t.Error("accepted workflow should run RECONCILE through POSTING")
	}

	cp, err := store.GetCheckpoint(context.Background(), sus.Checkpoint.CheckpointID)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if cp.Status != checkpoint.StatusResumed {
		t.Errorf("checkpoint Status = %q, want %q", cp.Status, checkpoint.StatusResumed)
	}
	if cp.ResumeToken.String() == "" {
		t.Error("resume token not issued")
	}

	// A second decision must not re-run the workflow.
	if _, err := eng.Resume(context.Background(), sus.Checkpoint.CheckpointID,
		checkpoint.DecisionReject, "reviewer-8", ""); !errors.Is(err, payflow.ErrAlreadyReviewed) {
		t.Fatalf("second Resume error = %v, want ErrAlreadyReviewed", err)
	}
}

func TestResumeRejectIsManualHandoff(t *testing.T) {
	t.Parallel()

	eng, _ := newEngine(t,
		ability.WithPurchaseOrders(state.PurchaseOrder{PONumber: "PO-2024-456", Amount: 4000}),
	)

	sus, err := eng.Execute(context.Background(), invoice(5500, "PO-2024-456"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	res, err := eng.Resume(context.Background(), sus.Checkpoint.CheckpointID,
		checkpoint.DecisionReject, "reviewer-7", "discrepancy unexplained")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}

	got := res.State
	if got.Status != state.StatusManualHandoff {
		t.Fatalf("Status = %q, want %q", got.Status, state.StatusManualHandoff)
	}
	if got.Posted {
		t.Error("rejected workflow must not post to the ERP")
	}
	if len(got.AccountingEntries) != 0 {
		t.Error("rejected workflow must not build accounting entries")
	}
	if got.FinalSummary["human_decision"] != string(checkpoint.DecisionReject) {
		t.Errorf("FinalSummary[human_decision] = %v, want %q", got.FinalSummary["human_decision"], checkpoint.DecisionReject)
	}
}

func TestResumeEscalateIsManualHandoff(t *testing.T) {
	t.Parallel()

	eng, _ := newEngine(t)

	sus, err := eng.Execute(context.Background(), invoice(5500, ""))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	res, err := eng.Resume(context.Background(), sus.Checkpoint.CheckpointID,
		checkpoint.DecisionEscalate, "reviewer-7", "needs procurement sign-off")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if res.State.Status != state.StatusManualHandoff {
		t.Errorf("Status = %q, want %q", res.State.Status, state.StatusManualHandoff)
	}
}

func TestExecuteValidationFailure(t *testing.T) {
	t.Parallel()

	eng, store := newEngine(t)

	bad := state.InvoicePayload{InvoiceID: "INV-BAD", VendorName: "Acme Corp"}
	res, err := eng.Execute(context.Background(), bad)
	if !errors.Is(err, payflow.ErrValidation) {
		t.Fatalf("Execute err = %v, want payflow.ErrValidation", err)
	}
	if res != nil {
		t.Fatalf("Execute returned a result alongside a validation error")
	}

	// The failed state must still be visible through the store.
	states, err := store.ListStates(context.Background(), state.ListOpts{})
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("persisted states = %d, want 1", len(states))
	}
	persisted := states[0]
	if persisted.Status != state.StatusFailed {
		t.Fatalf("persisted Status = %q, want %q", persisted.Status, state.StatusFailed)
	}
	if len(persisted.Errors) == 0 {
		t.Error("failure not recorded in Errors")
	}
	if len(persisted.StageOutputs) == 0 || persisted.StageOutputs[len(persisted.StageOutputs)-1].Status != state.StageFailed {
		t.Error("failed stage output not recorded")
	}
}

// recorder is a test extension that counts lifecycle events.
type recorder struct {
	mu        sync.Mutex
	started   int
	stages    []state.Stage
	suspended int
	resumed   int
	completed int
	failed    int
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnWorkflowStarted(_ context.Context, _ *state.WorkflowState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++

	return nil
}

func (r *recorder) OnStageCompleted(_ context.Context, _ *state.WorkflowState, stage state.Stage, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)

	return nil
}

func (r *recorder) OnWorkflowSuspended(_ context.Context, _ *state.WorkflowState, _ *checkpoint.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended++

	return nil
}

func (r *recorder) OnWorkflowResumed(_ context.Context, _ *state.WorkflowState, _ checkpoint.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumed++

	return nil
}

func (r *recorder) OnWorkflowCompleted(_ context.Context, _ *state.WorkflowState, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++

	return nil
}

func (r *recorder) OnWorkflowFailed(_ context.Context, _ *state.WorkflowState, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++

	return nil
}

func TestLifecycleHooks(t *testing.T) {
	t.Parallel()

	cfg := payflow.DefaultConfig()
	st := memory.New()
	inv := ability.NewInvoker(
		ability.NewLocal(cfg),
		ability.NewSimulator(cfg, ability.WithPurchaseOrders(
			state.PurchaseOrder{PONumber: "PO-2024-456", Amount: 4000},
		)),
		ability.WithLogger(testLogger()),
	)

	rec := &recorder{}
	hooks := ext.NewRegistry(testLogger())
	hooks.Register(rec)

	eng, err := engine.New(st, st, inv,
		engine.WithLogger(testLogger()),
		engine.WithHooks(hooks),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	sus, err := eng.Execute(context.Background(), invoice(5500, "PO-2024-456"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := eng.Resume(context.Background(), sus.Checkpoint.CheckpointID,
		checkpoint.DecisionAccept, "reviewer-7", ""); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.started != 1 {
		t.Errorf("started = %d, want 1", rec.started)
	}
	if rec.suspended != 1 {
		t.Errorf("suspended = %d, want 1", rec.suspended)
	}
	if rec.resumed != 1 {
		t.Errorf("resumed = %d, want 1", rec.resumed)
	}
	if rec.completed != 1 {
		t.Errorf("completed = %d, want 1", rec.completed)
	}
	if rec.failed != 0 {
		t.Errorf("failed = %d, want 0", rec.failed)
	}

	// Five stages before suspension, four after resume plus COMPLETE.
	want := []state.Stage{
		state.StageIntake, state.StageUnderstand, state.StagePrepare,
		state.StageRetrieve, state.StageMatch, state.StageReconcile,
		state.StageApprove, state.StagePosting, state.StageNotify,
		state.StageComplete,
	}
	if len(rec.stages) != len(want) {
		t.Fatalf("stage events = %v, want %v", rec.stages, want)
	}
	for i, s := range want {
		if rec.stages[i] != s {
			t.Errorf("stage event[%d] = %q, want %q", i, rec.stages[i], s)
		}
	}
}

func TestResumeSurvivesEngineRestart(t *testing.T) {
	t.Parallel()

	cfg := payflow.DefaultConfig()
	st := memory.New()
	newInvoker := func() *ability.Invoker {
		return ability.NewInvoker(
			ability.NewLocal(cfg),
			ability.NewSimulator(cfg, ability.WithPurchaseOrders(
				state.PurchaseOrder{PONumber: "PO-2024-456", Amount: 4000},
			)),
			ability.WithLogger(testLogger()),
		)
	}

	first, err := engine.New(st, st, newInvoker(), engine.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	sus, err := first.Execute(context.Background(), invoice(5500, "PO-2024-456"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// A fresh engine over the same store must resume from the durable
	// checkpoint alone.
	second, err := engine.New(st, st, newInvoker(), engine.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	res, err := second.Resume(context.Background(), sus.Checkpoint.CheckpointID,
		checkpoint.DecisionAccept, "reviewer-7", "")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if res.State.Status != state.StatusCompleted {
		t.Errorf("Status = %q, want %q", res.State.Status, state.StatusCompleted)
	}
	if res.State.MatchScore != sus.State.MatchScore {
		t.Errorf("MatchScore = %v, want %v carried through the snapshot", res.State.MatchScore, sus.State.MatchScore)
	}
}
