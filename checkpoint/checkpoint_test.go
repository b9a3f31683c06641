package checkpoint_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/state"
)

func suspendedState() *state.WorkflowState {
	st := state.New(state.InvoicePayload{
		InvoiceID:   "INV-001",
		VendorName:  "Acme Corp",
		InvoiceDate: "2025-01-15",
		Amount:      5500,
		Currency:    "USD",
		POReference: "PO-2024-456",
	})
	st.Apply(&state.Update{
		Status:      state.StatusPtr(state.StatusAwaitingHuman),
		MatchScore:  state.F64(0.85),
		MatchResult: state.ResultPtr(state.MatchFailed),
		MatchEvidence: &state.MatchEvidence{
			PONumber: "PO-2024-456", POAmount: 4800, InvoiceAmount: 5500, Discrepancy: 700,
		},
	})

	return st
}

func TestParseDecision(t *testing.T) {
	for _, s := range []string{"ACCEPT", "REJECT", "ESCALATE", "REQUEST_INFO"} {
		if _, err := checkpoint.ParseDecision(s); err != nil {
			t.Errorf("ParseDecision(%q) failed: %v", s, err)
		}
	}

	_, err := checkpoint.ParseDecision("approve")
	if err == nil {
		t.Fatal("expected error for unknown decision")
	}
	if !errors.Is(err, payflow.ErrInvalidDecision) {
		t.Errorf("error %v is not ErrInvalidDecision", err)
	}
}

func TestNextStageFor(t *testing.T) {
	tests := []struct {
		decision checkpoint.Decision
		want     state.Stage
	}{
		{checkpoint.DecisionAccept, state.StageReconcile},
		{checkpoint.DecisionReject, state.StageComplete},
		{checkpoint.DecisionEscalate, state.StageComplete},
		{checkpoint.DecisionRequestInfo, state.StageComplete},
	}
	for _, tt := range tests {
		if got := checkpoint.NextStageFor(tt.decision); got != tt.want {
			t.Errorf("NextStageFor(%q) = %q, want %q", tt.decision, got, tt.want)
		}
	}
}

func TestNewCheckpoint(t *testing.T) {
	st := suspendedState()
	cfg := payflow.DefaultConfig()

	cp, item, err := checkpoint.New(st, "Match score 0.85 below threshold. Discrepancy: $700.00", 5, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if cp.Status != checkpoint.StatusAwaitingReview {
		t.Errorf("Status = %q, want %q", cp.Status, checkpoint.StatusAwaitingReview)
	}
	if cp.WorkflowID != st.WorkflowID {
		t.Errorf("WorkflowID = %v, want %v", cp.WorkflowID, st.WorkflowID)
	}
	if cp.Priority != 5 || cp.MatchScore != 0.85 {
		t.Errorf("Priority/MatchScore = %d/%v", cp.Priority, cp.MatchScore)
	}
	if !strings.HasPrefix(cp.ReviewURL, cfg.ReviewURLBase+"/chk_") {
		t.Errorf("ReviewURL = %q", cp.ReviewURL)
	}
	if cp.ExpiresAt.Sub(cp.CreatedAt) < cfg.ReviewWindow-cfg.ReviewWindow/100 {
		t.Errorf("ExpiresAt = %v too close to CreatedAt %v", cp.ExpiresAt, cp.CreatedAt)
	}

	if item.CheckpointID != cp.CheckpointID || item.Priority != cp.Priority {
		t.Errorf("queue item out of sync: %+v", item)
	}
	if item.Status != checkpoint.StatusAwaitingReview {
		t.Errorf("item.Status = %q", item.Status)
	}
}

func TestCheckpointSnapshotIsolation(t *testing.T) {
	st := suspendedState()
	cp, _, err := checkpoint.New(st, "reason", 5, payflow.DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Mutations after snapshot must not leak into the stored blob.
	st.Apply(&state.Update{MatchScore: state.F64(0.01)})

	restored, err := cp.State()
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if restored.MatchScore != 0.85 {
		t.Errorf("restored MatchScore = %v, want snapshot value 0.85", restored.MatchScore)
	}
	if restored.Status != state.StatusAwaitingHuman {
		t.Errorf("restored Status = %q, want %q", restored.Status, state.StatusAwaitingHuman)
	}
}
