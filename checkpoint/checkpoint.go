// Package checkpoint defines the persisted suspend point of a workflow
// awaiting human review, the reviewer decision lifecycle, and the
// review queue projection that back-office tooling lists.
package checkpoint

import (
	"fmt"
	"time"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
)

// Status is the checkpoint lifecycle state.
type Status string

// Checkpoint status constants. The only legal transitions are
// CREATED -> AWAITING_REVIEW -> REVIEWED -> RESUMED, with EXPIRED as a
// side exit from AWAITING_REVIEW.
const (
	StatusCreated        Status = "CREATED"
	StatusAwaitingReview Status = "AWAITING_REVIEW"
	StatusReviewed       Status = "REVIEWED"
	StatusResumed        Status = "RESUMED"
	StatusExpired        Status = "EXPIRED"
)

// Decision is a reviewer's verdict on a suspended workflow.
type Decision string

// Decision constants.
const (
	DecisionAccept      Decision = "ACCEPT"
	DecisionReject      Decision = "REJECT"
	DecisionEscalate    Decision = "ESCALATE"
	DecisionRequestInfo Decision = "REQUEST_INFO"
)

// ParseDecision validates a wire-format decision string.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionAccept, DecisionReject, DecisionEscalate, DecisionRequestInfo:
		return Decision(s), nil
	default:
		return "", fmt.Errorf("%w: %q", payflow.ErrInvalidDecision, s)
	}
}

// NextStageFor maps a decision to the stage execution resumes at.
// Only ACCEPT re-enters the pipeline; every other verdict closes the
// workflow out through COMPLETE as a manual handoff.
func NextStageFor(d Decision) state.Stage {
	if d == DecisionAccept {
		return state.StageReconcile
	}

	return state.StageComplete
}

// Checkpoint is the durable suspend record for one workflow. The state
// snapshot is stored verbatim so the engine can reconstruct execution
// long after the suspending process is gone.
type Checkpoint struct {
	payflow.Entity

	CheckpointID id.CheckpointID `json:"checkpoint_id"`
	WorkflowID   id.WorkflowID   `json:"workflow_id"`
	Stage        state.Stage     `json:"stage"`
	Status       Status          `json:"status"`

	// Review context shown to the human.
	Reason     string               `json:"reason"`
	Priority   int                  `json:"priority"`
	InvoiceID  string               `json:"invoice_id"`
	VendorName string               `json:"vendor_name"`
	Amount     float64              `json:"amount"`
	Currency   string               `json:"currency"`
	MatchScore float64              `json:"match_score"`
	Evidence   *state.MatchEvidence `json:"evidence,omitempty"`
	ReviewURL  string               `json:"review_url"`
	ExpiresAt  time.Time            `json:"expires_at"`

	// Full WorkflowState snapshot, JSON.
	StateBlob []byte `json:"state_blob"`

	// Populated by ApplyDecision.
	Decision    Decision         `json:"decision,omitempty"`
	ReviewerID  string           `json:"reviewer_id,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	ReviewedAt  time.Time        `json:"reviewed_at,omitempty"`
	NextStage   state.Stage      `json:"next_stage,omitempty"`
	ResumeToken id.ResumeTokenID `json:"resume_token,omitempty"`

	// Populated by MarkResumed.
	ResumedAt time.Time `json:"resumed_at,omitempty"`
}

// ReviewQueueItem is the flattened projection of a checkpoint that the
// pending-review listing serves. It is maintained transactionally with
// its checkpoint.
type ReviewQueueItem struct {
	CheckpointID id.CheckpointID `json:"checkpoint_id"`
	WorkflowID   id.WorkflowID   `json:"workflow_id"`
	InvoiceID    string          `json:"invoice_id"`
	VendorName   string          `json:"vendor_name"`
	Amount       float64         `json:"amount"`
	Currency     string          `json:"currency"`
	MatchScore   float64         `json:"match_score"`
	Reason       string          `json:"reason"`
	Priority     int             `json:"priority"`
	Status       Status          `json:"status"`
	ReviewURL    string          `json:"review_url"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// New builds a checkpoint and its queue projection from a workflow
// suspended at the given state. The state is snapshotted at call time;
// later mutations do not leak into the stored blob.
func New(st *state.WorkflowState, reason string, priority int, cfg payflow.Config) (*Checkpoint, *ReviewQueueItem, error) {
	blob, err := st.Snapshot()
	if err != nil {
		return nil, nil, fmt.Errorf("checkpoint: snapshot state: %w", err)
	}

	chkID := id.NewCheckpointID()
	now := time.Now().UTC()

	cp := &Checkpoint{
		Entity:       payflow.NewEntity(),
		CheckpointID: chkID,
		WorkflowID:   st.WorkflowID,
		Stage:        state.StageCheckpoint,
		Status:       StatusAwaitingReview,
		Reason:       reason,
		Priority:     priority,
		InvoiceID:    st.Payload.InvoiceID,
		VendorName:   st.Payload.VendorName,
		Amount:       st.Payload.Amount,
		Currency:     st.Payload.Currency,
		MatchScore:   st.MatchScore,
		Evidence:     st.MatchEvidence,
		ReviewURL:    fmt.Sprintf("%s/%s", cfg.ReviewURLBase, chkID),
		ExpiresAt:    now.Add(cfg.ReviewWindow),
		StateBlob:    blob,
	}

	item := &ReviewQueueItem{
		CheckpointID: chkID,
		WorkflowID:   st.WorkflowID,
		InvoiceID:    st.Payload.InvoiceID,
		VendorName:   st.Payload.VendorName,
		Amount:       st.Payload.Amount,
		Currency:     st.Payload.Currency,
		MatchScore:   st.MatchScore,
		Reason:       reason,
		Priority:     priority,
		Status:       StatusAwaitingReview,
		ReviewURL:    cp.ReviewURL,
		CreatedAt:    cp.CreatedAt,
		ExpiresAt:    cp.ExpiresAt,
	}

	return cp, item, nil
}

// State reconstructs the snapshotted WorkflowState.
func (c *Checkpoint) State() (*state.WorkflowState, error) {
	st, err := state.FromSnapshot(c.StateBlob)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: decode state: %w", c.CheckpointID, err)
	}

	return st, nil
}
