package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
)

// ── Workflow state model ──────────────────────────────────────────
//
// The serialized WorkflowState is the source of truth; the promoted
// fields exist for filtering and indexing.

type workflowStateModel struct {
	ID           string    `bson:"_id"`
	InvoiceID    string    `bson:"invoice_id"`
	VendorName   string    `bson:"vendor_name"`
	Amount       float64   `bson:"amount"`
	Currency     string    `bson:"currency"`
	Status       string    `bson:"status"`
	CurrentStage string    `bson:"current_stage"`
	MatchScore   float64   `bson:"match_score"`
	MatchResult  string    `bson:"match_result"`
	State        []byte    `bson:"state"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toStateModel(st *state.WorkflowState) (*workflowStateModel, error) {
	blob, err := st.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("payflow/mongo: snapshot state: %w", err)
	}

	return &workflowStateModel{
		ID:           st.WorkflowID.String(),
		InvoiceID:    st.Payload.InvoiceID,
		VendorName:   st.Payload.VendorName,
		Amount:       st.Payload.Amount,
		Currency:     st.Payload.Currency,
		Status:       string(st.Status),
		CurrentStage: string(st.CurrentStage),
		MatchScore:   st.MatchScore,
		MatchResult:  string(st.MatchResult),
		State:        blob,
		CreatedAt:    st.CreatedAt,
		UpdatedAt:    st.UpdatedAt,
	}, nil
}

func fromStateModel(m *workflowStateModel) (*state.WorkflowState, error) {
	st, err := state.FromSnapshot(m.State)
	if err != nil {
		return nil, fmt.Errorf("payflow/mongo: decode state %q: %w", m.ID, err)
	}
	return st, nil
}

// ── Checkpoint model ──────────────────────────────────────────────

type checkpointModel struct {
	ID          string               `bson:"_id"`
	WorkflowID  string               `bson:"workflow_id"`
	Stage       string               `bson:"stage"`
	Status      string               `bson:"status"`
	Reason      string               `bson:"reason"`
	Priority    int                  `bson:"priority"`
	InvoiceID   string               `bson:"invoice_id"`
	VendorName  string               `bson:"vendor_name"`
	Amount      float64              `bson:"amount"`
	Currency    string               `bson:"currency"`
	MatchScore  float64              `bson:"match_score"`
	Evidence    *state.MatchEvidence `bson:"evidence,omitempty"`
	ReviewURL   string               `bson:"review_url"`
	ExpiresAt   time.Time            `bson:"expires_at"`
	StateBlob   []byte               `bson:"state_blob"`
	Decision    string               `bson:"decision,omitempty"`
	ReviewerID  string               `bson:"reviewer_id,omitempty"`
	Notes       string               `bson:"notes,omitempty"`
	ReviewedAt  *time.Time           `bson:"reviewed_at,omitempty"`
	NextStage   string               `bson:"next_stage,omitempty"`
	ResumeToken string               `bson:"resume_token,omitempty"`
	ResumedAt   *time.Time           `bson:"resumed_at,omitempty"`
	CreatedAt   time.Time            `bson:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at"`
}

func toCheckpointModel(cp *checkpoint.Checkpoint) *checkpointModel {
	m := &checkpointModel{
		ID:         cp.CheckpointID.String(),
		WorkflowID: cp.WorkflowID.String(),
		Stage:      string(cp.Stage),
		Status:     string(cp.Status),
		Reason:     cp.Reason,
		Priority:   cp.Priority,
		InvoiceID:  cp.InvoiceID,
		VendorName: cp.VendorName,
		Amount:     cp.Amount,
		Currency:   cp.Currency,
		MatchScore: cp.MatchScore,
		Evidence:   cp.Evidence,
		ReviewURL:  cp.ReviewURL,
		ExpiresAt:  cp.ExpiresAt,
		StateBlob:  cp.StateBlob,
		Decision:   string(cp.Decision),
		ReviewerID: cp.ReviewerID,
		Notes:      cp.Notes,
		NextStage:  string(cp.NextStage),
		CreatedAt:  cp.CreatedAt,
		UpdatedAt:  cp.UpdatedAt,
	}
	if !cp.ReviewedAt.IsZero() {
		m.ReviewedAt = &cp.ReviewedAt
	}
	if !cp.ResumedAt.IsZero() {
		m.ResumedAt = &cp.ResumedAt
	}
	if !cp.ResumeToken.IsNil() {
		m.ResumeToken = cp.ResumeToken.String()
	}
	return m
}

func fromCheckpointModel(m *checkpointModel) (*checkpoint.Checkpoint, error) {
	chkID, err := id.ParseCheckpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("payflow/mongo: parse checkpoint id %q: %w", m.ID, err)
	}
	wfID, err := id.ParseWorkflowID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("payflow/mongo: parse workflow id %q: %w", m.WorkflowID, err)
	}

	cp := &checkpoint.Checkpoint{
		Entity: payflow.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		CheckpointID: chkID,
		WorkflowID:   wfID,
		Stage:        state.Stage(m.Stage),
		Status:       checkpoint.Status(m.Status),
		Reason:       m.Reason,
		Priority:     m.Priority,
		InvoiceID:    m.InvoiceID,
		VendorName:   m.VendorName,
		Amount:       m.Amount,
		Currency:     m.Currency,
		MatchScore:   m.MatchScore,
		Evidence:     m.Evidence,
		ReviewURL:    m.ReviewURL,
		ExpiresAt:    m.ExpiresAt,
		StateBlob:    m.StateBlob,
		Decision:     checkpoint.Decision(m.Decision),
		ReviewerID:   m.ReviewerID,
		Notes:        m.Notes,
		NextStage:    state.Stage(m.NextStage),
	}

	if m.ReviewedAt != nil {
		cp.ReviewedAt = *m.ReviewedAt
	}
	if m.ResumedAt != nil {
		cp.ResumedAt = *m.ResumedAt
	}
	if m.ResumeToken != "" {
		token, tokErr := id.ParseResumeTokenID(m.ResumeToken)
		if tokErr != nil {
			return nil, fmt.Errorf("payflow/mongo: parse resume token %q: %w", m.ResumeToken, tokErr)
		}
		cp.ResumeToken = token
	}

	return cp, nil
}

// ── Review queue model ────────────────────────────────────────────

type reviewQueueModel struct {
	CheckpointID string    `bson:"_id"`
	WorkflowID   string    `bson:"workflow_id"`
	InvoiceID    string    `bson:"invoice_id"`
	VendorName   string    `bson:"vendor_name"`
	Amount       float64   `bson:"amount"`
	Currency     string    `bson:"currency"`
	MatchScore   float64   `bson:"match_score"`
	Reason       string    `bson:"reason"`
	Priority     int       `bson:"priority"`
	Status       string    `bson:"status"`
	ReviewURL    string    `bson:"review_url"`
	CreatedAt    time.Time `bson:"created_at"`
	ExpiresAt    time.Time `bson:"expires_at"`
}

func toQueueModel(item *checkpoint.ReviewQueueItem) *reviewQueueModel {
	return &reviewQueueModel{
		CheckpointID: item.CheckpointID.String(),
		WorkflowID:   item.WorkflowID.String(),
		InvoiceID:    item.InvoiceID,
		VendorName:   item.VendorName,
		Amount:       item.Amount,
		Currency:     item.Currency,
		MatchScore:   item.MatchScore,
		Reason:       item.Reason,
		Priority:     item.Priority,
		Status:       string(item.Status),
		ReviewURL:    item.ReviewURL,
		CreatedAt:    item.CreatedAt,
		ExpiresAt:    item.ExpiresAt,
	}
}

func fromQueueModel(m *reviewQueueModel) (*checkpoint.ReviewQueueItem, error) {
	chkID, err := id.ParseCheckpointID(m.CheckpointID)
	if err != nil {
		return nil, fmt.Errorf("payflow/mongo: parse checkpoint id %q: %w", m.CheckpointID, err)
	}
	wfID, err := id.ParseWorkflowID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("payflow/mongo: parse workflow id %q: %w", m.WorkflowID, err)
	}

	return &checkpoint.ReviewQueueItem{
		CheckpointID: chkID,
		WorkflowID:   wfID,
		InvoiceID:    m.InvoiceID,
		VendorName:   m.VendorName,
		Amount:       m.Amount,
		Currency:     m.Currency,
		MatchScore:   m.MatchScore,
		Reason:       m.Reason,
		Priority:     m.Priority,
		Status:       checkpoint.Status(m.Status),
		ReviewURL:    m.ReviewURL,
		CreatedAt:    m.CreatedAt,
		ExpiresAt:    m.ExpiresAt,
	}, nil
}
