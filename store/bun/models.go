package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
)

// ── Workflow state model ──────────────────────────────────────────
//
// The serialized WorkflowState is the source of truth; the promoted
// columns exist so the row can be filtered and indexed without
// unpacking the blob.

type workflowStateModel struct {
	bun.BaseModel `bun:"table:payflow_workflow_states"`

	ID           string    `bun:"id,pk"`
	InvoiceID    string    `bun:"invoice_id,notnull"`
	VendorName   string    `bun:"vendor_name,notnull"`
	Amount       float64   `bun:"amount,notnull"`
	Currency     string    `bun:"currency,notnull"`
	Status       string    `bun:"status,notnull"`
	CurrentStage string    `bun:"current_stage,notnull"`
	MatchScore   float64   `bun:"match_score,notnull,default:0"`
	MatchResult  string    `bun:"match_result,notnull,default:'PENDING'"`
	State        []byte    `bun:"state,notnull,type:jsonb"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toStateModel(st *state.WorkflowState) (*workflowStateModel, error) {
	blob, err := st.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("payflow/bun: snapshot state: %w", err)
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
		return nil, fmt.Errorf("payflow/bun: decode state %q: %w", m.ID, err)
	}
	return st, nil
}

// ── Checkpoint model ──────────────────────────────────────────────

type checkpointModel struct {
	bun.BaseModel `bun:"table:payflow_checkpoints"`

	ID          string               `bun:"id,pk"`
	WorkflowID  string               `bun:"workflow_id,notnull"`
	Stage       string               `bun:"stage,notnull"`
	Status      string               `bun:"status,notnull"`
	Reason      string               `bun:"reason,notnull"`
	Priority    int                  `bun:"priority,notnull"`
	InvoiceID   string               `bun:"invoice_id,notnull"`
	VendorName  string               `bun:"vendor_name,notnull"`
	Amount      float64              `bun:"amount,notnull"`
	Currency    string               `bun:"currency,notnull"`
	MatchScore  float64              `bun:"match_score,notnull,default:0"`
	Evidence    *state.MatchEvidence `bun:"evidence,type:jsonb"`
	ReviewURL   string               `bun:"review_url,notnull"`
	ExpiresAt   time.Time            `bun:"expires_at,notnull"`
	StateBlob   []byte               `bun:"state_blob,notnull,type:jsonb"`
	Decision    string               `bun:"decision"`
	ReviewerID  string               `bun:"reviewer_id"`
	Notes       string               `bun:"notes"`
	ReviewedAt  *time.Time           `bun:"reviewed_at"`
	NextStage   string               `bun:"next_stage"`
	ResumeToken string               `bun:"resume_token"`
	ResumedAt   *time.Time           `bun:"resumed_at"`
	CreatedAt   time.Time            `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time            `bun:"updated_at,notnull,default:current_timestamp"`
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
		return nil, fmt.Errorf("payflow/bun: parse checkpoint id %q: %w", m.ID, err)
	}
	wfID, err := id.ParseWorkflowID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("payflow/bun: parse workflow id %q: %w", m.WorkflowID, err)
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
			return nil, fmt.Errorf("payflow/bun: parse resume token %q: %w", m.ResumeToken, tokErr)
		}
		cp.ResumeToken = token
	}

	return cp, nil
}

// ── Review queue model ────────────────────────────────────────────

type reviewQueueModel struct {
	bun.BaseModel `bun:"table:payflow_review_queue"`

	CheckpointID string    `bun:"checkpoint_id,pk"`
	WorkflowID   string    `bun:"workflow_id,notnull"`
	InvoiceID    string    `bun:"invoice_id,notnull"`
	VendorName   string    `bun:"vendor_name,notnull"`
	Amount       float64   `bun:"amount,notnull"`
	Currency     string    `bun:"currency,notnull"`
	MatchScore   float64   `bun:"match_score,notnull,default:0"`
	Reason       string    `bun:"reason,notnull"`
	Priority     int       `bun:"priority,notnull"`
	Status       string    `bun:"status,notnull"`
	ReviewURL    string    `bun:"review_url,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
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
		return nil, fmt.Errorf("payflow/bun: parse checkpoint id %q: %w", m.CheckpointID, err)
	}
	wfID, err := id.ParseWorkflowID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("payflow/bun: parse workflow id %q: %w", m.WorkflowID, err)
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
