// Package state defines the invoice workflow data model: the payload an
// invoice arrives with, the accumulated WorkflowState an execution builds
// up stage by stage, and the Update delta a stage hands back to the
// executor.
package state

import (
	"encoding/json"
	"time"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/id"
)

// Stage identifies a node in the fixed invoice processing graph.
type Stage string

// Stage constants, in graph order.
const (
	StageIntake       Stage = "INTAKE"
	StageUnderstand   Stage = "UNDERSTAND"
	StagePrepare      Stage = "PREPARE"
	StageRetrieve     Stage = "RETRIEVE"
	StageMatch        Stage = "MATCH"
	StageCheckpoint   Stage = "CHECKPOINT"
	StageHITLDecision Stage = "HITL_DECISION"
	StageReconcile    Stage = "RECONCILE"
	StageApprove      Stage = "APPROVE"
	StagePosting      Stage = "POSTING"
	StageNotify       Stage = "NOTIFY"
	StageComplete     Stage = "COMPLETE"
)

// Status is the lifecycle state of a workflow instance.
type Status string

// Workflow status constants.
const (
	StatusInitiated     Status = "INITIATED"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusAwaitingHuman Status = "AWAITING_HUMAN"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
	StatusManualHandoff Status = "MANUAL_HANDOFF"
)

// IsTerminal reports whether no further stage will run for this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusManualHandoff
}

// MatchResult is the outcome of the two-way match.
type MatchResult string

// Match result constants.
const (
	MatchPending MatchResult = "PENDING"
	MatchMatched MatchResult = "MATCHED"
	MatchFailed  MatchResult = "FAILED"
)

// LineItem is a single invoice or purchase order line.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// InvoicePayload is the inbound invoice submitted to the engine.
type InvoicePayload struct {
	InvoiceID   string     `json:"invoice_id"`
	VendorName  string     `json:"vendor_name"`
	VendorTaxID string     `json:"vendor_tax_id,omitempty"`
	InvoiceDate string     `json:"invoice_date"`
	DueDate     string     `json:"due_date,omitempty"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	LineItems   []LineItem `json:"line_items,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
	POReference string     `json:"po_reference,omitempty"`
}

// VendorProfile is the normalized and enriched view of the vendor.
type VendorProfile struct {
	NormalizedName string         `json:"normalized_name"`
	TaxID          string         `json:"tax_id,omitempty"`
	RiskScore      float64        `json:"risk_score"`
	CreditScore    int            `json:"credit_score,omitempty"`
	Enrichment     map[string]any `json:"enrichment,omitempty"`
}

// RiskFlags is the outcome of deterministic risk screening.
type RiskFlags struct {
	RiskScore float64  `json:"risk_score"`
	Warnings  []string `json:"warnings,omitempty"`
}

// PurchaseOrder is a PO record retrieved from the ERP side.
type PurchaseOrder struct {
	PONumber  string     `json:"po_number"`
	Vendor    string     `json:"vendor,omitempty"`
	Amount    float64    `json:"amount"`
	Currency  string     `json:"currency,omitempty"`
	Status    string     `json:"status,omitempty"`
	LineItems []LineItem `json:"line_items,omitempty"`
}

// GoodsReceipt is a goods receipt note linked to a PO.
type GoodsReceipt struct {
	GRNNumber  string `json:"grn_number"`
	PONumber   string `json:"po_number"`
	ReceivedAt string `json:"received_at,omitempty"`
	Complete   bool   `json:"complete"`
}

// HistoryRecord is one prior invoice from the vendor's payment history.
type HistoryRecord struct {
	InvoiceID string  `json:"invoice_id"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	PaidOn    string  `json:"paid_on,omitempty"`
}

// MatchEvidence captures the numbers behind a match verdict. It is what
// a reviewer sees when the match fails.
type MatchEvidence struct {
	PONumber         string   `json:"po_number,omitempty"`
	POAmount         float64  `json:"po_amount"`
	InvoiceAmount    float64  `json:"invoice_amount"`
	Discrepancy      float64  `json:"discrepancy"`
	DiscrepancyPct   float64  `json:"discrepancy_pct"`
	DiscrepancyItems []string `json:"discrepancy_items,omitempty"`
}

// AccountingEntry is one leg of the double-entry pair built at RECONCILE.
type AccountingEntry struct {
	Account   string  `json:"account"`
	Code      string  `json:"code"`
	EntryType string  `json:"entry_type"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

// Entry type constants.
const (
	EntryDebit  = "debit"
	EntryCredit = "credit"
)

// ReconciliationReport summarizes the balance check over the entries.
type ReconciliationReport struct {
	Balanced     bool    `json:"balanced"`
	TotalDebits  float64 `json:"total_debits"`
	TotalCredits float64 `json:"total_credits"`
}

// StageOutput is the immutable record of one stage execution. One is
// appended per execution; re-entry after resume appends a second record
// for the same stage rather than overwriting the first.
type StageOutput struct {
	Stage          Stage             `json:"stage"`
	Status         string            `json:"status"`
	Data           map[string]any    `json:"data,omitempty"`
	Errors         []string          `json:"errors,omitempty"`
	ToolSelections map[string]string `json:"tool_selections,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Stage output status constants.
const (
	StageOK     = "success"
	StageFailed = "failed"
)

// CallRecord is one entry in the ability-call audit trail.
type CallRecord struct {
	Stage     Stage     `json:"stage"`
	Ability   string    `json:"ability"`
	Group     string    `json:"group"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowState is the full accumulated state of one workflow instance.
// It is persisted after every stage and snapshotted verbatim into a
// checkpoint when execution suspends for review.
type WorkflowState struct {
	payflow.Entity

	WorkflowID   id.WorkflowID  `json:"workflow_id"`
	CurrentStage Stage          `json:"current_stage"`
	Status       Status         `json:"status"`
	Payload      InvoicePayload `json:"invoice_payload"`

	// INTAKE
	IntakeID id.IntakeID `json:"intake_id,omitempty"`
	IngestTS time.Time   `json:"ingest_ts,omitempty"`

	// UNDERSTAND
	Validated   bool       `json:"validated"`
	InvoiceText string     `json:"invoice_text,omitempty"`
	ParsedLines []LineItem `json:"parsed_line_items,omitempty"`
	DetectedPOs []string   `json:"detected_pos,omitempty"`

	// PREPARE
	Vendor *VendorProfile `json:"vendor_profile,omitempty"`
	Flags  *RiskFlags     `json:"flags,omitempty"`

	// RETRIEVE
	MatchedPOs    []PurchaseOrder `json:"matched_pos,omitempty"`
	GoodsReceipts []GoodsReceipt  `json:"goods_receipts,omitempty"`
	VendorHistory []HistoryRecord `json:"vendor_history,omitempty"`

	// MATCH
	MatchScore    float64        `json:"match_score"`
	MatchResult   MatchResult    `json:"match_result,omitempty"`
	MatchEvidence *MatchEvidence `json:"match_evidence,omitempty"`

	// CHECKPOINT / HITL_DECISION
	CheckpointID  id.CheckpointID `json:"checkpoint_id,omitempty"`
	HumanDecision string          `json:"human_decision,omitempty"`
	ReviewerID    string          `json:"reviewer_id,omitempty"`
	ReviewNotes   string          `json:"review_notes,omitempty"`
	DecidedAt     time.Time       `json:"decided_at,omitempty"`

	// RECONCILE
	AccountingEntries []AccountingEntry     `json:"accounting_entries,omitempty"`
	Reconciliation    *ReconciliationReport `json:"reconciliation,omitempty"`

	// APPROVE
	ApprovalStatus string `json:"approval_status,omitempty"`
	Approver       string `json:"approver,omitempty"`

	// POSTING
	Posted             bool   `json:"posted"`
	ERPTxnID           string `json:"erp_txn_id,omitempty"`
	ScheduledPaymentID string `json:"scheduled_payment_id,omitempty"`

	// NOTIFY
	VendorNotificationID  string `json:"vendor_notification_id,omitempty"`
	FinanceNotificationID string `json:"finance_notification_id,omitempty"`

	// COMPLETE
	FinalSummary map[string]any `json:"final_summary,omitempty"`
	AuditLog     []string       `json:"audit_log,omitempty"`

	// Append-only audit accumulators.
	StageOutputs   []StageOutput     `json:"stage_outputs,omitempty"`
	ToolSelections map[string]string `json:"tool_selections,omitempty"`
	AbilityCalls   []CallRecord      `json:"ability_calls,omitempty"`
	Errors         []string          `json:"errors,omitempty"`
}

// Approval status constants.
const (
	ApprovalAuto     = "AUTO_APPROVED"
	ApprovalRequired = "REQUIRES_APPROVAL"
)

// New returns an initialized WorkflowState positioned at INTAKE.
func New(payload InvoicePayload) *WorkflowState {
	return &WorkflowState{
		Entity:       payflow.NewEntity(),
		WorkflowID:   id.NewWorkflowID(),
		CurrentStage: StageIntake,
		Status:       StatusInitiated,
		Payload:      payload,
		MatchResult:  MatchPending,
	}
}

// Snapshot serializes the state to JSON for checkpoint storage.
func (s *WorkflowState) Snapshot() ([]byte, error) {
	return json.Marshal(s)
}

// FromSnapshot reconstructs a WorkflowState from a checkpoint snapshot.
func FromSnapshot(data []byte) (*WorkflowState, error) {
	var s WorkflowState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	return &s, nil
}

// Clone returns a deep copy safe to hand across store boundaries.
func (s *WorkflowState) Clone() *WorkflowState {
	out := *s

	out.Payload.LineItems = append([]LineItem(nil), s.Payload.LineItems...)
	out.Payload.Attachments = append([]string(nil), s.Payload.Attachments...)
	out.ParsedLines = append([]LineItem(nil), s.ParsedLines...)
	out.DetectedPOs = append([]string(nil), s.DetectedPOs...)
	out.MatchedPOs = append([]PurchaseOrder(nil), s.MatchedPOs...)
	out.GoodsReceipts = append([]GoodsReceipt(nil), s.GoodsReceipts...)
	out.VendorHistory = append([]HistoryRecord(nil), s.VendorHistory...)
	out.AccountingEntries = append([]AccountingEntry(nil), s.AccountingEntries...)
	out.StageOutputs = append([]StageOutput(nil), s.StageOutputs...)
	out.AbilityCalls = append([]CallRecord(nil), s.AbilityCalls...)
	out.AuditLog = append([]string(nil), s.AuditLog...)
	out.Errors = append([]string(nil), s.Errors...)

	if s.Vendor != nil {
		v := *s.Vendor
		out.Vendor = &v
	}
	if s.Flags != nil {
		f := *s.Flags
		f.Warnings = append([]string(nil), s.Flags.Warnings...)
		out.Flags = &f
	}
	if s.MatchEvidence != nil {
		e := *s.MatchEvidence
		e.DiscrepancyItems = append([]string(nil), s.MatchEvidence.DiscrepancyItems...)
		out.MatchEvidence = &e
	}
	if s.Reconciliation != nil {
		r := *s.Reconciliation
		out.Reconciliation = &r
	}
	if s.ToolSelections != nil {
		out.ToolSelections = make(map[string]string, len(s.ToolSelections))
		for k, v := range s.ToolSelections {
			out.ToolSelections[k] = v
		}
	}
	if s.FinalSummary != nil {
		out.FinalSummary = make(map[string]any, len(s.FinalSummary))
		for k, v := range s.FinalSummary {
			out.FinalSummary[k] = v
		}
	}

	return &out
}
