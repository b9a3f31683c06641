package state

import (
	"time"

	"github.com/xraph/payflow/id"
)

// Update is the delta a stage function returns. The executor folds it
// into the WorkflowState with Apply; stage functions never mutate the
// state directly.
//
// Scalar fields use pointers so that the zero value means "leave as is".
// Accumulator fields (StageOutput, AbilityCalls, Errors, AuditLog,
// ToolSelections) are strictly append-or-merge. Apply never truncates
// or replaces an accumulator, whatever a stage hands back.
type Update struct {
	Status *Status

	// INTAKE
	IntakeID *id.IntakeID
	IngestTS *time.Time

	// UNDERSTAND
	Validated   *bool
	InvoiceText *string
	ParsedLines []LineItem
	DetectedPOs []string

	// PREPARE
	Vendor *VendorProfile
	Flags  *RiskFlags

	// RETRIEVE
	MatchedPOs    []PurchaseOrder
	GoodsReceipts []GoodsReceipt
	VendorHistory []HistoryRecord

	// MATCH
	MatchScore    *float64
	MatchResult   *MatchResult
	MatchEvidence *MatchEvidence

	// CHECKPOINT / HITL_DECISION
	CheckpointID  *id.CheckpointID
	HumanDecision *string
	ReviewerID    *string
	ReviewNotes   *string
	DecidedAt     *time.Time

	// RECONCILE
	AccountingEntries []AccountingEntry
	Reconciliation    *ReconciliationReport

	// APPROVE
	ApprovalStatus *string
	Approver       *string

	// POSTING
	Posted             *bool
	ERPTxnID           *string
	ScheduledPaymentID *string

	// NOTIFY
	VendorNotificationID  *string
	FinanceNotificationID *string

	// COMPLETE
	FinalSummary map[string]any

	// Append-only accumulators.
	StageOutput    *StageOutput
	ToolSelections map[string]string
	AbilityCalls   []CallRecord
	Errors         []string
	AuditLog       []string
}

// Apply folds an Update into the state. Replace semantics for scalars
// and retrieval lists, append semantics for the audit accumulators.
func (s *WorkflowState) Apply(u *Update) {
	if u == nil {
		return
	}

	if u.Status != nil {
		s.Status = *u.Status
	}

	if u.IntakeID != nil {
		s.IntakeID = *u.IntakeID
	}
	if u.IngestTS != nil {
		s.IngestTS = *u.IngestTS
	}

	if u.Validated != nil {
		s.Validated = *u.Validated
	}
	if u.InvoiceText != nil {
		s.InvoiceText = *u.InvoiceText
	}
	if u.ParsedLines != nil {
		s.ParsedLines = u.ParsedLines
	}
	if u.DetectedPOs != nil {
		s.DetectedPOs = u.DetectedPOs
	}

	if u.Vendor != nil {
		s.Vendor = u.Vendor
	}
	if u.Flags != nil {
		s.Flags = u.Flags
	}

	if u.MatchedPOs != nil {
		s.MatchedPOs = u.MatchedPOs
	}
	if u.GoodsReceipts != nil {
		s.GoodsReceipts = u.GoodsReceipts
	}
	if u.VendorHistory != nil {
		s.VendorHistory = u.VendorHistory
	}

	if u.MatchScore != nil {
		s.MatchScore = *u.MatchScore
	}
	if u.MatchResult != nil {
		s.MatchResult = *u.MatchResult
	}
	if u.MatchEvidence != nil {
		s.MatchEvidence = u.MatchEvidence
	}

	if u.CheckpointID != nil {
		s.CheckpointID = *u.CheckpointID
	}
	if u.HumanDecision != nil {
		s.HumanDecision = *u.HumanDecision
	}
	if u.ReviewerID != nil {
		s.ReviewerID = *u.ReviewerID
	}
	if u.ReviewNotes != nil {
		s.ReviewNotes = *u.ReviewNotes
	}
	if u.DecidedAt != nil {
		s.DecidedAt = *u.DecidedAt
	}

	if u.AccountingEntries != nil {
		s.AccountingEntries = u.AccountingEntries
	}
	if u.Reconciliation != nil {
		s.Reconciliation = u.Reconciliation
	}

	if u.ApprovalStatus != nil {
		s.ApprovalStatus = *u.ApprovalStatus
	}
	if u.Approver != nil {
		s.Approver = *u.Approver
	}

	if u.Posted != nil {
		s.Posted = *u.Posted
	}
	if u.ERPTxnID != nil {
		s.ERPTxnID = *u.ERPTxnID
	}
	if u.ScheduledPaymentID != nil {
		s.ScheduledPaymentID = *u.ScheduledPaymentID
	}

	if u.VendorNotificationID != nil {
		s.VendorNotificationID = *u.VendorNotificationID
	}
	if u.FinanceNotificationID != nil {
		s.FinanceNotificationID = *u.FinanceNotificationID
	}

	if u.FinalSummary != nil {
		s.FinalSummary = u.FinalSummary
	}

	// Accumulators: always append or merge, never replace.
	if u.StageOutput != nil {
		s.StageOutputs = append(s.StageOutputs, *u.StageOutput)
	}
	if len(u.ToolSelections) > 0 {
		if s.ToolSelections == nil {
			s.ToolSelections = make(map[string]string, len(u.ToolSelections))
		}
		for k, v := range u.ToolSelections {
			s.ToolSelections[k] = v
		}
	}
	s.AbilityCalls = append(s.AbilityCalls, u.AbilityCalls...)
	s.Errors = append(s.Errors, u.Errors...)
	s.AuditLog = append(s.AuditLog, u.AuditLog...)

	s.Touch()
}

// Convenience pointer helpers for building Updates.

// Str returns a pointer to s.
func Str(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// F64 returns a pointer to f.
func F64(f float64) *float64 { return &f }

// Time returns a pointer to t.
func Time(t time.Time) *time.Time { return &t }

// IDPtr returns a pointer to v.
func IDPtr(v id.ID) *id.ID { return &v }

// StatusPtr returns a pointer to st.
func StatusPtr(st Status) *Status { return &st }

// ResultPtr returns a pointer to r.
func ResultPtr(r MatchResult) *MatchResult { return &r }
