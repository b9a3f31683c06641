package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/ability"
	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
	"github.com/xraph/payflow/toolsel"
)

// cc builds the ability call context for the workflow's current stage.
func (e *Engine) cc(st *state.WorkflowState) ability.CallContext {
	return ability.CallContext{WorkflowID: st.WorkflowID, Stage: st.CurrentStage}
}

// selContext is the context map tool pool conditions evaluate against.
func selContext(st *state.WorkflowState) map[string]any {
	return map[string]any{
		"file_type": attachmentType(st.Payload.Attachments),
		"amount":    st.Payload.Amount,
	}
}

func attachmentType(files []string) string {
	if len(files) == 0 {
		return "pdf"
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(files[0])), ".")
	if ext == "" {
		return "pdf"
	}

	return ext
}

func (e *Engine) selectTool(st *state.WorkflowState, capability string) (toolsel.Selection, error) {
	sel, err := e.selector.Select(capability, selContext(st))
	if err != nil {
		return toolsel.Selection{}, fmt.Errorf("engine: select %s provider: %w", capability, err)
	}

	return sel, nil
}

// callErr converts a failed ability envelope into the stage error. The
// envelope message already names the ability.
func callErr(resp ability.Response) error {
	return errors.New(resp.Error)
}

// ──────────────────────────────────────────────────
// INTAKE
// ──────────────────────────────────────────────────

func (e *Engine) stageIntake(ctx context.Context, st *state.WorkflowState) (*state.Update, error) {
	payload, err := ability.Encode(st.Payload)
	if err != nil {
		return nil, err
	}

	resp, rec := e.invoker.Execute(ctx, e.cc(st), ability.ValidateSchema, payload)
	if !resp.Success {
		return &state.Update{AbilityCalls: []state.CallRecord{rec}},
			fmt.Errorf("%w: %s", payflow.ErrValidation, resp.Error)
	}

	intakeID := id.NewIntakeID()
	now := time.Now().UTC()

	return &state.Update{
		Status:    state.StatusPtr(state.StatusInProgress),
		IntakeID:  &intakeID,
		IngestTS:  state.Time(now),
		Validated: state.Bool(true),
		StageOutput: &state.StageOutput{
			Stage:  state.StageIntake,
			Status: state.StageOK,
			Data: map[string]any{
				"intake_id": intakeID.String(),
				"validated": true,
			},
			Timestamp: now,
		},
		AbilityCalls: []state.CallRecord{rec},
		AuditLog:     []string{fmt.Sprintf("INTAKE: invoice %s validated and registered", st.Payload.InvoiceID)},
	}, nil
}

// ──────────────────────────────────────────────────
// UNDERSTAND
// ──────────────────────────────────────────────────

func (e *Engine) stageUnderstand(ctx context.Context, st *state.WorkflowState) (*state.Update, error) {
	sel, err := e.selectTool(st, toolsel.CapabilityOCR)
	if err != nil {
		return nil, err
	}

	payload, err := ability.Encode(st.Payload)
	if err != nil {
		return nil, err
	}

	resp, rec := e.invoker.Execute(ctx, e.cc(st), ability.OCRExtract, payload)
	if !resp.Success {
		return &state.Update{AbilityCalls: []state.CallRecord{rec}}, callErr(resp)
	}

	var out struct {
		InvoiceText string           `json:"invoice_text"`
		DetectedPOs []string         `json:"detected_pos"`
		LineItems   []state.LineItem `json:"line_items"`
	}
	if err := ability.Decode(resp.Data, &out); err != nil {
		return &state.Update{AbilityCalls: []state.CallRecord{rec}}, err
	}

	return &state.Update{
		InvoiceText: state.Str(out.InvoiceText),
		ParsedLines: out.LineItems,
		DetectedPOs: out.DetectedPOs,
		StageOutput: &state.StageOutput{
			Stage:  state.StageUnderstand,
			Status: state.StageOK,
			Data: map[string]any{
				"detected_pos": out.DetectedPOs,
				"parsed_lines": len(out.LineItems),
			},
			ToolSelections: map[string]string{toolsel.CapabilityOCR: sel.Provider},
			Timestamp:      time.Now().UTC(),
		},
		ToolSelections: map[string]string{toolsel.CapabilityOCR: sel.Provider},
		AbilityCalls:   []state.CallRecord{rec},
		AuditLog:       []string{fmt.Sprintf("UNDERSTAND: extracted via %s, %d PO reference(s) detected", sel.Provider, len(out.DetectedPOs))},
	}, nil
}

// ──────────────────────────────────────────────────
// PREPARE
// ──────────────────────────────────────────────────

func (e *Engine) stagePrepare(ctx context.Context, st *state.WorkflowState) (*state.Update, error) {
	var calls []state.CallRecord

	resp, rec := e.invoker.Execute(ctx, e.cc(st), ability.NormalizeVendor,
		map[string]any{"vendor_name": st.Payload.VendorName})
	calls = append(calls, rec)
	if !resp.Success {
		return &state.Update{AbilityCalls: calls}, callErr(resp)
	}
	normalized, _ := resp.Data["normalized_name"].(string)

	sel, err := e.selectTool(st, toolsel.CapabilityEnrichment)
	if err != nil {
		return &state.Update{AbilityCalls: calls}, err
	}

	resp, rec = e.invoker.Execute(ctx, e.cc(st), ability.EnrichVendor, map[string]any{
		"normalized_name": normalized,
		"tax_id":          st.Payload.VendorTaxID,
	})
	calls = append(calls, rec)
	if !resp.Success {
		return &state.Update{AbilityCalls: calls}, callErr(resp)
	}

	var enriched struct {
		CreditScore int            `json:"credit_score"`
		RiskScore   float64        `json:"risk_score"`
		Enrichment  map[string]any `json:"enrichment"`
	}
	if err := ability.Decode(resp.Data, &enriched); err != nil {
		return &state.Update{AbilityCalls: calls}, err
	}

	vendor := &state.VendorProfile{
		NormalizedName: normalized,
		TaxID:          st.Payload.VendorTaxID,
		RiskScore:      enriched.RiskScore,
		CreditScore:    enriched.CreditScore,
		Enrichment:     enriched.Enrichment,
	}

	resp, rec = e.invoker.Execute(ctx, e.cc(st), ability.ComputeFlags, map[string]any{
		"invoice":        st.Payload,
		"vendor_profile": vendor,
	})
	calls = append(calls, rec)
	if !resp.Success {
		return &state.Update{AbilityCalls: calls}, callErr(resp)
	}

	var flagged struct {
		Flags state.RiskFlags `json:"flags"`
	}
	if err := ability.Decode(resp.Data, &flagged); err != nil {
		return &state.Update{AbilityCalls: calls}, err
	}

	return &state.Update{
		Vendor: vendor,
		Flags:  &flagged.Flags,
		StageOutput: &state.StageOutput{
			Stage:  state.StagePrepare,
			Status: state.StageOK,
			Data: map[string]any{
				"normalized_name": normalized,
				"credit_score":    vendor.CreditScore,
				"risk_score":      flagged.Flags.RiskScore,
				"warnings":        len(flagged.Flags.Warnings),
			},
			ToolSelections: map[string]string{toolsel.CapabilityEnrichment: sel.Provider},
			Timestamp:      time.Now().UTC(),
		},
		ToolSelections: map[string]string{toolsel.CapabilityEnrichment: sel.Provider},
		AbilityCalls:   calls,
		AuditLog:       []string{fmt.Sprintf("PREPARE: vendor %q enriched via %s, risk %.2f", normalized, sel.Provider, flagged.Flags.RiskScore)},
	}, nil
}

// ──────────────────────────────────────────────────
// RETRIEVE
// ──────────────────────────────────────────────────

func (e *Engine) stageRetrieve(ctx context.Context, st *state.WorkflowState) (*state.Update, error) {
	sel, err := e.selectTool(st, toolsel.CapabilityDB)
	if err != nil {
		return nil, err
	}

	var calls []state.CallRecord

	resp, rec := e.invoker.Execute(ctx, e.cc(st), ability.FetchPO, map[string]any{
		"po_reference": st.Payload.POReference,
		"detected_pos": st.DetectedPOs,
	})
	calls = append(calls, rec)
	if !resp.Success {
		return &state.Update{AbilityCalls: calls}, callErr(resp)
	}

	var pos struct {
		PurchaseOrders []state.PurchaseOrder `json:"purchase_orders"`
	}
	if err := ability.Decode(resp.Data, &pos); err != nil {
		return &state.Update{AbilityCalls: calls}, err
	}

	poNumbers := make([]string, 0, len(pos.PurchaseOrders))
	for _, po := range pos.PurchaseOrders {
		poNumbers = append(poNumbers, po.PONumber)
	}

	resp, rec = e.invoker.Execute(ctx, e.cc(st), ability.FetchGRN,
		map[string]any{"po_numbers": poNumbers})
	calls = append(calls, rec)
	if !resp.Success {
		return &state.Update{AbilityCalls: calls}, callErr(resp)
	}

	var grns struct {
		GoodsReceipts []state.GoodsReceipt `json:"goods_receipts"`
	}
	if err := ability.Decode(resp.Data, &grns); err != nil {
		return &state.Update{AbilityCalls: calls}, err
	}

	vendor := st.Payload.VendorName
	if st.Vendor != nil {
		vendor = st.Vendor.NormalizedName
	}

	resp, rec = e.invoker.Execute(ctx, e.cc(st), ability.FetchHistory,
		map[string]any{"vendor": vendor})
	calls = append(calls, rec)
	if !resp.Success {
		return &state.Update{AbilityCalls: calls}, callErr(resp)
	}

	var hist struct {
		History []state.HistoryRecord `json:"history"`
	}
	if err := ability.Decode(resp.Data, &hist); err != nil {
		return &state.Update{AbilityCalls: calls}, err
	}

	return &state.Update{
		MatchedPOs:    pos.PurchaseOrders,
		GoodsReceipts: grns.GoodsReceipts,
		VendorHistory: hist.History,
		StageOutput: &state.StageOutput{
			Stage:  state.StageRetrieve,
			Status: state.StageOK,
			Data: map[string]any{
				"purchase_orders": len(pos.PurchaseOrders),
				"goods_receipts":  len(grns.GoodsReceipts),
				"history_records": len(hist.History),
			},
			ToolSelections: map[string]string{toolsel.CapabilityDB: sel.Provider},
			Timestamp:      time.Now().UTC(),
		},
		ToolSelections: map[string]string{toolsel.CapabilityDB: sel.Provider},
		AbilityCalls:   calls,
		AuditLog:       []string{fmt.Sprintf("RETRIEVE: %d PO(s), %d GRN(s), %d history record(s) via %s", len(pos.PurchaseOrders), len(grns.GoodsReceipts), len(hist.History), sel.Provider)},
	}, nil
}

// ──────────────────────────────────────────────────
// MATCH
// ──────────────────────────────────────────────────

func (e *Engine) stageMatch(ctx context.Context, st *state.WorkflowState) (*state.Update, error) {
	resp, rec := e.invoker.Execute(ctx, e.cc(st), ability.ComputeMatchScore, map[string]any{
		"invoice":         st.Payload,
		"purchase_orders": st.MatchedPOs,
	})
	if !resp.Success {
		return &state.Update{AbilityCalls: []state.CallRecord{rec}}, callErr(resp)
	}

	var out struct {
		MatchScore  float64             `json:"match_score"`
		MatchResult state.MatchResult   `json:"match_result"`
		Evidence    state.MatchEvidence `json:"evidence"`
	}
	if err := ability.Decode(resp.Data, &out); err != nil {
		return &state.Update{AbilityCalls: []state.CallRecord{rec}}, err
	}

	return &state.Update{
		MatchScore:    state.F64(out.MatchScore),
		MatchResult:   state.ResultPtr(out.MatchResult),
		MatchEvidence: &out.Evidence,
		StageOutput: &state.StageOutput{
			Stage:  state.StageMatch,
			Status: state.StageOK,
			Data: map[string]any{
				"match_score":  out.MatchScore,
				"match_result": string(out.MatchResult),
				"po_number":    out.Evidence.PONumber,
				"discrepancy":  out.Evidence.Discrepancy,
			},
			Timestamp: time.Now().UTC(),
		},
		AbilityCalls: []state.CallRecord{rec},
		AuditLog:     []string{fmt.Sprintf("MATCH: score %.2f (%s)", out.MatchScore, out.MatchResult)},
	}, nil
}

// ──────────────────────────────────────────────────
// RECONCILE
// ──────────────────────────────────────────────────

func (e *Engine) stageReconcile(ctx context.Context, st *state.WorkflowState) (*state.Update, error) {
	resp, rec := e.invoker.Execute(ctx, e.cc(st), ability.BuildAccountingEntries, map[string]any{
		"amount":   st.Payload.Amount,
		"currency": st.Payload.Currency,
	})
	if !resp.Success {
		return &state.Update{AbilityCalls: []state.CallRecord{rec}}, callErr(resp)
	}

	var out struct {
		Entries []state.AccountingEntry    `json:"entries"`
		Report  state.ReconciliationReport `json:"report"`
	}
	if err := ability.Decode(resp.Data, &out); err != nil {
		return &state.Update{AbilityCalls: []state.CallRecord{rec}}, err
	}

	return &state.Update{
		AccountingEntries: out.Entries,
		Reconciliation:    &out.Report,
		StageOutput: &state.StageOutput{
			Stage:  state.StageReconcile,
			Status: state.StageOK,
			Data: map[string]any{
				"entries":  len(out.Entries),
				"balanced": out.Report.Balanced,
			},
			Timestamp: time.Now().UTC(),
		},
		AbilityCalls: []state.CallRecord{rec},
		AuditLog:     []string{fmt.Sprintf("RECONCILE: %d entries built, balanced=%t", len(out.Entries), out.Report.Balanced)},
	}, nil
}

// ──────────────────────────────────────────────────
// APPROVE
// ──────────────────────────────────────────────────

func (e *Engine) stageApprove(ctx context.Context, st *state.WorkflowState) (*state.Update, error) {
	resp, rec := e.invoker.Execute(ctx, e.cc(st), ability.ApplyApprovalPolicy,
		map[string]any{"amount": st.Payload.Amount})
	if !resp.Success {
		return &state.Update{AbilityCalls: []state.CallRecord{rec}}, callErr(resp)
	}

	var out struct {
		ApprovalStatus string `json:"approval_status"`
		Approver       string `json:"approver"`
	}
	if err := ability.Decode(resp.Data, &out); err != nil {
		return &state.Update{AbilityCalls: []state.CallRecord{rec}}, err
	}

	return &state.Update{
		ApprovalStatus: state.Str(out.ApprovalStatus),
		Approver:       state.Str(out.Approver),
		StageOutput: &state.StageOutput{
			Stage:  state.StageApprove,
			Status: state.StageOK,
			Data: map[string]any{
				"approval_status": out.ApprovalStatus,
				"approver":        out.Approver,
			},
			Timestamp: time.Now().UTC(),
		},
		AbilityCalls: []state.CallRecord{rec},
		AuditLog:     []string{fmt.Sprintf("APPROVE: %s by %s", out.ApprovalStatus, out.Approver)},
	}, nil
}

// ──────────────────────────────────────────────────
// POSTING
// ──────────────────────────────────────────────────

func (e *Engine) stagePosting(ctx context.Context, st *state.WorkflowState) (*state.Update, error) {
	sel, err := e.selectTool(st, toolsel.CapabilityERP)
	if err != nil {
		return nil, err
	}

	var calls []state.CallRecord

	resp, rec := e.invoker.Execute(ctx, e.cc(st), ability.PostToERP, map[string]any{
		"invoice_id": st.Payload.InvoiceID,
		"amount":     st.Payload.Amount,
	})
	calls = append(calls, rec)
	if !resp.Success {
		return &state.Update{AbilityCalls: calls}, callErr(resp)
	}

	var posted struct {
		Posted   bool   `json:"posted"`
		ERPTxnID string `json:"erp_txn_id"`
	}
	if err := ability.Decode(resp.Data, &posted); err != nil {
		return &state.Update{AbilityCalls: calls}, err
	}

	resp, rec = e.invoker.Execute(ctx, e.cc(st), ability.SchedulePayment, map[string]any{
		"invoice_id": st.Payload.InvoiceID,
		"due_date":   st.Payload.DueDate,
	})
	calls = append(calls, rec)
	if !resp.Success {
		return &state.Update{AbilityCalls: calls}, callErr(resp)
	}

	var scheduled struct {
		ScheduledPaymentID string `json:"scheduled_payment_id"`
		DueDate            string `json:"due_date"`
	}
	if err := ability.Decode(resp.Data, &scheduled); err != nil {
		return &state.Update{AbilityCalls: calls}, err
	}

	return &state.Update{
		Posted:             state.Bool(posted.Posted),
		ERPTxnID:           state.Str(posted.ERPTxnID),
		ScheduledPaymentID: state.Str(scheduled.ScheduledPaymentID),
		StageOutput: &state.StageOutput{
			Stage:  state.StagePosting,
			Status: state.StageOK,
			Data: map[string]any{
				"erp_txn_id":           posted.ERPTxnID,
				"scheduled_payment_id": scheduled.ScheduledPaymentID,
				"due_date":             scheduled.DueDate,
			},
			ToolSelections: map[string]string{toolsel.CapabilityERP: sel.Provider},
			Timestamp:      time.Now().UTC(),
		},
		ToolSelections: map[string]string{toolsel.CapabilityERP: sel.Provider},
		AbilityCalls:   calls,
		AuditLog:       []string{fmt.Sprintf("POSTING: posted as %s via %s, payment %s", posted.ERPTxnID, sel.Provider, scheduled.ScheduledPaymentID)},
	}, nil
}

// ──────────────────────────────────────────────────
// NOTIFY
// ──────────────────────────────────────────────────

// stageNotify fans the vendor and finance notifications out in
// parallel. Both are sent through the same selected email provider.
func (e *Engine) stageNotify(ctx context.Context, st *state.WorkflowState) (*state.Update, error) {
	sel, err := e.selectTool(st, toolsel.CapabilityEmail)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"invoice_id": st.Payload.InvoiceID,
		"vendor":     st.Payload.VendorName,
		"amount":     st.Payload.Amount,
		"currency":   st.Payload.Currency,
	}

	var (
		vendorResp, financeResp ability.Response
		vendorRec, financeRec   state.CallRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vendorResp, vendorRec = e.invoker.Execute(gctx, e.cc(st), ability.NotifyVendor, payload)

		return nil
	})
	g.Go(func() error {
		financeResp, financeRec = e.invoker.Execute(gctx, e.cc(st), ability.NotifyFinanceTeam, payload)

		return nil
	})
	_ = g.Wait()

	calls := []state.CallRecord{vendorRec, financeRec}
	if !vendorResp.Success {
		return &state.Update{AbilityCalls: calls}, callErr(vendorResp)
	}
	if !financeResp.Success {
		return &state.Update{AbilityCalls: calls}, callErr(financeResp)
	}

	vendorID, _ := vendorResp.Data["notification_id"].(string)
	financeID, _ := financeResp.Data["notification_id"].(string)

	return &state.Update{
		VendorNotificationID:  state.Str(vendorID),
		FinanceNotificationID: state.Str(financeID),
		StageOutput: &state.StageOutput{
			Stage:  state.StageNotify,
			Status: state.StageOK,
			Data: map[string]any{
				"vendor_notification_id":  vendorID,
				"finance_notification_id": financeID,
			},
			ToolSelections: map[string]string{toolsel.CapabilityEmail: sel.Provider},
			Timestamp:      time.Now().UTC(),
		},
		ToolSelections: map[string]string{toolsel.CapabilityEmail: sel.Provider},
		AbilityCalls:   calls,
		AuditLog:       []string{fmt.Sprintf("NOTIFY: vendor and finance notified via %s", sel.Provider)},
	}, nil
}

// ──────────────────────────────────────────────────
// COMPLETE
// ──────────────────────────────────────────────────

// stageComplete closes the workflow out. A reviewer verdict other than
// ACCEPT lands here directly and terminates as a manual handoff.
func (e *Engine) stageComplete(_ context.Context, st *state.WorkflowState) (*state.Update, error) {
	status := state.StatusCompleted
	if st.HumanDecision != "" && st.HumanDecision != string(checkpoint.DecisionAccept) {
		status = state.StatusManualHandoff
	}

	summary := map[string]any{
		"invoice_id":   st.Payload.InvoiceID,
		"vendor":       st.Payload.VendorName,
		"amount":       st.Payload.Amount,
		"currency":     st.Payload.Currency,
		"match_score":  st.MatchScore,
		"match_result": string(st.MatchResult),
		"status":       string(status),
	}
	if st.HumanDecision != "" {
		summary["human_decision"] = st.HumanDecision
		summary["reviewer_id"] = st.ReviewerID
	}
	if st.ApprovalStatus != "" {
		summary["approval_status"] = st.ApprovalStatus
		summary["approver"] = st.Approver
	}
	if st.Posted {
		summary["erp_txn_id"] = st.ERPTxnID
		summary["scheduled_payment_id"] = st.ScheduledPaymentID
	}

	return &state.Update{
		Status:       state.StatusPtr(status),
		FinalSummary: summary,
		StageOutput: &state.StageOutput{
			Stage:     state.StageComplete,
			Status:    state.StageOK,
			Data:      map[string]any{"final_status": string(status)},
			Timestamp: time.Now().UTC(),
		},
		AuditLog: []string{fmt.Sprintf("COMPLETE: workflow closed (%s)", status)},
	}, nil
}
