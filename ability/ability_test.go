package ability_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/ability"
	"github.com/xraph/payflow/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newInvoker(opts ...ability.SimOption) *ability.Invoker {
	cfg := payflow.DefaultConfig()

	return ability.NewInvoker(
		ability.NewLocal(cfg),
		ability.NewSimulator(cfg, opts...),
		ability.WithLogger(testLogger()),
	)
}

func callCtx() ability.CallContext {
	return ability.CallContext{Stage: state.StageMatch}
}

func TestRouting(t *testing.T) {
	tests := []struct {
		name string
		want ability.Group
	}{
		{ability.ValidateSchema, ability.GroupLocal},
		{ability.NormalizeVendor, ability.GroupLocal},
		{ability.ComputeFlags, ability.GroupLocal},
		{ability.ComputeMatchScore, ability.GroupLocal},
		{ability.BuildAccountingEntries, ability.GroupLocal},
		{ability.OCRExtract, ability.GroupExternal},
		{ability.EnrichVendor, ability.GroupExternal},
		{ability.FetchPO, ability.GroupExternal},
		{ability.FetchGRN, ability.GroupExternal},
		{ability.FetchHistory, ability.GroupExternal},
		{ability.ApplyApprovalPolicy, ability.GroupExternal},
		{ability.PostToERP, ability.GroupExternal},
		{ability.SchedulePayment, ability.GroupExternal},
		{ability.NotifyVendor, ability.GroupExternal},
		{ability.NotifyFinanceTeam, ability.GroupExternal},
	}
	for _, tt := range tests {
		g, ok := ability.GroupFor(tt.name)
		if !ok {
			t.Errorf("GroupFor(%q) not found", tt.name)
			continue
		}
		if g != tt.want {
			t.Errorf("GroupFor(%q) = %q, want %q", tt.name, g, tt.want)
		}
	}
}

func TestUnknownAbilityEnvelope(t *testing.T) {
	inv := newInvoker()

	resp, rec := inv.Execute(context.Background(), callCtx(), "summon_demon", nil)
	if resp.Success {
		t.Fatal("expected failure envelope")
	}
	if !strings.Contains(resp.Error, "unknown ability") {
		t.Errorf("Error = %q, want unknown ability mention", resp.Error)
	}
	if rec.Success {
		t.Error("audit record should be a failure")
	}
	if resp.Timestamp.IsZero() {
		t.Error("envelope timestamp not set")
	}
}

func TestComputeMatchScoreEnvelope(t *testing.T) {
	inv := newInvoker()

	payload, err := ability.Encode(map[string]any{
		"invoice": state.InvoicePayload{
			InvoiceID: "INV-001", VendorName: "Acme Corp", InvoiceDate: "2025-01-15",
			Amount: 5500, Currency: "USD", POReference: "PO-2024-456",
		},
		"purchase_orders": []state.PurchaseOrder{
			{PONumber: "PO-2024-456", Amount: 5500, Currency: "USD"},
		},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	resp, rec := inv.Execute(context.Background(), callCtx(), ability.ComputeMatchScore, payload)
	if !resp.Success {
		t.Fatalf("envelope failed: %s", resp.Error)
	}
	if rec.Group != string(ability.GroupLocal) || !rec.Success {
		t.Errorf("audit record = %+v", rec)
	}

	var out struct {
		MatchScore  float64             `json:"match_score"`
		MatchResult state.MatchResult   `json:"match_result"`
		Evidence    state.MatchEvidence `json:"evidence"`
	}
	if err := ability.Decode(resp.Data, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.MatchScore != 1.0 || out.MatchResult != state.MatchMatched {
		t.Errorf("match = %v/%q, want 1.0/MATCHED", out.MatchScore, out.MatchResult)
	}
}

func TestFetchPOFromCatalog(t *testing.T) {
	inv := newInvoker(ability.WithPurchaseOrders(
		state.PurchaseOrder{PONumber: "PO-2024-456", Amount: 4800, Currency: "USD"},
	))

	resp, _ := inv.Execute(context.Background(), callCtx(), ability.FetchPO,
		map[string]any{"po_reference": "PO-2024-456"})
	if !resp.Success {
		t.Fatalf("envelope failed: %s", resp.Error)
	}

	var out struct {
		PurchaseOrders []state.PurchaseOrder `json:"purchase_orders"`
	}
	if err := ability.Decode(resp.Data, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(out.PurchaseOrders) != 1 || out.PurchaseOrders[0].Amount != 4800 {
		t.Errorf("purchase_orders = %+v", out.PurchaseOrders)
	}

	// Unknown PO comes back as an empty result, not an error.
	resp, _ = inv.Execute(context.Background(), callCtx(), ability.FetchPO,
		map[string]any{"po_reference": "PO-NOPE"})
	if !resp.Success {
		t.Fatalf("envelope failed: %s", resp.Error)
	}
	if err := ability.Decode(resp.Data, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(out.PurchaseOrders) != 0 {
		t.Errorf("purchase_orders = %+v, want empty", out.PurchaseOrders)
	}
}

func TestEnrichVendorCreditMapping(t *testing.T) {
	inv := newInvoker(ability.WithVendorCredit("ACME CORP", 750))

	resp, _ := inv.Execute(context.Background(), callCtx(), ability.EnrichVendor,
		map[string]any{"normalized_name": "ACME CORP"})
	if !resp.Success {
		t.Fatalf("envelope failed: %s", resp.Error)
	}

	var out struct {
		CreditScore int     `json:"credit_score"`
		RiskScore   float64 `json:"risk_score"`
	}
	if err := ability.Decode(resp.Data, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.CreditScore != 750 || out.RiskScore != 0.1 {
		t.Errorf("enrichment = %+v, want credit 750 risk 0.1", out)
	}

	// Unknown vendors get the default credit band.
	resp, _ = inv.Execute(context.Background(), callCtx(), ability.EnrichVendor,
		map[string]any{"normalized_name": "NOBODY LTD"})
	if err := ability.Decode(resp.Data, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.RiskScore != 0.5 {
		t.Errorf("default risk = %v, want 0.5", out.RiskScore)
	}
}

func TestApprovalPolicyAbility(t *testing.T) {
	inv := newInvoker()

	resp, _ := inv.Execute(context.Background(), callCtx(), ability.ApplyApprovalPolicy,
		map[string]any{"amount": 5500.0})
	if !resp.Success {
		t.Fatalf("envelope failed: %s", resp.Error)
	}
	var out struct {
		ApprovalStatus string `json:"approval_status"`
		Approver       string `json:"approver"`
	}
	if err := ability.Decode(resp.Data, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.ApprovalStatus != state.ApprovalAuto || out.Approver != "system" {
		t.Errorf("approval = %+v", out)
	}

	resp, _ = inv.Execute(context.Background(), callCtx(), ability.ApplyApprovalPolicy,
		map[string]any{"amount": 75000.0})
	if err := ability.Decode(resp.Data, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.ApprovalStatus != state.ApprovalRequired || out.Approver != "finance_manager" {
		t.Errorf("approval = %+v", out)
	}
}

func TestPostToERPIdentifiers(t *testing.T) {
	inv := newInvoker()

	resp, _ := inv.Execute(context.Background(), callCtx(), ability.PostToERP,
		map[string]any{"invoice_id": "INV-001", "amount": 5500.0})
	if !resp.Success {
		t.Fatalf("envelope failed: %s", resp.Error)
	}
	txn, _ := resp.Data["erp_txn_id"].(string)
	if !strings.HasPrefix(txn, "ERP-TXN-") {
		t.Errorf("erp_txn_id = %q", txn)
	}

	// Missing invoice id is a handler error inside the envelope.
	resp, rec := inv.Execute(context.Background(), callCtx(), ability.PostToERP, map[string]any{})
	if resp.Success || rec.Success {
		t.Error("expected failure for missing invoice_id")
	}
}

func TestOCRExtractDetectsPO(t *testing.T) {
	inv := newInvoker()

	payload, err := ability.Encode(state.InvoicePayload{
		InvoiceID: "INV-001", VendorName: "Acme Corp", InvoiceDate: "2025-01-15",
		Amount: 5500, Currency: "USD", POReference: "PO-2024-456",
		LineItems: []state.LineItem{{Description: "Widgets", Quantity: 10, UnitPrice: 550, Total: 5500}},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	resp, _ := inv.Execute(context.Background(), callCtx(), ability.OCRExtract, payload)
	if !resp.Success {
		t.Fatalf("envelope failed: %s", resp.Error)
	}

	var out struct {
		InvoiceText string   `json:"invoice_text"`
		DetectedPOs []string `json:"detected_pos"`
	}
	if err := ability.Decode(resp.Data, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !strings.Contains(out.InvoiceText, "PO-2024-456") {
		t.Errorf("invoice_text = %q, want PO reference included", out.InvoiceText)
	}
	if len(out.DetectedPOs) != 1 || out.DetectedPOs[0] != "PO-2024-456" {
		t.Errorf("detected_pos = %v", out.DetectedPOs)
	}
}
