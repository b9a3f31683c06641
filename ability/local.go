package ability

import (
	"context"
	"fmt"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/decision"
	"github.com/xraph/payflow/state"
)

// Local serves the deterministic provider group. Every handler is a
// thin envelope adapter over the decision package.
type Local struct {
	cfg payflow.Config
}

// NewLocal builds the local handler with the thresholds the match and
// validation rules need.
func NewLocal(cfg payflow.Config) *Local {
	return &Local{cfg: cfg}
}

// Invoke implements Handler.
func (l *Local) Invoke(_ context.Context, name string, payload map[string]any) (map[string]any, error) {
	switch name {
	case ValidateSchema:
		return l.validateSchema(payload)
	case NormalizeVendor:
		return l.normalizeVendor(payload)
	case ComputeFlags:
		return l.computeFlags(payload)
	case ComputeMatchScore:
		return l.computeMatchScore(payload)
	case BuildAccountingEntries:
		return l.buildAccountingEntries(payload)
	default:
		return nil, fmt.Errorf("%w: %q not served by local group", payflow.ErrUnknownAbility, name)
	}
}

func (l *Local) validateSchema(payload map[string]any) (map[string]any, error) {
	var inv state.InvoicePayload
	if err := Decode(payload, &inv); err != nil {
		return nil, err
	}
	if err := decision.ValidatePayload(inv); err != nil {
		return nil, err
	}

	return map[string]any{"validated": true}, nil
}

func (l *Local) normalizeVendor(payload map[string]any) (map[string]any, error) {
	name, _ := payload["vendor_name"].(string)
	if name == "" {
		return nil, fmt.Errorf("normalize_vendor: vendor_name is required")
	}

	return map[string]any{"normalized_name": decision.NormalizeVendor(name)}, nil
}

func (l *Local) computeFlags(payload map[string]any) (map[string]any, error) {
	var in struct {
		Invoice state.InvoicePayload `json:"invoice"`
		Vendor  *state.VendorProfile `json:"vendor_profile"`
	}
	if err := Decode(payload, &in); err != nil {
		return nil, err
	}

	flags := decision.ComputeFlags(in.Invoice, in.Vendor)

	return Encode(map[string]any{"flags": flags})
}

func (l *Local) computeMatchScore(payload map[string]any) (map[string]any, error) {
	var in struct {
		Invoice        state.InvoicePayload  `json:"invoice"`
		PurchaseOrders []state.PurchaseOrder `json:"purchase_orders"`
	}
	if err := Decode(payload, &in); err != nil {
		return nil, err
	}

	po := decision.BestPO(in.Invoice, in.PurchaseOrders)
	out := decision.Match(in.Invoice, po, l.cfg.MatchThreshold, l.cfg.TolerancePct)

	return Encode(map[string]any{
		"match_score":  out.Score,
		"match_result": out.Result,
		"evidence":     out.Evidence,
	})
}

func (l *Local) buildAccountingEntries(payload map[string]any) (map[string]any, error) {
	var in struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	}
	if err := Decode(payload, &in); err != nil {
		return nil, err
	}

	entries := decision.BuildAccountingEntries(in.Amount, in.Currency)
	report := decision.Reconcile(entries)

	return Encode(map[string]any{
		"entries": entries,
		"report":  report,
	})
}
