package ability

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/decision"
	"github.com/xraph/payflow/state"
)

// Simulator is a deterministic in-process stand-in for the external
// collaborators of the pipeline: the ERP (POs, GRNs, posting,
// payments), the vendor data service, OCR, and the notification
// gateway. Production deployments swap in a real Handler; tests and
// the demo binary run against this one.
type Simulator struct {
	cfg payflow.Config

	mu      sync.RWMutex
	pos     map[string]state.PurchaseOrder   // keyed by PO number
	grns    map[string][]state.GoodsReceipt  // keyed by PO number
	history map[string][]state.HistoryRecord // keyed by normalized vendor
	credit  map[string]int                   // keyed by normalized vendor
}

// SimOption seeds the simulator's catalogs.
type SimOption func(*Simulator)

// WithPurchaseOrders seeds PO records.
func WithPurchaseOrders(pos ...state.PurchaseOrder) SimOption {
	return func(s *Simulator) {
		for _, po := range pos {
			s.pos[po.PONumber] = po
		}
	}
}

// WithGoodsReceipts seeds GRN records.
func WithGoodsReceipts(grns ...state.GoodsReceipt) SimOption {
	return func(s *Simulator) {
		for _, g := range grns {
			s.grns[g.PONumber] = append(s.grns[g.PONumber], g)
		}
	}
}

// WithVendorHistory seeds payment history for a normalized vendor name.
func WithVendorHistory(vendor string, records ...state.HistoryRecord) SimOption {
	return func(s *Simulator) {
		s.history[vendor] = append(s.history[vendor], records...)
	}
}

// WithVendorCredit seeds a credit score for a normalized vendor name.
func WithVendorCredit(vendor string, score int) SimOption {
	return func(s *Simulator) {
		s.credit[vendor] = score
	}
}

// NewSimulator builds a simulator with an empty catalog plus whatever
// the options seed.
func NewSimulator(cfg payflow.Config, opts ...SimOption) *Simulator {
	s := &Simulator{
		cfg:     cfg,
		pos:     make(map[string]state.PurchaseOrder),
		grns:    make(map[string][]state.GoodsReceipt),
		history: make(map[string][]state.HistoryRecord),
		credit:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Invoke implements Handler.
func (s *Simulator) Invoke(_ context.Context, name string, payload map[string]any) (map[string]any, error) {
	switch name {
	case OCRExtract:
		return s.ocrExtract(payload)
	case EnrichVendor:
		return s.enrichVendor(payload)
	case FetchPO:
		return s.fetchPO(payload)
	case FetchGRN:
		return s.fetchGRN(payload)
	case FetchHistory:
		return s.fetchHistory(payload)
	case ApplyApprovalPolicy:
		return s.applyApprovalPolicy(payload)
	case PostToERP:
		return s.postToERP(payload)
	case SchedulePayment:
		return s.schedulePayment(payload)
	case NotifyVendor:
		return s.notify("vendor")
	case NotifyFinanceTeam:
		return s.notify("finance_team")
	default:
		return nil, fmt.Errorf("%w: %q not served by external group", payflow.ErrUnknownAbility, name)
	}
}

func (s *Simulator) ocrExtract(payload map[string]any) (map[string]any, error) {
	var inv state.InvoicePayload
	if err := Decode(payload, &inv); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INVOICE %s\n", inv.InvoiceID)
	fmt.Fprintf(&b, "Vendor: %s\n", inv.VendorName)
	fmt.Fprintf(&b, "Date: %s\n", inv.InvoiceDate)
	fmt.Fprintf(&b, "Amount: %.2f %s\n", inv.Amount, inv.Currency)
	if inv.POReference != "" {
		fmt.Fprintf(&b, "PO Reference: %s\n", inv.POReference)
	}
	for _, li := range inv.LineItems {
		fmt.Fprintf(&b, "  %s x%.0f @ %.2f = %.2f\n", li.Description, li.Quantity, li.UnitPrice, li.Total)
	}

	var detected []string
	if inv.POReference != "" {
		detected = append(detected, inv.POReference)
	}

	return Encode(map[string]any{
		"invoice_text": b.String(),
		"detected_pos": detected,
		"line_items":   inv.LineItems,
	})
}

// Credit score to baseline risk mapping used by the vendor data
// service.
func riskForCredit(score int) float64 {
	switch {
	case score >= 750:
		return 0.1
	case score >= 650:
		return 0.3
	case score >= 550:
		return 0.5
	default:
		return 0.8
	}
}

const defaultCreditScore = 600

func (s *Simulator) enrichVendor(payload map[string]any) (map[string]any, error) {
	var in struct {
		NormalizedName string `json:"normalized_name"`
		TaxID          string `json:"tax_id"`
	}
	if err := Decode(payload, &in); err != nil {
		return nil, err
	}
	if in.NormalizedName == "" {
		return nil, fmt.Errorf("enrich_vendor: normalized_name is required")
	}

	s.mu.RLock()
	score, known := s.credit[in.NormalizedName]
	s.mu.RUnlock()
	if !known {
		score = defaultCreditScore
	}

	return Encode(map[string]any{
		"credit_score": score,
		"risk_score":   riskForCredit(score),
		"enrichment": map[string]any{
			"source":       "vendor_data_service",
			"known_vendor": known,
		},
	})
}

func (s *Simulator) fetchPO(payload map[string]any) (map[string]any, error) {
	var in struct {
		POReference string   `json:"po_reference"`
		DetectedPOs []string `json:"detected_pos"`
	}
	if err := Decode(payload, &in); err != nil {
		return nil, err
	}

	numbers := in.DetectedPOs
	if in.POReference != "" {
		numbers = append([]string{in.POReference}, numbers...)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool, len(numbers))
	var found []state.PurchaseOrder
	for _, n := range numbers {
		if seen[n] {
			continue
		}
		seen[n] = true
		if po, ok := s.pos[n]; ok {
			found = append(found, po)
		}
	}

	return Encode(map[string]any{"purchase_orders": found})
}

func (s *Simulator) fetchGRN(payload map[string]any) (map[string]any, error) {
	var in struct {
		PONumbers []string `json:"po_numbers"`
	}
	if err := Decode(payload, &in); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []state.GoodsReceipt
	for _, n := range in.PONumbers {
		found = append(found, s.grns[n]...)
	}

	return Encode(map[string]any{"goods_receipts": found})
}

func (s *Simulator) fetchHistory(payload map[string]any) (map[string]any, error) {
	var in struct {
		Vendor string `json:"vendor"`
	}
	if err := Decode(payload, &in); err != nil {
		return nil, err
	}

	s.mu.RLock()
	records := s.history[in.Vendor]
	s.mu.RUnlock()

	return Encode(map[string]any{"history": records})
}

func (s *Simulator) applyApprovalPolicy(payload map[string]any) (map[string]any, error) {
	var in struct {
		Amount float64 `json:"amount"`
	}
	if err := Decode(payload, &in); err != nil {
		return nil, err
	}

	status, approver := decision.Approval(in.Amount, s.cfg.AutoApproveThreshold, s.cfg.ApproverRole)

	return Encode(map[string]any{
		"approval_status": status,
		"approver":        approver,
	})
}

func (s *Simulator) postToERP(payload map[string]any) (map[string]any, error) {
	var in struct {
		InvoiceID string  `json:"invoice_id"`
		Amount    float64 `json:"amount"`
	}
	if err := Decode(payload, &in); err != nil {
		return nil, err
	}
	if in.InvoiceID == "" {
		return nil, fmt.Errorf("post_to_erp: invoice_id is required")
	}

	return Encode(map[string]any{
		"posted":     true,
		"erp_txn_id": "ERP-TXN-" + shortRef(),
	})
}

func (s *Simulator) schedulePayment(payload map[string]any) (map[string]any, error) {
	var in struct {
		InvoiceID string `json:"invoice_id"`
		DueDate   string `json:"due_date"`
	}
	if err := Decode(payload, &in); err != nil {
		return nil, err
	}

	return Encode(map[string]any{
		"scheduled_payment_id": "PAY-" + shortRef(),
		"due_date":             in.DueDate,
	})
}

func (s *Simulator) notify(audience string) (map[string]any, error) {
	return Encode(map[string]any{
		"notification_id": "NOTIF-" + shortRef(),
		"audience":        audience,
	})
}

func shortRef() string {
	return strings.ToUpper(uuid.NewString()[:8])
}
