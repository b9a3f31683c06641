// Package decision holds the deterministic business rules of the invoice
// pipeline: two-way match scoring, review priority, the approval policy,
// vendor normalization, risk screening, and accounting entry
// construction. Everything here is a pure function so the rules can be
// tested without an engine or a store.
package decision

import (
	"fmt"
	"math"

	"github.com/xraph/payflow/state"
)

// MatchOutcome is the verdict of the two-way match.
type MatchOutcome struct {
	Score    float64
	Result   state.MatchResult
	Evidence state.MatchEvidence
}

// Match scores an invoice against the best retrieved purchase order.
// threshold is the minimum score that clears review; tolerancePct is the
// discrepancy band (percent of PO amount) inside which the score stays
// in the matched range.
//
// With no PO the score is 0 and the full invoice amount is reported as
// the discrepancy. A zero-amount PO counts as a 100% discrepancy.
func Match(inv state.InvoicePayload, po *state.PurchaseOrder, threshold, tolerancePct float64) MatchOutcome {
	if po == nil {
		return MatchOutcome{
			Score:  0,
			Result: state.MatchFailed,
			Evidence: state.MatchEvidence{
				InvoiceAmount:    inv.Amount,
				Discrepancy:      inv.Amount,
				DiscrepancyItems: []string{"no matching purchase order found"},
			},
		}
	}

	var pct float64
	if po.Amount == 0 {
		pct = 100
	} else {
		pct = math.Abs(inv.Amount-po.Amount) / po.Amount * 100
	}

	var score float64
	if pct <= tolerancePct {
		score = 1 - pct/(2*tolerancePct)
	} else {
		score = math.Max(0, 1-pct/100)
	}

	ev := state.MatchEvidence{
		PONumber:       po.PONumber,
		POAmount:       po.Amount,
		InvoiceAmount:  inv.Amount,
		Discrepancy:    math.Abs(inv.Amount - po.Amount),
		DiscrepancyPct: pct,
	}
	if len(po.LineItems) != len(inv.LineItems) {
		ev.DiscrepancyItems = append(ev.DiscrepancyItems,
			fmt.Sprintf("line item count mismatch: invoice has %d, PO has %d",
				len(inv.LineItems), len(po.LineItems)))
	}

	result := state.MatchFailed
	if score >= threshold {
		result = state.MatchMatched
	}

	return MatchOutcome{Score: score, Result: result, Evidence: ev}
}

// BestPO picks the PO an invoice should match against: the one whose
// number equals the payload's po_reference, else the first retrieved.
// Returns nil when nothing was retrieved.
func BestPO(inv state.InvoicePayload, pos []state.PurchaseOrder) *state.PurchaseOrder {
	if len(pos) == 0 {
		return nil
	}
	for i := range pos {
		if inv.POReference != "" && pos[i].PONumber == inv.POReference {
			return &pos[i]
		}
	}

	return &pos[0]
}

// Priority maps a failed match score to a review queue priority.
// Lower is more urgent: a score below 0.5 indicates a serious
// discrepancy and jumps the queue.
func Priority(score float64) int {
	if score < 0.5 {
		return 3
	}

	return 5
}

// CheckpointReason builds the reviewer-facing explanation for a
// suspended workflow.
func CheckpointReason(score, discrepancy float64) string {
	return fmt.Sprintf("Match score %.2f below threshold. Discrepancy: $%.2f", score, discrepancy)
}

// Approval applies the amount-based approval policy. Invoices at or
// below autoApproveThreshold are approved by the system; anything above
// is routed to approverRole.
func Approval(amount, autoApproveThreshold float64, approverRole string) (status, approver string) {
	if amount <= autoApproveThreshold {
		return state.ApprovalAuto, "system"
	}

	return state.ApprovalRequired, approverRole
}
