package payflow

import "time"

// Config holds the business thresholds and review settings used by the
// decision engine and checkpoint layer.
type Config struct {
	// MatchThreshold is the minimum match score for an invoice to clear
	// the two-way match without human review.
	MatchThreshold float64

	// TolerancePct is the amount discrepancy, in percent of the PO
	// amount, inside which an invoice still scores in the matched band.
	TolerancePct float64

	// AutoApproveThreshold is the invoice amount at or below which the
	// approval policy auto-approves without a named approver.
	AutoApproveThreshold float64

	// ApproverRole is the role assigned to invoices above the
	// auto-approve threshold.
	ApproverRole string

	// ReviewWindow is how long a checkpoint stays open for review
	// before its expires_at timestamp passes.
	ReviewWindow time.Duration

	// ReviewURLBase is the path prefix for reviewer-facing checkpoint
	// URLs.
	ReviewURLBase string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MatchThreshold:       0.90,
		TolerancePct:         5.0,
		AutoApproveThreshold: 10000.0,
		ApproverRole:         "finance_manager",
		ReviewWindow:         7 * 24 * time.Hour,
		ReviewURLBase:        "/human-review/review",
	}
}
