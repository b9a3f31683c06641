package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/state"
)

// ValidatePayload checks the inbound invoice for the fields the pipeline
// cannot proceed without. All problems are reported in one error,
// wrapped around payflow.ErrValidation.
func ValidatePayload(p state.InvoicePayload) error {
	var problems []string

	if p.InvoiceID == "" {
		problems = append(problems, "invoice_id is required")
	}
	if p.VendorName == "" {
		problems = append(problems, "vendor_name is required")
	}
	if p.Amount <= 0 {
		problems = append(problems, "amount must be positive")
	}
	if p.Currency == "" {
		problems = append(problems, "currency is required")
	}
	if p.InvoiceDate == "" {
		problems = append(problems, "invoice_date is required")
	} else if !validDate(p.InvoiceDate) {
		problems = append(problems, fmt.Sprintf("invoice_date %q is not a valid date", p.InvoiceDate))
	}
	if p.DueDate != "" && !validDate(p.DueDate) {
		problems = append(problems, fmt.Sprintf("due_date %q is not a valid date", p.DueDate))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", payflow.ErrValidation, strings.Join(problems, "; "))
	}

	return nil
}

func validDate(s string) bool {
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)

	return err == nil
}
