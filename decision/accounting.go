package decision

import "github.com/xraph/payflow/state"

// GL account constants for the double-entry pair.
const (
	accountPayable     = "Accounts Payable"
	accountPayableCode = "2000"
	accountCash        = "Cash"
	accountCashCode    = "1000"
)

// BuildAccountingEntries produces the balanced debit/credit pair for a
// cleared invoice.
func BuildAccountingEntries(amount float64, currency string) []state.AccountingEntry {
	return []state.AccountingEntry{
		{
			Account:   accountPayable,
			Code:      accountPayableCode,
			EntryType: state.EntryDebit,
			Amount:    amount,
			Currency:  currency,
		},
		{
			Account:   accountCash,
			Code:      accountCashCode,
			EntryType: state.EntryCredit,
			Amount:    amount,
			Currency:  currency,
		},
	}
}

// Reconcile checks that debits and credits balance across the entries.
func Reconcile(entries []state.AccountingEntry) state.ReconciliationReport {
	var r state.ReconciliationReport
	for _, e := range entries {
		switch e.EntryType {
		case state.EntryDebit:
			r.TotalDebits += e.Amount
		case state.EntryCredit:
			r.TotalCredits += e.Amount
		}
	}
	r.Balanced = r.TotalDebits == r.TotalCredits

	return r
}
