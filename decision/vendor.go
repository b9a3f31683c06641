package decision

import (
	"regexp"
	"strings"

	"github.com/xraph/payflow/state"
)

var (
	vendorStrip    = regexp.MustCompile(`[^\w\s-]`)
	vendorCollapse = regexp.MustCompile(`\s+`)
)

// Legal suffix canonicalization. LLC and LLP are already canonical.
var vendorSuffixes = map[string]string{
	"INCORPORATED": "INC",
	"CORPORATION":  "CORP",
	"LIMITED":      "LTD",
	"COMPANY":      "CO",
	"LLC":          "LLC",
	"LLP":          "LLP",
}

// NormalizeVendor canonicalizes a vendor name for matching and
// enrichment lookups: uppercase, punctuation stripped, whitespace
// collapsed, legal suffixes abbreviated.
func NormalizeVendor(name string) string {
	n := strings.ToUpper(name)
	n = vendorStrip.ReplaceAllString(n, "")
	n = strings.TrimSpace(vendorCollapse.ReplaceAllString(n, " "))

	words := strings.Split(n, " ")
	for i, w := range words {
		if abbr, ok := vendorSuffixes[w]; ok {
			words[i] = abbr
		}
	}

	return strings.Join(words, " ")
}

// Risk score increments applied during screening.
const (
	riskMissingTaxID = 0.2
	riskHighValue    = 0.3
	riskNotEnriched  = 0.1

	highValueAmount = 50000.0
)

// ComputeFlags runs deterministic risk screening over the payload and
// the (possibly nil) enriched vendor profile. The vendor's own risk
// score is the baseline; screening adds to it, capped at 1.0.
func ComputeFlags(p state.InvoicePayload, v *state.VendorProfile) state.RiskFlags {
	var f state.RiskFlags
	if v != nil {
		f.RiskScore = v.RiskScore
	}

	if p.VendorTaxID == "" && (v == nil || v.TaxID == "") {
		f.RiskScore += riskMissingTaxID
		f.Warnings = append(f.Warnings, "missing_tax_id")
	}
	if p.Amount > highValueAmount {
		f.RiskScore += riskHighValue
		f.Warnings = append(f.Warnings, "high_value_invoice")
	}
	if v == nil || len(v.Enrichment) == 0 {
		f.RiskScore += riskNotEnriched
		f.Warnings = append(f.Warnings, "vendor_not_enriched")
	}
	if p.POReference == "" {
		f.Warnings = append(f.Warnings, "missing_po_reference")
	}

	if f.RiskScore > 1.0 {
		f.RiskScore = 1.0
	}

	return f
}
