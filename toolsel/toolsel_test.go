package toolsel_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/toolsel"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSelector(t *testing.T) *toolsel.Selector {
	t.Helper()
	s, err := toolsel.New(toolsel.DefaultConfig(), toolsel.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	return s
}

func TestSelectByPriority(t *testing.T) {
	s := newSelector(t)

	sel, err := s.Select(toolsel.CapabilityDB, nil)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if sel.Provider != "postgres_primary" {
		t.Errorf("Provider = %q, want postgres_primary", sel.Provider)
	}
	if len(sel.Alternatives) != 1 || sel.Alternatives[0] != "postgres_replica" {
		t.Errorf("Alternatives = %v, want [postgres_replica]", sel.Alternatives)
	}
	if sel.Reason != "rule_based" {
		t.Errorf("Reason = %q, want rule_based", sel.Reason)
	}
}

func TestSelectConditionFilters(t *testing.T) {
	s := newSelector(t)

	// With a pdf the local engine wins.
	sel, err := s.Select(toolsel.CapabilityOCR, map[string]any{"file_type": "pdf"})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if sel.Provider != "tesseract_local" {
		t.Errorf("Provider = %q, want tesseract_local", sel.Provider)
	}

	// A scan excludes it and the next priority takes over.
	sel, err = s.Select(toolsel.CapabilityOCR, map[string]any{"file_type": "png"})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if sel.Provider != "aws_textract" {
		t.Errorf("Provider = %q, want aws_textract", sel.Provider)
	}
}

func TestSelectSetMembership(t *testing.T) {
	s := newSelector(t)

	sel, err := s.Select(toolsel.CapabilityERP, map[string]any{"erp_system": "netsuite"})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if sel.Provider != "netsuite_connector" {
		t.Errorf("Provider = %q, want netsuite_connector", sel.Provider)
	}
}

func TestSelectNumericComparison(t *testing.T) {
	s := newSelector(t)

	sel, err := s.Select(toolsel.CapabilityEnrichment, map[string]any{"amount": 30000.0})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	// dnb becomes eligible but internal_vendor_db still outranks it.
	if sel.Provider != "internal_vendor_db" {
		t.Errorf("Provider = %q, want internal_vendor_db", sel.Provider)
	}
	found := false
	for _, alt := range sel.Alternatives {
		if alt == "dnb" {
			found = true
		}
	}
	if !found {
		t.Errorf("Alternatives = %v, want dnb included", sel.Alternatives)
	}

	sel, err = s.Select(toolsel.CapabilityEnrichment, map[string]any{"amount": 100.0})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	for _, alt := range sel.Alternatives {
		if alt == "dnb" {
			t.Errorf("dnb should be excluded below the amount threshold: %v", sel.Alternatives)
		}
	}
}

func TestSelectFallbackWhenNothingEligible(t *testing.T) {
	cfg := toolsel.Config{
		Pools: map[string]toolsel.Pool{
			"ocr": {Providers: []toolsel.Provider{
				{Name: "only_pdf", Priority: 1, Conditions: []string{"context.file_type == 'pdf'"}},
			}},
		},
		Strategy: toolsel.Strategy{DefaultMethod: "rule_based", Fallback: true},
	}
	s, err := toolsel.New(cfg, toolsel.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sel, err := s.Select("ocr", map[string]any{"file_type": "png"})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if sel.Provider != "only_pdf" {
		t.Errorf("Provider = %q, want fallback to only_pdf", sel.Provider)
	}
	if sel.Reason == "rule_based" {
		t.Errorf("Reason = %q, want a fallback reason", sel.Reason)
	}
}

func TestSelectNoFallbackErrors(t *testing.T) {
	cfg := toolsel.Config{
		Pools: map[string]toolsel.Pool{
			"ocr": {Providers: []toolsel.Provider{
				{Name: "only_pdf", Priority: 1, Conditions: []string{"context.file_type == 'pdf'"}},
			}},
		},
		Strategy: toolsel.Strategy{DefaultMethod: "rule_based", Fallback: false},
	}
	s, err := toolsel.New(cfg, toolsel.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := s.Select("ocr", map[string]any{"file_type": "png"}); err == nil {
		t.Error("expected error with fallback disabled")
	}
}

func TestSelectUnknownCapability(t *testing.T) {
	s := newSelector(t)

	_, err := s.Select("blockchain", nil)
	if err == nil {
		t.Fatal("expected error for unknown capability")
	}
	if !errors.Is(err, payflow.ErrUnknownCapability) {
		t.Errorf("error %v is not ErrUnknownCapability", err)
	}
}

func TestBadConditionFailsAtLoad(t *testing.T) {
	cfg := toolsel.Config{
		Pools: map[string]toolsel.Pool{
			"ocr": {Providers: []toolsel.Provider{
				{Name: "bad", Priority: 1, Conditions: []string{"os.system('rm -rf')"}},
			}},
		},
	}
	if _, err := toolsel.New(cfg, toolsel.WithLogger(testLogger())); err == nil {
		t.Error("expected compile error for malformed condition")
	}
}

func TestMissingContextKeyFailsCondition(t *testing.T) {
	s := newSelector(t)

	// No erp_system in context: both conditional connectors drop out.
	sel, err := s.Select(toolsel.CapabilityERP, map[string]any{})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if sel.Provider != "quickbooks_connector" {
		t.Errorf("Provider = %q, want quickbooks_connector", sel.Provider)
	}
}
