// Package ability is the uniform dispatch surface the pipeline calls
// tools through. Every call, local or external, goes through the
// Invoker and comes back in the same response envelope, which is what
// makes the per-stage audit trail possible.
package ability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
)

// Group identifies which provider group serves an ability.
type Group string

// Provider groups. Local abilities are deterministic in-process
// computations; external abilities reach collaborator systems (OCR,
// enrichment, ERP, email).
const (
	GroupLocal    Group = "local"
	GroupExternal Group = "external"
)

// Ability names.
const (
	ValidateSchema         = "validate_schema"
	NormalizeVendor        = "normalize_vendor"
	ComputeFlags           = "compute_flags"
	ComputeMatchScore      = "compute_match_score"
	BuildAccountingEntries = "build_accounting_entries"

	OCRExtract          = "ocr_extract"
	EnrichVendor        = "enrich_vendor"
	FetchPO             = "fetch_po"
	FetchGRN            = "fetch_grn"
	FetchHistory        = "fetch_history"
	ApplyApprovalPolicy = "apply_approval_policy"
	PostToERP           = "post_to_erp"
	SchedulePayment     = "schedule_payment"
	NotifyVendor        = "notify_vendor"
	NotifyFinanceTeam   = "notify_finance_team"
)

// routing is the static ability-to-group table. Adding an ability means
// adding a row here and a handler in the owning group.
var routing = map[string]Group{
	ValidateSchema:         GroupLocal,
	NormalizeVendor:        GroupLocal,
	ComputeFlags:           GroupLocal,
	ComputeMatchScore:      GroupLocal,
	BuildAccountingEntries: GroupLocal,

	OCRExtract:          GroupExternal,
	EnrichVendor:        GroupExternal,
	FetchPO:             GroupExternal,
	FetchGRN:            GroupExternal,
	FetchHistory:        GroupExternal,
	ApplyApprovalPolicy: GroupExternal,
	PostToERP:           GroupExternal,
	SchedulePayment:     GroupExternal,
	NotifyVendor:        GroupExternal,
	NotifyFinanceTeam:   GroupExternal,
}

// GroupFor returns the provider group for an ability name.
func GroupFor(name string) (Group, bool) {
	g, ok := routing[name]

	return g, ok
}

// CallContext carries the workflow coordinates of an ability call for
// logging and auditing.
type CallContext struct {
	WorkflowID id.WorkflowID
	Stage      state.Stage
}

// Response is the uniform call envelope.
type Response struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler executes the abilities of one provider group.
type Handler interface {
	Invoke(ctx context.Context, name string, payload map[string]any) (map[string]any, error)
}

// Invoker routes ability calls to the local or external handler and
// wraps every outcome, including routing failures, in a Response.
type Invoker struct {
	local    Handler
	external Handler
	logger   *slog.Logger
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(inv *Invoker) { inv.logger = l }
}

// NewInvoker wires the two provider groups.
func NewInvoker(local, external Handler, opts ...Option) *Invoker {
	inv := &Invoker{local: local, external: external, logger: slog.Default()}
	for _, opt := range opts {
		opt(inv)
	}

	return inv
}

// Execute runs one ability call. It never returns a Go error: failures
// are reported inside the envelope, and the matching audit CallRecord
// is returned alongside so stages can append it verbatim.
func (inv *Invoker) Execute(ctx context.Context, cc CallContext, name string, payload map[string]any) (Response, state.CallRecord) {
	now := time.Now().UTC()
	rec := state.CallRecord{
		Stage:     cc.Stage,
		Ability:   name,
		Timestamp: now,
	}

	group, ok := routing[name]
	if !ok {
		err := fmt.Errorf("%w: %q", payflow.ErrUnknownAbility, name)
		rec.Error = err.Error()

		return Response{Success: false, Error: err.Error(), Timestamp: now}, rec
	}
	rec.Group = string(group)

	handler := inv.local
	if group == GroupExternal {
		handler = inv.external
	}

	data, err := handler.Invoke(ctx, name, payload)
	if err != nil {
		inv.logger.Error("ability call failed",
			slog.String("workflow_id", cc.WorkflowID.String()),
			slog.String("stage", string(cc.Stage)),
			slog.String("ability", name),
			slog.String("group", string(group)),
			slog.String("error", err.Error()),
		)
		rec.Error = err.Error()

		return Response{Success: false, Error: err.Error(), Timestamp: now}, rec
	}

	inv.logger.Debug("ability call",
		slog.String("workflow_id", cc.WorkflowID.String()),
		slog.String("stage", string(cc.Stage)),
		slog.String("ability", name),
		slog.String("group", string(group)),
	)
	rec.Success = true

	return Response{Success: true, Data: data, Timestamp: now}, rec
}

// Encode converts a typed value into an envelope payload map.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ability: encode payload: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("ability: encode payload: %w", err)
	}

	return m, nil
}

// Decode extracts a typed value from an envelope data map.
func Decode(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("ability: decode data: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("ability: decode data: %w", err)
	}

	return nil
}
