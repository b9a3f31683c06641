// Package toolsel picks a concrete provider for each tool capability the
// pipeline needs (OCR, enrichment, ERP connector, database, email).
// Pools are declared in YAML; per-provider conditions are compiled into
// predicates when the config loads, so selection is a pure lookup with
// no expression evaluation on the hot path.
package toolsel

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/xraph/payflow"
)

// Capability names used by the pipeline.
const (
	CapabilityOCR        = "ocr"
	CapabilityEnrichment = "enrichment"
	CapabilityERP        = "erp_connector"
	CapabilityDB         = "db"
	CapabilityEmail      = "email"
)

// Selection is the outcome of a provider choice for one capability.
type Selection struct {
	Provider     string   `json:"provider"`
	Alternatives []string `json:"alternatives,omitempty"`
	Reason       string   `json:"reason"`
}

type compiledProvider struct {
	name       string
	priority   int
	conditions []condition
}

func (p compiledProvider) eligible(ctx map[string]any) bool {
	for _, cond := range p.conditions {
		if !cond(ctx) {
			return false
		}
	}

	return true
}

// Selector resolves capabilities to providers using rule-based
// selection over the configured pools.
type Selector struct {
	pools    map[string][]compiledProvider
	fallback bool
	logger   *slog.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithLogger sets the structured logger for selection decisions.
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) { s.logger = l }
}

// New builds a Selector from a loaded Config, compiling all provider
// conditions. A condition that does not fit the grammar is a
// configuration error, reported here rather than at selection time.
func New(cfg Config, opts ...Option) (*Selector, error) {
	s := &Selector{
		pools:    make(map[string][]compiledProvider, len(cfg.Pools)),
		fallback: cfg.Strategy.Fallback,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for capability, pool := range cfg.Pools {
		providers := make([]compiledProvider, 0, len(pool.Providers))
		for _, p := range pool.Providers {
			cp := compiledProvider{name: p.Name, priority: p.Priority}
			for _, expr := range p.Conditions {
				cond, err := compileCondition(expr)
				if err != nil {
					return nil, fmt.Errorf("pool %q provider %q: %w", capability, p.Name, err)
				}
				cp.conditions = append(cp.conditions, cond)
			}
			providers = append(providers, cp)
		}
		s.pools[capability] = providers
	}

	return s, nil
}

// Select picks a provider for the capability given the selection
// context. Providers whose conditions all pass are ranked by priority
// ascending; the best is selected and the rest are alternatives. When
// no provider passes and fallback is enabled, the full pool is ranked
// instead of failing the stage.
func (s *Selector) Select(capability string, ctx map[string]any) (Selection, error) {
	pool, ok := s.pools[capability]
	if !ok {
		return Selection{}, fmt.Errorf("%w: %q", payflow.ErrUnknownCapability, capability)
	}

	reason := "rule_based"
	eligible := make([]compiledProvider, 0, len(pool))
	for _, p := range pool {
		if p.eligible(ctx) {
			eligible = append(eligible, p)
		}
	}

	if len(eligible) == 0 {
		if !s.fallback {
			return Selection{}, fmt.Errorf("toolsel: no provider eligible for capability %q", capability)
		}
		eligible = append(eligible, pool...)
		reason = "fallback: no provider matched conditions"
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].priority < eligible[j].priority
	})

	sel := Selection{Provider: eligible[0].name, Reason: reason}
	for _, p := range eligible[1:] {
		sel.Alternatives = append(sel.Alternatives, p.name)
	}

	s.logger.Debug("tool selected",
		slog.String("capability", capability),
		slog.String("provider", sel.Provider),
		slog.String("reason", reason),
	)

	return sel, nil
}

// Capabilities returns the configured capability names, sorted.
func (s *Selector) Capabilities() []string {
	caps := make([]string, 0, len(s.pools))
	for c := range s.pools {
		caps = append(caps, c)
	}
	sort.Strings(caps)

	return caps
}
