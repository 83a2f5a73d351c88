// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"complianceflow/platform/shared/logger"
)

// Selector picks the implementation for a capability under the effective
// selection policy, skipping implementations with open breakers, and writes
// one audit record per successful selection. It holds no mutable state of
// its own and is safe for concurrent use.
type Selector struct {
	store   Store
	metrics *Metrics
	logger  *logger.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures the Selector.
type Option func(*Selector)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Selector) {
		s.logger = l
	}
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(s *Selector) {
		s.metrics = m
	}
}

// WithClock overrides the time source used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		s.now = now
	}
}

// WithIDGenerator overrides selection log id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Selector) {
		s.newID = newID
	}
}

// NewSelector creates a Selector backed by store.
func NewSelector(store Store, opts ...Option) *Selector {
	s := &Selector{
		store:  store,
		logger: logger.New("selector"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the implementation chosen for req.
func (s *Selector) Select(ctx context.Context, req Request) (*Selection, error) {
	start := time.Now()
	sel, err := s.selectImplementation(ctx, req)
	s.metrics.observe(req.CapabilityKey, sel, err, time.Since(start))

	if err != nil {
		s.logger.Warn(req.OrgID, req.RequestID, "implementation selection failed", map[string]interface{}{
			"capability": req.CapabilityKey,
			"error":      err.Error(),
		})
		return nil, err
	}

	s.logger.InfoWithDuration(req.OrgID, req.RequestID, "implementation selected", time.Since(start), map[string]interface{}{
		"capability":     req.CapabilityKey,
		"implementation": sel.Implementation.ID,
		"fallback_chain": sel.Log.FallbackChain,
		"reason_codes":   sel.Log.ReasonCodes,
		"policy_source":  sel.Policy.Source,
	})
	return sel, nil
}

func (s *Selector) selectImplementation(ctx context.Context, req Request) (*Selection, error) {
	if strings.TrimSpace(req.CapabilityKey) == "" {
		return nil, fmt.Errorf("%w: capability key is required", ErrInvalidRequest)
	}

	capabilityID, err := s.store.CapabilityID(ctx, req.CapabilityKey)
	if err != nil {
		if errors.Is(err, ErrCapabilityNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCapabilityNotFound, req.CapabilityKey)
		}
		return nil, fmt.Errorf("%w: resolving capability %s: %v", ErrStoreUnavailable, req.CapabilityKey, err)
	}

	policy, err := s.resolvePolicy(ctx, capabilityID, req.OrgID)
	if err != nil {
		return nil, err
	}

	preferred := policy.Prefer
	if req.RequestsQuality() {
		preferred = TierQuality
	}

	openIDs, err := s.store.OpenBreakers(ctx, capabilityID, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading breaker state: %v", ErrStoreUnavailable, err)
	}
	excluded := make(map[string]struct{}, len(openIDs))
	for _, id := range openIDs {
		excluded[id] = struct{}{}
	}

	impls, err := s.store.Implementations(ctx, capabilityID, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading implementations: %v", ErrStoreUnavailable, err)
	}

	chain := []Tier{preferred}
	pool := candidatePool(impls, preferred, excluded, policy.MaxCostPerUnit)
	escalated := false
	if len(pool) == 0 && policy.EscalateOnFailure {
		fallback := preferred.Other()
		chain = append(chain, fallback)
		pool = candidatePool(impls, fallback, excluded, policy.MaxCostPerUnit)
		escalated = true
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: capability %s, tiers attempted %v", ErrNoImplementationAvailable, req.CapabilityKey, chain)
	}

	chosen := pool[0]
	reasons := []string{
		"tier:" + string(preferred),
		"impl:" + chosen.impl.Label(),
	}
	if escalated {
		reasons = append(reasons, "escalated:true")
	}

	entry := SelectionLog{
		ID:               s.newID(),
		OrgID:            req.OrgID,
		CapabilityID:     capabilityID,
		CapabilityKey:    req.CapabilityKey,
		ImplementationID: chosen.impl.ID,
		FallbackChain:    chain,
		ReasonCodes:      reasons,
		Context:          copyContext(req.Context),
		EstimatedCost:    chosen.cost,
		Status:           StatusSelected,
		CreatedAt:        s.now().UTC(),
	}

	// An unaudited selection is never returned.
	if err := s.store.WriteSelectionLog(ctx, &entry); err != nil {
		if errors.Is(err, ErrInvalidSelectionLog) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: writing selection log: %v", ErrStoreUnavailable, err)
	}

	return &Selection{
		Implementation: chosen.impl,
		Policy:         policy,
		Log:            entry,
	}, nil
}

// resolvePolicy prefers an org-scoped row over a global row and falls back
// to DefaultPolicy when neither exists.
func (s *Selector) resolvePolicy(ctx context.Context, capabilityID, orgID string) (EffectivePolicy, error) {
	rows, err := s.store.SelectionPolicies(ctx, capabilityID, orgID)
	if err != nil {
		return EffectivePolicy{}, fmt.Errorf("%w: %v", ErrPolicyFetchFailed, err)
	}

	var orgRow, globalRow *SelectionPolicy
	for i := range rows {
		row := &rows[i]
		switch {
		case row.OrgID == "" && globalRow == nil:
			globalRow = row
		case orgID != "" && row.OrgID == orgID && orgRow == nil:
			orgRow = row
		}
	}

	switch {
	case orgRow != nil:
		return parsePolicy(orgRow.Config, PolicySourceOrg)
	case globalRow != nil:
		return parsePolicy(globalRow.Config, PolicySourceGlobal)
	default:
		return DefaultPolicy(), nil
	}
}

func parsePolicy(raw json.RawMessage, source PolicySource) (EffectivePolicy, error) {
	if len(raw) == 0 {
		return EffectivePolicy{}, fmt.Errorf("%w: empty config", ErrInvalidPolicy)
	}

	var cfg PolicyConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return EffectivePolicy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	policy := DefaultPolicy()
	policy.Source = source
	if cfg.Prefer != "" {
		if !cfg.Prefer.IsValid() {
			return EffectivePolicy{}, fmt.Errorf("%w: unknown prefer tier %q", ErrInvalidPolicy, cfg.Prefer)
		}
		policy.Prefer = cfg.Prefer
	}
	if cfg.EscalateOnFailure != nil {
		policy.EscalateOnFailure = *cfg.EscalateOnFailure
	}
	if cfg.MaxCostPerUnit != nil {
		if *cfg.MaxCostPerUnit < 0 {
			return EffectivePolicy{}, fmt.Errorf("%w: max_cost_per_unit must not be negative", ErrInvalidPolicy)
		}
		limit := *cfg.MaxCostPerUnit
		policy.MaxCostPerUnit = &limit
	}
	return policy, nil
}

type candidate struct {
	impl Implementation
	cost float64
}

// candidatePool filters impls to tier, drops excluded ids and those above
// maxCost, and sorts ascending by cost. Equal costs keep registration order.
func candidatePool(impls []Implementation, tier Tier, excluded map[string]struct{}, maxCost *float64) []candidate {
	pool := make([]candidate, 0, len(impls))
	for _, impl := range impls {
		if impl.Tier != tier {
			continue
		}
		if _, open := excluded[impl.ID]; open {
			continue
		}
		cost := ExtractCost(impl.CostModel)
		if maxCost != nil && cost > *maxCost {
			continue
		}
		pool = append(pool, candidate{impl: impl, cost: cost})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].cost < pool[j].cost
	})
	return pool
}

func copyContext(in map[string]interface{}) map[string]interface{} {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
