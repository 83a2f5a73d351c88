// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"complianceflow/platform/shared/logger"
)

// CircuitBreaker tracks per-implementation failures and opens breakers the
// selector consults before choosing an implementation.
type CircuitBreaker struct {
	repo   Repository
	window FailureWindow
	config Config
	logger *logger.Logger
	now    func() time.Time
}

// Option configures the CircuitBreaker.
type Option func(*CircuitBreaker)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(cb *CircuitBreaker) {
		cb.logger = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// New creates a new circuit breaker. Zero config fields take their
// DefaultConfig values.
func New(repo Repository, window FailureWindow, config Config, opts ...Option) *CircuitBreaker {
	def := DefaultConfig()
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = def.DefaultTimeout
	}
	if config.MaxTimeout <= 0 {
		config.MaxTimeout = def.MaxTimeout
	}
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = def.ErrorThreshold
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if window == nil {
		window = NewMemoryWindow()
	}

	cb := &CircuitBreaker{
		repo:   repo,
		window: window,
		config: config,
		logger: logger.New("circuitbreaker"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Config returns the effective configuration.
func (cb *CircuitBreaker) Config() Config {
	return cb.config
}

// RecordOutcome feeds one call result into the failure window. A success
// clears the window; ErrorThreshold failures within Window open the breaker
// for DefaultTimeout. It returns the breaker state after the outcome.
func (cb *CircuitBreaker) RecordOutcome(ctx context.Context, key Key, success bool) (State, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}

	if success {
		if err := cb.window.Clear(ctx, key); err != nil {
			return "", err
		}
		return cb.state(ctx, key)
	}

	now := cb.now()
	failures, err := cb.window.Add(ctx, key, now, cb.config.Window)
	if err != nil {
		return "", err
	}
	if failures < cb.config.ErrorThreshold {
		return cb.state(ctx, key)
	}

	current, err := cb.repo.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrBreakerNotFound) {
		return "", err
	}
	if current.IsOpen(now) {
		return StateOpen, nil
	}

	reason := fmt.Sprintf("%d failures within %s", failures, cb.config.Window)
	if err := cb.open(ctx, key, reason, cb.config.DefaultTimeout, now); err != nil {
		return "", err
	}
	if err := cb.window.Clear(ctx, key); err != nil {
		cb.logger.Warn(key.OrgID, "", "failed to clear failure window", map[string]interface{}{
			"breaker": key.String(),
			"error":   err.Error(),
		})
	}
	return StateOpen, nil
}

// Trip opens the breaker for key. A zero timeout uses DefaultTimeout;
// timeouts above MaxTimeout are capped.
func (cb *CircuitBreaker) Trip(ctx context.Context, key Key, reason string, timeout time.Duration) (*Breaker, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if timeout < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeout, timeout)
	}
	if timeout == 0 {
		timeout = cb.config.DefaultTimeout
	}
	if timeout > cb.config.MaxTimeout {
		timeout = cb.config.MaxTimeout
	}
	if reason == "" {
		reason = "manual trip"
	}

	now := cb.now()
	if err := cb.open(ctx, key, reason, timeout, now); err != nil {
		return nil, err
	}
	return cb.repo.Get(ctx, key)
}

// Reset closes the breaker for key and clears its failure window. Resetting
// an unknown breaker is not an error.
func (cb *CircuitBreaker) Reset(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	now := cb.now()
	b := &Breaker{Key: key, State: StateClosed, UpdatedAt: now}
	if err := cb.repo.Save(ctx, b); err != nil {
		return err
	}
	if err := cb.window.Clear(ctx, key); err != nil {
		return err
	}

	cb.logger.Info(key.OrgID, "", "circuit breaker reset", map[string]interface{}{
		"breaker": key.String(),
	})
	return nil
}

// List returns breakers open for capabilityID that apply to orgID.
func (cb *CircuitBreaker) List(ctx context.Context, capabilityID, orgID string) ([]Breaker, error) {
	return cb.repo.ListOpen(ctx, capabilityID, orgID, cb.now())
}

// OpenImplementations returns the ids of implementations of capabilityID
// with an open breaker for orgID, global breakers included.
func (cb *CircuitBreaker) OpenImplementations(ctx context.Context, capabilityID, orgID string) ([]string, error) {
	breakers, err := cb.List(ctx, capabilityID, orgID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(breakers))
	ids := make([]string, 0, len(breakers))
	for _, b := range breakers {
		if _, dup := seen[b.ImplementationID]; dup {
			continue
		}
		seen[b.ImplementationID] = struct{}{}
		ids = append(ids, b.ImplementationID)
	}
	return ids, nil
}

func (cb *CircuitBreaker) open(ctx context.Context, key Key, reason string, timeout time.Duration, now time.Time) error {
	openedAt := now
	b := &Breaker{
		Key:       key,
		State:     StateOpen,
		Reason:    reason,
		OpenedAt:  &openedAt,
		UpdatedAt: now,
	}
	if cb.config.EnableAutoRecovery {
		expires := now.Add(timeout)
		b.ExpiresAt = &expires
	}
	if err := cb.repo.Save(ctx, b); err != nil {
		return err
	}

	cb.logger.Warn(key.OrgID, "", "circuit breaker opened", map[string]interface{}{
		"breaker":     key.String(),
		"reason":      reason,
		"timeout_sec": timeout.Seconds(),
		"auto_close":  cb.config.EnableAutoRecovery,
	})
	return nil
}

func (cb *CircuitBreaker) state(ctx context.Context, key Key) (State, error) {
	b, err := cb.repo.Get(ctx, key)
	if errors.Is(err, ErrBreakerNotFound) {
		return StateClosed, nil
	}
	if err != nil {
		return "", err
	}
	if b.IsOpen(cb.now()) {
		return StateOpen, nil
	}
	return StateClosed, nil
}
