// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package circuitbreaker

import (
	"fmt"
	"time"
)

// State is the breaker state. Breakers are binary: open or closed.
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// Config contains circuit breaker configuration.
type Config struct {
	// DefaultTimeout is how long a breaker stays open when tripped without
	// an explicit timeout.
	DefaultTimeout time.Duration
	// MaxTimeout caps manual trip timeouts.
	MaxTimeout time.Duration
	// ErrorThreshold failures within Window open the breaker.
	ErrorThreshold int
	Window         time.Duration
	// EnableAutoRecovery lets open breakers close on expiry. When false,
	// breakers stay open until Reset.
	EnableAutoRecovery bool
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:     5 * time.Minute,
		MaxTimeout:         24 * time.Hour,
		ErrorThreshold:     5,
		Window:             time.Minute,
		EnableAutoRecovery: true,
	}
}

// Key identifies one breaker. An empty OrgID is a global breaker that
// applies to every org.
type Key struct {
	CapabilityID     string `json:"capability_id"`
	ImplementationID string `json:"implementation_id"`
	OrgID            string `json:"org_id,omitempty"`
}

// Validate checks that the key names a capability and implementation.
func (k Key) Validate() error {
	if k.CapabilityID == "" || k.ImplementationID == "" {
		return fmt.Errorf("%w: capability_id and implementation_id are required", ErrInvalidKey)
	}
	return nil
}

func (k Key) String() string {
	org := k.OrgID
	if org == "" {
		org = "*"
	}
	return fmt.Sprintf("%s:%s:%s", k.CapabilityID, k.ImplementationID, org)
}

// Breaker is the stored state of one breaker.
type Breaker struct {
	Key
	State     State      `json:"state"`
	Reason    string     `json:"reason,omitempty"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsOpen reports whether the breaker excludes its implementation at now.
func (b *Breaker) IsOpen(now time.Time) bool {
	if b == nil || b.State != StateOpen {
		return false
	}
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}
