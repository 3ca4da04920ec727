// Package permission checks and requests device capabilities (location,
// camera) through a platform binding.
package permission

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/marcus/fieldops/internal/fielderr"
)

// Capability is a device capability guarded by a runtime permission
type Capability string

const (
	Location Capability = "location"
	Camera   Capability = "camera"
)

// Decision is the outcome of a permission check
type Decision int

const (
	Granted Decision = iota
	Denied
	PermanentlyDenied
)

func (d Decision) String() string {
	switch d {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	case PermanentlyDenied:
		return "permanently_denied"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Retryable reports whether asking again may succeed
func (d Decision) Retryable() bool { return d == Denied }

// ParseDecision parses the config/env spelling of a decision
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "granted", "allow", "yes":
		return Granted, nil
	case "denied", "deny", "no":
		return Denied, nil
	case "permanently_denied", "permanent", "never":
		return PermanentlyDenied, nil
	}
	return Denied, fmt.Errorf("%w: unknown permission decision %q", fielderr.ErrInvalidInput, s)
}

// Platform is the device binding that can check and prompt for permissions
type Platform interface {
	// Check returns the current decision without prompting.
	Check(ctx context.Context, c Capability) (Decision, error)
	// Request prompts the user and returns the resulting decision.
	Request(ctx context.Context, c Capability) (Decision, error)
}

// Error is returned when a flow is aborted because a capability is missing.
// It unwraps to fielderr.ErrPermissionDenied.
type Error struct {
	Capability Capability
	Decision   Decision
}

func (e *Error) Error() string {
	if e.Decision == PermanentlyDenied {
		return fmt.Sprintf("%s permission permanently denied: enable it in system settings", e.Capability)
	}
	return fmt.Sprintf("%s permission denied", e.Capability)
}

func (e *Error) Unwrap() error { return fielderr.ErrPermissionDenied }

// Gate checks capabilities before a flow touches hardware
type Gate struct {
	platform Platform

	mu        sync.Mutex
	permanent map[Capability]bool
}

// NewGate creates a gate over a platform binding
func NewGate(p Platform) *Gate {
	return &Gate{platform: p, permanent: make(map[Capability]bool)}
}

// Ensure returns Granted, Denied or PermanentlyDenied for c. A Denied check
// prompts once via Request; a PermanentlyDenied capability is not prompted
// again until Reset.
func (g *Gate) Ensure(ctx context.Context, c Capability) (Decision, error) {
	g.mu.Lock()
	permanent := g.permanent[c]
	g.mu.Unlock()
	if permanent {
		return PermanentlyDenied, nil
	}

	d, err := g.platform.Check(ctx, c)
	if err != nil {
		return Denied, fmt.Errorf("check %s permission: %w", c, err)
	}
	if d == Denied {
		d, err = g.platform.Request(ctx, c)
		if err != nil {
			return Denied, fmt.Errorf("request %s permission: %w", c, err)
		}
	}
	if d == PermanentlyDenied {
		g.mu.Lock()
		g.permanent[c] = true
		g.mu.Unlock()
	}
	return d, nil
}

// Require is Ensure for callers that only proceed on Granted. Any other
// decision becomes an *Error.
func (g *Gate) Require(ctx context.Context, caps ...Capability) error {
	for _, c := range caps {
		d, err := g.Ensure(ctx, c)
		if err != nil {
			return err
		}
		if d != Granted {
			return &Error{Capability: c, Decision: d}
		}
	}
	return nil
}

// Reset forgets permanent denials, e.g. after the user returns from settings
func (g *Gate) Reset() {
	g.mu.Lock()
	g.permanent = make(map[Capability]bool)
	g.mu.Unlock()
}

// StaticPlatform answers from a fixed table. Request returns the same answer
// as Check. Used by the CLI, where decisions come from config.
type StaticPlatform map[Capability]Decision

// Check implements Platform
func (p StaticPlatform) Check(_ context.Context, c Capability) (Decision, error) {
	if d, ok := p[c]; ok {
		return d, nil
	}
	return Granted, nil
}

// Request implements Platform
func (p StaticPlatform) Request(ctx context.Context, c Capability) (Decision, error) {
	return p.Check(ctx, c)
}
