package authz

import (
	"errors"
	"fmt"
	"slices"
)

// Default capacities for the two caller sets.
const (
	DefaultMaxAuthorized = 3
	DefaultMaxAdmins     = 2
)

var (
	// ErrNotAuthorized is returned when a caller is not in the authorized set.
	ErrNotAuthorized = errors.New("caller is not authorized")

	// ErrNotAdmin is returned when a caller is not in the admin set.
	ErrNotAdmin = errors.New("caller is not an admin")

	// ErrCapacityExceeded is returned when adding to a set that is already
	// at its configured maximum.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)

// Authorizer is the read side of the gate, consumed by every mutating
// rotation, swap, and punishment-decision operation.
type Authorizer interface {
	IsAuthorized(callerID string) bool
	IsAdmin(callerID string) bool
}

// Gate owns the authorized-caller set and the admin set, each with a fixed
// capacity. Admins are a disjoint privileged set: being an admin does not
// imply being authorized for rotation operations.
type Gate struct {
	authorized    []string
	admins        []string
	maxAuthorized int
	maxAdmins     int
}

// NewGate creates a gate with the given capacities. Zero or negative
// capacities fall back to the defaults.
func NewGate(maxAuthorized, maxAdmins int) *Gate {
	if maxAuthorized <= 0 {
		maxAuthorized = DefaultMaxAuthorized
	}
	if maxAdmins <= 0 {
		maxAdmins = DefaultMaxAdmins
	}
	return &Gate{
		maxAuthorized: maxAuthorized,
		maxAdmins:     maxAdmins,
	}
}

// IsAuthorized reports whether the caller may invoke rotation and swap
// mutating operations.
func (g *Gate) IsAuthorized(callerID string) bool {
	return slices.Contains(g.authorized, callerID)
}

// IsAdmin reports whether the caller may decide punishment requests and
// manage the authorized set.
func (g *Gate) IsAdmin(callerID string) bool {
	return slices.Contains(g.admins, callerID)
}

// AddAuthorized adds a caller to the authorized set. Adding a caller who is
// already present is a no-op. Fails with ErrCapacityExceeded when the set is
// full; the set is left unchanged.
func (g *Gate) AddAuthorized(callerID string) error {
	if slices.Contains(g.authorized, callerID) {
		return nil
	}
	if len(g.authorized) >= g.maxAuthorized {
		return fmt.Errorf("authorized set is full (%d): %w", g.maxAuthorized, ErrCapacityExceeded)
	}
	g.authorized = append(g.authorized, callerID)
	return nil
}

// RemoveAuthorized removes a caller from the authorized set. Removing an
// absent caller is a no-op, not an error.
func (g *Gate) RemoveAuthorized(callerID string) {
	g.authorized = slices.DeleteFunc(g.authorized, func(id string) bool {
		return id == callerID
	})
}

// AddAdmin adds a caller to the admin set, subject to the admin capacity.
func (g *Gate) AddAdmin(callerID string) error {
	if slices.Contains(g.admins, callerID) {
		return nil
	}
	if len(g.admins) >= g.maxAdmins {
		return fmt.Errorf("admin set is full (%d): %w", g.maxAdmins, ErrCapacityExceeded)
	}
	g.admins = append(g.admins, callerID)
	return nil
}

// RemoveAdmin removes a caller from the admin set. Idempotent.
func (g *Gate) RemoveAdmin(callerID string) {
	g.admins = slices.DeleteFunc(g.admins, func(id string) bool {
		return id == callerID
	})
}

// Authorized returns the authorized caller ids in insertion order.
func (g *Gate) Authorized() []string {
	return slices.Clone(g.authorized)
}

// Admins returns the admin caller ids in insertion order.
func (g *Gate) Admins() []string {
	return slices.Clone(g.admins)
}

// AdminCount returns the number of admins.
func (g *Gate) AdminCount() int {
	return len(g.admins)
}

// Restore replaces both sets from a snapshot. Entries beyond capacity are
// kept so that a snapshot taken under a larger configured capacity still
// restores; capacity applies to subsequent adds only.
func (g *Gate) Restore(authorized, admins []string) {
	g.authorized = slices.Clone(authorized)
	g.admins = slices.Clone(admins)
}
