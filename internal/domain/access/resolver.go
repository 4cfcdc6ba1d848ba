package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const (
	ReasonNotLinked   = "actor may only act for self or linked climbers"
	ReasonMissingRole = "actor lacks required role"
)

// LinkFinder looks up parent-to-climber ownership links in the authoritative store.
type LinkFinder interface {
	// FindLink reports whether parentID may act on behalf of climberID.
	FindLink(ctx context.Context, parentID, climberID uuid.UUID) (bool, error)
}

// Decision is the outcome of an ownership check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the decision returned when the actor may proceed.
func Allow() Decision { return Decision{Allowed: true} }

// Deny builds a denial with the given reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Resolver answers whether an actor may book or cancel on behalf of a climber.
// It never caches links: every call reads the LinkFinder.
type Resolver struct {
	links LinkFinder
}

// NewResolver creates a new Resolver backed by links.
func NewResolver(links LinkFinder) *Resolver {
	return &Resolver{links: links}
}

// Authorize decides whether actorID holding roles may act for climberID.
// A lookup failure is returned as an error and never as an allowed decision.
func (r *Resolver) Authorize(ctx context.Context, actorID uuid.UUID, roles RoleSet, climberID uuid.UUID) (Decision, error) {
	if roles.IsStaff() {
		return Allow(), nil
	}
	if !roles.Has(RoleClimber) {
		return Deny(ReasonMissingRole), nil
	}
	if actorID == climberID {
		return Allow(), nil
	}

	linked, err := r.links.FindLink(ctx, actorID, climberID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to look up ownership link: %w", err)
	}
	if linked {
		return Allow(), nil
	}
	return Deny(ReasonNotLinked), nil
}
