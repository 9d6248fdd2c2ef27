// Package actor provides a universal pattern for identifying the user or
// system performing actions. State-changing service methods take the actor
// explicitly; it is never read implicitly inside the core.
package actor

import (
	"context"
	"fmt"
)

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the unique identifier of the actor (user ID)
	ID string `json:"id"`

	// EmployeeID is the employee record this actor maps to, if any
	EmployeeID string `json:"employee_id,omitempty"`

	// Name is the actor's display name
	Name string `json:"name"`

	// Email is the actor's email address
	Email string `json:"email"`

	// Permissions are the permission keys granted to the actor
	Permissions []string `json:"permissions,omitempty"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.Email)
}

// contextKey is the type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

const systemActorID = "00000000-0000-0000-0000-000000000000"

// System returns an Actor representing the system itself.
// Use this for background jobs and scheduled tasks.
func System() *Actor {
	return &Actor{
		ID:    systemActorID,
		Name:  "System",
		Email: "system@planner.local",
	}
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	if a == nil {
		return true
	}
	return a.ID == systemActorID
}
