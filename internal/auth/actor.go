package auth

import (
	"context"
	"strings"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdvisor  Role = "advisor"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdvisor, RoleAdmin, RoleSystem:
		return true
	default:
		return false
	}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

// IsStaff reports whether the actor works the advisor console.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdvisor || a.Role == RoleAdmin
}

func (a Actor) Valid() bool {
	return strings.TrimSpace(a.ID) != "" && a.Role.Valid()
}

// SystemActor is used by background jobs.
func SystemActor() Actor {
	return Actor{ID: "system", Role: RoleSystem}
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || !actor.Valid() {
		return Actor{}, false
	}
	return actor, true
}
