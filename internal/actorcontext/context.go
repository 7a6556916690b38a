// Package actorcontext carries the authenticated actor through a request or
// batch run. Identity is resolved upstream; this package only transports it.
package actorcontext

import (
	"context"
	"strings"
)

type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

const (
	RolePlatformAdmin = "platform_admin"
	RoleSystem        = "system"
)

type Actor struct {
	Type ActorType
	ID   string
	Role string
}

// System is the actor used by the batch CLI and other internal triggers.
func System() Actor {
	return Actor{Type: ActorSystem, ID: "system", Role: RoleSystem}
}

// Subject is the casbin subject for the actor.
func (a Actor) Subject() string {
	if a.Type == ActorSystem {
		return "system"
	}
	return "user:" + strings.TrimSpace(a.ID)
}

func (a Actor) Valid() bool {
	return a.Type != "" && strings.TrimSpace(a.ID) != ""
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
