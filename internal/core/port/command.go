package port

import (
	"context"
	"modbot/internal/core/domain"
)

type Command interface {
	// Respond executes the command for the given event and returns the reply to deliver. Failures should be returned
	// as *domain.Failure where the handler knows their kind.
	Respond(ctx context.Context, event *domain.InvocationEvent) (domain.Reply, error)
	// Description is the short text published in the platform's command catalog.
	Description() string
}

// Registration binds a handler to a name inside one invocation namespace.
type Registration struct {
	Kind         domain.InvocationKind
	Name         string
	RequiredTags []domain.CapabilityTag
	Cooldown     domain.Cooldown
	Handler      Command
}

type CommandRegistry interface {
	// Register adds a handler. Names are unique per kind; the same name may exist in both kinds.
	Register(reg Registration) error
	// Lookup finds the registration for a name inside a single namespace.
	Lookup(kind domain.InvocationKind, name string) (Registration, bool)
	// List returns the registrations of one namespace sorted by name.
	List(kind domain.InvocationKind) []Registration
}
