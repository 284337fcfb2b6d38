package port

import (
	"context"
	"modbot/internal/core/domain"
	"time"
)

// EventSink receives normalized invocation events from a transport. Dispatch must not block.
type EventSink interface {
	Dispatch(event *domain.InvocationEvent)
}

type Transport interface {
	Replier

	// Open establishes the platform session and starts delivering events to sink.
	// Authentication failures wrap domain.ErrTransportAuth, back-off requests are *domain.RateLimitedError.
	Open(ctx context.Context, sink EventSink) error
	// Wait blocks until the session drops and reports why. It returns nil once ctx is done.
	Wait(ctx context.Context) error
	// Close ends the session. It is safe to call more than once.
	Close() error

	// CatalogKind is the namespace the platform publishes in its remote command catalog.
	CatalogKind() domain.InvocationKind
	// SyncCommands replaces the remote catalog, globally for an empty originID, and returns how many were accepted.
	SyncCommands(ctx context.Context, originID string, entries []domain.CatalogEntry) (int, error)
	// Origins lists the scopes a catalog can be synced to individually.
	Origins() []string

	Name() string
	Ready() bool
	// Latency is the last measured round trip to the platform, or a negative value when unknown.
	Latency() time.Duration
}

// FailureMapper recognises transport SDK errors surfacing from handlers.
type FailureMapper interface {
	MapFailure(err error) (domain.FailureKind, bool)
}
