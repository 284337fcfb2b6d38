package port

import (
	"context"
	"modbot/internal/core/domain"
)

type Replier interface {
	// Reply delivers text back to where the event came from. Ephemeral replies are only visible to the invoker on
	// platforms that support it.
	Reply(ctx context.Context, event *domain.InvocationEvent, reply domain.Reply) error
}
