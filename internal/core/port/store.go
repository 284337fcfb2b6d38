package port

import (
	"context"
	"modbot/internal/core/domain"
)

type InstallationStore interface {
	// UpsertInstallation inserts the installation or replaces the stored tokens for the same user.
	UpsertInstallation(ctx context.Context, inst domain.Installation) error
}
