//go:build !unix

package cmd

import (
	"context"

	"github.com/marcus/fieldops/internal/models"
)

// lifecycleEvents never fires; there are no user signals on this platform.
func lifecycleEvents(ctx context.Context) <-chan models.LifecycleEvent {
	return make(chan models.LifecycleEvent)
}
