//go:build unix

package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/marcus/fieldops/internal/models"
	"golang.org/x/sys/unix"
)

// lifecycleEvents maps SIGUSR1 to Background and SIGUSR2 to Foreground.
func lifecycleEvents(ctx context.Context) <-chan models.LifecycleEvent {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGUSR1, unix.SIGUSR2)

	out := make(chan models.LifecycleEvent)
	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				ev := models.Background
				if sig == unix.SIGUSR2 {
					ev = models.Foreground
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
