//go:build unix

package cmd

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/marcus/fieldops/internal/models"
)

func TestLifecycleSignals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := lifecycleEvents(ctx)

	for _, tc := range []struct {
		sig  syscall.Signal
		want models.LifecycleEvent
	}{
		{syscall.SIGUSR1, models.Background},
		{syscall.SIGUSR2, models.Foreground},
	} {
		if err := syscall.Kill(syscall.Getpid(), tc.sig); err != nil {
			t.Fatal(err)
		}
		select {
		case ev := <-events:
			if ev != tc.want {
				t.Errorf("%v -> %v, want %v", tc.sig, ev, tc.want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no event for %v", tc.sig)
		}
	}
}
