package location

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/models"
)

type countingLocator struct {
	calls atomic.Int32
	err   error
}

func (l *countingLocator) Fix(ctx context.Context, _ Accuracy) (models.LocationSample, error) {
	l.calls.Add(1)
	if l.err != nil {
		return models.LocationSample{}, l.err
	}
	return models.LocationSample{Latitude: 12.97, Longitude: 77.59, Accuracy: 5, CapturedAt: time.Now()}, nil
}

type recordingPusher struct {
	mu      sync.Mutex
	samples []models.LocationSample
	block   bool // wait for ctx cancellation before returning
	aborted atomic.Int32
}

func (p *recordingPusher) PushLocation(ctx context.Context, s models.LocationSample) error {
	p.mu.Lock()
	p.samples = append(p.samples, s)
	block := p.block
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		p.aborted.Add(1)
		return ctx.Err()
	}
	return nil
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.samples)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSamplerStartIsIdempotent(t *testing.T) {
	loc := &countingLocator{}
	push := &recordingPusher{}
	s := NewSampler(loc, push, Options{})

	s.Start(5 * time.Millisecond)
	s.Start(5 * time.Millisecond)
	s.Start(time.Hour)
	defer s.Stop()

	waitFor(t, "three pushes", func() bool { return push.count() >= 3 })
	if !s.Running() || !s.Active() {
		t.Fatal("sampler should be running")
	}
}

func TestSamplerNoPushAfterStop(t *testing.T) {
	push := &recordingPusher{}
	s := NewSampler(&countingLocator{}, push, Options{})

	s.Start(5 * time.Millisecond)
	waitFor(t, "first push", func() bool { return push.count() >= 1 })
	s.Stop()
	s.Stop() // repeated stop is safe

	after := push.count()
	time.Sleep(40 * time.Millisecond)
	if got := push.count(); got != after {
		t.Fatalf("pushes after Stop: before=%d after=%d", after, got)
	}
	if s.Running() {
		t.Fatal("sampler still running after Stop")
	}
}

func TestSamplerStopCancelsInflightPush(t *testing.T) {
	push := &recordingPusher{block: true}
	s := NewSampler(&countingLocator{}, push, Options{PushTimeout: time.Minute})

	s.Start(5 * time.Millisecond)
	waitFor(t, "blocked push", func() bool { return push.count() >= 1 })
	s.Stop()

	if got, want := int(push.aborted.Load()), push.count(); got != want {
		t.Fatalf("aborted pushes = %d, started = %d; Stop must wait for all", got, want)
	}
}

func TestSamplerSlowPushDoesNotStallTicks(t *testing.T) {
	loc := &countingLocator{}
	push := &recordingPusher{block: true}
	s := NewSampler(loc, push, Options{PushTimeout: time.Minute})

	s.Start(5 * time.Millisecond)
	defer s.Stop()

	waitFor(t, "ticks while pushes hang", func() bool { return loc.calls.Load() >= 4 })
}

func TestSamplerFixFailureIsDropped(t *testing.T) {
	loc := &countingLocator{err: errors.New("no satellites")}
	push := &recordingPusher{}
	var hooked atomic.Int32
	s := NewSampler(loc, push, Options{OnSample: func(models.LocationSample) { hooked.Add(1) }})

	s.Start(5 * time.Millisecond)
	waitFor(t, "failed ticks", func() bool { return loc.calls.Load() >= 3 })
	s.Stop()

	if push.count() != 0 {
		t.Fatalf("pushes = %d, want 0", push.count())
	}
	if hooked.Load() != 0 {
		t.Fatal("OnSample called for failed fix")
	}
}

func TestSamplerPauseResume(t *testing.T) {
	loc := &countingLocator{}
	s := NewSampler(loc, nil, Options{})

	s.Start(5 * time.Millisecond)
	defer s.Stop()
	waitFor(t, "first tick", func() bool { return loc.calls.Load() >= 1 })

	s.Pause()
	s.Pause()
	if !s.Paused() || s.Active() {
		t.Fatal("expected paused")
	}
	paused := loc.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if got := loc.calls.Load(); got != paused {
		t.Fatalf("ticks while paused: %d -> %d", paused, got)
	}

	s.Resume()
	waitFor(t, "ticks after resume", func() bool { return loc.calls.Load() >= paused+2 })
}

func TestSamplerResumeWithoutStartIsNoop(t *testing.T) {
	s := NewSampler(&countingLocator{}, nil, Options{})
	s.Resume()
	s.Pause()
	if s.Running() || s.Paused() {
		t.Fatal("sampler should remain stopped")
	}
}

func TestNextTick(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"at baseline", base, base.Add(30 * time.Second)},
		{"mid interval", base.Add(10 * time.Second), base.Add(30 * time.Second)},
		{"on boundary", base.Add(30 * time.Second), base.Add(60 * time.Second)},
		{"after long pause", base.Add(95 * time.Second), base.Add(120 * time.Second)},
		{"clock behind", base.Add(-time.Second), base.Add(30 * time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextTick(base, tt.now, 30*time.Second); !got.Equal(tt.want) {
				t.Errorf("nextTick = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSingleShot(t *testing.T) {
	s := NewSampler(&StaticLocator{Latitude: 1, Longitude: 2, Accuracy: 3}, nil, Options{})
	got, err := s.SingleShot(context.Background())
	if err != nil {
		t.Fatalf("SingleShot: %v", err)
	}
	if got.Latitude != 1 || got.Longitude != 2 || got.CapturedAt.IsZero() {
		t.Fatalf("unexpected sample %+v", got)
	}

	s = NewSampler(&countingLocator{err: context.DeadlineExceeded}, nil, Options{})
	if _, err := s.SingleShot(context.Background()); !errors.Is(err, fielderr.ErrLocationUnavailable) {
		t.Fatalf("err = %v, want ErrLocationUnavailable", err)
	}
}

func TestSingleShotHonorsFixTimeout(t *testing.T) {
	slow := LocatorFunc(func(ctx context.Context, _ Accuracy) (models.LocationSample, error) {
		<-ctx.Done()
		return models.LocationSample{}, ctx.Err()
	})
	s := NewSampler(slow, nil, Options{FixTimeout: 10 * time.Millisecond})

	start := time.Now()
	_, err := s.SingleShot(context.Background())
	if !errors.Is(err, fielderr.ErrLocationUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("fix timeout not applied")
	}
}
