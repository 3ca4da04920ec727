package location

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/models"
)

// Default sampler settings.
const (
	DefaultInterval    = 30 * time.Second
	DefaultFixTimeout  = 10 * time.Second
	DefaultPushTimeout = 15 * time.Second
)

// Pusher forwards one sample to the server
type Pusher interface {
	PushLocation(ctx context.Context, s models.LocationSample) error
}

// Options configures a Sampler
type Options struct {
	FixTimeout  time.Duration // bounded wait for one fix
	PushTimeout time.Duration
	Accuracy    Accuracy // desired accuracy for periodic ticks
	// OnSample is called from the sampling goroutine for every acquired fix.
	// It must not call back into the Sampler.
	OnSample func(models.LocationSample)
}

// Sampler is a cancellable periodic timer that acquires one fix per tick and
// pushes it asynchronously. Tick failures are logged and dropped.
type Sampler struct {
	locator Locator
	pusher  Pusher
	opts    Options

	// opMu serializes Start/Stop/Pause/Resume. The tick goroutine never takes it.
	opMu sync.Mutex

	mu       sync.Mutex
	running  bool
	paused   bool
	interval time.Duration
	baseline time.Time

	ctx        context.Context // lives from Start to Stop; parents pushes
	cancel     context.CancelFunc
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	pushes     sync.WaitGroup
}

// NewSampler creates a stopped sampler
func NewSampler(locator Locator, pusher Pusher, opts Options) *Sampler {
	if opts.FixTimeout <= 0 {
		opts.FixTimeout = DefaultFixTimeout
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = DefaultPushTimeout
	}
	return &Sampler{locator: locator, pusher: pusher, opts: opts}
}

// Start begins sampling every interval. Calling Start while running is a no-op.
func (s *Sampler) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.paused = false
	s.interval = interval
	s.baseline = time.Now()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.startLoop()
	slog.Debug("sampler: started", "interval", interval)
}

// Stop cancels the timer and any in-flight pushes and waits for them. Safe to
// call repeatedly. No push is issued after Stop returns.
func (s *Sampler) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.paused = false
	cancel := s.cancel
	s.mu.Unlock()

	s.stopLoop()
	cancel()
	s.pushes.Wait()
	slog.Debug("sampler: stopped")
}

// Pause suspends ticks and keeps the schedule baseline. No tick fires after
// Pause returns. Pushes already in flight are left to finish.
func (s *Sampler) Pause() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if !s.running || s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = true
	s.mu.Unlock()

	s.stopLoop()
	slog.Debug("sampler: paused")
}

// Resume continues a paused sampler on its original schedule.
func (s *Sampler) Resume() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if !s.running || !s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = false
	s.mu.Unlock()

	s.startLoop()
	slog.Debug("sampler: resumed")
}

// Running reports whether the sampler was started and not stopped
// (it may be paused).
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Paused reports whether a running sampler is paused
func (s *Sampler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.paused
}

// Active reports whether ticks are currently firing
func (s *Sampler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.paused
}

// SingleShot acquires one high-accuracy fix within the fix timeout.
func (s *Sampler) SingleShot(ctx context.Context) (models.LocationSample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.FixTimeout)
	defer cancel()

	sample, err := s.locator.Fix(ctx, AccuracyHigh)
	if err != nil {
		return models.LocationSample{}, fmt.Errorf("%w: %v", fielderr.ErrLocationUnavailable, err)
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now()
	}
	return sample, nil
}

// startLoop must be called with opMu held.
func (s *Sampler) startLoop() {
	s.mu.Lock()
	parent := s.ctx
	interval := s.interval
	baseline := s.baseline
	loopCtx, loopCancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.loopCancel = loopCancel
	s.loopDone = done
	s.mu.Unlock()

	go s.loop(loopCtx, parent, done, baseline, interval)
}

// stopLoop must be called with opMu held.
func (s *Sampler) stopLoop() {
	s.mu.Lock()
	cancel := s.loopCancel
	done := s.loopDone
	s.loopCancel = nil
	s.loopDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// nextTick returns the first schedule slot after now
func nextTick(baseline, now time.Time, interval time.Duration) time.Time {
	if now.Before(baseline) {
		return baseline.Add(interval)
	}
	elapsed := now.Sub(baseline)
	k := elapsed/interval + 1
	return baseline.Add(k * interval)
}

func (s *Sampler) loop(ctx, pushCtx context.Context, done chan struct{}, baseline time.Time, interval time.Duration) {
	defer close(done)

	for {
		wait := time.Until(nextTick(baseline, time.Now(), interval))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.tick(ctx, pushCtx)
	}
}

func (s *Sampler) tick(ctx, pushCtx context.Context) {
	fixCtx, cancel := context.WithTimeout(ctx, s.opts.FixTimeout)
	sample, err := s.locator.Fix(fixCtx, s.opts.Accuracy)
	cancel()
	if err != nil {
		slog.Debug("sampler: fix", "err", err)
		return
	}
	// A tick cancelled mid-fix must not produce a push.
	if ctx.Err() != nil {
		return
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now()
	}
	if s.opts.OnSample != nil {
		s.opts.OnSample(sample)
	}
	if s.pusher == nil {
		return
	}

	s.pushes.Add(1)
	go func() {
		defer s.pushes.Done()
		ctx, cancel := context.WithTimeout(pushCtx, s.opts.PushTimeout)
		defer cancel()
		if err := s.pusher.PushLocation(ctx, sample); err != nil {
			slog.Debug("sampler: push", "err", err)
		}
	}()
}
