// Package session owns the visit session state machine. A Controller keeps
// local visit state reconciled with the server's active visit and drives the
// location sampler while a visit is active.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/location"
	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/permission"
	"github.com/marcus/fieldops/internal/syncclient"
	"github.com/marcus/fieldops/internal/workflow"
	"golang.org/x/sync/singleflight"
)

// Client is the subset of the sync client the controller needs.
type Client interface {
	ActiveVisit(ctx context.Context) (*syncclient.ActiveVisit, error)
	CheckIn(ctx context.Context, req *syncclient.CheckInRequest) (*syncclient.CheckInResponse, error)
	CheckOut(ctx context.Context, req *syncclient.CheckOutRequest) (*syncclient.CheckOutResult, error)
	PushLocation(ctx context.Context, s models.LocationSample) error
}

// Permissions aborts a flow when a capability is not granted.
type Permissions interface {
	Require(ctx context.Context, caps ...permission.Capability) error
}

// Geocoder resolves a fix to a street address.
type Geocoder interface {
	Address(ctx context.Context, s models.LocationSample) (string, error)
}

// Journal persists committed transitions.
type Journal interface {
	RecordTransition(ctx context.Context, t models.VisitTransition) error
}

// Deps are the collaborators of a Controller. Client and Locator are required.
type Deps struct {
	Client      Client
	Locator     location.Locator
	Permissions Permissions
	Geocoder    Geocoder
	Journal     Journal
}

// Options tune a Controller.
type Options struct {
	Interval           time.Duration // sampler tick interval
	FixTimeout         time.Duration
	PushTimeout        time.Duration
	BackgroundTracking bool // keep sampling while the app is in the background
	Now                func() time.Time
}

// Snapshot is an immutable copy of controller state.
type Snapshot struct {
	Status     models.VisitStatus
	Visit      *models.VisitSession // nil when idle
	Sampling   bool                 // sampler is ticking
	Background bool
	Err        error // set only on error snapshots
}

// Controller is the visit session state machine. Create one with New and
// share it; there is no package-level instance.
type Controller struct {
	client   Client
	perms    Permissions
	geocoder Geocoder
	journal  Journal
	sampler  *location.Sampler
	sm       *workflow.StateMachine
	opts     Options

	group singleflight.Group

	// samplerMu serializes sampler decisions. Lock order: samplerMu, then mu.
	samplerMu sync.Mutex

	mu         sync.Mutex
	visit      models.VisitSession
	background bool
	closed     bool
	subs       map[int]func(Snapshot)
	nextSub    int
}

// New creates a controller in the idle state.
func New(deps Deps, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = location.DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{
		client:   deps.Client,
		perms:    deps.Permissions,
		geocoder: deps.Geocoder,
		journal:  deps.Journal,
		sm:       workflow.New(),
		opts:     opts,
		visit:    models.VisitSession{Status: models.VisitIdle},
		subs:     make(map[int]func(Snapshot)),
	}
	c.sampler = location.NewSampler(deps.Locator, deps.Client, location.Options{
		FixTimeout:  opts.FixTimeout,
		PushTimeout: opts.PushTimeout,
		Accuracy:    location.AccuracyBalanced,
		OnSample:    c.recordSample,
	})
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Status:     c.visit.Status,
		Sampling:   c.sampler.Active(),
		Background: c.background,
	}
	if c.visit.Status != models.VisitIdle {
		v := c.visit
		if v.LastKnownLocation != nil {
			loc := *v.LastKnownLocation
			v.LastKnownLocation = &loc
		}
		if v.CheckoutTime != nil {
			t := *v.CheckoutTime
			v.CheckoutTime = &t
		}
		s.Visit = &v
	}
	return s
}

// Subscribe registers fn for state changes. Callbacks run synchronously on
// the goroutine that made the change and must not call StartVisit, EndVisit
// or HandleLifecycle.
func (c *Controller) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Controller) notify(s Snapshot) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Snapshot), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Reconcile overwrites local state with the server's active visit. It is a
// no-op while a start or end call is pending. Concurrent calls share one
// request.
func (c *Controller) Reconcile(ctx context.Context) (Snapshot, error) {
	if c.isPending() {
		return c.Snapshot(), nil
	}

	av, err := c.fetchActive(ctx)
	if err != nil {
		slog.Debug("session: reconcile", "err", err)
		return c.Snapshot(), fmt.Errorf("reconcile: %w", err)
	}
	if av.Active && av.VisitID <= 0 {
		return c.Snapshot(), fmt.Errorf("reconcile: %w", fielderr.Rejected(http.StatusOK, "active visit without a visit id"))
	}

	c.mu.Lock()
	if c.visit.Status.IsPending() || c.closed {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, nil
	}
	prev := c.visit
	now := c.opts.Now()
	next := models.VisitSession{Status: models.VisitIdle, LastSyncAttempt: now}
	if av.Active {
		next = models.VisitSession{
			ID:                av.VisitID,
			CustomerName:      av.CustomerName,
			Purpose:           av.Notes,
			CheckinTime:       av.CheckinTime,
			Status:            models.VisitActive,
			LastKnownLocation: av.Location,
			LastSyncAttempt:   now,
		}
		// Keep fresher local samples for the same visit.
		if prev.Status == models.VisitActive && prev.ID == av.VisitID && prev.LastKnownLocation != nil {
			next.LastKnownLocation = prev.LastKnownLocation
		}
	}
	if prev.Status != next.Status {
		if err := c.sm.Validate(prev.Status, next.Status, workflow.TriggerReconcile); err != nil {
			c.mu.Unlock()
			return c.Snapshot(), err
		}
	}
	changed := prev.Status != next.Status || prev.ID != next.ID
	c.visit = next
	c.mu.Unlock()

	c.syncSampler()
	if changed {
		c.record(prev, next, workflow.TriggerReconcile, "server state")
		slog.Debug("session: reconciled", "from", prev.Status, "to", next.Status, "visit", next.ID)
	}
	s := c.Snapshot()
	if changed {
		c.notify(s)
	}
	return s, nil
}

// fetchActive shares one in-flight ActiveVisit call between concurrent
// reconciles. The shared call outlives a cancelled caller and is bounded by
// the client's request timeout.
func (c *Controller) fetchActive(ctx context.Context) (*syncclient.ActiveVisit, error) {
	ch := c.group.DoChan("active-visit", func() (any, error) {
		return c.client.ActiveVisit(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*syncclient.ActiveVisit), nil
	}
}

// StartVisit checks in at a customer. It fails with ErrInvalidState unless
// the session is idle, before any network call.
func (c *Controller) StartVisit(ctx context.Context, customerName, purpose string) (Snapshot, error) {
	if err := c.requireStatus("start visit", models.VisitIdle); err != nil {
		return c.Snapshot(), err
	}
	customerName = strings.TrimSpace(customerName)
	if customerName == "" {
		return c.Snapshot(), fmt.Errorf("%w: customer name is required", fielderr.ErrInvalidInput)
	}
	if err := c.ensureLocation(ctx); err != nil {
		return c.Snapshot(), err
	}

	prev, err := c.beginPending("start visit", models.VisitIdle, models.VisitStarting, workflow.TriggerStart,
		func(v *models.VisitSession) {
			v.CustomerName = customerName
			v.Purpose = purpose
		})
	if err != nil {
		return c.Snapshot(), err
	}

	fix, err := c.sampler.SingleShot(ctx)
	if err != nil {
		return c.fail(prev, err)
	}
	c.setLocation(fix)

	req := syncclient.NewCheckIn(customerName, purpose, c.address(ctx, fix), fix)
	resp, err := c.client.CheckIn(ctx, req)
	if err != nil {
		return c.fail(prev, err)
	}

	c.mu.Lock()
	pending := c.visit
	c.visit = models.VisitSession{
		ID:                resp.VisitID,
		CustomerName:      customerName,
		Purpose:           purpose,
		CheckinTime:       fix.CapturedAt,
		Status:            models.VisitActive,
		LastKnownLocation: &fix,
		LastSyncAttempt:   c.opts.Now(),
	}
	next := c.visit
	c.mu.Unlock()

	c.syncSampler()
	c.record(pending, next, workflow.TriggerAck, resp.Message)
	s := c.Snapshot()
	c.notify(s)
	return s, nil
}

// EndVisit checks out of the active visit. A 404 from the server means the
// visit was already closed and counts as success.
func (c *Controller) EndVisit(ctx context.Context) (Snapshot, error) {
	if err := c.requireStatus("end visit", models.VisitActive); err != nil {
		return c.Snapshot(), err
	}
	if err := c.ensureLocation(ctx); err != nil {
		return c.Snapshot(), err
	}

	prev, err := c.beginPending("end visit", models.VisitActive, models.VisitEnding, workflow.TriggerEnd, nil)
	if err != nil {
		return c.Snapshot(), err
	}

	fix, err := c.sampler.SingleShot(ctx)
	if err != nil {
		return c.fail(prev, err)
	}
	c.setLocation(fix)

	res, err := c.client.CheckOut(ctx, syncclient.NewCheckOut(prev.ID, fix))
	if err != nil {
		return c.fail(prev, err)
	}
	detail := res.Message
	if res.SoftSuccess {
		detail = "already closed on server"
		slog.Debug("session: checkout soft success", "visit", prev.ID, "msg", res.Message)
	}

	c.mu.Lock()
	ended := c.visit
	checkout := fix.CapturedAt
	ended.CheckoutTime = &checkout
	c.visit = models.VisitSession{Status: models.VisitIdle, LastSyncAttempt: c.opts.Now()}
	next := c.visit
	c.mu.Unlock()

	// Stop waits for in-flight pushes, so none lands after this returns.
	c.syncSampler()
	c.record(ended, next, workflow.TriggerAck, detail)
	s := c.Snapshot()
	c.notify(s)
	return s, nil
}

// HandleLifecycle reacts to app foreground/background transitions. It never
// changes the visit status. Foreground also reconciles with the server.
func (c *Controller) HandleLifecycle(ctx context.Context, ev models.LifecycleEvent) error {
	c.mu.Lock()
	changed := c.background != (ev == models.Background)
	c.background = ev == models.Background
	c.mu.Unlock()

	c.syncSampler()
	if changed {
		c.notify(c.Snapshot())
	}
	if ev == models.Foreground {
		_, err := c.Reconcile(ctx)
		return err
	}
	return nil
}

// Run consumes lifecycle events until ctx is done or events is closed.
func (c *Controller) Run(ctx context.Context, events <-chan models.LifecycleEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := c.HandleLifecycle(ctx, ev); err != nil {
				slog.Debug("session: lifecycle", "event", ev, "err", err)
			}
		}
	}
}

// Close stops the sampler. Commands fail with ErrInvalidState afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.syncSampler()
}

func (c *Controller) isPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visit.Status.IsPending()
}

func (c *Controller) requireStatus(op string, want models.VisitStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &fielderr.StateError{Op: op, State: "closed"}
	}
	if c.visit.Status != want {
		return &fielderr.StateError{Op: op, State: string(c.visit.Status)}
	}
	return nil
}

func (c *Controller) ensureLocation(ctx context.Context) error {
	if c.perms == nil {
		return nil
	}
	return c.perms.Require(ctx, permission.Location)
}

// beginPending moves from a committed status to its pending sub-state and
// returns the committed session for rollback.
func (c *Controller) beginPending(op string, from, to models.VisitStatus, trigger workflow.Trigger, edit func(*models.VisitSession)) (models.VisitSession, error) {
	c.mu.Lock()
	if c.closed || c.visit.Status != from {
		state := string(c.visit.Status)
		if c.closed {
			state = "closed"
		}
		c.mu.Unlock()
		return models.VisitSession{}, &fielderr.StateError{Op: op, State: state}
	}
	if err := c.sm.Validate(from, to, trigger); err != nil {
		c.mu.Unlock()
		return models.VisitSession{}, err
	}
	prev := c.visit
	next := prev
	next.Status = to
	if edit != nil {
		edit(&next)
	}
	c.visit = next
	s := c.snapshotLocked()
	c.mu.Unlock()

	c.record(prev, next, trigger, "")
	c.notify(s)
	return prev, nil
}

// fail publishes an error snapshot, then rolls back to the committed state.
func (c *Controller) fail(committed models.VisitSession, cause error) (Snapshot, error) {
	c.mu.Lock()
	pending := c.visit
	if err := c.sm.Validate(pending.Status, models.VisitError, workflow.TriggerFail); err != nil {
		slog.Warn("session: unexpected failure transition", "err", err)
	}
	c.visit.Status = models.VisitError
	failed := c.visit
	errSnap := c.snapshotLocked()
	errSnap.Err = cause
	c.mu.Unlock()

	c.record(pending, failed, workflow.TriggerFail, fielderr.Message(cause))
	c.notify(errSnap)

	c.mu.Lock()
	restored := committed
	restored.LastSyncAttempt = c.opts.Now()
	if pending.LastKnownLocation != nil {
		restored.LastKnownLocation = pending.LastKnownLocation
	}
	if restored.Status == models.VisitIdle {
		restored = models.VisitSession{Status: models.VisitIdle, LastSyncAttempt: restored.LastSyncAttempt}
	}
	c.visit = restored
	c.mu.Unlock()

	c.syncSampler()
	c.record(failed, restored, workflow.TriggerRollback, "")
	s := c.Snapshot()
	c.notify(s)
	return s, cause
}

func (c *Controller) address(ctx context.Context, fix models.LocationSample) string {
	if c.geocoder != nil {
		addr, err := c.geocoder.Address(ctx, fix)
		if err == nil && strings.TrimSpace(addr) != "" {
			return addr
		}
		slog.Debug("session: geocode", "err", err)
	}
	return fix.String()
}

func (c *Controller) setLocation(fix models.LocationSample) {
	c.mu.Lock()
	c.visit.LastKnownLocation = &fix
	c.mu.Unlock()
}

// recordSample runs on the sampler goroutine.
func (c *Controller) recordSample(fix models.LocationSample) {
	c.mu.Lock()
	if c.visit.Status != models.VisitActive && c.visit.Status != models.VisitEnding {
		c.mu.Unlock()
		return
	}
	c.visit.LastKnownLocation = &fix
	c.visit.LastSyncAttempt = c.opts.Now()
	s := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(s)
}

// syncSampler makes the sampler match the current state: ticking while a
// visit is active (or ending) and the app may track, paused in the
// background, stopped otherwise.
func (c *Controller) syncSampler() {
	c.samplerMu.Lock()
	defer c.samplerMu.Unlock()

	c.mu.Lock()
	want := !c.closed && (c.visit.Status == models.VisitActive || c.visit.Status == models.VisitEnding)
	paused := c.background && !c.opts.BackgroundTracking
	c.mu.Unlock()

	if !want {
		c.sampler.Stop()
		return
	}
	c.sampler.Start(c.opts.Interval)
	if paused {
		c.sampler.Pause()
	} else {
		c.sampler.Resume()
	}
}

func (c *Controller) record(from, to models.VisitSession, trigger workflow.Trigger, detail string) {
	if c.journal == nil {
		return
	}
	t := models.VisitTransition{
		VisitID:      to.ID,
		CustomerName: to.CustomerName,
		From:         from.Status,
		To:           to.Status,
		Trigger:      string(trigger),
		Detail:       detail,
		At:           c.opts.Now(),
	}
	if t.VisitID == 0 {
		t.VisitID = from.ID
		t.CustomerName = from.CustomerName
	}
	if err := c.journal.RecordTransition(context.Background(), t); err != nil {
		slog.Warn("session: journal", "err", err)
	}
}
