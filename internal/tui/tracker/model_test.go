package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/session"
)

type fakeController struct {
	mu       sync.Mutex
	snap     session.Snapshot
	sub      func(session.Snapshot)
	calls    []string
	startErr error
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) Subscribe(fn func(session.Snapshot)) func() {
	f.mu.Lock()
	f.sub = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.sub = nil
		f.mu.Unlock()
	}
}

func (f *fakeController) publish(s session.Snapshot) {
	f.mu.Lock()
	f.snap = s
	fn := f.sub
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (f *fakeController) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeController) Reconcile(context.Context) (session.Snapshot, error) {
	f.record("reconcile")
	return f.Snapshot(), nil
}

func (f *fakeController) StartVisit(_ context.Context, customer, purpose string) (session.Snapshot, error) {
	f.record("start:" + customer + "/" + purpose)
	if f.startErr != nil {
		return f.Snapshot(), f.startErr
	}
	f.publish(session.Snapshot{
		Status:   models.VisitActive,
		Sampling: true,
		Visit:    &models.VisitSession{ID: 7, CustomerName: customer, Purpose: purpose, Status: models.VisitActive},
	})
	return f.Snapshot(), nil
}

func (f *fakeController) EndVisit(context.Context) (session.Snapshot, error) {
	f.record("end")
	f.publish(session.Snapshot{Status: models.VisitIdle})
	return f.Snapshot(), nil
}

func (f *fakeController) HandleLifecycle(_ context.Context, ev models.LifecycleEvent) error {
	f.record(ev.String())
	return nil
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type staticHistory []models.VisitTransition

func (h staticHistory) TransitionTail(int) ([]models.VisitTransition, error) { return h, nil }

func newModel(t *testing.T, ctrl *fakeController) Model {
	t.Helper()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m := New(ctrl, Options{Now: func() time.Time { return now }})
	t.Cleanup(m.Close)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// exec runs cmd and feeds the result back, as the bubbletea runtime would.
func exec(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	next, _ := m.Update(cmd())
	return next.(Model)
}

func TestStartVisitPrompt(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{Status: models.VisitIdle}}
	m := newModel(t, ctrl)

	next, _ := m.Update(key("s"))
	m = next.(Model)
	if !m.Prompting {
		t.Fatal("s should open the customer prompt")
	}
	for _, r := range "Acme/demo" {
		next, _ = m.Update(key(string(r)))
		m = next.(Model)
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if m.Prompting {
		t.Fatal("enter should close the prompt")
	}
	m = exec(t, m, cmd)

	if got := ctrl.Calls(); len(got) != 1 || got[0] != "start:Acme/demo" {
		t.Fatalf("calls = %v", got)
	}
	if m.Snap.Status != models.VisitActive || m.LastAction != "start visit ok" {
		t.Errorf("after start: status=%s action=%q", m.Snap.Status, m.LastAction)
	}
	view := m.View()
	if !strings.Contains(view, "Acme") || !strings.Contains(view, "GPS") {
		t.Errorf("view missing visit:\n%s", view)
	}
}

func TestStartRefusedWhileActive(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{
		Status: models.VisitActive,
		Visit:  &models.VisitSession{ID: 7, CustomerName: "Acme", Status: models.VisitActive},
	}}
	m := newModel(t, ctrl)

	next, cmd := m.Update(key("s"))
	m = next.(Model)
	if m.Prompting || cmd != nil {
		t.Fatal("start prompt should not open while a visit is active")
	}
	if len(ctrl.Calls()) != 0 {
		t.Errorf("calls = %v", ctrl.Calls())
	}
}

func TestEscCancelsPrompt(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{Status: models.VisitIdle}}
	m := newModel(t, ctrl)
	next, _ := m.Update(key("s"))
	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyEsc})
	if next.(Model).Prompting {
		t.Fatal("esc should close the prompt")
	}
	if len(ctrl.Calls()) != 0 {
		t.Errorf("calls = %v", ctrl.Calls())
	}
}

func TestStartFailureShowsMessage(t *testing.T) {
	ctrl := &fakeController{
		snap:     session.Snapshot{Status: models.VisitIdle},
		startErr: fielderr.ErrLocationUnavailable,
	}
	m := newModel(t, ctrl)
	next, _ := m.Update(key("s"))
	next, _ = next.(Model).Update(key("Acme"))
	next, cmd := next.(Model).Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = exec(t, next.(Model), cmd)

	if !errors.Is(m.Err, fielderr.ErrLocationUnavailable) {
		t.Fatalf("Err = %v", m.Err)
	}
	if !strings.Contains(m.View(), "GPS fix") {
		t.Errorf("view should show the user-facing message:\n%s", m.View())
	}
}

func TestLifecycleKeys(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{Status: models.VisitIdle}}
	m := newModel(t, ctrl)

	next, cmd := m.Update(key("b"))
	m = next.(Model)
	if !m.Background {
		t.Error("b should mark background")
	}
	m = exec(t, m, cmd)
	next, cmd = m.Update(key("f"))
	m = exec(t, next.(Model), cmd)

	got := ctrl.Calls()
	if len(got) != 2 || got[0] != "background" || got[1] != "foreground" {
		t.Errorf("calls = %v", got)
	}
}

func TestSnapshotFeed(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{Status: models.VisitIdle}}
	m := newModel(t, ctrl)

	cmd := m.waitForSnapshot()
	ctrl.publish(session.Snapshot{Status: models.VisitError, Err: fielderr.ErrNetworkTimeout})
	next, _ := m.Update(cmd())
	m = next.(Model)
	if m.Snap.Status != models.VisitError || !errors.Is(m.Err, fielderr.ErrNetworkTimeout) {
		t.Errorf("snap = %+v err = %v", m.Snap, m.Err)
	}
}

func TestJournalPanelNewestFirst(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{Status: models.VisitIdle}}
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	hist := staticHistory{
		{From: models.VisitIdle, To: models.VisitStarting, Trigger: "start", CustomerName: "First", At: at},
		{From: models.VisitStarting, To: models.VisitActive, Trigger: "ack", CustomerName: "Second", At: at.Add(time.Second)},
	}
	m := New(ctrl, Options{History: hist})
	defer m.Close()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = exec(t, next.(Model), m.fetchHistory())

	view := m.View()
	first, second := strings.Index(view, "First"), strings.Index(view, "Second")
	if first < 0 || second < 0 || second > first {
		t.Errorf("journal order wrong:\n%s", view)
	}
}

func TestCompactAndNarrowViews(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{Status: models.VisitIdle}}
	m := New(ctrl, Options{})
	defer m.Close()
	if m.View() != "Loading..." {
		t.Errorf("view before size = %q", m.View())
	}
	next, _ := m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})
	if !strings.Contains(next.(Model).View(), "resize") {
		t.Error("small terminals should get the compact view")
	}
}

func TestQuitDropsSubscription(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{Status: models.VisitIdle}}
	m := newModel(t, ctrl)
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.sub != nil {
		t.Error("subscription still registered after quit")
	}
}
