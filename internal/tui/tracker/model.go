package tracker

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/session"
)

// Controller is the part of session.Controller the tracker drives.
type Controller interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) (cancel func())
	Reconcile(ctx context.Context) (session.Snapshot, error)
	StartVisit(ctx context.Context, customerName, purpose string) (session.Snapshot, error)
	EndVisit(ctx context.Context) (session.Snapshot, error)
	HandleLifecycle(ctx context.Context, ev models.LifecycleEvent) error
}

// History supplies the journal panel.
type History interface {
	TransitionTail(limit int) ([]models.VisitTransition, error)
}

// Options configure the tracker.
type Options struct {
	History         History
	RefreshInterval time.Duration
	OpTimeout       time.Duration
	// NextReconcile reports the next scheduled drift check, if any.
	NextReconcile func() time.Time
	Now           func() time.Time
}

// MinWidth is the minimum terminal width for the full layout
const MinWidth = 40

// MinHeight is the minimum terminal height for the full layout
const MinHeight = 12

const historyLimit = 20

// TickMsg triggers a refresh of the clock and journal
type TickMsg time.Time

// SnapshotMsg carries a state change pushed by the controller
type SnapshotMsg session.Snapshot

// HistoryMsg carries the journal tail
type HistoryMsg struct {
	Transitions []models.VisitTransition
	Err         error
}

// ActionDoneMsg reports the outcome of a key-triggered command
type ActionDoneMsg struct {
	Op  string
	Err error
}

// feed bridges controller callbacks into the bubbletea loop.
type feed struct {
	ch     chan session.Snapshot
	cancel func()
}

// Model is the Bubble Tea model for the live tracking dashboard
type Model struct {
	ctrl Controller
	opts Options
	feed *feed

	Width  int
	Height int

	Snap        session.Snapshot
	Transitions []models.VisitTransition
	Background  bool
	LastAction  string
	Err         error
	ShowHelp    bool
	Prompting   bool
	LastRefresh time.Time

	spinner spinner.Model
	input   textinput.Model
}

// New creates a tracker model subscribed to ctrl. Call Close when the
// program exits.
func New(ctrl Controller, opts Options) Model {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Second
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	f := &feed{ch: make(chan session.Snapshot, 64)}
	f.cancel = ctrl.Subscribe(func(s session.Snapshot) {
		select {
		case f.ch <- s:
		default:
		}
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = pendingStyle

	in := textinput.New()
	in.Placeholder = "customer name"
	in.CharLimit = 120

	snap := ctrl.Snapshot()
	return Model{
		ctrl:       ctrl,
		opts:       opts,
		feed:       f,
		Snap:       snap,
		Background: snap.Background,
		spinner:    sp,
		input:      in,
	}
}

// Close drops the controller subscription
func (m Model) Close() {
	m.feed.cancel()
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.reconcile(),
		m.fetchHistory(),
		m.waitForSnapshot(),
		m.scheduleTick(),
		m.spinner.Tick,
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Prompting {
			return m.handlePromptKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		m.LastRefresh = time.Time(msg)
		return m, tea.Batch(m.fetchHistory(), m.scheduleTick())

	case SnapshotMsg:
		m.Snap = session.Snapshot(msg)
		m.Background = m.Snap.Background
		if m.Snap.Err != nil {
			m.Err = m.Snap.Err
		}
		return m, tea.Batch(m.waitForSnapshot(), m.fetchHistory())

	case HistoryMsg:
		if msg.Err == nil {
			m.Transitions = msg.Transitions
		}
		return m, nil

	case ActionDoneMsg:
		m.Err = msg.Err
		if msg.Err == nil {
			m.LastAction = msg.Op + " ok"
		} else {
			m.LastAction = msg.Op + " failed"
		}
		m.Snap = m.ctrl.Snapshot()
		m.Background = m.Snap.Background
		return m, m.fetchHistory()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.Close()
		return m, tea.Quit

	case "s":
		if m.Snap.Status != models.VisitIdle && m.Snap.Status != models.VisitError {
			m.LastAction = "a visit is already " + string(m.Snap.Status)
			return m, nil
		}
		m.Prompting = true
		m.input.SetValue("")
		return m, m.input.Focus()

	case "e":
		return m, m.run("end visit", func(ctx context.Context) error {
			_, err := m.ctrl.EndVisit(ctx)
			return err
		})

	case "b":
		m.Background = true
		return m, m.lifecycle(models.Background)

	case "f":
		m.Background = false
		return m, m.lifecycle(models.Foreground)

	case "r":
		return m, m.reconcile()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

// handlePromptKey feeds the customer-name prompt
func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.Prompting = false
		m.input.Blur()
		return m, nil

	case tea.KeyEnter:
		customer, purpose, _ := strings.Cut(m.input.Value(), "/")
		customer = strings.TrimSpace(customer)
		purpose = strings.TrimSpace(purpose)
		if customer == "" {
			return m, nil
		}
		m.Prompting = false
		m.input.Blur()
		return m, m.run("start visit", func(ctx context.Context) error {
			_, err := m.ctrl.StartVisit(ctx, customer, purpose)
			return err
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// run executes op off the UI goroutine
func (m Model) run(name string, op func(ctx context.Context) error) tea.Cmd {
	timeout := m.opts.OpTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return ActionDoneMsg{Op: name, Err: op(ctx)}
	}
}

func (m Model) reconcile() tea.Cmd {
	return m.run("reconcile", func(ctx context.Context) error {
		_, err := m.ctrl.Reconcile(ctx)
		return err
	})
}

func (m Model) lifecycle(ev models.LifecycleEvent) tea.Cmd {
	return m.run(ev.String(), func(ctx context.Context) error {
		return m.ctrl.HandleLifecycle(ctx, ev)
	})
}

// waitForSnapshot blocks until the controller publishes a change
func (m Model) waitForSnapshot() tea.Cmd {
	ch := m.feed.ch
	return func() tea.Msg {
		return SnapshotMsg(<-ch)
	}
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.opts.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchHistory reads the journal tail
func (m Model) fetchHistory() tea.Cmd {
	h := m.opts.History
	if h == nil {
		return nil
	}
	return func() tea.Msg {
		ts, err := h.TransitionTail(historyLimit)
		return HistoryMsg{Transitions: ts, Err: err}
	}
}
