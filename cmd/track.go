package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/output"
	"github.com/marcus/fieldops/internal/schedule"
	"github.com/marcus/fieldops/internal/session"
	"github.com/marcus/fieldops/internal/tui/tracker"
	"github.com/spf13/cobra"
)

var trackLoc locatorFlags

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Run the live tracker for the open visit",
	Long: `Keeps the visit session running: pushes location on the configured
interval while a visit is open and re-checks the server on a cron schedule.

Interactive mode shows a dashboard. Key bindings:
  s   Start a visit
  e   End the visit
  b/f Simulate app background/foreground
  r   Reconcile with the server now
  ?   Toggle help
  q   Quit

Headless mode logs transitions to stdout. On unix, SIGUSR1 moves the session
to the background and SIGUSR2 brings it back to the foreground.`,
	GroupID: "field",
	RunE: func(cmd *cobra.Command, args []string) error {
		locator, err := trackLoc.locator(noFix)
		if err != nil {
			return err
		}
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctrl := a.session(locator)
		defer ctrl.Close()
		gate := a.attendance(locator)

		sched, err := schedule.New(schedule.Jobs{
			Reconcile: func(ctx context.Context) error {
				_, err := ctrl.Reconcile(ctx)
				return err
			},
			Rollover: gate.Invalidate,
			Prune: func() error {
				return a.journal.PruneSyncHistory(syncHistoryRows)
			},
		}, schedule.Options{
			ReconcileSchedule: a.cfg.ReconcileSchedule,
			Location:          a.loc,
		})
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sched.Stop(ctx); err != nil {
				slog.Debug("track: scheduler stop", "err", err)
			}
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if _, err := ctrl.Reconcile(ctx); err != nil {
			output.Warning("could not reach the server: %s", err)
		}
		if customer, _ := cmd.Flags().GetString("start"); customer != "" && ctrl.Snapshot().Status == models.VisitIdle {
			purpose, _ := cmd.Flags().GetString("purpose")
			if _, err := ctrl.StartVisit(ctx, customer, purpose); err != nil {
				return err
			}
		}

		if headless, _ := cmd.Flags().GetBool("headless"); headless || !output.IsTerminal(os.Stdout) {
			return trackHeadless(ctx, ctrl)
		}

		model := tracker.New(ctrl, tracker.Options{
			History:   a.journal,
			OpTimeout: a.cfg.RequestTimeout + a.cfg.FixTimeout,
			NextReconcile: func() time.Time {
				return sched.NextRun(schedule.JobReconcile, time.Now())
			},
		})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("error running tracker: %w", err)
		}
		return nil
	},
}

func trackHeadless(ctx context.Context, ctrl *session.Controller) error {
	var mu sync.Mutex
	last := ctrl.Snapshot()
	printSnapshot(last)
	cancel := ctrl.Subscribe(func(s session.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.Status != last.Status || s.Background != last.Background || s.Err != nil {
			printSnapshot(s)
		}
		last = s
	})
	defer cancel()

	err := ctrl.Run(ctx, lifecycleEvents(ctx))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printSnapshot(s session.Snapshot) {
	line := fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), output.StatusBadge(s.Status))
	if s.Visit != nil {
		line += "  " + s.Visit.CustomerName
	}
	if s.Background {
		line += "  (background)"
	}
	if s.Sampling {
		line += "  sampling"
	}
	if s.Err != nil {
		line += "  " + s.Err.Error()
	}
	fmt.Println(line)
}

func init() {
	trackCmd.Flags().String("start", "", "Start a visit for this customer when none is open")
	trackCmd.Flags().StringP("purpose", "p", "", "Purpose for --start")
	trackCmd.Flags().Bool("headless", false, "Log transitions instead of showing the dashboard")
	trackLoc.bind(trackCmd.Flags())
	rootCmd.AddCommand(trackCmd)
}
