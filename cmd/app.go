package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/marcus/fieldops/internal/attendance"
	"github.com/marcus/fieldops/internal/config"
	"github.com/marcus/fieldops/internal/db"
	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/location"
	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/output"
	"github.com/marcus/fieldops/internal/permission"
	"github.com/marcus/fieldops/internal/report"
	"github.com/marcus/fieldops/internal/session"
	"github.com/marcus/fieldops/internal/syncclient"
	"github.com/marcus/fieldops/internal/version"
)

// syncHistoryRows is what the nightly prune keeps.
const syncHistoryRows = 2000

// app holds the collaborators one command invocation needs.
type app struct {
	cfg     *config.Config
	client  *syncclient.Client
	journal *db.DB
	perms   *permission.Gate
	loc     *time.Location
}

func openApp(cfg *config.Config) (*app, error) {
	loc, err := attendance.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	journal, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	client := syncclient.New(cfg.ServerURL, cfg.APIToken)
	client.DeviceID = cfg.DeviceID
	client.Timeout = cfg.RequestTimeout
	client.UserAgent = version.UserAgent(versionStr)
	client.Recorder = journal

	return &app{
		cfg:     cfg,
		client:  client,
		journal: journal,
		perms:   permission.NewGate(cfg.Platform()),
		loc:     loc,
	}, nil
}

func (a *app) Close() error {
	return a.journal.Close()
}

func (a *app) session(locator location.Locator) *session.Controller {
	return session.New(session.Deps{
		Client:      a.client,
		Locator:     locator,
		Permissions: a.perms,
		Journal:     a.journal,
	}, session.Options{
		Interval:           a.cfg.SampleInterval,
		FixTimeout:         a.cfg.FixTimeout,
		PushTimeout:        a.cfg.RequestTimeout,
		BackgroundTracking: a.cfg.BackgroundTracking,
	})
}

func (a *app) attendance(locator location.Locator) *attendance.Gate {
	return attendance.New(attendance.Deps{
		Client:      a.client,
		Locator:     locator,
		Permissions: a.perms,
	}, attendance.Options{
		Location:   a.loc,
		FixTimeout: a.cfg.FixTimeout,
	})
}

func (a *app) reports(gate *attendance.Gate) *report.Controller {
	return report.New(a.client, gate)
}

// stdinIsTerminal gates interactive forms.
var stdinIsTerminal = func() bool { return output.IsTerminal(os.Stdin) }

// noFix is the locator for commands that never need a GPS fix.
var noFix = location.LocatorFunc(func(context.Context, location.Accuracy) (models.LocationSample, error) {
	return models.LocationSample{}, fmt.Errorf("%w: pass --fix lat,lon or --route file", fielderr.ErrLocationUnavailable)
})
