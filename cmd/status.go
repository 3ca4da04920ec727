package cmd

import (
	"fmt"
	"time"

	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/output"
	"github.com/marcus/fieldops/internal/syncclient"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// dayStatus is everything "fieldops status" shows.
type dayStatus struct {
	Date       string                   `json:"date"`
	Visit      *syncclient.ActiveVisit  `json:"visit"`
	Attendance *models.AttendanceRecord `json:"attendance"`
	Report     *models.DailyReport      `json:"report"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the open visit, attendance and report for today",
	GroupID: "field",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		gate := a.attendance(noFix)
		st := dayStatus{Date: gate.BusinessDate()}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			v, err := a.client.ActiveVisit(ctx)
			st.Visit = v
			return err
		})
		g.Go(func() error {
			rec, err := gate.Today(ctx)
			st.Attendance = rec
			return err
		})
		g.Go(func() error {
			p, err := a.client.ReportPrefill(ctx)
			if err != nil {
				return err
			}
			r := p.Report()
			st.Report = &r
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(st)
		}

		fmt.Print(output.SectionHeader("Visit"))
		visit := models.VisitSession{Status: models.VisitIdle}
		if st.Visit != nil && st.Visit.Active {
			visit = models.VisitSession{
				ID:                st.Visit.VisitID,
				CustomerName:      st.Visit.CustomerName,
				Purpose:           st.Visit.Notes,
				CheckinTime:       st.Visit.CheckinTime,
				Status:            models.VisitActive,
				LastKnownLocation: st.Visit.Location,
			}
		}
		fmt.Print(output.FormatVisit(visit, time.Now()))

		fmt.Print(output.SectionHeader("Attendance"))
		fmt.Println(output.FormatAttendance(st.Date, st.Attendance))

		fmt.Print(output.SectionHeader("Report"))
		r := st.Report
		state := "not submitted"
		if r.Submitted {
			state = "submitted"
		}
		fmt.Printf("%s: %s  calls %d  meetings %d  orders %d\n",
			r.Date, state, r.TotalCalls(), r.TotalMeetings(), r.TotalOrders())
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(statusCmd)
}
