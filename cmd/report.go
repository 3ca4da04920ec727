package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/input"
	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/output"
	"github.com/marcus/fieldops/internal/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:     "report",
	Short:   "View, submit and amend the daily report",
	GroupID: "daily",
}

var reportShowCmd = &cobra.Command{
	Use:   "show [date]",
	Short: "Show today's report, or the report for YYYY-MM-DD",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		reports := a.reports(a.attendance(noFix))

		var r models.DailyReport
		var note string
		if len(args) == 1 {
			got, err := reports.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if got == nil {
				output.Info("No report for %s", args[0])
				return nil
			}
			r = *got
		} else {
			sheet, err := reports.Open(ctx)
			if err != nil {
				return err
			}
			switch s := sheet.(type) {
			case *report.Draft:
				r = s.Report()
				if !s.AttendanceMarked() {
					note = "Attendance is not marked yet; the report cannot be submitted."
				}
			case *report.Submitted:
				r = s.Report()
			}
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(r)
		}
		rendered, err := output.RenderMarkdown(output.ReportMarkdown(r))
		if err != nil {
			return err
		}
		fmt.Print(rendered)
		if note != "" {
			output.Warning("%s", note)
		}
		return nil
	},
}

var reportSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit today's report (once per day)",
	Long: `Submits today's report. Attendance must be marked first, and a report can
only be submitted once per business day; use "report update" afterwards.

Missing text fields are prompted for when stdin is a terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var f report.Fields
		var in input.Expander
		for name, dst := range map[string]*string{
			"achievements": &f.Achievements,
			"challenges":   &f.Challenges,
			"tomorrow":     &f.TomorrowPlan,
			"notes":        &f.Notes,
		} {
			v, _ := cmd.Flags().GetString(name)
			text, err := in.Expand(v)
			if err != nil {
				return fmt.Errorf("--%s: %w", name, err)
			}
			*dst = text
		}

		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		sheet, err := a.reports(a.attendance(noFix)).Open(ctx)
		if err != nil {
			return err
		}
		draft, ok := sheet.(*report.Draft)
		if !ok {
			return &fielderr.StateError{Op: "submit report", State: "submitted"}
		}
		if !draft.AttendanceMarked() {
			return fielderr.ErrAttendanceRequired
		}

		if missingText(f) {
			if !stdinIsTerminal() {
				return fmt.Errorf("%w: --achievements, --challenges and --tomorrow are required", fielderr.ErrInvalidInput)
			}
			if err := reportForm(&f).Run(); err != nil {
				return err
			}
		}

		submitted, err := draft.Submit(ctx, f)
		if err != nil {
			return err
		}
		r := submitted.Report()
		output.Success("Daily report for %s submitted", r.Date)
		return nil
	},
}

func missingText(f report.Fields) bool {
	return strings.TrimSpace(f.Achievements) == "" ||
		strings.TrimSpace(f.Challenges) == "" ||
		strings.TrimSpace(f.TomorrowPlan) == ""
}

func reportForm(f *report.Fields) *huh.Form {
	required := func(name string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", name)
			}
			return nil
		}
	}
	return huh.NewForm(huh.NewGroup(
		huh.NewText().Title("Achievements").Value(&f.Achievements).Validate(required("achievements")),
		huh.NewText().Title("Challenges").Value(&f.Challenges).Validate(required("challenges")),
		huh.NewText().Title("Plan for tomorrow").Value(&f.TomorrowPlan).Validate(required("tomorrow's plan")),
		huh.NewText().Title("Notes").Value(&f.Notes),
	)).WithTheme(huh.ThemeDracula())
}

var reportUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Amend counters or text of today's submitted report",
	Example: `  fieldops report update --manual-calls 4
  fieldops report update --challenges "Road closed near depot"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var p report.Patch
		flags := cmd.Flags()
		for name, dst := range map[string]**int{
			"manual-calls":    &p.ManualCalls,
			"manual-meetings": &p.ManualMeetings,
			"manual-orders":   &p.ManualOrders,
		} {
			if flags.Changed(name) {
				v, _ := flags.GetInt(name)
				*dst = &v
			}
		}
		var in input.Expander
		for name, dst := range map[string]**string{
			"achievements": &p.Achievements,
			"challenges":   &p.Challenges,
			"tomorrow":     &p.TomorrowPlan,
		} {
			if flags.Changed(name) {
				v, _ := flags.GetString(name)
				text, err := in.Expand(v)
				if err != nil {
					return fmt.Errorf("--%s: %w", name, err)
				}
				*dst = &text
			}
		}

		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		sheet, err := a.reports(a.attendance(noFix)).Open(ctx)
		if err != nil {
			return err
		}
		submitted, ok := sheet.(*report.Submitted)
		if !ok {
			return &fielderr.StateError{Op: "update report", State: "draft"}
		}
		r, err := submitted.Update(ctx, p)
		if err != nil {
			return err
		}
		output.Success("Report updated: %d calls, %d meetings, %d orders",
			r.TotalCalls(), r.TotalMeetings(), r.TotalOrders())
		return nil
	},
}

func init() {
	reportShowCmd.Flags().Bool("json", false, "Output as JSON")

	for _, c := range []*cobra.Command{reportSubmitCmd, reportUpdateCmd} {
		c.Flags().String("achievements", "", "What went well today (- for stdin, @file)")
		c.Flags().String("challenges", "", "What got in the way (- for stdin, @file)")
		c.Flags().String("tomorrow", "", "Plan for tomorrow (- for stdin, @file)")
	}
	reportSubmitCmd.Flags().String("notes", "", "Free-form notes (- for stdin, @file)")
	reportUpdateCmd.Flags().Int("manual-calls", 0, "Calls not captured by visits")
	reportUpdateCmd.Flags().Int("manual-meetings", 0, "Meetings not captured by visits")
	reportUpdateCmd.Flags().Int("manual-orders", 0, "Orders not captured by the ERP")

	reportCmd.AddCommand(reportShowCmd, reportSubmitCmd, reportUpdateCmd)
	rootCmd.AddCommand(reportCmd)
}
