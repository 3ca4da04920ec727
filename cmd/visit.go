package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/output"
	"github.com/spf13/cobra"
)

var (
	visitStartLoc locatorFlags
	visitEndLoc   locatorFlags
)

var visitCmd = &cobra.Command{
	Use:     "visit",
	Aliases: []string{"v"},
	Short:   "Start, end and inspect customer visits",
	GroupID: "field",
}

var visitStartCmd = &cobra.Command{
	Use:   "start [customer]",
	Short: "Check in at a customer site",
	Long: `Checks in at a customer site using a single GPS fix.

The visit stays open on the server until "fieldops visit end". Location is
pushed periodically only while "fieldops track" is running.`,
	Example: `  fieldops visit start "Acme Traders" --purpose "quarterly review" --fix 12.9716,77.5946
  fieldops visit start --route ./routes/mg-road.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		purpose, _ := cmd.Flags().GetString("purpose")
		var customer string
		if len(args) == 1 {
			customer = args[0]
		}
		if strings.TrimSpace(customer) == "" {
			if !stdinIsTerminal() {
				return fmt.Errorf("%w: customer name is required", fielderr.ErrInvalidInput)
			}
			if err := visitForm(&customer, &purpose).Run(); err != nil {
				return err
			}
		}

		locator, err := visitStartLoc.locator(noFix)
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

		ctx := cmd.Context()
		if _, err := ctrl.Reconcile(ctx); err != nil {
			return err
		}
		snap, err := ctrl.StartVisit(ctx, customer, purpose)
		if err != nil {
			return err
		}
		output.Success("Checked in at %s", snap.Visit.CustomerName)
		fmt.Print(output.FormatVisit(*snap.Visit, time.Now()))
		output.Hint("Run `fieldops track` to keep reporting location during the visit.")
		return nil
	},
}

func visitForm(customer, purpose *string) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Customer").
			Value(customer).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("customer is required")
				}
				return nil
			}),
		huh.NewInput().
			Title("Purpose").
			Value(purpose),
	)).WithTheme(huh.ThemeDracula())
}

var visitEndCmd = &cobra.Command{
	Use:   "end",
	Short: "Check out of the open visit",
	RunE: func(cmd *cobra.Command, args []string) error {
		locator, err := visitEndLoc.locator(noFix)
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

		ctx := cmd.Context()
		snap, err := ctrl.Reconcile(ctx)
		if err != nil {
			return err
		}
		if snap.Status != models.VisitActive {
			output.Info("No visit in progress")
			return nil
		}
		customer := snap.Visit.CustomerName
		since := snap.Visit.CheckinTime
		if _, err := ctrl.EndVisit(ctx); err != nil {
			return err
		}
		output.Success("Checked out of %s after %s", customer, output.FormatElapsed(time.Since(since)))
		return nil
	},
}

var visitStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the visit the server has open",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctrl := a.session(noFix)
		defer ctrl.Close()

		snap, err := ctrl.Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(snap.Visit)
		}
		visit := models.VisitSession{Status: models.VisitIdle}
		if snap.Visit != nil {
			visit = *snap.Visit
		}
		fmt.Print(output.FormatVisit(visit, time.Now()))
		return nil
	},
}

var visitHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent visits",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			return fmt.Errorf("%w: --limit must be positive", fielderr.ErrInvalidInput)
		}
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		visits, err := a.client.VisitHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(visits)
		}
		if len(visits) == 0 {
			output.Info("No visits yet")
			return nil
		}
		for _, v := range visits {
			fmt.Println(output.FormatVisitRecord(v))
		}
		return nil
	},
}

func init() {
	visitStartCmd.Flags().StringP("purpose", "p", "", "Purpose of the visit")
	visitStartLoc.bind(visitStartCmd.Flags())
	visitEndLoc.bind(visitEndCmd.Flags())
	visitStatusCmd.Flags().Bool("json", false, "Output as JSON")
	visitHistoryCmd.Flags().IntP("limit", "n", 20, "Number of visits to show")
	visitHistoryCmd.Flags().Bool("json", false, "Output as JSON")

	visitCmd.AddCommand(visitStartCmd, visitEndCmd, visitStatusCmd, visitHistoryCmd)
	rootCmd.AddCommand(visitCmd)
}
