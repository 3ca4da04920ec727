package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/output"
	"github.com/spf13/cobra"
)

var attendanceLoc locatorFlags

var attendanceCmd = &cobra.Command{
	Use:     "attendance",
	Aliases: []string{"att"},
	Short:   "Mark and inspect today's attendance",
	GroupID: "daily",
}

var attendanceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether attendance is marked for the business day",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		gate := a.attendance(noFix)
		rec, err := gate.Today(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(rec)
		}
		fmt.Println(output.FormatAttendance(gate.BusinessDate(), rec))
		return nil
	},
}

var attendanceCheckInCmd = &cobra.Command{
	Use:     "check-in",
	Short:   "Mark attendance with a photo and the current position",
	Example: `  fieldops attendance check-in --photo selfie.jpg --fix 12.9716,77.5946`,
	RunE: func(cmd *cobra.Command, args []string) error {
		photoPath, _ := cmd.Flags().GetString("photo")
		if photoPath == "" {
			return fmt.Errorf("%w: --photo is required", fielderr.ErrInvalidInput)
		}
		locator, err := attendanceLoc.locator(noFix)
		if err != nil {
			return err
		}
		photo, err := os.Open(photoPath)
		if err != nil {
			return fmt.Errorf("%w: %v", fielderr.ErrInvalidInput, err)
		}
		defer photo.Close()

		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		gate := a.attendance(locator)
		rec, err := gate.CheckIn(cmd.Context(), photo, filepath.Base(photoPath))
		if err != nil {
			return err
		}
		output.Success("Attendance marked: %s at %s", rec.Status, rec.CheckInTime)
		return nil
	},
}

func init() {
	attendanceStatusCmd.Flags().Bool("json", false, "Output as JSON")
	attendanceCheckInCmd.Flags().String("photo", "", "Path to the attendance photo")
	attendanceLoc.bind(attendanceCheckInCmd.Flags())

	attendanceCmd.AddCommand(attendanceStatusCmd, attendanceCheckInCmd)
	rootCmd.AddCommand(attendanceCmd)
}
