package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/marcus/fieldops/internal/config"
	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/output"
	"github.com/marcus/fieldops/internal/suggest"
	"github.com/marcus/fieldops/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	versionStr string
	debugLog   bool
	cfg        *config.Config
)

// SetVersion sets the version string
func SetVersion(v string) {
	versionStr = version.Resolve(v)
	rootCmd.Version = versionStr
}

var rootCmd = &cobra.Command{
	Use:   "fieldops",
	Short: "Field visit tracking for ERP sales staff",
	Long: `fieldops - visit check-in/check-out with location tracking, attendance and daily reports.

Start a visit at a customer site, let the tracker push your location while the
visit is open, and end it when you leave. Attendance must be marked before the
daily report can be submitted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}
		var err error
		cfg, err = config.Load()
		return err
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		output.Error("%s", fielderr.Message(err))
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if debugLog || os.Getenv("FIELDOPS_DEBUG") == "1" {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// nameWithAliases returns "name, alias1, alias2" if aliases exist, else just "name"
func nameWithAliases(cmd *cobra.Command) string {
	if len(cmd.Aliases) > 0 {
		return cmd.Name() + ", " + strings.Join(cmd.Aliases, ", ")
	}
	return cmd.Name()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Enable debug logging (or FIELDOPS_DEBUG=1)")

	cobra.AddTemplateFunc("nameWithAliases", nameWithAliases)

	usageTemplate := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
	cobra.AddTemplateFunc("add", func(a, b int) int { return a + b })
	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.AddGroup(
		&cobra.Group{ID: "field", Title: "Field Commands:"},
		&cobra.Group{ID: "daily", Title: "Daily Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetFlagErrorFunc(flagError)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")
}

// flagError adds a suggestion to unknown-flag errors.
func flagError(cmd *cobra.Command, err error) error {
	msg := err.Error()
	name, ok := strings.CutPrefix(msg, "unknown flag: ")
	if !ok {
		return fmt.Errorf("%w: %s", fielderr.ErrInvalidInput, msg)
	}
	if hint := suggest.FlagHint(name); hint != "" {
		return fmt.Errorf("%w: %s (try %s)", fielderr.ErrInvalidInput, msg, hint)
	}
	var names []string
	cmd.Flags().VisitAll(func(f *pflag.Flag) { names = append(names, "--"+f.Name) })
	if near := suggest.Closest(name, names); len(near) > 0 {
		return fmt.Errorf("%w: %s (did you mean %s?)", fielderr.ErrInvalidInput, msg, strings.Join(near, ", "))
	}
	return fmt.Errorf("%w: %s", fielderr.ErrInvalidInput, msg)
}
