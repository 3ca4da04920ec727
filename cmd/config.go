package cmd

import (
	"fmt"
	"strings"

	"github.com/marcus/fieldops/internal/config"
	"github.com/marcus/fieldops/internal/output"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and change settings",
	Long: `Settings resolve from the environment first, then the config file, then defaults.

Keys: ` + strings.Join(config.Keys(), ", "),
	GroupID: "system",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting and where it came from",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := config.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", display(e), e.Source)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Write a setting to the config file; omit value to clear it",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := ""
		if len(args) == 2 {
			value = args[1]
		}
		if err := config.Set(args[0], value); err != nil {
			return err
		}
		e, err := config.Get(args[0])
		if err != nil {
			return err
		}
		output.Success("%s = %s", e.Name, display(e))
		if e.Source == config.SourceEnv {
			output.Warning("%s is overridden by the environment", e.Name)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every setting",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := config.List()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%-22s %-40s %s\n", e.Name, display(e), e.Source)
		}
		return nil
	},
}

// display masks the API token.
func display(e config.Entry) string {
	if e.Name == "api_token" && e.Value != "" {
		if len(e.Value) <= 4 {
			return "****"
		}
		return "****" + e.Value[len(e.Value)-4:]
	}
	return e.Value
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}
