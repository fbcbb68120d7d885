// Package cli is the taskplan command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	calendarName string
	offline      bool
	rootCmd      *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "taskplan",
		Short: "Plan tasks into calendar time slots",
		Long: `taskplan keeps a local task list, places tasks into time slots without
double-booking, mirrors the slots to Google Calendar and mails daily digests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/taskplan/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&calendarName, "calendar", "", "Google Calendar name to sync with (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Do not contact Google, entries are not mirrored")

	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(remindCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command
func Execute(version string) error {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
