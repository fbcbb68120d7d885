package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background monitor until interrupted",
	Long: `Run the daily agenda, evening review, overdue alert and missed-slot checks
on their schedules. Stops cleanly on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, googleOptional)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.monitor()
	if err != nil {
		return err
	}
	for name, next := range m.NextRuns() {
		fmt.Fprintf(cmd.OutOrStdout(), "%-8s next run %s\n", name, next.Format("2006-01-02 15:04"))
	}

	m.Start()
	<-ctx.Done()
	m.Stop()
	return nil
}
