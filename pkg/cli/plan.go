package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/google"
	"github.com/harrisonrobin/taskplan/pkg/orgmode"
	"github.com/harrisonrobin/taskplan/pkg/planner"
	"github.com/harrisonrobin/taskplan/pkg/scheduler"
	"github.com/harrisonrobin/taskplan/pkg/taskwarrior"
	"github.com/spf13/cobra"
)

var strict bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Place pending tasks using the planner",
	Long: `Ask the planner to place the highest-priority pending tasks around your
calendar commitments, then store and mirror the proposals. With --file the
proposals are read from a JSON file ("-" for stdin) instead.`,
	RunE: runPlan,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import tasks from the configured Google Sheet",
	RunE:  runImportSheet,
}

var importTaskwarriorCmd = &cobra.Command{
	Use:   "taskwarrior [FILTER...]",
	Short: "Import tasks from Taskwarrior",
	RunE:  runImportTaskwarrior,
}

var importOrgCmd = &cobra.Command{
	Use:   "org FILE...",
	Short: "Import TODO headlines from Org files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImportOrg,
}

var remindCmd = &cobra.Command{
	Use:   "remind [TASK_ID]",
	Short: "Mail a task reminder or run a digest check now",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRemind,
}

func init() {
	planCmd.Flags().String("file", "", "Read proposals from this JSON file")
	planCmd.Flags().BoolVar(&strict, "strict", false, "Refuse proposals that overlap existing entries")

	importCmd.AddCommand(importTaskwarriorCmd, importOrgCmd)
	importTaskwarriorCmd.Flags().Bool("stdin", false, "Read export JSON from stdin instead of running task")

	remindCmd.Flags().String("check", "", "Run a monitor check instead: daily, evening, overdue or missed")
}

func runPlan(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")

	a, err := newApp(cmd.Context(), googleOptional)
	if err != nil {
		return err
	}
	defer a.Close()

	var res scheduler.Result
	if file != "" {
		raw, err := readInput(cmd, file)
		if err != nil {
			return err
		}
		proposals, err := planner.ParseSchedule(string(raw))
		if err != nil {
			return err
		}
		res, err = a.sched.Reconcile(cmd.Context(), proposals)
		if err != nil {
			return err
		}
	} else {
		res, err = a.sched.Generate(cmd.Context())
		if err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

func runImportSheet(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), googleRequired)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Sheet.ID == "" {
		return fmt.Errorf("no sheet configured, set sheet.id in the config file")
	}
	src := google.NewSheetSource(a.google.Sheets, a.cfg.Sheet.ID, a.cfg.Sheet.Range)
	res, err := a.sched.Import(cmd.Context(), src)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runImportTaskwarrior(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), googleNone)
	if err != nil {
		return err
	}
	defer a.Close()

	src := taskwarrior.NewCommandSource(args...)
	if fromStdin, _ := cmd.Flags().GetBool("stdin"); fromStdin {
		src = taskwarrior.NewReaderSource(cmd.InOrStdin())
	}
	res, err := a.sched.Import(cmd.Context(), src)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runImportOrg(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), googleNone)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.sched.Import(cmd.Context(), orgmode.NewFileSource(time.Local, args...))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runRemind(cmd *cobra.Command, args []string) error {
	check, _ := cmd.Flags().GetString("check")
	if (check == "") == (len(args) == 0) {
		return fmt.Errorf("give either a TASK_ID or --check")
	}

	a, err := newApp(cmd.Context(), googleRequired)
	if err != nil {
		return err
	}
	defer a.Close()

	if check != "" {
		m, err := a.monitor()
		if err != nil {
			return err
		}
		return m.RunCheck(cmd.Context(), check)
	}

	id, err := a.sched.Remind(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reminder sent (%s)\n", id)
	return nil
}
