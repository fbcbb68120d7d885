package cli

import (
	"fmt"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/model"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:     "schedule",
	Aliases: []string{"sched"},
	Short:   "Manage schedule entries",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add TASK_ID",
	Short: "Place a task in a time slot",
	Long: `Place a task in a time slot. The slot is refused if it overlaps any
existing entry. The entry is mirrored to Google Calendar unless --offline is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runScheduleAdd,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entries in a time range",
	RunE:  runScheduleList,
}

var scheduleUpdateCmd = &cobra.Command{
	Use:   "update ENTRY_ID",
	Short: "Move an entry or change its completion flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleUpdate,
}

var scheduleDeleteCmd = &cobra.Command{
	Use:   "delete ENTRY_ID",
	Short: "Remove an entry and its calendar event",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleDelete,
}

var scheduleCompleteCmd = &cobra.Command{
	Use:   "complete ENTRY_ID",
	Short: "Mark an entry and its task completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleComplete,
}

var scheduleConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Show the entries overlapping a time slot",
	RunE:  runScheduleConflicts,
}

func init() {
	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleUpdateCmd, scheduleDeleteCmd, scheduleCompleteCmd, scheduleConflictsCmd)

	for _, c := range []*cobra.Command{scheduleAddCmd, scheduleUpdateCmd, scheduleConflictsCmd} {
		c.Flags().String("start", "", "Slot start (YYYY-MM-DD HH:MM or RFC3339)")
		c.Flags().String("end", "", "Slot end")
		c.Flags().Duration("duration", 0, "Slot length, instead of --end")
	}
	scheduleUpdateCmd.Flags().Bool("completed", false, "Set the completion flag")

	scheduleListCmd.Flags().String("from", "", "Range start (default now)")
	scheduleListCmd.Flags().String("to", "", "Range end")
	scheduleListCmd.Flags().Int("days", 7, "Range length in days when --to is not given")
}

func spanFlags(cmd *cobra.Command) (model.Interval, error) {
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	d, _ := cmd.Flags().GetDuration("duration")
	st, en, err := parseSpan(start, end, d)
	if err != nil {
		return model.Interval{}, err
	}
	return model.Interval{Start: st, End: en}, nil
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	iv, err := spanFlags(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), googleOptional)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.sched.Schedule(cmd.Context(), args[0], iv)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), p)
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), googleNone)
	if err != nil {
		return err
	}
	defer a.Close()

	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")
	days, _ := cmd.Flags().GetInt("days")

	if fromFlag == "" && toFlag == "" {
		entries, err := a.sched.Upcoming(cmd.Context(), days)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), entries)
	}

	from := time.Now()
	if fromFlag != "" {
		if from, err = parseWhen(fromFlag); err != nil {
			return err
		}
	}
	to := from.AddDate(0, 0, days)
	if toFlag != "" {
		if to, err = parseWhen(toFlag); err != nil {
			return err
		}
	}
	entries, err := a.store.ListInRange(cmd.Context(), from, to)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), entries)
}

func runScheduleUpdate(cmd *cobra.Command, args []string) error {
	var patch model.SchedulePatch
	flags := cmd.Flags()
	if flags.Changed("start") {
		v, _ := flags.GetString("start")
		t, err := parseWhen(v)
		if err != nil {
			return err
		}
		patch.ScheduledStart = &t
	}
	if flags.Changed("end") {
		v, _ := flags.GetString("end")
		t, err := parseWhen(v)
		if err != nil {
			return err
		}
		patch.ScheduledEnd = &t
	} else if flags.Changed("duration") {
		if patch.ScheduledStart == nil {
			return fmt.Errorf("--duration needs --start")
		}
		d, _ := flags.GetDuration("duration")
		end := patch.ScheduledStart.Add(d)
		patch.ScheduledEnd = &end
	}
	if flags.Changed("completed") {
		v, _ := flags.GetBool("completed")
		patch.IsCompleted = &v
	}

	a, err := newApp(cmd.Context(), googleOptional)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.sched.UpdateEntry(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), p)
}

func runScheduleDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), googleOptional)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.sched.DeleteEntry(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), p)
}

func runScheduleComplete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), googleNone)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.sched.Complete(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), entry)
}

func runScheduleConflicts(cmd *cobra.Command, args []string) error {
	iv, err := spanFlags(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), googleNone)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.sched.Conflicts(cmd.Context(), iv)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No conflicts")
		return nil
	}
	return printJSON(cmd.OutOrStdout(), entries)
}
