package cli

import (
	"fmt"
	"strings"

	"github.com/harrisonrobin/taskplan/pkg/model"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Create a task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks by priority and due date",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change fields of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskUpdate,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a task that has no schedule entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

var taskStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task statistics",
	RunE:  runTaskStats,
}

var taskOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List open tasks past their due date",
	RunE:  runTaskOverdue,
}

func init() {
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskUpdateCmd, taskDeleteCmd, taskStatsCmd, taskOverdueCmd)

	for _, c := range []*cobra.Command{taskAddCmd, taskUpdateCmd} {
		c.Flags().String("description", "", "Task description")
		c.Flags().Int("priority", 0, "Priority from 1 (low) to 5 (urgent)")
		c.Flags().String("due", "", "Due date (YYYY-MM-DD HH:MM or RFC3339)")
		c.Flags().Int("duration", 0, "Estimated duration in minutes")
	}
	taskUpdateCmd.Flags().String("title", "", "New title")
	taskUpdateCmd.Flags().String("status", "", "pending, in_progress, completed or cancelled")
	taskUpdateCmd.Flags().Bool("clear-due", false, "Remove the due date")

	taskListCmd.Flags().String("status", "", "Only tasks with this status")
	taskListCmd.Flags().Int("priority", 0, "Only tasks with this priority")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), googleNone)
	if err != nil {
		return err
	}
	defer a.Close()

	fields := model.TaskFields{Title: strings.Join(args, " ")}
	fields.Description, _ = cmd.Flags().GetString("description")
	fields.Priority, _ = cmd.Flags().GetInt("priority")
	fields.EstimatedDuration, _ = cmd.Flags().GetInt("duration")
	if due, _ := cmd.Flags().GetString("due"); due != "" {
		t, err := parseWhen(due)
		if err != nil {
			return err
		}
		fields.DueDate = &t
	}

	task, err := a.store.CreateTask(cmd.Context(), fields)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), task)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), googleNone)
	if err != nil {
		return err
	}
	defer a.Close()

	status, _ := cmd.Flags().GetString("status")
	priority, _ := cmd.Flags().GetInt("priority")
	filter := model.TaskFilter{Status: model.Status(status), Priority: priority}
	if filter.Status != "" && !filter.Status.Valid() {
		return &model.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	tasks, err := a.store.ListTasks(cmd.Context(), filter)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), tasks)
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), googleNone)
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.store.GetTask(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	entries, err := a.store.EntriesForTask(cmd.Context(), task.ID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"task": task, "schedule": entries})
}

func runTaskUpdate(cmd *cobra.Command, args []string) error {
	patch, err := taskPatchFromFlags(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), googleNone)
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.store.UpdateTask(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), task)
}

// taskPatchFromFlags sets only the fields whose flags were given.
func taskPatchFromFlags(cmd *cobra.Command) (model.TaskPatch, error) {
	var patch model.TaskPatch
	flags := cmd.Flags()
	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		patch.Title = &v
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		patch.Description = &v
	}
	if flags.Changed("priority") {
		v, _ := flags.GetInt("priority")
		patch.Priority = &v
	}
	if flags.Changed("status") {
		v, _ := flags.GetString("status")
		st := model.Status(v)
		patch.Status = &st
	}
	if flags.Changed("duration") {
		v, _ := flags.GetInt("duration")
		patch.EstimatedDuration = &v
	}
	if flags.Changed("due") {
		v, _ := flags.GetString("due")
		t, err := parseWhen(v)
		if err != nil {
			return patch, err
		}
		patch.DueDate = &t
	}
	patch.ClearDueDate, _ = flags.GetBool("clear-due")
	return patch, patch.Validate()
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), googleNone)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.DeleteTask(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[0])
	return nil
}

func runTaskStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), googleNone)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.store.Statistics(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), stats)
}

func runTaskOverdue(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), googleNone)
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := a.store.OverdueTasks(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), tasks)
}
