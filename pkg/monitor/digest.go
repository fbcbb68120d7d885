package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/model"
)

// DailyAgenda lists today's schedule entries in start order.
func DailyAgenda(ctx context.Context, src Source, now time.Time) (*Message, error) {
	from, to := dayBounds(now)
	entries, err := src.ListInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("Today's Schedule:\n\n")
	for _, e := range entries {
		task, err := src.GetTask(ctx, e.TaskID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "• %s - %s (Priority: %d)\n", e.ScheduledStart.In(now.Location()).Format("15:04"), task.Title, task.Priority)
	}
	return &Message{Subject: "Daily Schedule Summary", Body: b.String()}, nil
}

// EveningReview lists the titles of today's completed schedule entries.
func EveningReview(ctx context.Context, src Source, now time.Time) (*Message, error) {
	from, to := dayBounds(now)
	entries, err := src.ListInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	n := 0
	for _, e := range entries {
		if !e.IsCompleted {
			continue
		}
		task, err := src.GetTask(ctx, e.TaskID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			b.WriteString("Evening Review - Completed Tasks:\n\n")
		}
		fmt.Fprintf(&b, "✅ %s\n", task.Title)
		n++
	}
	if n == 0 {
		return nil, nil
	}
	return &Message{Subject: "Evening Review", Body: b.String()}, nil
}

// OverdueSweep lists open tasks past their due date.
func OverdueSweep(ctx context.Context, src Source, now time.Time) (*Message, error) {
	tasks, err := src.OverdueTasks(ctx)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("Overdue Tasks Alert:\n\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "⚠️ %s (Due: %s)\n", t.Title, t.DueDate.In(now.Location()).Format("2006-01-02 15:04"))
	}
	return &Message{Subject: "Overdue Tasks Alert", Body: b.String()}, nil
}

// dayBounds returns the first and last instant of now's calendar day.
func dayBounds(now time.Time) (time.Time, time.Time) {
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return from, to
}
