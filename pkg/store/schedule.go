package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/taskplan/pkg/model"
)

const entryColumns = `id, task_id, scheduled_start, scheduled_end, calendar_ref, is_completed, created_at`

func scanEntry(sc scanner) (model.ScheduleEntry, error) {
	var (
		e                     model.ScheduleEntry
		start, end, createdAt int64
	)
	if err := sc.Scan(&e.ID, &e.TaskID, &start, &end, &e.CalendarRef, &e.IsCompleted, &createdAt); err != nil {
		return model.ScheduleEntry{}, err
	}
	e.ScheduledStart = fromNanos(start)
	e.ScheduledEnd = fromNanos(end)
	e.CreatedAt = fromNanos(createdAt)
	return e, nil
}

func (tx *Tx) queryEntries(ctx context.Context, op, query string, args ...any) ([]model.ScheduleEntry, error) {
	rows, err := tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var entries []model.ScheduleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return entries, nil
}

// CreateEntry places a task on the calendar. The task must exist.
func (tx *Tx) CreateEntry(ctx context.Context, taskID string, iv model.Interval) (model.ScheduleEntry, error) {
	if err := iv.Validate(); err != nil {
		return model.ScheduleEntry{}, err
	}
	if _, err := tx.GetTask(ctx, taskID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ScheduleEntry{}, &model.ValidationError{Field: "task_id", Reason: fmt.Sprintf("task %s does not exist", taskID)}
		}
		return model.ScheduleEntry{}, err
	}

	e := model.ScheduleEntry{
		ID:             uuid.NewString(),
		TaskID:         taskID,
		ScheduledStart: iv.Start.UTC(),
		ScheduledEnd:   iv.End.UTC(),
		CreatedAt:      tx.now,
	}
	_, err := tx.tx.ExecContext(ctx, `INSERT INTO schedule_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, 0, ?)`,
		e.ID, e.TaskID, toNanos(e.ScheduledStart), toNanos(e.ScheduledEnd), e.CalendarRef, toNanos(e.CreatedAt))
	if err != nil {
		return model.ScheduleEntry{}, storageErr("insert entry", err)
	}
	return e, nil
}

func (tx *Tx) GetEntry(ctx context.Context, id string) (model.ScheduleEntry, error) {
	row := tx.tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM schedule_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduleEntry{}, &model.NotFoundError{Kind: "schedule entry", ID: id}
	}
	if err != nil {
		return model.ScheduleEntry{}, storageErr("get entry", err)
	}
	return e, nil
}

// ListInRange returns entries starting within [from, to], earliest first.
func (tx *Tx) ListInRange(ctx context.Context, from, to time.Time) ([]model.ScheduleEntry, error) {
	return tx.queryEntries(ctx, "list entries",
		`SELECT `+entryColumns+` FROM schedule_entries
		WHERE scheduled_start >= ? AND scheduled_start <= ?
		ORDER BY scheduled_start ASC, id ASC`,
		toNanos(from), toNanos(to))
}

func (tx *Tx) EntriesForTask(ctx context.Context, taskID string) ([]model.ScheduleEntry, error) {
	return tx.queryEntries(ctx, "entries for task",
		`SELECT `+entryColumns+` FROM schedule_entries WHERE task_id = ? ORDER BY scheduled_start ASC, id ASC`,
		taskID)
}

// Overlapping returns entries whose interval intersects iv under the half-open
// rule, skipping excludeID when it is set.
func (tx *Tx) Overlapping(ctx context.Context, iv model.Interval, excludeID string) ([]model.ScheduleEntry, error) {
	return tx.queryEntries(ctx, "overlapping entries",
		`SELECT `+entryColumns+` FROM schedule_entries
		WHERE scheduled_start < ? AND scheduled_end > ? AND id != ?
		ORDER BY scheduled_start ASC, id ASC`,
		toNanos(iv.End), toNanos(iv.Start), excludeID)
}

// UpdateEntry applies patch. The merged interval is re-validated when a bound
// changes, and completing through a patch has the same effect as MarkCompleted.
func (tx *Tx) UpdateEntry(ctx context.Context, id string, patch model.SchedulePatch) (model.ScheduleEntry, error) {
	e, err := tx.GetEntry(ctx, id)
	if err != nil {
		return model.ScheduleEntry{}, err
	}

	if patch.MovesInterval() {
		iv := e.Interval()
		if patch.ScheduledStart != nil {
			iv.Start = patch.ScheduledStart.UTC()
		}
		if patch.ScheduledEnd != nil {
			iv.End = patch.ScheduledEnd.UTC()
		}
		if err := iv.Validate(); err != nil {
			return model.ScheduleEntry{}, err
		}
		_, err := tx.tx.ExecContext(ctx, `UPDATE schedule_entries SET scheduled_start = ?, scheduled_end = ? WHERE id = ?`,
			toNanos(iv.Start), toNanos(iv.End), id)
		if err != nil {
			return model.ScheduleEntry{}, storageErr("update entry", err)
		}
		e.ScheduledStart, e.ScheduledEnd = iv.Start, iv.End
	}

	if patch.IsCompleted != nil {
		if *patch.IsCompleted {
			return tx.MarkCompleted(ctx, id)
		}
		if _, err := tx.tx.ExecContext(ctx, `UPDATE schedule_entries SET is_completed = 0 WHERE id = ?`, id); err != nil {
			return model.ScheduleEntry{}, storageErr("update entry", err)
		}
		e.IsCompleted = false
	}
	return e, nil
}

// DeleteEntry removes an entry and returns it so the caller can clean up its mirror.
func (tx *Tx) DeleteEntry(ctx context.Context, id string) (model.ScheduleEntry, error) {
	e, err := tx.GetEntry(ctx, id)
	if err != nil {
		return model.ScheduleEntry{}, err
	}
	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM schedule_entries WHERE id = ?`, id); err != nil {
		return model.ScheduleEntry{}, storageErr("delete entry", err)
	}
	return e, nil
}

// MarkCompleted completes the entry and its task. Calling it again changes nothing.
func (tx *Tx) MarkCompleted(ctx context.Context, id string) (model.ScheduleEntry, error) {
	e, err := tx.GetEntry(ctx, id)
	if err != nil {
		return model.ScheduleEntry{}, err
	}
	if !e.IsCompleted {
		if _, err := tx.tx.ExecContext(ctx, `UPDATE schedule_entries SET is_completed = 1 WHERE id = ?`, id); err != nil {
			return model.ScheduleEntry{}, storageErr("complete entry", err)
		}
		e.IsCompleted = true
	}
	_, err = tx.tx.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = MAX(updated_at, ?) WHERE id = ? AND status != ?`,
		string(model.COMPLETED), toNanos(tx.now), e.TaskID, string(model.COMPLETED))
	if err != nil {
		return model.ScheduleEntry{}, storageErr("complete task", err)
	}
	return e, nil
}

// SetCalendarRef records the outcome of mirroring. An empty ref clears it.
func (tx *Tx) SetCalendarRef(ctx context.Context, id, ref string) error {
	res, err := tx.tx.ExecContext(ctx, `UPDATE schedule_entries SET calendar_ref = ? WHERE id = ?`, ref, id)
	if err != nil {
		return storageErr("set calendar ref", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &model.NotFoundError{Kind: "schedule entry", ID: id}
	}
	return nil
}

func (s *Store) CreateEntry(ctx context.Context, taskID string, iv model.Interval) (model.ScheduleEntry, error) {
	return withResult(ctx, s, func(tx *Tx) (model.ScheduleEntry, error) { return tx.CreateEntry(ctx, taskID, iv) })
}

func (s *Store) GetEntry(ctx context.Context, id string) (model.ScheduleEntry, error) {
	return withResult(ctx, s, func(tx *Tx) (model.ScheduleEntry, error) { return tx.GetEntry(ctx, id) })
}

func (s *Store) ListInRange(ctx context.Context, from, to time.Time) ([]model.ScheduleEntry, error) {
	return withResult(ctx, s, func(tx *Tx) ([]model.ScheduleEntry, error) { return tx.ListInRange(ctx, from, to) })
}

func (s *Store) EntriesForTask(ctx context.Context, taskID string) ([]model.ScheduleEntry, error) {
	return withResult(ctx, s, func(tx *Tx) ([]model.ScheduleEntry, error) { return tx.EntriesForTask(ctx, taskID) })
}

func (s *Store) Overlapping(ctx context.Context, iv model.Interval, excludeID string) ([]model.ScheduleEntry, error) {
	return withResult(ctx, s, func(tx *Tx) ([]model.ScheduleEntry, error) { return tx.Overlapping(ctx, iv, excludeID) })
}

func (s *Store) UpdateEntry(ctx context.Context, id string, patch model.SchedulePatch) (model.ScheduleEntry, error) {
	return withResult(ctx, s, func(tx *Tx) (model.ScheduleEntry, error) { return tx.UpdateEntry(ctx, id, patch) })
}

func (s *Store) DeleteEntry(ctx context.Context, id string) (model.ScheduleEntry, error) {
	return withResult(ctx, s, func(tx *Tx) (model.ScheduleEntry, error) { return tx.DeleteEntry(ctx, id) })
}

func (s *Store) MarkCompleted(ctx context.Context, id string) (model.ScheduleEntry, error) {
	return withResult(ctx, s, func(tx *Tx) (model.ScheduleEntry, error) { return tx.MarkCompleted(ctx, id) })
}

func (s *Store) SetCalendarRef(ctx context.Context, id, ref string) error {
	return s.WithTx(ctx, func(tx *Tx) error { return tx.SetCalendarRef(ctx, id, ref) })
}
