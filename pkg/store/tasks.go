package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/taskplan/pkg/model"
)

const taskColumns = `id, title, description, priority, status, due_date, estimated_duration, origin_ref, created_at, updated_at`

// listOrder puts the most urgent first and tasks without a due date last.
const listOrder = `ORDER BY priority DESC, due_date IS NULL, due_date ASC, created_at ASC, id ASC`

func scanTask(sc scanner) (model.Task, error) {
	var (
		t                model.Task
		status           string
		due, est         sql.NullInt64
		created, updated int64
	)
	if err := sc.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &status, &due, &est, &t.OriginRef, &created, &updated); err != nil {
		return model.Task{}, err
	}
	t.Status = model.Status(status)
	if due.Valid {
		d := fromNanos(due.Int64)
		t.DueDate = &d
	}
	if est.Valid {
		t.EstimatedDuration = int(est.Int64)
	}
	t.CreatedAt = fromNanos(created)
	t.UpdatedAt = fromNanos(updated)
	return t, nil
}

func (tx *Tx) queryTasks(ctx context.Context, op, query string, args ...any) ([]model.Task, error) {
	rows, err := tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return tasks, nil
}

// CreateTask inserts a new pending task.
func (tx *Tx) CreateTask(ctx context.Context, fields model.TaskFields) (model.Task, error) {
	fields.Status = model.PENDING
	return tx.insertTask(ctx, fields)
}

func (tx *Tx) insertTask(ctx context.Context, fields model.TaskFields) (model.Task, error) {
	if err := fields.Normalize(); err != nil {
		return model.Task{}, err
	}
	status := fields.Status
	if status == "" {
		status = model.PENDING
	}
	t := model.Task{
		ID:                uuid.NewString(),
		Title:             fields.Title,
		Description:       fields.Description,
		Priority:          fields.Priority,
		Status:            status,
		EstimatedDuration: fields.EstimatedDuration,
		OriginRef:         fields.OriginRef,
		CreatedAt:         tx.now,
		UpdatedAt:         tx.now,
	}
	if fields.DueDate != nil {
		due := fields.DueDate.UTC()
		t.DueDate = &due
	}

	_, err := tx.tx.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Priority, string(t.Status), nullableNanos(t.DueDate),
		nullableInt(t.EstimatedDuration), t.OriginRef, toNanos(t.CreatedAt), toNanos(t.UpdatedAt))
	if err != nil {
		return model.Task{}, storageErr("insert task", err)
	}
	return t, nil
}

func (tx *Tx) GetTask(ctx context.Context, id string) (model.Task, error) {
	row := tx.tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, &model.NotFoundError{Kind: "task", ID: id}
	}
	if err != nil {
		return model.Task{}, storageErr("get task", err)
	}
	return t, nil
}

func (tx *Tx) ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	return tx.queryTasks(ctx, "list tasks",
		`SELECT `+taskColumns+` FROM tasks
		WHERE (? = '' OR status = ?) AND (? = 0 OR priority = ?) `+listOrder,
		string(filter.Status), string(filter.Status), filter.Priority, filter.Priority)
}

// PendingTasks returns open tasks in urgency order, at most limit of them (0 means all).
func (tx *Tx) PendingTasks(ctx context.Context, limit int) ([]model.Task, error) {
	if limit <= 0 {
		limit = -1
	}
	return tx.queryTasks(ctx, "pending tasks",
		`SELECT `+taskColumns+` FROM tasks WHERE status IN (?, ?) `+listOrder+` LIMIT ?`,
		string(model.PENDING), string(model.IN_PROGRESS), limit)
}

func (tx *Tx) OverdueTasks(ctx context.Context) ([]model.Task, error) {
	return tx.queryTasks(ctx, "overdue tasks",
		`SELECT `+taskColumns+` FROM tasks
		WHERE due_date IS NOT NULL AND due_date < ? AND status IN (?, ?)
		ORDER BY due_date ASC, priority DESC, id ASC`,
		toNanos(tx.now), string(model.PENDING), string(model.IN_PROGRESS))
}

// UpdateTask applies patch and refreshes updated_at. updated_at never moves backwards.
func (tx *Tx) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	if err := patch.Validate(); err != nil {
		return model.Task{}, err
	}
	current, err := tx.GetTask(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	t := patch.Apply(current)
	t.UpdatedAt = laterOf(tx.now, current.UpdatedAt)

	_, err = tx.tx.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, priority = ?, status = ?,
		due_date = ?, estimated_duration = ?, updated_at = ? WHERE id = ?`,
		t.Title, t.Description, t.Priority, string(t.Status), nullableNanos(t.DueDate),
		nullableInt(t.EstimatedDuration), toNanos(t.UpdatedAt), id)
	if err != nil {
		return model.Task{}, storageErr("update task", err)
	}
	return t, nil
}

// DeleteTask removes a task that has no schedule entries. A task that is still
// referenced is rejected with a ConflictError listing the entries.
func (tx *Tx) DeleteTask(ctx context.Context, id string) error {
	if _, err := tx.GetTask(ctx, id); err != nil {
		return err
	}
	entries, err := tx.EntriesForTask(ctx, id)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return &model.ConflictError{Reason: "task still has schedule entries", Entries: entries}
	}
	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return storageErr("delete task", err)
	}
	return nil
}

func (tx *Tx) Statistics(ctx context.Context) (model.Statistics, error) {
	stats := model.Statistics{ByPriority: make(map[int]int)}
	for p := model.MinPriority; p <= model.MaxPriority; p++ {
		stats.ByPriority[p] = 0
	}

	rows, err := tx.tx.QueryContext(ctx, `SELECT status, priority, COUNT(*) FROM tasks GROUP BY status, priority`)
	if err != nil {
		return stats, storageErr("statistics", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status          string
			priority, count int
		)
		if err := rows.Scan(&status, &priority, &count); err != nil {
			return stats, storageErr("statistics", err)
		}
		stats.Total += count
		stats.ByPriority[priority] += count
		switch model.Status(status) {
		case model.PENDING:
			stats.Pending += count
		case model.IN_PROGRESS:
			stats.InProgress += count
		case model.COMPLETED:
			stats.Completed += count
		case model.CANCELLED:
			stats.Cancelled += count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, storageErr("statistics", err)
	}

	err = tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE due_date IS NOT NULL AND due_date < ? AND status IN (?, ?)`,
		toNanos(tx.now), string(model.PENDING), string(model.IN_PROGRESS)).Scan(&stats.Overdue)
	if err != nil {
		return stats, storageErr("statistics", err)
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Total) * 100
	}
	return stats, nil
}

// ImportTasks inserts rows whose (title, description) is not already stored.
// Rows keep their own status when one is given. It returns only the new tasks.
func (tx *Tx) ImportTasks(ctx context.Context, rows []model.TaskFields) ([]model.Task, error) {
	var created []model.Task
	for _, fields := range rows {
		var exists bool
		err := tx.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tasks WHERE title = ? AND description = ?)`,
			fields.Title, fields.Description).Scan(&exists)
		if err != nil {
			return nil, storageErr("import lookup", err)
		}
		if exists {
			continue
		}
		t, err := tx.insertTask(ctx, fields)
		if err != nil {
			return nil, err
		}
		created = append(created, t)
	}
	return created, nil
}

func laterOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}

func (s *Store) CreateTask(ctx context.Context, fields model.TaskFields) (model.Task, error) {
	return withResult(ctx, s, func(tx *Tx) (model.Task, error) { return tx.CreateTask(ctx, fields) })
}

func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	return withResult(ctx, s, func(tx *Tx) (model.Task, error) { return tx.GetTask(ctx, id) })
}

func (s *Store) ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	return withResult(ctx, s, func(tx *Tx) ([]model.Task, error) { return tx.ListTasks(ctx, filter) })
}

func (s *Store) PendingTasks(ctx context.Context, limit int) ([]model.Task, error) {
	return withResult(ctx, s, func(tx *Tx) ([]model.Task, error) { return tx.PendingTasks(ctx, limit) })
}

func (s *Store) OverdueTasks(ctx context.Context) ([]model.Task, error) {
	return withResult(ctx, s, func(tx *Tx) ([]model.Task, error) { return tx.OverdueTasks(ctx) })
}

func (s *Store) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	return withResult(ctx, s, func(tx *Tx) (model.Task, error) { return tx.UpdateTask(ctx, id, patch) })
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *Tx) error { return tx.DeleteTask(ctx, id) })
}

func (s *Store) Statistics(ctx context.Context) (model.Statistics, error) {
	return withResult(ctx, s, func(tx *Tx) (model.Statistics, error) { return tx.Statistics(ctx) })
}

func (s *Store) ImportTasks(ctx context.Context, rows []model.TaskFields) ([]model.Task, error) {
	return withResult(ctx, s, func(tx *Tx) ([]model.Task, error) { return tx.ImportTasks(ctx, rows) })
}
