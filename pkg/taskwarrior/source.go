package taskwarrior

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/harrisonrobin/taskplan/pkg/model"
)

// Source yields import rows either from a reader holding export JSON or by
// running `task export` with a filter.
type Source struct {
	r      io.Reader
	filter []string
}

// NewReaderSource reads a JSON array or a stream of JSON objects from r.
func NewReaderSource(r io.Reader) *Source {
	return &Source{r: r}
}

// NewCommandSource runs the task binary with the given filter.
func NewCommandSource(filter ...string) *Source {
	return &Source{filter: filter}
}

func (s *Source) Rows(ctx context.Context) ([]model.TaskFields, int, error) {
	var tasks []Task
	var err error
	if s.r != nil {
		tasks, err = ParseTasks(s.r)
	} else {
		tasks, err = export(ctx, s.filter)
	}
	if err != nil {
		return nil, 0, err
	}

	var rows []model.TaskFields
	skipped := 0
	for _, t := range tasks {
		f, ok := t.Fields()
		if !ok {
			skipped++
			continue
		}
		if err := f.Normalize(); err != nil {
			skipped++
			continue
		}
		rows = append(rows, f)
	}
	return rows, skipped, nil
}

func export(ctx context.Context, filter []string) ([]Task, error) {
	args := append(append([]string{}, filter...), "export", "rc.hooks=0")
	output, err := exec.CommandContext(ctx, "task", args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("taskwarrior command failed: exit code %d, stderr: %s", exitErr.ExitCode(), exitErr.Stderr)
		}
		return nil, fmt.Errorf("taskwarrior command failed: %w", err)
	}

	var tasks []Task
	if err := json.Unmarshal(output, &tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal taskwarrior output: %w", err)
	}
	return tasks, nil
}

// ParseTasks decodes either a JSON array (`task export`) or one object per
// line (hook input).
func ParseTasks(r io.Reader) ([]Task, error) {
	var tasks []Task
	decoder := json.NewDecoder(r)
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}
		if len(raw) > 0 && raw[0] == '[' {
			var batch []Task
			if err := json.Unmarshal(raw, &batch); err != nil {
				return nil, fmt.Errorf("failed to decode task json: %w", err)
			}
			tasks = append(tasks, batch...)
			continue
		}
		var task Task
		if err := json.Unmarshal(raw, &task); err != nil {
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
