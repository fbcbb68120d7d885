// Package taskwarrior reads Taskwarrior exports as import rows.
package taskwarrior

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/model"
)

const (
	PENDING   = "pending"
	COMPLETED = "completed"
	WAITING   = "waiting"
	DELETED   = "deleted"
	RECURRING = "recurring"
)

const timeLayout = "20060102T150405Z"

// Time is a Taskwarrior timestamp (YYYYMMDDTHHMMSSZ, always UTC).
type Time struct {
	time.Time
}

func (ct *Time) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "0" {
		ct.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return fmt.Errorf("failed to parse Taskwarrior time %q: %w", s, err)
	}
	ct.Time = t
	return nil
}

type Annotation struct {
	Description string `json:"description"`
	Entry       *Time  `json:"entry,omitempty"`
}

// Task is the subset of a `task export` record that maps onto a task.
type Task struct {
	UUID        string       `json:"uuid"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	Priority    string       `json:"priority,omitempty"`
	Due         *Time        `json:"due,omitempty"`
	Project     string       `json:"project,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	// Est is the estimate UDA (uda.estimate.label=est), e.g. "PT1H30M".
	Est string `json:"est,omitempty"`
}

var priorities = map[string]int{"L": 2, "M": 3, "H": 4}

// Fields converts t to import fields. Recurring templates and tasks without
// a description are not importable.
func (t Task) Fields() (model.TaskFields, bool) {
	title := strings.TrimSpace(t.Description)
	if title == "" || t.Status == RECURRING {
		return model.TaskFields{}, false
	}

	f := model.TaskFields{
		Title:     title,
		Priority:  priorities[strings.ToUpper(t.Priority)],
		OriginRef: "taskwarrior:" + t.UUID,
		Status:    status(t.Status),
	}
	if t.Due != nil && !t.Due.IsZero() {
		due := t.Due.Time
		f.DueDate = &due
	}
	if t.Est != "" {
		if d, err := ParseDuration(t.Est); err == nil && d > 0 {
			f.EstimatedDuration = int(math.Ceil(d.Minutes()))
		}
	}

	var notes []string
	if t.Project != "" {
		notes = append(notes, "Project: "+t.Project)
	}
	if len(t.Tags) > 0 {
		notes = append(notes, "Tags: "+strings.Join(t.Tags, ", "))
	}
	for _, a := range t.Annotations {
		notes = append(notes, a.Description)
	}
	f.Description = strings.Join(notes, "\n")
	return f, true
}

func status(s string) model.Status {
	switch s {
	case COMPLETED:
		return model.COMPLETED
	case DELETED:
		return model.CANCELLED
	default:
		return model.PENDING
	}
}
