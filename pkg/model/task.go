package model

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Status is the lifecycle state of a task.
type Status string

const (
	PENDING     Status = "pending"
	IN_PROGRESS Status = "in_progress"
	COMPLETED   Status = "completed"
	CANCELLED   Status = "cancelled"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MinPriority          = 1
	MaxPriority          = 5
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case PENDING, IN_PROGRESS, COMPLETED, CANCELLED:
		return true
	}
	return false
}

// Open reports whether a task in this status still needs work.
func (s Status) Open() bool {
	return s == PENDING || s == IN_PROGRESS
}

// Task is a unit of work. Priority 5 is the most urgent.
type Task struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Priority          int        `json:"priority"`
	Status            Status     `json:"status"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	EstimatedDuration int        `json:"estimated_duration,omitempty"` // minutes
	OriginRef         string     `json:"origin_ref,omitempty"`          // e.g. spreadsheet row, used for import de-dup
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsOverdue reports whether the task is open and its due date has passed.
func (t Task) IsOverdue(now time.Time) bool {
	return t.Status.Open() && t.DueDate != nil && t.DueDate.Before(now)
}

// TaskFields is the input for creating a task.
type TaskFields struct {
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Priority          int        `json:"priority,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	EstimatedDuration int        `json:"estimated_duration,omitempty"`
	OriginRef         string     `json:"origin_ref,omitempty"`
	// Status is honoured only by imports; CreateTask always starts tasks as pending.
	Status Status `json:"status,omitempty"`
}

// Normalize fills defaults and validates the fields.
func (f *TaskFields) Normalize() error {
	if f.Priority == 0 {
		f.Priority = MinPriority
	}
	if err := validateTitle(f.Title); err != nil {
		return err
	}
	if err := validateDescription(f.Description); err != nil {
		return err
	}
	if err := validatePriority(f.Priority); err != nil {
		return err
	}
	if f.EstimatedDuration < 0 {
		return &ValidationError{Field: "estimated_duration", Reason: "must be a positive number of minutes"}
	}
	if f.Status != "" && !f.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", f.Status)}
	}
	return nil
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title             *string    `json:"title,omitempty"`
	Description       *string    `json:"description,omitempty"`
	Priority          *int       `json:"priority,omitempty"`
	Status            *Status    `json:"status,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	ClearDueDate      bool       `json:"clear_due_date,omitempty"`
	EstimatedDuration *int       `json:"estimated_duration,omitempty"`
}

// Validate checks every field that is set.
func (p TaskPatch) Validate() error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.Priority != nil {
		if err := validatePriority(*p.Priority); err != nil {
			return err
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *p.Status)}
	}
	if p.EstimatedDuration != nil && *p.EstimatedDuration <= 0 {
		return &ValidationError{Field: "estimated_duration", Reason: "must be a positive number of minutes"}
	}
	return nil
}

// Apply returns a copy of t with the patch applied. It does not touch UpdatedAt.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		due := *p.DueDate
		t.DueDate = &due
	}
	if p.EstimatedDuration != nil {
		t.EstimatedDuration = *p.EstimatedDuration
	}
	return t
}

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	Status   Status
	Priority int
}

// Statistics summarises the task table.
type Statistics struct {
	Total          int         `json:"total_tasks"`
	Pending        int         `json:"pending_tasks"`
	InProgress     int         `json:"in_progress_tasks"`
	Completed      int         `json:"completed_tasks"`
	Cancelled      int         `json:"cancelled_tasks"`
	Overdue        int         `json:"overdue_tasks"`
	CompletionRate float64     `json:"completion_rate"`
	ByPriority     map[int]int `json:"priority_distribution"`
}

func validateTitle(title string) error {
	if title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("longer than %d characters", MaxTitleLength)}
	}
	return nil
}

func validateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Reason: fmt.Sprintf("longer than %d characters", MaxDescriptionLength)}
	}
	return nil
}

func validatePriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("must be between %d and %d", MinPriority, MaxPriority)}
	}
	return nil
}
