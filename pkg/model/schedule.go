package model

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate reports a ValidationError unless End is strictly after Start.
func (iv Interval) Validate() error {
	if iv.Start.IsZero() || iv.End.IsZero() {
		return &ValidationError{Field: "interval", Reason: "start and end are required"}
	}
	if !iv.End.After(iv.Start) {
		return &ValidationError{Field: "interval", Reason: "end must be after start"}
	}
	return nil
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// ScheduleEntry places one task on the calendar.
type ScheduleEntry struct {
	ID             string    `json:"id"`
	TaskID         string    `json:"task_id"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
	CalendarRef    string    `json:"external_calendar_ref,omitempty"`
	IsCompleted    bool      `json:"is_completed"`
	CreatedAt      time.Time `json:"created_at"`
}

func (e ScheduleEntry) Interval() Interval {
	return Interval{Start: e.ScheduledStart, End: e.ScheduledEnd}
}

// SchedulePatch is a partial update of an entry.
type SchedulePatch struct {
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
	IsCompleted    *bool      `json:"is_completed,omitempty"`
}

// MovesInterval reports whether either bound changes.
func (p SchedulePatch) MovesInterval() bool {
	return p.ScheduledStart != nil || p.ScheduledEnd != nil
}

// Proposal is a placement suggested by the planner, still in its wire form.
type Proposal struct {
	TaskID string `json:"task_id"`
	Start  string `json:"start_time"`
	End    string `json:"end_time"`
	Title  string `json:"title"`
}

// Commitment is an existing calendar event handed to the planner as context.
type Commitment struct {
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CalendarEvent is what gets mirrored to the external calendar.
type CalendarEvent struct {
	EntryID  string
	TaskID   string
	Title    string
	Priority int
	Interval Interval
}
