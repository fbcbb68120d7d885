package google

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/model"
	"google.golang.org/api/calendar/v3"
)

// entryProperty is the private extended property linking an event to its schedule entry.
const entryProperty = "taskplan_entry_id"

// priorityColors maps task priority to Google Calendar event colour ids.
var priorityColors = map[int]string{
	1: "1",  // lavender
	2: "2",  // sage
	3: "5",  // banana
	4: "6",  // tangerine
	5: "11", // tomato
}

func priorityColor(p int) string {
	if id, ok := priorityColors[p]; ok {
		return id
	}
	return "1"
}

// newEvent converts a schedule entry into a calendar event.
func newEvent(ev model.CalendarEvent) *calendar.Event {
	title := ev.Title
	if title == "" {
		title = "Scheduled Task"
	}

	var desc strings.Builder
	desc.WriteString(fmt.Sprintf("Task ID: %s\n", ev.TaskID))
	if ev.EntryID != "" {
		desc.WriteString(fmt.Sprintf("Entry ID: %s\n", ev.EntryID))
	}
	if ev.Priority > 0 {
		desc.WriteString(fmt.Sprintf("Priority: %d\n", ev.Priority))
	}

	event := &calendar.Event{
		Summary:     title,
		Description: desc.String(),
		ColorId:     priorityColor(ev.Priority),
		Start: &calendar.EventDateTime{
			DateTime: ev.Interval.Start.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &calendar.EventDateTime{
			DateTime: ev.Interval.End.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 15},
				{Method: "popup", Minutes: 10},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
	if ev.EntryID != "" {
		event.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{entryProperty: ev.EntryID},
		}
	}
	return event
}

// eventPatch returns the fields of target that differ from existing, or nil
// when the event is already up to date.
func eventPatch(existing, target *calendar.Event) (*calendar.Event, error) {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}

	same, err := sameInstant(existing.Start, target.Start)
	if err != nil {
		return nil, err
	}
	sameEnd, err := sameInstant(existing.End, target.End)
	if err != nil {
		return nil, err
	}
	if !same || !sameEnd {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if needsUpdate {
		return patch, nil
	}
	return nil, nil
}

func sameInstant(a, b *calendar.EventDateTime) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	at, err := time.Parse(time.RFC3339, a.DateTime)
	if err != nil {
		return false, fmt.Errorf("could not parse event time %q: %w", a.DateTime, err)
	}
	bt, err := time.Parse(time.RFC3339, b.DateTime)
	if err != nil {
		return false, fmt.Errorf("could not parse event time %q: %w", b.DateTime, err)
	}
	return at.Equal(bt), nil
}

// eventInterval reads the start and end of a timed event. All-day events use
// their dates at midnight UTC.
func eventInterval(e *calendar.Event) (model.Interval, error) {
	start, err := eventTime(e.Start)
	if err != nil {
		return model.Interval{}, err
	}
	end, err := eventTime(e.End)
	if err != nil {
		return model.Interval{}, err
	}
	return model.Interval{Start: start, End: end}, nil
}

func eventTime(dt *calendar.EventDateTime) (time.Time, error) {
	if dt == nil {
		return time.Time{}, fmt.Errorf("event has no time")
	}
	if dt.DateTime != "" {
		return time.Parse(time.RFC3339, dt.DateTime)
	}
	return time.Parse("2006-01-02", dt.Date)
}
