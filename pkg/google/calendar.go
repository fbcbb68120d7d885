package google

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/model"
	"google.golang.org/api/calendar/v3"
)

// CalendarMirror replicates schedule entries into one Google calendar.
type CalendarMirror struct {
	srv        *calendar.Service
	calendarID string
	log        *log.Logger
}

// NewCalendarMirror creates a mirror writing to calendarID.
func NewCalendarMirror(srv *calendar.Service, calendarID string, logger *log.Logger) *CalendarMirror {
	if logger == nil {
		logger = log.Default()
	}
	return &CalendarMirror{srv: srv, calendarID: calendarID, log: logger}
}

// CreateEvent inserts an event and returns its id.
func (c *CalendarMirror) CreateEvent(ctx context.Context, ev model.CalendarEvent) (string, error) {
	created, err := c.srv.Events.Insert(c.calendarID, newEvent(ev)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create calendar event: %w", err)
	}
	return created.Id, nil
}

// UpdateEvent patches only the fields that changed.
func (c *CalendarMirror) UpdateEvent(ctx context.Context, ref string, ev model.CalendarEvent) error {
	existing, err := c.srv.Events.Get(c.calendarID, ref).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to fetch calendar event %s: %w", ref, err)
	}
	patch, err := eventPatch(existing, newEvent(ev))
	if err != nil {
		c.log.Printf("could not compare entry %s with its calendar event: %v", ev.EntryID, err)
		return err
	}
	if patch == nil {
		return nil
	}
	if _, err := c.srv.Events.Patch(c.calendarID, ref, patch).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to patch calendar event %s: %w", ref, err)
	}
	return nil
}

// DeleteEvent deletes an event from the calendar.
func (c *CalendarMirror) DeleteEvent(ctx context.Context, ref string) error {
	if err := c.srv.Events.Delete(c.calendarID, ref).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to delete calendar event %s: %w", ref, err)
	}
	return nil
}

// FindEventByEntryID returns the id of the event carrying entryID in its
// private extended properties, or "" when there is none.
func (c *CalendarMirror) FindEventByEntryID(ctx context.Context, entryID string) (string, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", entryProperty, entryID)).
		ShowDeleted(false).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("unable to search calendar for entry %s: %w", entryID, err)
	}
	if len(events.Items) > 0 {
		return events.Items[0].Id, nil
	}
	return "", nil
}

// Commitments lists upcoming events in [from, to) for the planner, at most limit of them.
// Events mirrored from schedule entries are included; the planner must avoid them too.
func (c *CalendarMirror) Commitments(ctx context.Context, from, to time.Time, limit int) ([]model.Commitment, error) {
	call := c.srv.Events.List(c.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)
	if limit > 0 {
		call = call.MaxResults(int64(limit))
	}
	events, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve events from calendar: %w", err)
	}

	var out []model.Commitment
	for _, e := range events.Items {
		iv, err := eventInterval(e)
		if err != nil {
			c.log.Printf("skipping calendar event %s: %v", e.Id, err)
			continue
		}
		out = append(out, model.Commitment{Title: e.Summary, Start: iv.Start, End: iv.End})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
