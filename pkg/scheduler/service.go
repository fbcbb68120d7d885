// Package scheduler places tasks on the calendar. It owns manual scheduling,
// reconciliation of planner proposals and the best-effort calendar mirror.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/conflict"
	"github.com/harrisonrobin/taskplan/pkg/model"
	"github.com/harrisonrobin/taskplan/pkg/store"
)

// Mirror replicates schedule entries into an external calendar.
type Mirror interface {
	CreateEvent(ctx context.Context, ev model.CalendarEvent) (string, error)
	UpdateEvent(ctx context.Context, ref string, ev model.CalendarEvent) error
	DeleteEvent(ctx context.Context, ref string) error
	// FindEventByEntryID returns the ref of an event already mirrored for
	// entryID, or "" when there is none.
	FindEventByEntryID(ctx context.Context, entryID string) (string, error)
}

// CommitmentSource lists existing calendar events the planner must work around.
type CommitmentSource interface {
	Commitments(ctx context.Context, from, to time.Time, limit int) ([]model.Commitment, error)
}

// Planner proposes placements for pending tasks.
type Planner interface {
	ProposeSchedule(ctx context.Context, tasks []model.Task, commitments []model.Commitment, now time.Time) ([]model.Proposal, error)
}

// Notifier delivers a message and returns a delivery id.
type Notifier interface {
	Deliver(ctx context.Context, subject, body, recipient string) (string, error)
}

// RowSource yields task rows for import and the number of rows it had to skip.
type RowSource interface {
	Rows(ctx context.Context) ([]model.TaskFields, int, error)
}

type Config struct {
	Strict              bool
	PlanLimit           int
	CommitmentLimit     int
	Horizon             time.Duration
	CollaboratorTimeout time.Duration
	Recipient           string
}

type Service struct {
	store       *store.Store
	cfg         Config
	mirror      Mirror
	planner     Planner
	commitments CommitmentSource
	notifier    Notifier
	now         func() time.Time
	loc         *time.Location
	log         *log.Logger
}

type Option func(*Service)

func WithMirror(m Mirror) Option { return func(s *Service) { s.mirror = m } }
func WithPlanner(p Planner) Option { return func(s *Service) { s.planner = p } }
func WithCommitments(c CommitmentSource) Option { return func(s *Service) { s.commitments = c } }
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithLogger(l *log.Logger) Option { return func(s *Service) { s.log = l } }

// WithLocation sets the zone used for proposal times written without an offset.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func New(st *store.Store, cfg Config, opts ...Option) *Service {
	if cfg.PlanLimit <= 0 {
		cfg.PlanLimit = 5
	}
	if cfg.CommitmentLimit <= 0 {
		cfg.CommitmentLimit = 10
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 7 * 24 * time.Hour
	}
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = 2 * time.Minute
	}
	s := &Service{
		store: st,
		cfg:   cfg,
		now:   time.Now,
		loc:   time.Local,
		log:   log.New(os.Stderr, "[scheduler] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Placement is a stored entry and the outcome of mirroring it. MirrorError is
// set when the entry was saved but the calendar could not be updated.
type Placement struct {
	Entry       model.ScheduleEntry `json:"entry"`
	MirrorError string              `json:"mirror_error,omitempty"`
}

// Schedule creates an entry for taskID, rejecting it with a ConflictError when
// iv overlaps an existing entry.
func (s *Service) Schedule(ctx context.Context, taskID string, iv model.Interval) (Placement, error) {
	if err := iv.Validate(); err != nil {
		return Placement{}, err
	}

	var entry model.ScheduleEntry
	var task model.Task
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := conflict.NewDetector(tx).Check(ctx, iv, ""); err != nil {
			return err
		}
		var err error
		if entry, err = tx.CreateEntry(ctx, taskID, iv); err != nil {
			return err
		}
		task, err = tx.GetTask(ctx, taskID)
		return err
	})
	if err != nil {
		return Placement{}, err
	}
	return s.mirrorCreated(ctx, entry, task, ""), nil
}

// UpdateEntry applies patch. Moving an entry is checked for conflicts against
// every other entry and re-synced to the calendar.
func (s *Service) UpdateEntry(ctx context.Context, id string, patch model.SchedulePatch) (Placement, error) {
	var entry model.ScheduleEntry
	var task model.Task
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		current, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if patch.MovesInterval() {
			iv := current.Interval()
			if patch.ScheduledStart != nil {
				iv.Start = *patch.ScheduledStart
			}
			if patch.ScheduledEnd != nil {
				iv.End = *patch.ScheduledEnd
			}
			if err := iv.Validate(); err != nil {
				return err
			}
			if err := conflict.NewDetector(tx).Check(ctx, iv, id); err != nil {
				return err
			}
		}
		if entry, err = tx.UpdateEntry(ctx, id, patch); err != nil {
			return err
		}
		task, err = tx.GetTask(ctx, entry.TaskID)
		return err
	})
	if err != nil {
		return Placement{}, err
	}

	if !patch.MovesInterval() || s.mirror == nil {
		return Placement{Entry: entry}, nil
	}
	if entry.CalendarRef == "" {
		ref, err := s.recoverRef(ctx, entry)
		if err != nil {
			s.log.Printf("could not look up calendar event for entry %s: %v", entry.ID, err)
		}
		if ref == "" {
			return s.mirrorCreated(ctx, entry, task, ""), nil
		}
		entry.CalendarRef = ref
	}

	p := Placement{Entry: entry}
	mctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	if err := s.mirror.UpdateEvent(mctx, entry.CalendarRef, calendarEvent(entry, task, "")); err != nil {
		cerr := &model.CollaboratorError{Collaborator: "calendar", Op: "update_event", Err: err}
		s.log.Printf("entry %s moved, calendar re-sync failed: %v", entry.ID, cerr)
		p.MirrorError = cerr.Error()
	}
	return p, nil
}

// DeleteEntry removes an entry and then its calendar event, best-effort.
func (s *Service) DeleteEntry(ctx context.Context, id string) (Placement, error) {
	entry, err := s.store.DeleteEntry(ctx, id)
	if err != nil {
		return Placement{}, err
	}
	p := Placement{Entry: entry}
	if entry.CalendarRef == "" || s.mirror == nil {
		return p, nil
	}

	mctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	if err := s.mirror.DeleteEvent(mctx, entry.CalendarRef); err != nil {
		cerr := &model.CollaboratorError{Collaborator: "calendar", Op: "delete_event", Err: err}
		s.log.Printf("entry %s deleted, calendar event %s left behind: %v", entry.ID, entry.CalendarRef, cerr)
		p.MirrorError = cerr.Error()
	}
	return p, nil
}

// Complete marks an entry and its task completed.
func (s *Service) Complete(ctx context.Context, id string) (model.ScheduleEntry, error) {
	return s.store.MarkCompleted(ctx, id)
}

// Conflicts lists the entries overlapping iv.
func (s *Service) Conflicts(ctx context.Context, iv model.Interval) ([]model.ScheduleEntry, error) {
	if err := iv.Validate(); err != nil {
		return nil, err
	}
	return conflict.NewDetector(s.store).Conflicts(ctx, iv)
}

// Upcoming lists entries starting within the next days.
func (s *Service) Upcoming(ctx context.Context, days int) ([]model.ScheduleEntry, error) {
	if days <= 0 {
		return nil, &model.ValidationError{Field: "days", Reason: "must be positive"}
	}
	now := s.now()
	return s.store.ListInRange(ctx, now, now.Add(time.Duration(days)*24*time.Hour))
}

// FlagMissed marks the calendar events of entries that ended within the last
// day without being completed by prefixing their title with "! ". It returns
// the number of events updated.
func (s *Service) FlagMissed(ctx context.Context) (int, error) {
	if s.mirror == nil {
		return 0, nil
	}
	now := s.now()
	entries, err := s.store.ListInRange(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, e := range entries {
		if e.IsCompleted || e.CalendarRef == "" || e.ScheduledEnd.After(now) {
			continue
		}
		task, err := s.store.GetTask(ctx, e.TaskID)
		if err != nil {
			return flagged, err
		}
		if !task.Status.Open() {
			continue
		}

		mctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
		err = s.mirror.UpdateEvent(mctx, e.CalendarRef, calendarEvent(e, task, "! "+task.Title))
		cancel()
		if err != nil {
			s.log.Printf("could not flag missed entry %s: %v", e.ID, &model.CollaboratorError{Collaborator: "calendar", Op: "update_event", Err: err})
			continue
		}
		flagged++
	}
	return flagged, nil
}

// ImportResult summarises one import run.
type ImportResult struct {
	Imported []model.Task `json:"imported"`
	Skipped  int          `json:"skipped"`
}

// Import reads rows from src and stores the ones not already present.
func (s *Service) Import(ctx context.Context, src RowSource) (ImportResult, error) {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	rows, skipped, err := src.Rows(rctx)
	if err != nil {
		return ImportResult{}, &model.CollaboratorError{Collaborator: "import", Op: "read_rows", Err: err}
	}
	tasks, err := s.store.ImportTasks(ctx, rows)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Imported: tasks, Skipped: skipped + len(rows) - len(tasks)}
	s.log.Printf("imported %d tasks, skipped %d rows", len(res.Imported), res.Skipped)
	return res, nil
}

// Remind sends a reminder about one task to the configured recipient.
func (s *Service) Remind(ctx context.Context, taskID string) (string, error) {
	if s.notifier == nil {
		return "", fmt.Errorf("no notifier configured")
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}

	nctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	id, err := s.notifier.Deliver(nctx, "Task Reminder: "+task.Title, reminderBody(task), s.cfg.Recipient)
	if err != nil {
		return "", &model.CollaboratorError{Collaborator: "notifier", Op: "deliver", Err: err}
	}
	return id, nil
}

func reminderBody(t model.Task) string {
	body := fmt.Sprintf("Reminder: %s\n", t.Title)
	if t.Description != "" {
		body += fmt.Sprintf("\n%s\n", t.Description)
	}
	body += fmt.Sprintf("\nPriority: %d\nStatus: %s\n", t.Priority, t.Status)
	if t.DueDate != nil {
		body += fmt.Sprintf("Due: %s\n", t.DueDate.In(time.Local).Format("2006-01-02 15:04"))
	}
	return body
}

// mirrorCreated mirrors a freshly stored entry and records the event reference.
// Failures leave the reference empty.
func (s *Service) mirrorCreated(ctx context.Context, entry model.ScheduleEntry, task model.Task, title string) Placement {
	p := Placement{Entry: entry}
	if s.mirror == nil {
		return p
	}

	mctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	ref, err := s.mirror.CreateEvent(mctx, calendarEvent(entry, task, title))
	if err != nil {
		cerr := &model.CollaboratorError{Collaborator: "calendar", Op: "create_event", Err: err}
		s.log.Printf("entry %s saved, mirroring failed: %v", entry.ID, cerr)
		p.MirrorError = cerr.Error()
		return p
	}
	if err := s.store.SetCalendarRef(ctx, entry.ID, ref); err != nil {
		s.log.Printf("could not record calendar event %s for entry %s: %v", ref, entry.ID, err)
		p.MirrorError = err.Error()
		return p
	}
	p.Entry.CalendarRef = ref
	return p
}

// recoverRef finds an event mirrored earlier whose ref was never recorded,
// for example when the create call timed out after the calendar stored it.
func (s *Service) recoverRef(ctx context.Context, entry model.ScheduleEntry) (string, error) {
	mctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	ref, err := s.mirror.FindEventByEntryID(mctx, entry.ID)
	if err != nil {
		return "", &model.CollaboratorError{Collaborator: "calendar", Op: "find_event", Err: err}
	}
	if ref == "" {
		return "", nil
	}
	if err := s.store.SetCalendarRef(ctx, entry.ID, ref); err != nil {
		return "", err
	}
	s.log.Printf("recovered calendar event %s for entry %s", ref, entry.ID)
	return ref, nil
}

func calendarEvent(entry model.ScheduleEntry, task model.Task, title string) model.CalendarEvent {
	if title == "" {
		title = task.Title
	}
	return model.CalendarEvent{
		EntryID:  entry.ID,
		TaskID:   entry.TaskID,
		Title:    title,
		Priority: task.Priority,
		Interval: entry.Interval(),
	}
}
