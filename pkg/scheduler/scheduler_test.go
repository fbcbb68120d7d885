package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/model"
	"github.com/harrisonrobin/taskplan/pkg/store"

	_ "modernc.org/sqlite"
)

var start = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

type fakeMirror struct {
	mu       sync.Mutex
	created  []model.CalendarEvent
	updated  map[string]model.CalendarEvent
	deleted  []string
	failWith error
	next     int
	// byEntry holds events the calendar knows about but the store has no ref for.
	byEntry  map[string]string
	searched []string
}

func (m *fakeMirror) CreateEvent(_ context.Context, ev model.CalendarEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return "", m.failWith
	}
	m.next++
	m.created = append(m.created, ev)
	return fmt.Sprintf("evt-%d", m.next), nil
}

func (m *fakeMirror) UpdateEvent(_ context.Context, ref string, ev model.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if m.updated == nil {
		m.updated = map[string]model.CalendarEvent{}
	}
	m.updated[ref] = ev
	return nil
}

func (m *fakeMirror) DeleteEvent(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.deleted = append(m.deleted, ref)
	return nil
}

func (m *fakeMirror) FindEventByEntryID(_ context.Context, entryID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searched = append(m.searched, entryID)
	if m.failWith != nil {
		return "", m.failWith
	}
	return m.byEntry[entryID], nil
}

type fakePlanner struct {
	proposals   []model.Proposal
	err         error
	tasks       []model.Task
	commitments []model.Commitment
}

func (p *fakePlanner) ProposeSchedule(_ context.Context, tasks []model.Task, commitments []model.Commitment, _ time.Time) ([]model.Proposal, error) {
	p.tasks = tasks
	p.commitments = commitments
	return p.proposals, p.err
}

type fakeCommitments struct {
	items []model.Commitment
	err   error
	limit int
}

func (c *fakeCommitments) Commitments(_ context.Context, _, _ time.Time, limit int) ([]model.Commitment, error) {
	c.limit = limit
	return c.items, c.err
}

type fakeNotifier struct {
	subjects   []string
	bodies     []string
	recipients []string
	err        error
}

func (n *fakeNotifier) Deliver(_ context.Context, subject, body, recipient string) (string, error) {
	if n.err != nil {
		return "", n.err
	}
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	n.recipients = append(n.recipients, recipient)
	return "msg-1", nil
}

type fakeRows struct {
	rows    []model.TaskFields
	skipped int
	err     error
}

func (r fakeRows) Rows(context.Context) ([]model.TaskFields, int, error) {
	return r.rows, r.skipped, r.err
}

func newTestService(t *testing.T, cfg Config, opts ...Option) (*Service, *store.Store) {
	t.Helper()
	now := func() time.Time { return start }
	st, err := store.New(filepath.Join(t.TempDir(), "taskplan.db"), store.WithClock(now))
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	opts = append([]Option{WithClock(now), WithLocation(time.UTC), WithLogger(log.New(io.Discard, "", 0))}, opts...)
	return New(st, cfg, opts...), st
}

func mustTask(t *testing.T, st *store.Store, title string, priority int) model.Task {
	t.Helper()
	task, err := st.CreateTask(context.Background(), model.TaskFields{Title: title, Priority: priority})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	return task
}

func at(h, m int) time.Time {
	return time.Date(2024, 5, 6, h, m, 0, 0, time.UTC)
}

func rfc(h, m int) string {
	return at(h, m).Format(time.RFC3339)
}

func TestReconcileNonStrictPersistsBoth(t *testing.T) {
	svc, st := newTestService(t, Config{})
	task := mustTask(t, st, "Report", 3)
	ctx := context.Background()

	res, err := svc.Reconcile(ctx, []model.Proposal{
		{TaskID: task.ID, Start: rfc(10, 0), End: rfc(11, 0), Title: "Report part 1"},
		{TaskID: task.ID, Start: rfc(14, 0), End: rfc(15, 0), Title: "Report part 2"},
		{TaskID: task.ID, Start: rfc(14, 30), End: rfc(15, 30)},
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(res.Created) != 3 {
		t.Fatalf("Non-strict mode should persist every valid proposal, got %d", len(res.Created))
	}
	if !res.Created[0].Entry.ScheduledStart.Equal(at(10, 0)) || !res.Created[1].Entry.ScheduledStart.Equal(at(14, 0)) {
		t.Errorf("Entries not created in input order: %+v", res.Created)
	}

	entries, err := st.EntriesForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("EntriesForTask failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Expected 3 stored entries, got %d", len(entries))
	}
}

func TestReconcileStrictReportsOverlap(t *testing.T) {
	svc, st := newTestService(t, Config{Strict: true})
	task := mustTask(t, st, "Report", 3)
	ctx := context.Background()

	res, err := svc.Reconcile(ctx, []model.Proposal{
		{TaskID: task.ID, Start: rfc(10, 0), End: rfc(11, 0)},
		{TaskID: task.ID, Start: rfc(10, 30), End: rfc(11, 30)},
		{TaskID: task.ID, Start: rfc(11, 0), End: rfc(12, 0)},
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(res.Created) != 2 {
		t.Fatalf("Expected first and touching third proposal to be stored, got %d", len(res.Created))
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Index != 1 {
		t.Fatalf("Expected second proposal reported as conflict, got %+v", res.Conflicts)
	}
	if len(res.Conflicts[0].Entries) != 1 || res.Conflicts[0].Entries[0].ID != res.Created[0].Entry.ID {
		t.Errorf("Conflict should name the entry created earlier in the batch: %+v", res.Conflicts[0].Entries)
	}
}

func TestReconcileSkipsAndRejects(t *testing.T) {
	svc, st := newTestService(t, Config{})
	task := mustTask(t, st, "Report", 3)

	res, err := svc.Reconcile(context.Background(), []model.Proposal{
		{Start: rfc(9, 0), End: rfc(10, 0)},
		{TaskID: task.ID, End: rfc(10, 0)},
		{TaskID: task.ID, Start: "tomorrow morning", End: rfc(10, 0)},
		{TaskID: task.ID, Start: rfc(10, 0), End: rfc(10, 0)},
		{TaskID: "no-such-task", Start: rfc(10, 0), End: rfc(11, 0)},
		{TaskID: task.ID, Start: "2024-05-06 16:00", End: "2024-05-06T17:00:00"},
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Skipped != 2 {
		t.Errorf("Expected 2 skipped proposals, got %d", res.Skipped)
	}
	if len(res.Rejected) != 3 {
		t.Fatalf("Expected 3 rejections, got %+v", res.Rejected)
	}
	if !strings.Contains(res.Rejected[2].Reason, "unknown task") {
		t.Errorf("Expected unknown task reason, got %q", res.Rejected[2].Reason)
	}
	if len(res.Created) != 1 || !res.Created[0].Entry.ScheduledStart.Equal(at(16, 0)) {
		t.Errorf("Expected the fallback-layout proposal to be stored, got %+v", res.Created)
	}
}

func TestReconcileMirrorsBestEffort(t *testing.T) {
	mirror := &fakeMirror{}
	svc, st := newTestService(t, Config{}, WithMirror(mirror))
	task := mustTask(t, st, "Report", 4)
	ctx := context.Background()

	res, err := svc.Reconcile(ctx, []model.Proposal{
		{TaskID: task.ID, Start: rfc(10, 0), End: rfc(11, 0), Title: "Draft report"},
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	placed := res.Created[0]
	if placed.Entry.CalendarRef != "evt-1" || placed.MirrorError != "" {
		t.Fatalf("Expected mirrored entry, got %+v", placed)
	}
	stored, err := st.GetEntry(ctx, placed.Entry.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if stored.CalendarRef != "evt-1" {
		t.Errorf("Expected stored ref evt-1, got %q", stored.CalendarRef)
	}
	if mirror.created[0].Title != "Draft report" || mirror.created[0].Priority != 4 {
		t.Errorf("Unexpected mirrored event: %+v", mirror.created[0])
	}

	mirror.failWith = errors.New("calendar unavailable")
	res, err = svc.Reconcile(ctx, []model.Proposal{
		{TaskID: task.ID, Start: rfc(12, 0), End: rfc(13, 0)},
	})
	if err != nil {
		t.Fatalf("Mirror failures must not fail reconciliation: %v", err)
	}
	placed = res.Created[0]
	if placed.Entry.CalendarRef != "" || placed.MirrorError == "" {
		t.Errorf("Expected unmirrored entry with error, got %+v", placed)
	}
	if _, err := st.GetEntry(ctx, placed.Entry.ID); err != nil {
		t.Errorf("Entry should be persisted despite mirror failure: %v", err)
	}
}

func TestReconcileRollsBackOnStorageFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskplan.db")
	now := func() time.Time { return start }
	st, err := store.New(path, store.WithClock(now))
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	task := mustTask(t, st, "Report", 3)

	// Fail every insert after the first so the batch breaks halfway through.
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	_, err = db.Exec(`CREATE TRIGGER fail_second_entry BEFORE INSERT ON schedule_entries
		WHEN (SELECT COUNT(*) FROM schedule_entries) >= 1
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	db.Close()
	if err != nil {
		t.Fatalf("CREATE TRIGGER failed: %v", err)
	}

	mirror := &fakeMirror{}
	svc := New(st, Config{}, WithClock(now), WithLocation(time.UTC), WithLogger(log.New(io.Discard, "", 0)), WithMirror(mirror))
	ctx := context.Background()

	_, err = svc.Reconcile(ctx, []model.Proposal{
		{TaskID: task.ID, Start: rfc(10, 0), End: rfc(11, 0)},
		{TaskID: task.ID, Start: rfc(12, 0), End: rfc(13, 0)},
	})
	var serr *model.StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("Expected StorageError, got %v", err)
	}

	entries, err := st.EntriesForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("EntriesForTask failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected the whole batch rolled back, got %d entries", len(entries))
	}
	if len(mirror.created) != 0 {
		t.Errorf("Expected no calendar calls for a failed batch, got %+v", mirror.created)
	}
}

func TestScheduleRejectsConflicts(t *testing.T) {
	svc, st := newTestService(t, Config{})
	task := mustTask(t, st, "Report", 3)
	ctx := context.Background()

	first, err := svc.Schedule(ctx, task.ID, model.Interval{Start: at(10, 0), End: at(11, 0)})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if _, err := svc.Schedule(ctx, task.ID, model.Interval{Start: at(11, 0), End: at(12, 0)}); err != nil {
		t.Fatalf("Touching intervals must not conflict: %v", err)
	}

	_, err = svc.Schedule(ctx, task.ID, model.Interval{Start: at(10, 30), End: at(10, 45)})
	var cerr *model.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected ConflictError, got %v", err)
	}
	if len(cerr.Entries) != 1 || cerr.Entries[0].ID != first.Entry.ID {
		t.Errorf("Expected conflict with first entry, got %+v", cerr.Entries)
	}

	_, err = svc.Schedule(ctx, "missing", model.Interval{Start: at(15, 0), End: at(16, 0)})
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("Expected ValidationError for unknown task, got %v", err)
	}
	_, err = svc.Schedule(ctx, task.ID, model.Interval{Start: at(16, 0), End: at(15, 0)})
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("Expected ValidationError for inverted interval, got %v", err)
	}
}

func TestUpdateEntryResyncsCalendar(t *testing.T) {
	mirror := &fakeMirror{}
	svc, st := newTestService(t, Config{}, WithMirror(mirror))
	task := mustTask(t, st, "Report", 3)
	ctx := context.Background()

	a, err := svc.Schedule(ctx, task.ID, model.Interval{Start: at(10, 0), End: at(11, 0)})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if _, err := svc.Schedule(ctx, task.ID, model.Interval{Start: at(13, 0), End: at(14, 0)}); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	newStart, newEnd := at(10, 30), at(11, 30)
	moved, err := svc.UpdateEntry(ctx, a.Entry.ID, model.SchedulePatch{ScheduledStart: &newStart, ScheduledEnd: &newEnd})
	if err != nil {
		t.Fatalf("Moving an entry over its own slot must not conflict: %v", err)
	}
	if !moved.Entry.ScheduledStart.Equal(newStart) {
		t.Errorf("Expected new start, got %v", moved.Entry.ScheduledStart)
	}
	ev, ok := mirror.updated[a.Entry.CalendarRef]
	if !ok || !ev.Interval.Start.Equal(newStart) {
		t.Errorf("Expected calendar re-sync with new interval, got %+v", mirror.updated)
	}

	clash := at(13, 30)
	_, err = svc.UpdateEntry(ctx, a.Entry.ID, model.SchedulePatch{ScheduledEnd: &clash, ScheduledStart: &newStart})
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("Expected ConflictError moving onto another entry, got %v", err)
	}

	done := true
	if _, err := svc.UpdateEntry(ctx, a.Entry.ID, model.SchedulePatch{IsCompleted: &done}); err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}
	if len(mirror.updated) != 1 {
		t.Errorf("Completion alone should not touch the calendar, got %d updates", len(mirror.updated))
	}
	got, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != model.COMPLETED {
		t.Errorf("Expected task completed, got %s", got.Status)
	}
}

func TestUpdateEntryRecoversUnrecordedEvent(t *testing.T) {
	mirror := &fakeMirror{failWith: errors.New("timeout")}
	svc, st := newTestService(t, Config{}, WithMirror(mirror))
	task := mustTask(t, st, "Report", 3)
	ctx := context.Background()

	lost, err := svc.Schedule(ctx, task.ID, model.Interval{Start: at(10, 0), End: at(11, 0)})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	fresh, err := svc.Schedule(ctx, task.ID, model.Interval{Start: at(13, 0), End: at(14, 0)})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if lost.Entry.CalendarRef != "" || fresh.Entry.CalendarRef != "" {
		t.Fatalf("Expected unmirrored entries, got %+v and %+v", lost.Entry, fresh.Entry)
	}

	// The calendar stored the first event even though the create call failed.
	mirror.failWith = nil
	mirror.byEntry = map[string]string{lost.Entry.ID: "evt-lost"}

	newStart, newEnd := at(10, 30), at(11, 30)
	moved, err := svc.UpdateEntry(ctx, lost.Entry.ID, model.SchedulePatch{ScheduledStart: &newStart, ScheduledEnd: &newEnd})
	if err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}
	if moved.Entry.CalendarRef != "evt-lost" || moved.MirrorError != "" {
		t.Errorf("Expected existing event relinked, got %+v", moved)
	}
	if len(mirror.created) != 0 {
		t.Errorf("Expected no duplicate event, got %+v", mirror.created)
	}
	ev, ok := mirror.updated["evt-lost"]
	if !ok || !ev.Interval.Start.Equal(newStart) {
		t.Errorf("Expected existing event moved, got %+v", mirror.updated)
	}
	stored, err := st.GetEntry(ctx, lost.Entry.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if stored.CalendarRef != "evt-lost" {
		t.Errorf("Expected stored ref evt-lost, got %q", stored.CalendarRef)
	}

	newStart, newEnd = at(14, 0), at(15, 0)
	moved, err = svc.UpdateEntry(ctx, fresh.Entry.ID, model.SchedulePatch{ScheduledStart: &newStart, ScheduledEnd: &newEnd})
	if err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}
	if moved.Entry.CalendarRef != "evt-1" || len(mirror.created) != 1 {
		t.Errorf("Expected a new event when none exists, got %+v and %d creates", moved.Entry, len(mirror.created))
	}
	if len(mirror.searched) != 2 {
		t.Errorf("Expected a lookup per unmirrored entry, got %v", mirror.searched)
	}
}

func TestDeleteEntryBestEffort(t *testing.T) {
	mirror := &fakeMirror{}
	svc, st := newTestService(t, Config{}, WithMirror(mirror))
	task := mustTask(t, st, "Report", 3)
	ctx := context.Background()

	a, err := svc.Schedule(ctx, task.ID, model.Interval{Start: at(10, 0), End: at(11, 0)})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if _, err := svc.DeleteEntry(ctx, a.Entry.ID); err != nil {
		t.Fatalf("DeleteEntry failed: %v", err)
	}
	if len(mirror.deleted) != 1 || mirror.deleted[0] != a.Entry.CalendarRef {
		t.Errorf("Expected calendar delete of %s, got %v", a.Entry.CalendarRef, mirror.deleted)
	}

	b, err := svc.Schedule(ctx, task.ID, model.Interval{Start: at(12, 0), End: at(13, 0)})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	mirror.failWith = errors.New("calendar unavailable")
	p, err := svc.DeleteEntry(ctx, b.Entry.ID)
	if err != nil {
		t.Fatalf("Calendar failure must not fail delete: %v", err)
	}
	if p.MirrorError == "" {
		t.Error("Expected mirror error to be reported")
	}
	if _, err := st.GetEntry(ctx, b.Entry.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Entry should be gone, got %v", err)
	}

	if _, err := svc.DeleteEntry(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestGenerate(t *testing.T) {
	planner := &fakePlanner{}
	commitments := &fakeCommitments{items: []model.Commitment{{Title: "Standup", Start: at(9, 0), End: at(9, 15)}}}
	svc, st := newTestService(t, Config{PlanLimit: 2, CommitmentLimit: 4}, WithPlanner(planner), WithCommitments(commitments))
	ctx := context.Background()

	low := mustTask(t, st, "Low", 1)
	high := mustTask(t, st, "High", 5)
	mid := mustTask(t, st, "Mid", 3)
	_ = low

	planner.proposals = []model.Proposal{
		{TaskID: high.ID, Start: rfc(10, 0), End: rfc(11, 0), Title: "High"},
		{TaskID: mid.ID, Start: rfc(11, 0), End: rfc(12, 0), Title: "Mid"},
	}
	res, err := svc.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(res.Created) != 2 {
		t.Errorf("Expected 2 entries, got %+v", res)
	}
	if len(planner.tasks) != 2 || planner.tasks[0].ID != high.ID || planner.tasks[1].ID != mid.ID {
		t.Errorf("Planner should get the top 2 tasks by priority, got %+v", planner.tasks)
	}
	if len(planner.commitments) != 1 || commitments.limit != 4 {
		t.Errorf("Planner should get calendar commitments, got %+v (limit %d)", planner.commitments, commitments.limit)
	}

	commitments.err = errors.New("calendar down")
	planner.proposals = nil
	if _, err := svc.Generate(ctx); err != nil {
		t.Errorf("Commitment failure should not stop planning: %v", err)
	}
	if planner.commitments != nil {
		t.Errorf("Expected no commitments after failure, got %+v", planner.commitments)
	}

	planner.err = errors.New("model offline")
	_, err = svc.Generate(ctx)
	var cerr *model.CollaboratorError
	if !errors.As(err, &cerr) || cerr.Collaborator != "planner" {
		t.Errorf("Expected planner CollaboratorError, got %v", err)
	}
}

func TestGenerateWithoutPendingTasks(t *testing.T) {
	planner := &fakePlanner{}
	svc, _ := newTestService(t, Config{}, WithPlanner(planner))

	res, err := svc.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(res.Created) != 0 || planner.tasks != nil {
		t.Errorf("Planner should not be called without pending tasks")
	}
}

func TestImport(t *testing.T) {
	svc, st := newTestService(t, Config{})
	mustTask(t, st, "Existing", 2)

	src := fakeRows{
		rows: []model.TaskFields{
			{Title: "Existing"},
			{Title: "Fresh", Priority: 4, OriginRef: "row:3"},
		},
		skipped: 1,
	}
	res, err := svc.Import(context.Background(), src)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(res.Imported) != 1 || res.Imported[0].Title != "Fresh" {
		t.Errorf("Expected only Fresh imported, got %+v", res.Imported)
	}
	if res.Skipped != 2 {
		t.Errorf("Expected 2 skipped rows, got %d", res.Skipped)
	}

	_, err = svc.Import(context.Background(), fakeRows{err: errors.New("quota")})
	var cerr *model.CollaboratorError
	if !errors.As(err, &cerr) {
		t.Errorf("Expected CollaboratorError, got %v", err)
	}
}

func TestRemind(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, st := newTestService(t, Config{Recipient: "me@example.com"}, WithNotifier(notifier))
	task := mustTask(t, st, "Call bank", 4)
	ctx := context.Background()

	id, err := svc.Remind(ctx, task.ID)
	if err != nil {
		t.Fatalf("Remind failed: %v", err)
	}
	if id != "msg-1" {
		t.Errorf("Expected msg-1, got %s", id)
	}
	if notifier.subjects[0] != "Task Reminder: Call bank" || notifier.recipients[0] != "me@example.com" {
		t.Errorf("Unexpected delivery: %v %v", notifier.subjects, notifier.recipients)
	}
	if !strings.Contains(notifier.bodies[0], "Priority: 4") {
		t.Errorf("Expected priority in body: %s", notifier.bodies[0])
	}

	if _, err := svc.Remind(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestUpcoming(t *testing.T) {
	svc, st := newTestService(t, Config{})
	task := mustTask(t, st, "Report", 3)
	ctx := context.Background()

	for _, d := range []int{0, 2, 9} {
		s := start.Add(time.Duration(d)*24*time.Hour + time.Hour)
		if _, err := st.CreateEntry(ctx, task.ID, model.Interval{Start: s, End: s.Add(time.Hour)}); err != nil {
			t.Fatalf("CreateEntry failed: %v", err)
		}
	}
	got, err := svc.Upcoming(ctx, 7)
	if err != nil {
		t.Fatalf("Upcoming failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 entries in the next 7 days, got %d", len(got))
	}
	if _, err := svc.Upcoming(ctx, 0); !errors.Is(err, model.ErrValidation) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestFlagMissed(t *testing.T) {
	mirror := &fakeMirror{}
	svc, st := newTestService(t, Config{}, WithMirror(mirror))
	ctx := context.Background()
	report := mustTask(t, st, "Report", 3)
	chores := mustTask(t, st, "Chores", 1)

	missed, err := svc.Schedule(ctx, report.ID, model.Interval{Start: at(6, 0), End: at(7, 0)})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	done, err := svc.Schedule(ctx, chores.ID, model.Interval{Start: at(7, 0), End: at(7, 30)})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if _, err := svc.Complete(ctx, done.Entry.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if _, err := svc.Schedule(ctx, report.ID, model.Interval{Start: at(7, 30), End: at(9, 0)}); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	n, err := svc.FlagMissed(ctx)
	if err != nil {
		t.Fatalf("FlagMissed failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 flagged entry, got %d", n)
	}
	ev, ok := mirror.updated[missed.Entry.CalendarRef]
	if !ok || ev.Title != "! Report" {
		t.Errorf("Expected missed entry to be flagged, got %+v", mirror.updated)
	}
}
