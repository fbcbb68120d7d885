// Package monitor runs recurring checks over the task and schedule stores and
// delivers digests through a Notifier.
package monitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/model"
)

// Source is the read side of the store the checks need.
type Source interface {
	ListInRange(ctx context.Context, from, to time.Time) ([]model.ScheduleEntry, error)
	GetTask(ctx context.Context, id string) (model.Task, error)
	OverdueTasks(ctx context.Context) ([]model.Task, error)
}

// Notifier delivers a message and returns a delivery id.
type Notifier interface {
	Deliver(ctx context.Context, subject, body, recipient string) (string, error)
}

// Message is a notification produced by a check.
type Message struct {
	Subject string
	Body    string
}

// Check is one recurring job. Run returns nil when there is nothing to send.
type Check struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context, src Source, now time.Time) (*Message, error)
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

type Config struct {
	PollInterval time.Duration
	CheckTimeout time.Duration
	Daily        Clock
	Evening      Clock
	OverdueEvery time.Duration
	Recipient    string
	Location     *time.Location
}

// DefaultChecks returns the daily agenda, evening review and overdue sweep.
func DefaultChecks(cfg Config) []Check {
	return []Check{
		{Name: "daily", Schedule: DailyAt{Hour: cfg.Daily.Hour, Minute: cfg.Daily.Minute, Loc: cfg.Location}, Run: DailyAgenda},
		{Name: "evening", Schedule: DailyAt{Hour: cfg.Evening.Hour, Minute: cfg.Evening.Minute, Loc: cfg.Location}, Run: EveningReview},
		{Name: "overdue", Schedule: Every(cfg.OverdueEvery), Run: OverdueSweep},
	}
}

type entry struct {
	check Check
	next  time.Time
}

// Monitor polls its checks and runs the ones that are due. It is stopped
// until Start is called.
type Monitor struct {
	src       Source
	notifier  Notifier
	recipient string
	poll      time.Duration
	timeout   time.Duration
	loc       *time.Location
	now       func() time.Time
	log       *log.Logger

	runMu   sync.Mutex
	entries []*entry

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

type Option func(*Monitor)

// WithChecks replaces the default checks.
func WithChecks(checks ...Check) Option {
	return func(m *Monitor) {
		m.entries = nil
		for _, c := range checks {
			m.entries = append(m.entries, &entry{check: c})
		}
	}
}

func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

func WithLogger(l *log.Logger) Option { return func(m *Monitor) { m.log = l } }

func New(src Source, notifier Notifier, cfg Config, opts ...Option) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 30 * time.Second
	}
	if cfg.OverdueEvery <= 0 {
		cfg.OverdueEvery = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	m := &Monitor{
		src:       src,
		notifier:  notifier,
		recipient: cfg.Recipient,
		poll:      cfg.PollInterval,
		timeout:   cfg.CheckTimeout,
		loc:       cfg.Location,
		now:       time.Now,
		log:       log.New(os.Stderr, "[monitor] ", log.LstdFlags),
	}
	WithChecks(DefaultChecks(cfg)...)(m)
	for _, opt := range opts {
		opt(m)
	}

	now := m.localNow()
	for _, e := range m.entries {
		e.next = e.check.Schedule.Next(now)
	}
	return m
}

// Start launches the poll loop. Calling it while running does nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(m.stop, m.done)
	m.log.Printf("started, polling every %s", m.poll)
}

// Stop signals the loop and waits for it to exit. A check already running
// finishes first. Calling it while stopped does nothing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	m.log.Println("stopped")
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop != nil
}

func (m *Monitor) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Tick(context.Background())
		}
	}
}

// Tick runs every check that is due and schedules its next run. Failures
// are logged and never stop later checks.
func (m *Monitor) Tick(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	now := m.localNow()
	for _, e := range m.entries {
		if now.Before(e.next) {
			continue
		}
		m.run(ctx, e.check, now)
		e.next = e.check.Schedule.Next(now)
	}
}

// RunCheck runs the named check immediately without changing its schedule.
func (m *Monitor) RunCheck(ctx context.Context, name string) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	for _, e := range m.entries {
		if e.check.Name == name {
			return m.run(ctx, e.check, m.localNow())
		}
	}
	return &model.NotFoundError{Kind: "check", ID: name}
}

// NextRuns reports when each check is next due.
func (m *Monitor) NextRuns() map[string]time.Time {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	out := make(map[string]time.Time, len(m.entries))
	for _, e := range m.entries {
		out[e.check.Name] = e.next
	}
	return out
}

// run executes one check. A panicking check is reported as an error so the
// poll loop keeps going.
func (m *Monitor) run(ctx context.Context, c Check, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Printf("check %s panicked: %v", c.Name, r)
			err = fmt.Errorf("check %s panicked: %v", c.Name, r)
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	msg, err := c.Run(cctx, m.src, now)
	if err != nil {
		m.log.Printf("check %s failed: %v", c.Name, err)
		return fmt.Errorf("check %s: %w", c.Name, err)
	}
	if msg == nil {
		return nil
	}
	if m.notifier == nil {
		m.log.Printf("check %s has a message but no notifier is configured", c.Name)
		return nil
	}
	id, err := m.notifier.Deliver(cctx, msg.Subject, msg.Body, m.recipient)
	if err != nil {
		cerr := &model.CollaboratorError{Collaborator: "notifier", Op: "deliver", Err: err}
		m.log.Printf("check %s: %v", c.Name, cerr)
		return cerr
	}
	m.log.Printf("check %s delivered %q (%s)", c.Name, msg.Subject, id)
	return nil
}

func (m *Monitor) localNow() time.Time {
	return m.now().In(m.loc)
}
