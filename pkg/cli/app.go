package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/auth"
	"github.com/harrisonrobin/taskplan/pkg/config"
	"github.com/harrisonrobin/taskplan/pkg/google"
	"github.com/harrisonrobin/taskplan/pkg/monitor"
	"github.com/harrisonrobin/taskplan/pkg/planner"
	"github.com/harrisonrobin/taskplan/pkg/scheduler"
	"github.com/harrisonrobin/taskplan/pkg/store"
)

// googleNeed says whether a command can run without the Google services.
type googleNeed int

const (
	googleNone googleNeed = iota
	googleOptional
	googleRequired
)

// app holds the collaborators built once per process.
type app struct {
	cfg    *config.Config
	store  *store.Store
	google *google.Services
	mirror *google.CalendarMirror
	mailer *google.Mailer
	sched  *scheduler.Service
}

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if calendarName != "" {
		cfg.Calendar = calendarName
	}
	return cfg, nil
}

func newApp(ctx context.Context, need googleNeed) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.New(cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: st}

	if need != googleNone && !offline {
		if err := a.connectGoogle(ctx); err != nil {
			if need == googleRequired {
				st.Close()
				return nil, err
			}
			log.Printf("Warning: continuing without Google Calendar: %v", err)
		}
	} else if need == googleRequired {
		st.Close()
		return nil, fmt.Errorf("this command needs Google access and cannot run with --offline")
	}

	opts := []scheduler.Option{scheduler.WithLogger(newLogger("[scheduler] "))}
	if a.mirror != nil {
		opts = append(opts, scheduler.WithMirror(a.mirror), scheduler.WithCommitments(a.mirror))
	}
	if a.mailer != nil {
		opts = append(opts, scheduler.WithNotifier(a.mailer))
	}
	p, err := planner.NewOllama(cfg.Ollama.Host, cfg.Ollama.Model, cfg.Scheduler.Horizon, nil, newLogger("[planner] "))
	if err != nil {
		st.Close()
		return nil, err
	}
	opts = append(opts, scheduler.WithPlanner(p))

	a.sched = scheduler.New(st, scheduler.Config{
		Strict:              cfg.Scheduler.Strict || strict,
		PlanLimit:           cfg.Scheduler.PlanLimit,
		CommitmentLimit:     cfg.Scheduler.CommitmentLimit,
		Horizon:             cfg.Scheduler.Horizon,
		CollaboratorTimeout: cfg.Scheduler.CollaboratorTimeout,
		Recipient:           cfg.Recipient,
	}, opts...)
	return a, nil
}

func (a *app) connectGoogle(ctx context.Context) error {
	client, err := auth.GetClient(ctx, authOptions(a.cfg), google.Scopes)
	if err != nil {
		return err
	}
	srv, err := google.NewServices(ctx, client)
	if err != nil {
		return err
	}
	calendarID, err := google.ResolveCalendarID(ctx, srv.Calendar, a.cfg.Calendar)
	if err != nil {
		return err
	}
	a.google = srv
	a.mirror = google.NewCalendarMirror(srv.Calendar, calendarID, newLogger("[google] "))
	a.mailer = google.NewMailer(srv.Gmail, a.cfg.Sender)
	return nil
}

func authOptions(cfg *config.Config) auth.Options {
	return auth.Options{
		CredentialsFile: cfg.Credentials,
		TokenFile:       cfg.Token,
		Subject:         cfg.Sender,
		Logger:          newLogger("[auth] "),
	}
}

// monitor builds the background monitor with the digest checks and the
// missed-slot sweep.
func (a *app) monitor() (*monitor.Monitor, error) {
	daily, err := clock(a.cfg.Monitor.DailyAt)
	if err != nil {
		return nil, err
	}
	evening, err := clock(a.cfg.Monitor.EveningAt)
	if err != nil {
		return nil, err
	}
	mcfg := monitor.Config{
		PollInterval: a.cfg.Monitor.PollInterval,
		CheckTimeout: a.cfg.Monitor.CheckTimeout,
		Daily:        daily,
		Evening:      evening,
		OverdueEvery: a.cfg.Monitor.OverdueEvery,
		Recipient:    a.cfg.Recipient,
		Location:     time.Local,
	}

	checks := monitor.DefaultChecks(mcfg)
	checks = append(checks, monitor.Check{
		Name:     "missed",
		Schedule: monitor.Every(a.cfg.Monitor.OverdueEvery),
		Run: func(ctx context.Context, _ monitor.Source, _ time.Time) (*monitor.Message, error) {
			_, err := a.sched.FlagMissed(ctx)
			return nil, err
		},
	})

	var notifier monitor.Notifier
	if a.mailer != nil {
		notifier = a.mailer
	}
	return monitor.New(a.store, notifier, mcfg,
		monitor.WithChecks(checks...),
		monitor.WithLogger(newLogger("[monitor] ")),
	), nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func clock(s string) (monitor.Clock, error) {
	h, m, err := config.ParseClock(s)
	if err != nil {
		return monitor.Clock{}, err
	}
	return monitor.Clock{Hour: h, Minute: m}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
