package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/conflict"
	"github.com/harrisonrobin/taskplan/pkg/model"
	"github.com/harrisonrobin/taskplan/pkg/store"
)

// proposalLayouts are tried in order; layouts without an offset use the service location.
var proposalLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Rejection is a proposal that could not be turned into an entry.
type Rejection struct {
	Index    int            `json:"index"`
	Proposal model.Proposal `json:"proposal"`
	Reason   string         `json:"reason"`
}

// ProposalConflict is a proposal refused in strict mode and the entries it overlaps.
type ProposalConflict struct {
	Index    int                   `json:"index"`
	Proposal model.Proposal        `json:"proposal"`
	Entries  []model.ScheduleEntry `json:"entries"`
}

// Result is the outcome of one reconciliation batch.
type Result struct {
	Created   []Placement        `json:"created"`
	Conflicts []ProposalConflict `json:"conflicts,omitempty"`
	Rejected  []Rejection        `json:"rejected,omitempty"`
	Skipped   int                `json:"skipped"`
}

type accepted struct {
	entry model.ScheduleEntry
	task  model.Task
	title string
}

// Reconcile persists proposals in input order within one transaction, then
// mirrors every created entry. A storage failure rolls back the whole batch.
// In strict mode a proposal overlapping any entry, including ones created
// earlier in the same batch, is reported as a conflict instead of stored.
func (s *Service) Reconcile(ctx context.Context, proposals []model.Proposal) (Result, error) {
	var res Result
	var created []accepted

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		res = Result{}
		created = created[:0]
		detector := conflict.NewDetector(tx)

		for i, p := range proposals {
			taskID := strings.TrimSpace(p.TaskID)
			if taskID == "" || strings.TrimSpace(p.Start) == "" || strings.TrimSpace(p.End) == "" {
				res.Skipped++
				continue
			}

			iv, err := s.parseInterval(p.Start, p.End)
			if err != nil {
				res.Rejected = append(res.Rejected, Rejection{Index: i, Proposal: p, Reason: err.Error()})
				continue
			}

			task, err := tx.GetTask(ctx, taskID)
			if errors.Is(err, model.ErrNotFound) {
				res.Rejected = append(res.Rejected, Rejection{Index: i, Proposal: p, Reason: "unknown task " + taskID})
				continue
			}
			if err != nil {
				return err
			}

			if s.cfg.Strict {
				overlaps, err := detector.Conflicts(ctx, iv)
				if err != nil {
					return err
				}
				if len(overlaps) > 0 {
					res.Conflicts = append(res.Conflicts, ProposalConflict{Index: i, Proposal: p, Entries: overlaps})
					continue
				}
			}

			entry, err := tx.CreateEntry(ctx, task.ID, iv)
			if err != nil {
				return err
			}
			created = append(created, accepted{entry: entry, task: task, title: strings.TrimSpace(p.Title)})
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	for _, a := range created {
		res.Created = append(res.Created, s.mirrorCreated(ctx, a.entry, a.task, a.title))
	}
	s.log.Printf("reconciled %d proposals: %d created, %d conflicts, %d rejected, %d skipped",
		len(proposals), len(res.Created), len(res.Conflicts), len(res.Rejected), res.Skipped)
	return res, nil
}

// Generate asks the planner to place the top pending tasks around upcoming
// calendar commitments and reconciles its proposals.
func (s *Service) Generate(ctx context.Context) (Result, error) {
	if s.planner == nil {
		return Result{}, fmt.Errorf("no planner configured")
	}
	now := s.now()

	tasks, err := s.store.PendingTasks(ctx, s.cfg.PlanLimit)
	if err != nil {
		return Result{}, err
	}
	if len(tasks) == 0 {
		s.log.Println("no pending tasks to plan")
		return Result{}, nil
	}

	var commitments []model.Commitment
	if s.commitments != nil {
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
		commitments, err = s.commitments.Commitments(cctx, now, now.Add(s.cfg.Horizon), s.cfg.CommitmentLimit)
		cancel()
		if err != nil {
			s.log.Printf("planning without calendar context: %v", &model.CollaboratorError{Collaborator: "calendar", Op: "list_events", Err: err})
			commitments = nil
		}
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	proposals, err := s.planner.ProposeSchedule(pctx, tasks, commitments, now)
	if err != nil {
		return Result{}, &model.CollaboratorError{Collaborator: "planner", Op: "propose_schedule", Err: err}
	}
	return s.Reconcile(ctx, proposals)
}

func (s *Service) parseInterval(start, end string) (model.Interval, error) {
	st, err := s.parseTime(start)
	if err != nil {
		return model.Interval{}, err
	}
	en, err := s.parseTime(end)
	if err != nil {
		return model.Interval{}, err
	}
	iv := model.Interval{Start: st, End: en}
	if err := iv.Validate(); err != nil {
		return model.Interval{}, err
	}
	return iv, nil
}

func (s *Service) parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range proposalLayouts {
		if t, err := time.ParseInLocation(layout, v, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &model.ValidationError{Field: "time", Reason: fmt.Sprintf("cannot parse %q", v)}
}
