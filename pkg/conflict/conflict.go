// Package conflict finds schedule entries whose time ranges collide.
//
// Intervals are half-open: [10:00, 11:00) and [11:00, 12:00) touch but do
// not conflict.
package conflict

import (
	"context"

	"github.com/harrisonrobin/taskplan/pkg/model"
)

// Overlaps reports whether a and b share any instant.
func Overlaps(a, b model.Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// Filter returns the entries that overlap iv, preserving order.
func Filter(entries []model.ScheduleEntry, iv model.Interval) []model.ScheduleEntry {
	var out []model.ScheduleEntry
	for _, e := range entries {
		if Overlaps(e.Interval(), iv) {
			out = append(out, e)
		}
	}
	return out
}

// Source yields candidate entries for an interval. Both *store.Store and an
// open *store.Tx satisfy it.
type Source interface {
	Overlapping(ctx context.Context, iv model.Interval, excludeID string) ([]model.ScheduleEntry, error)
}

type Detector struct {
	src Source
}

func NewDetector(src Source) *Detector {
	return &Detector{src: src}
}

// Conflicts returns every stored entry overlapping iv.
func (d *Detector) Conflicts(ctx context.Context, iv model.Interval) ([]model.ScheduleEntry, error) {
	return d.ConflictsExcluding(ctx, iv, "")
}

// ConflictsExcluding is Conflicts without the entry being moved.
func (d *Detector) ConflictsExcluding(ctx context.Context, iv model.Interval, excludeID string) ([]model.ScheduleEntry, error) {
	candidates, err := d.src.Overlapping(ctx, iv, excludeID)
	if err != nil {
		return nil, err
	}
	return Filter(candidates, iv), nil
}

// Check returns a ConflictError when iv collides with anything stored.
func (d *Detector) Check(ctx context.Context, iv model.Interval, excludeID string) error {
	conflicts, err := d.ConflictsExcluding(ctx, iv, excludeID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &model.ConflictError{Reason: "schedule conflict detected", Entries: conflicts}
	}
	return nil
}
