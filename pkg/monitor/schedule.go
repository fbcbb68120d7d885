package monitor

import (
	"fmt"
	"time"
)

// Schedule decides when a check next becomes due.
type Schedule interface {
	// Next returns the first run time strictly after t.
	Next(t time.Time) time.Time
}

// DailyAt runs once a day at a wall-clock time in Loc.
type DailyAt struct {
	Hour   int
	Minute int
	Loc    *time.Location
}

func (d DailyAt) Next(t time.Time) time.Time {
	loc := d.Loc
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	next := time.Date(lt.Year(), lt.Month(), lt.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !next.After(lt) {
		next = time.Date(lt.Year(), lt.Month(), lt.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return next
}

func (d DailyAt) String() string {
	return fmt.Sprintf("daily at %02d:%02d", d.Hour, d.Minute)
}

// Every runs at a fixed interval after the previous run.
type Every time.Duration

func (e Every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

func (e Every) String() string {
	return "every " + time.Duration(e).String()
}
