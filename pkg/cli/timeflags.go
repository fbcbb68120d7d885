package cli

import (
	"fmt"
	"time"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseWhen reads a time flag. Values without an offset are local time.
func parseWhen(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q, use RFC3339 or YYYY-MM-DD HH:MM", s)
}

// parseSpan reads --start with either --end or --duration.
func parseSpan(start, end string, d time.Duration) (time.Time, time.Time, error) {
	if start == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--start is required")
	}
	st, err := parseWhen(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end != "" {
		en, err := parseWhen(end)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return st, en, nil
	}
	if d <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("either --end or --duration is required")
	}
	return st, st.Add(d), nil
}
