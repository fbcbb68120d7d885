package taskwarrior

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationPart = regexp.MustCompile(`(\d+)([HMS])`)

// ParseDuration reads a duration UDA. Taskwarrior exports ISO 8601 (PT1H30M);
// Go syntax (1h30m) is accepted for hand-written exports.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if s[0] != 'P' {
		return time.ParseDuration(s)
	}
	if len(s) < 3 || s[1] != 'T' {
		return 0, fmt.Errorf("invalid ISO 8601 duration: %s", s)
	}

	var total time.Duration
	for _, m := range durationPart.FindAllStringSubmatch(s[2:], -1) {
		value, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "H":
			total += time.Duration(value) * time.Hour
		case "M":
			total += time.Duration(value) * time.Minute
		case "S":
			total += time.Duration(value) * time.Second
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("invalid ISO 8601 duration: %s", s)
	}
	return total, nil
}
