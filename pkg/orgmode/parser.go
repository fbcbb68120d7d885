// Package orgmode reads TODO headlines from Org files as import rows.
package orgmode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/model"
)

var (
	headlineRegex = regexp.MustCompile(`^\*+\s+(TODO|DONE)\s*(?:\[#([A-Z])\])?\s*(.*?)(?:\s+(:(\w+(:\w+)*):))?\s*$`)
	deadlineRegex = regexp.MustCompile(`DEADLINE:\s+<(\d{4}-\d{2}-\d{2})(?:\s+[A-Za-z]{2,3})?(?:\s+(\d{1,2}:\d{2}))?[^>]*>`)
	idRegex       = regexp.MustCompile(`^:ID:\s+(\S+)`)
	effortRegex   = regexp.MustCompile(`^:Effort:\s+(\d+):(\d{2})`)
)

var priorities = map[string]int{"A": 5, "B": 3, "C": 2}

// Entry is one TODO or DONE headline.
type Entry struct {
	Title    string
	Done     bool
	Priority string
	Tags     []string
	Deadline *time.Time
	ID       string
	Effort   int // minutes
	Line     int
}

// Fields converts e to import fields. Without an :ID: property the origin
// falls back to the file and line, so moving the headline re-imports it.
func (e Entry) Fields(source string) model.TaskFields {
	f := model.TaskFields{
		Title:             e.Title,
		Priority:          priorities[e.Priority],
		DueDate:           e.Deadline,
		EstimatedDuration: e.Effort,
		Status:            model.PENDING,
	}
	if e.Done {
		f.Status = model.COMPLETED
	}
	if len(e.Tags) > 0 {
		f.Description = "Tags: " + strings.Join(e.Tags, ", ")
	}
	if e.ID != "" {
		f.OriginRef = "org:" + e.ID
	} else {
		f.OriginRef = fmt.Sprintf("org:%s:%d", source, e.Line)
	}
	return f
}

// Parse reads headlines from r. Deadlines without a time fall at the end of
// the day in loc.
func Parse(r io.Reader, loc *time.Location) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var entries []Entry
	var current *Entry
	lineNo := 0

	flush := func() {
		if current != nil && current.Title != "" {
			entries = append(entries, *current)
		}
		current = nil
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(raw, "*") {
			flush()
			if m := headlineRegex.FindStringSubmatch(raw); m != nil {
				current = &Entry{Title: strings.TrimSpace(m[3]), Done: m[1] == "DONE", Priority: m[2], Line: lineNo}
				if m[4] != "" {
					current.Tags = strings.Split(strings.Trim(m[4], ":"), ":")
				}
			}
			continue
		}
		if current == nil {
			continue
		}

		if m := deadlineRegex.FindStringSubmatch(line); m != nil {
			if due, err := deadline(m[1], m[2], loc); err == nil {
				current.Deadline = &due
			}
		} else if m := idRegex.FindStringSubmatch(line); m != nil {
			current.ID = m[1]
		} else if m := effortRegex.FindStringSubmatch(line); m != nil {
			h, _ := strconv.Atoi(m[1])
			mins, _ := strconv.Atoi(m[2])
			current.Effort = h*60 + mins
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return entries, nil
}

func deadline(date, clock string, loc *time.Location) (time.Time, error) {
	if clock == "" {
		t, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return time.Time{}, err
		}
		return t.Add(23*time.Hour + 59*time.Minute), nil
	}
	return time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
}

// FileSource yields import rows from Org files.
type FileSource struct {
	paths []string
	loc   *time.Location
}

func NewFileSource(loc *time.Location, paths ...string) *FileSource {
	if loc == nil {
		loc = time.Local
	}
	return &FileSource{paths: paths, loc: loc}
}

func (s *FileSource) Rows(ctx context.Context) ([]model.TaskFields, int, error) {
	var rows []model.TaskFields
	skipped := 0
	for _, path := range s.paths {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		entries, err := parseFile(path, s.loc)
		if err != nil {
			return nil, 0, fmt.Errorf("parse %s: %w", path, err)
		}
		for _, e := range entries {
			f := e.Fields(path)
			if err := f.Normalize(); err != nil {
				skipped++
				continue
			}
			rows = append(rows, f)
		}
	}
	return rows, skipped, nil
}

func parseFile(path string, loc *time.Location) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file, loc)
}
