package orgmode

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/model"
)

const notes = `#+TITLE: Work
* TODO [#A] Write quarterly report :work:writing:
  DEADLINE: <2024-05-10 Fri 17:00>
  :PROPERTIES:
  :ID: 3f1c
  :Effort: 1:30
  :END:
* Meeting notes
  Not a task.
** DONE Book flights
   DEADLINE: <2024-05-08 Wed>
* TODO
`

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(notes), time.UTC)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d: %+v", len(entries), entries)
	}

	report := entries[0]
	if report.Title != "Write quarterly report" || report.Priority != "A" || report.ID != "3f1c" {
		t.Errorf("Unexpected entry %+v", report)
	}
	if len(report.Tags) != 2 || report.Tags[1] != "writing" {
		t.Errorf("Unexpected tags %v", report.Tags)
	}
	if report.Effort != 90 {
		t.Errorf("Expected 90 minutes effort, got %d", report.Effort)
	}
	if want := time.Date(2024, 5, 10, 17, 0, 0, 0, time.UTC); report.Deadline == nil || !report.Deadline.Equal(want) {
		t.Errorf("Expected deadline %v, got %v", want, report.Deadline)
	}

	flights := entries[1]
	if !flights.Done || flights.Line != 10 {
		t.Errorf("Unexpected entry %+v", flights)
	}
	if want := time.Date(2024, 5, 8, 23, 59, 0, 0, time.UTC); flights.Deadline == nil || !flights.Deadline.Equal(want) {
		t.Errorf("Date-only deadline should be end of day, got %v", flights.Deadline)
	}
}

func TestFileSourceRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work.org")
	if err := os.WriteFile(path, []byte(notes), 0644); err != nil {
		t.Fatal(err)
	}
	rows, skipped, err := NewFileSource(time.UTC, path).Rows(context.Background())
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if len(rows) != 2 || skipped != 0 {
		t.Fatalf("Expected 2 rows and none skipped, got %d and %d", len(rows), skipped)
	}
	if rows[0].OriginRef != "org:3f1c" || rows[0].Priority != 5 {
		t.Errorf("Unexpected row %+v", rows[0])
	}
	if rows[1].OriginRef != "org:"+path+":10" || rows[1].Status != model.COMPLETED || rows[1].Priority != 1 {
		t.Errorf("Unexpected row %+v", rows[1])
	}

	if _, _, err := NewFileSource(time.UTC, filepath.Join(t.TempDir(), "missing.org")).Rows(context.Background()); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
