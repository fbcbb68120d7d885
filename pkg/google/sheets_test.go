package google

import (
	"strings"
	"testing"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/model"
)

func TestParseRows(t *testing.T) {
	values := [][]interface{}{
		{"Title", "Description", "Priority", "Status", "Due", "Duration"},
		{"Write report", "Q2 numbers", "4", "In_Progress", "2024-05-07 17:00", "90"},
		{"Too short", "x", "2"},
		{"", "no title", "1", "pending"},
		{"Odd priority", "", "urgent", "done", "tomorrow", "-5"},
		{strings.Repeat("a", 201), "", "1", "pending"},
		{"Out of range", "", "9", "pending"},
	}

	rows, skipped := ParseRows(values, time.UTC)
	if skipped != 4 {
		t.Errorf("Expected 4 skipped rows, got %d", skipped)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d: %+v", len(rows), rows)
	}

	first := rows[0]
	if first.Priority != 4 || first.Status != model.IN_PROGRESS || first.EstimatedDuration != 90 {
		t.Errorf("Unexpected first row: %+v", first)
	}
	wantDue := time.Date(2024, 5, 7, 17, 0, 0, 0, time.UTC)
	if first.DueDate == nil || !first.DueDate.Equal(wantDue) {
		t.Errorf("Expected due %v, got %v", wantDue, first.DueDate)
	}
	if first.OriginRef != "row:2" {
		t.Errorf("Expected origin row:2, got %s", first.OriginRef)
	}

	second := rows[1]
	if second.Priority != 1 || second.Status != model.PENDING || second.DueDate != nil || second.EstimatedDuration != 0 {
		t.Errorf("Expected defaults for unparseable cells, got %+v", second)
	}
}

func TestParseDateLayouts(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-07 17:00:30", time.Date(2024, 5, 7, 15, 0, 30, 0, time.UTC)},
		{"2024-05-07 17:00", time.Date(2024, 5, 7, 15, 0, 0, 0, time.UTC)},
		{"2024-05-07", time.Date(2024, 5, 6, 22, 0, 0, 0, time.UTC)},
		{"2024-05-07T17:00:00", time.Date(2024, 5, 7, 15, 0, 0, 0, time.UTC)},
		{"2024-05-07T17:00:00Z", time.Date(2024, 5, 7, 17, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, ok := parseDate(tc.in, loc)
		if !ok {
			t.Errorf("parseDate(%q) failed", tc.in)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, ok := parseDate("07/05/2024", loc); ok {
		t.Error("Expected unsupported layout to fail")
	}
}
