package google

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/model"
	"google.golang.org/api/sheets/v4"
)

// dateLayouts are tried in order when reading a due date cell.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// SheetSource reads task rows from a spreadsheet range. Columns are title,
// description, priority, status, due date and estimated duration in minutes.
// The first row is a header.
type SheetSource struct {
	srv     *sheets.Service
	sheetID string
	rng     string
}

func NewSheetSource(srv *sheets.Service, sheetID, rng string) *SheetSource {
	return &SheetSource{srv: srv, sheetID: sheetID, rng: rng}
}

// Rows fetches the range and returns one TaskFields per usable row. The
// second return value is the number of rows skipped as malformed.
func (s *SheetSource) Rows(ctx context.Context) ([]model.TaskFields, int, error) {
	if s.sheetID == "" {
		return nil, 0, fmt.Errorf("no spreadsheet id configured")
	}
	resp, err := s.srv.Spreadsheets.Values.Get(s.sheetID, s.rng).Context(ctx).Do()
	if err != nil {
		return nil, 0, fmt.Errorf("unable to read sheet %s: %w", s.sheetID, err)
	}
	rows, skipped := ParseRows(resp.Values, time.UTC)
	return rows, skipped, nil
}

// ParseRows converts raw sheet values into task fields. Rows with fewer than
// four cells or invalid fields are skipped. Due dates without a zone are read
// in loc.
func ParseRows(values [][]interface{}, loc *time.Location) ([]model.TaskFields, int) {
	if len(values) == 0 {
		return nil, 0
	}
	var out []model.TaskFields
	skipped := 0
	for i, row := range values[1:] {
		if len(row) < 4 {
			skipped++
			continue
		}
		title := cell(row, 0)
		if title == "" {
			skipped++
			continue
		}

		fields := model.TaskFields{
			Title:       title,
			Description: cell(row, 1),
			Priority:    1,
			Status:      model.PENDING,
			OriginRef:   fmt.Sprintf("row:%d", i+2),
		}
		if p, err := strconv.Atoi(cell(row, 2)); err == nil {
			fields.Priority = p
		}
		if st := model.Status(strings.ToLower(cell(row, 3))); st.Valid() {
			fields.Status = st
		}
		if due, ok := parseDate(cell(row, 4), loc); ok {
			fields.DueDate = &due
		}
		if d, err := strconv.Atoi(cell(row, 5)); err == nil && d > 0 {
			fields.EstimatedDuration = d
		}
		if err := fields.Normalize(); err != nil {
			skipped++
			continue
		}
		out = append(out, fields)
	}
	return out, skipped
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

func parseDate(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
