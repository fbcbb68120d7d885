package google

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Scopes are the OAuth scopes requested for every Google service taskplan uses.
var Scopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
	gmail.GmailSendScope,
	sheets.SpreadsheetsReadonlyScope,
}

// Services bundles the Google API clients sharing one authenticated HTTP client.
type Services struct {
	Calendar *calendar.Service
	Gmail    *gmail.Service
	Sheets   *sheets.Service
}

// NewServices creates the calendar, mail and sheets services. Extra options
// are appended after the HTTP client option.
func NewServices(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*Services, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)

	cal, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}
	mail, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Gmail client: %w", err)
	}
	sh, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Sheets client: %w", err)
	}
	return &Services{Calendar: cal, Gmail: mail, Sheets: sh}, nil
}

// ResolveCalendarID maps a calendar name to its id. "primary" and values
// already matching a calendar id are returned as they are.
func ResolveCalendarID(ctx context.Context, srv *calendar.Service, name string) (string, error) {
	if name == "" || name == "primary" {
		return "primary", nil
	}

	calendarList, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to retrieve calendar list: %w", err)
	}

	for _, item := range calendarList.Items {
		if item.Summary == name || item.Id == name {
			return item.Id, nil
		}
	}
	return "", fmt.Errorf("calendar '%s' not found", name)
}
