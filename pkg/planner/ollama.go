// Package planner asks a local Ollama model to place pending tasks on the calendar.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harrisonrobin/taskplan/pkg/model"
	"github.com/ollama/ollama/api"
)

const systemPrompt = `You are a scheduling assistant. Given a list of tasks and existing calendar
events, place each task in a free time block.

Rules:
- Schedule higher priority tasks and earlier deadlines first.
- Never overlap existing calendar events or other blocks you create.
- Use each task's estimated duration, default 60 minutes.
- Leave short breaks between tasks and stay within working hours.

Respond with a JSON object {"schedule": [...]} where each item has task_id,
start_time and end_time in RFC 3339 format, and title.`

// scheduleFormat constrains the model's reply to the expected JSON shape.
var scheduleFormat = json.RawMessage(`{
  "type": "object",
  "properties": {
    "schedule": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "task_id": {"type": "string"},
          "start_time": {"type": "string"},
          "end_time": {"type": "string"},
          "title": {"type": "string"}
        },
        "required": ["task_id", "start_time", "end_time", "title"]
      }
    }
  },
  "required": ["schedule"]
}`)

// Ollama proposes schedules with a chat model served by Ollama.
type Ollama struct {
	client  *api.Client
	model   string
	horizon time.Duration
	log     *log.Logger
}

// NewOllama creates a planner talking to host. A nil httpClient uses http.DefaultClient.
func NewOllama(host, modelName string, horizon time.Duration, httpClient *http.Client, logger *log.Logger) (*Ollama, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = log.Default()
	}
	if horizon <= 0 {
		horizon = 7 * 24 * time.Hour
	}
	return &Ollama{
		client:  api.NewClient(base, httpClient),
		model:   modelName,
		horizon: horizon,
		log:     logger,
	}, nil
}

type promptTask struct {
	ID                string     `json:"task_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Priority          int        `json:"priority"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	EstimatedDuration int        `json:"estimated_duration_minutes"`
}

// ProposeSchedule returns the model's placements in the order it produced them.
func (o *Ollama) ProposeSchedule(ctx context.Context, tasks []model.Task, commitments []model.Commitment, now time.Time) ([]model.Proposal, error) {
	prompt, err := buildPrompt(tasks, commitments, now, o.horizon)
	if err != nil {
		return nil, err
	}

	stream := false
	req := &api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Stream: &stream,
		Format: scheduleFormat,
	}

	var reply strings.Builder
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	proposals, err := ParseSchedule(reply.String())
	if err != nil {
		o.log.Printf("unparseable planner reply: %q", reply.String())
		return nil, err
	}
	return proposals, nil
}

func buildPrompt(tasks []model.Task, commitments []model.Commitment, now time.Time, horizon time.Duration) (string, error) {
	pt := make([]promptTask, 0, len(tasks))
	for _, t := range tasks {
		d := t.EstimatedDuration
		if d == 0 {
			d = 60
		}
		pt = append(pt, promptTask{
			ID:                t.ID,
			Title:             t.Title,
			Description:       t.Description,
			Priority:          t.Priority,
			DueDate:           t.DueDate,
			EstimatedDuration: d,
		})
	}
	if commitments == nil {
		commitments = []model.Commitment{}
	}

	taskJSON, err := json.MarshalIndent(pt, "", "  ")
	if err != nil {
		return "", err
	}
	eventJSON, err := json.MarshalIndent(commitments, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current time: %s\n\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "Tasks to schedule:\n%s\n\n", taskJSON)
	fmt.Fprintf(&b, "Existing calendar events:\n%s\n\n", eventJSON)
	fmt.Fprintf(&b, "Create a schedule between %s and %s.", now.Format(time.RFC3339), now.Add(horizon).Format(time.RFC3339))
	return b.String(), nil
}

// ParseSchedule decodes a planner reply. It accepts {"schedule": [...]} or a
// bare array, and task ids written as numbers.
func ParseSchedule(reply string) ([]model.Proposal, error) {
	reply = strings.TrimSpace(reply)
	var items []map[string]json.RawMessage

	if strings.HasPrefix(reply, "[") {
		if err := json.Unmarshal([]byte(reply), &items); err != nil {
			return nil, fmt.Errorf("decode schedule: %w", err)
		}
	} else {
		var wrapped struct {
			Schedule []map[string]json.RawMessage `json:"schedule"`
		}
		if err := json.Unmarshal([]byte(reply), &wrapped); err != nil {
			return nil, fmt.Errorf("decode schedule: %w", err)
		}
		items = wrapped.Schedule
	}

	out := make([]model.Proposal, 0, len(items))
	for _, item := range items {
		out = append(out, model.Proposal{
			TaskID: text(item["task_id"]),
			Start:  text(item["start_time"]),
			End:    text(item["end_time"]),
			Title:  text(item["title"]),
		})
	}
	return out, nil
}

// text renders a JSON scalar as a string; null and absent values are empty.
func text(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
