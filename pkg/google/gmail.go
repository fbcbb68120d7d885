package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"google.golang.org/api/gmail/v1"
)

// Mailer delivers plain-text notifications through the Gmail API.
type Mailer struct {
	srv  *gmail.Service
	from string
}

// NewMailer creates a Mailer. An empty from lets Gmail fill in the
// authenticated account.
func NewMailer(srv *gmail.Service, from string) *Mailer {
	return &Mailer{srv: srv, from: from}
}

// Deliver sends one message and returns the Gmail message id.
func (m *Mailer) Deliver(ctx context.Context, subject, body, recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("no recipient configured")
	}
	raw := buildMessage(m.from, recipient, subject, body)
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}

	sent, err := m.srv.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to send message to %s: %w", recipient, err)
	}
	return sent.Id, nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
