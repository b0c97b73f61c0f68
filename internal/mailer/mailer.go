// internal/mailer/mailer.go
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Message is one outbound email, fully rendered.
type Message struct {
	To      string
	From    string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// Mailer is the outbound mail transport. Protocol-level retry policy belongs
// to the transport, not to the pipeline calling it.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNotConfigured marks missing transport credentials; a configuration
// error, fatal to the affected batch only.
var ErrNotConfigured = errors.New("mail transport not configured")

type SendGridMailer struct {
	apiKey string
	url    string
	client *http.Client
}

func NewSendGridMailer(apiKey string) *SendGridMailer {
	return &SendGridMailer{
		apiKey: apiKey,
		url:    "https://api.sendgrid.com/v3/mail/send",
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *SendGridMailer) Send(ctx context.Context, msg Message) error {
	if s.apiKey == "" {
		return ErrNotConfigured
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("empty recipient")
	}

	content := []map[string]string{}
	if msg.Text != "" {
		content = append(content, map[string]string{"type": "text/plain", "value": msg.Text})
	}
	if msg.HTML != "" {
		content = append(content, map[string]string{"type": "text/html", "value": msg.HTML})
	}

	payload := map[string]any{
		"personalizations": []map[string]any{{"to": []map[string]string{{"email": msg.To}}}},
		"from":             map[string]string{"email": msg.From},
		"subject":          msg.Subject,
		"content":          content,
	}
	if msg.ReplyTo != "" {
		payload["reply_to"] = map[string]string{"email": msg.ReplyTo}
	}

	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "sendgrid request")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("sendgrid status=%d", resp.StatusCode)
}
