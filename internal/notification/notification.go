// Package notification delivers budget and waste alerts over Slack, email and webhooks.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fredphp/yunwei/internal/config"
)

// Channel represents a notification delivery channel.
type Channel string

const (
	ChannelSlack   Channel = "slack"
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
)

// EventType represents the type of notification event.
type EventType string

const (
	EventBudgetExceeded EventType = "budget.exceeded"
	EventBudgetWarning  EventType = "budget.warning"
	EventWasteDetected  EventType = "waste.detected"
)

// Fact is one labelled value shown with an alert, in display order.
type Fact struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Message is an alert about one account or resource.
type Message struct {
	EventType  EventType `json:"event_type"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Severity   string    `json:"severity,omitempty"`
	AccountID  string    `json:"account_id,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
	// Amount is month-to-date spend for budget events and monthly savings for waste events.
	Amount    float64   `json:"amount"`
	Facts     []Fact    `json:"facts,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds notification service configuration.
type Config struct {
	SlackWebhookURL string
	EmailSMTPHost   string
	EmailSMTPPort   int
	EmailFrom       string
	EmailPassword   string
	EmailRecipients []string
	WebhookURLs     []string
}

// FromConfig converts the environment settings, splitting the comma-separated lists.
func FromConfig(c config.NotificationConfig) Config {
	return Config{
		SlackWebhookURL: c.SlackWebhookURL,
		EmailSMTPHost:   c.EmailSMTPHost,
		EmailSMTPPort:   c.EmailSMTPPort,
		EmailFrom:       c.EmailFrom,
		EmailPassword:   c.EmailPassword,
		EmailRecipients: splitList(c.EmailTo),
		WebhookURLs:     splitList(c.WebhookURLs),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Service manages notification delivery across channels.
type Service struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	channels   []Channel
	sendMail   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now        func() time.Time
}

// NewService creates a notification service for every channel cfg configures.
func NewService(cfg Config, logger *slog.Logger) *Service {
	s := &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		sendMail:   smtp.SendMail,
		now:        time.Now,
	}

	if cfg.SlackWebhookURL != "" {
		s.channels = append(s.channels, ChannelSlack)
	}
	if cfg.EmailSMTPHost != "" {
		s.channels = append(s.channels, ChannelEmail)
	}
	if len(cfg.WebhookURLs) > 0 {
		s.channels = append(s.channels, ChannelWebhook)
	}

	return s
}

// Enabled reports whether any channel is configured.
func (s *Service) Enabled() bool {
	return len(s.channels) > 0
}

// HasChannel returns true if the specified channel is configured.
func (s *Service) HasChannel(ch Channel) bool {
	for _, c := range s.channels {
		if c == ch {
			return true
		}
	}
	return false
}

// Send delivers msg on every configured channel. A failing channel does not stop the rest.
func (s *Service) Send(ctx context.Context, msg Message) error {
	msg.Timestamp = s.now().UTC()
	var errs []error
	for _, ch := range s.channels {
		if err := s.deliver(ctx, ch, msg); err != nil {
			s.logger.Error("notification send failed", "channel", ch, "event", msg.EventType,
				"account_id", msg.AccountID, "resource_id", msg.ResourceID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

// SendToChannel sends a notification to a specific channel.
func (s *Service) SendToChannel(ctx context.Context, ch Channel, msg Message) error {
	msg.Timestamp = s.now().UTC()
	return s.deliver(ctx, ch, msg)
}

func (s *Service) deliver(ctx context.Context, ch Channel, msg Message) error {
	switch ch {
	case ChannelSlack:
		return s.sendSlack(ctx, msg)
	case ChannelEmail:
		return s.sendEmail(msg)
	case ChannelWebhook:
		return s.sendWebhook(ctx, msg)
	default:
		return fmt.Errorf("unsupported channel: %s", ch)
	}
}

var severityEmoji = map[string]string{
	"critical": ":rotating_light:",
	"high":     ":warning:",
	"medium":   ":large_yellow_circle:",
	"low":      ":information_source:",
}

// slackBlocks lays msg out as Block Kit: title, body, a two-column grid of facts and a
// context line naming the event.
func slackBlocks(msg Message) []map[string]any {
	title := msg.Title
	if e, ok := severityEmoji[msg.Severity]; ok {
		title = e + " " + title
	}
	blocks := []map[string]any{
		{"type": "header", "text": map[string]any{"type": "plain_text", "text": title, "emoji": true}},
		{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": msg.Body}},
	}

	// Slack caps a section at 10 fields.
	for start := 0; start < len(msg.Facts); start += 10 {
		end := min(start+10, len(msg.Facts))
		fields := make([]map[string]any, 0, end-start)
		for _, f := range msg.Facts[start:end] {
			fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*%s*\n%s", f.Label, f.Value)})
		}
		blocks = append(blocks, map[string]any{"type": "section", "fields": fields})
	}

	subject := msg.AccountID
	if msg.ResourceID != "" {
		subject = msg.ResourceID
	}
	blocks = append(blocks, map[string]any{
		"type": "context",
		"elements": []map[string]any{{
			"type": "mrkdwn",
			"text": fmt.Sprintf("yunwei | %s | %s | <!date^%d^{date_short_pretty} {time}|%s>",
				msg.EventType, subject, msg.Timestamp.Unix(), msg.Timestamp.Format(time.RFC3339)),
		}},
	})
	return blocks
}

func (s *Service) sendSlack(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"text":   msg.Title,
		"blocks": slackBlocks(msg),
	}
	if err := s.postJSON(ctx, s.cfg.SlackWebhookURL, payload, nil); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	s.logger.Info("slack notification sent", "event", msg.EventType)
	return nil
}

func (s *Service) sendEmail(msg Message) error {
	if s.cfg.EmailSMTPHost == "" {
		return fmt.Errorf("email SMTP not configured")
	}

	recipients := s.cfg.EmailRecipients
	if len(recipients) == 0 {
		recipients = []string{s.cfg.EmailFrom}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\nTo: %s\r\nSubject: [yunwei] %s\r\n", s.cfg.EmailFrom, strings.Join(recipients, ", "), msg.Title)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n\r\n")
	for _, f := range msg.Facts {
		fmt.Fprintf(&b, "%-10s %s\r\n", f.Label+":", f.Value)
	}
	fmt.Fprintf(&b, "\r\nEvent: %s\r\nTime: %s\r\n", msg.EventType, msg.Timestamp.Format(time.RFC3339))

	var auth smtp.Auth
	if s.cfg.EmailPassword != "" {
		auth = smtp.PlainAuth("", s.cfg.EmailFrom, s.cfg.EmailPassword, s.cfg.EmailSMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.EmailSMTPHost, s.cfg.EmailSMTPPort)
	if err := s.sendMail(addr, auth, s.cfg.EmailFrom, recipients, []byte(b.String())); err != nil {
		return fmt.Errorf("email send failed: %w", err)
	}

	s.logger.Info("email notification sent", "event", msg.EventType, "recipients", len(recipients))
	return nil
}

// WebhookEvent is the envelope posted to every webhook URL. DeliveryID is shared by all
// endpoints receiving the same alert so receivers can deduplicate retries.
type WebhookEvent struct {
	DeliveryID string    `json:"delivery_id"`
	Source     string    `json:"source"`
	Event      EventType `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Alert      Message   `json:"alert"`
}

func (s *Service) sendWebhook(ctx context.Context, msg Message) error {
	event := WebhookEvent{
		DeliveryID: uuid.NewString(),
		Source:     "yunwei",
		Event:      msg.EventType,
		OccurredAt: msg.Timestamp,
		Alert:      msg,
	}
	headers := map[string]string{
		"X-Yunwei-Event":    string(msg.EventType),
		"X-Yunwei-Delivery": event.DeliveryID,
	}

	var errs []error
	for _, u := range s.cfg.WebhookURLs {
		if err := s.postJSON(ctx, u, event, headers); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", u, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.logger.Info("webhook notifications sent", "event", msg.EventType, "delivery_id", event.DeliveryID, "count", len(s.cfg.WebhookURLs))
	return nil
}

// postJSON posts v and treats any non-2xx answer as a failure.
func (s *Service) postJSON(ctx context.Context, url string, v any, headers map[string]string) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
