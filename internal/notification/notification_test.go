package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/model"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capture struct {
	mu      sync.Mutex
	bodies  [][]byte
	headers []http.Header
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.NotificationConfig{
		EmailTo:     " ops@example.com, ,finance@example.com",
		WebhookURLs: "https://a.example.com/hook",
	})
	assert.Equal(t, []string{"ops@example.com", "finance@example.com"}, cfg.EmailRecipients)
	assert.Equal(t, []string{"https://a.example.com/hook"}, cfg.WebhookURLs)

	svc := NewService(cfg, discard())
	assert.True(t, svc.HasChannel(ChannelWebhook))
	assert.False(t, svc.HasChannel(ChannelSlack))
	assert.True(t, svc.Enabled())
	assert.False(t, NewService(Config{}, discard()).Enabled())
}

func TestSendBudgetAlertToSlack(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler(http.StatusOK))
	defer srv.Close()

	svc := NewService(Config{SlackWebhookURL: srv.URL}, discard())
	alert := model.BudgetAlert{
		AccountID: "acc-1", Period: "2024-06", AlertType: model.AlertTypeExceeded,
		Threshold: 80, CurrentSpend: 1010, BudgetAmount: 1000, Message: "prod has exceeded its budget",
	}
	err := svc.SendBudgetAlert(context.Background(), alert, model.CloudAccount{Name: "prod", Provider: model.CloudProviderAWS})
	require.NoError(t, err)

	require.Len(t, c.bodies, 1)
	type text struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	var payload struct {
		Text   string `json:"text"`
		Blocks []struct {
			Type     string `json:"type"`
			Text     text   `json:"text"`
			Fields   []text `json:"fields"`
			Elements []text `json:"elements"`
		} `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(c.bodies[0], &payload))
	assert.Equal(t, "Budget Exceeded: prod", payload.Text)
	require.Len(t, payload.Blocks, 4)
	assert.Equal(t, ":warning: Budget Exceeded: prod", payload.Blocks[0].Text.Text)
	assert.Equal(t, "prod has exceeded its budget", payload.Blocks[1].Text.Text)

	fields := payload.Blocks[2].Fields
	require.Len(t, fields, 7)
	assert.Equal(t, "*Account*\nprod", fields[0].Text)
	assert.Equal(t, "*Budget*\n$1000.00", fields[3].Text)
	assert.Equal(t, "*Over by*\n$10.00", fields[6].Text)

	require.Len(t, payload.Blocks[3].Elements, 1)
	assert.Contains(t, payload.Blocks[3].Elements[0].Text, "budget.exceeded | acc-1")
}

func TestSlackBlocksSplitManyFacts(t *testing.T) {
	facts := make([]Fact, 12)
	for i := range facts {
		facts[i] = Fact{Label: "k", Value: "v"}
	}
	blocks := slackBlocks(Message{Title: "x", Facts: facts})

	require.Len(t, blocks, 5)
	assert.Len(t, blocks[2]["fields"], 10)
	assert.Len(t, blocks[3]["fields"], 2)
}

func TestSendWasteAlertToWebhooks(t *testing.T) {
	var ok, failing capture
	good := httptest.NewServer(ok.handler(http.StatusNoContent))
	defer good.Close()
	bad := httptest.NewServer(failing.handler(http.StatusInternalServerError))
	defer bad.Close()

	svc := NewService(Config{WebhookURLs: []string{good.URL, bad.URL}}, discard())
	fixed := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	finding := model.WasteFinding{
		ResourceID: "i-0abc", AccountID: "acc-1", WasteType: model.WasteZombie, Severity: model.SeverityHigh,
		EstimatedSavings: 324, Reason: "Stopped for 45 days.", Recommendation: "Terminate the resource",
	}
	err := svc.SendWasteAlert(context.Background(), finding)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	require.Len(t, ok.bodies, 1, "a failing endpoint does not stop the others")
	require.Len(t, failing.bodies, 1)
	assert.Equal(t, "waste.detected", ok.headers[0].Get("X-Yunwei-Event"))
	assert.NotEmpty(t, ok.headers[0].Get("X-Yunwei-Delivery"))
	assert.Equal(t, ok.headers[0].Get("X-Yunwei-Delivery"), failing.headers[0].Get("X-Yunwei-Delivery"))

	var event WebhookEvent
	require.NoError(t, json.Unmarshal(ok.bodies[0], &event))
	assert.Equal(t, ok.headers[0].Get("X-Yunwei-Delivery"), event.DeliveryID)
	assert.Equal(t, "yunwei", event.Source)
	assert.Equal(t, EventWasteDetected, event.Event)
	assert.True(t, fixed.Equal(event.OccurredAt))

	msg := event.Alert
	assert.Equal(t, "Wasted Resource: i-0abc (zombie)", msg.Title)
	assert.Equal(t, "high", msg.Severity)
	assert.Equal(t, "acc-1", msg.AccountID)
	assert.Equal(t, "i-0abc", msg.ResourceID)
	assert.Equal(t, 324.0, msg.Amount)
	assert.Contains(t, msg.Facts, Fact{Label: "Savings", Value: "$324.00/mo"})
}

func TestSendEmail(t *testing.T) {
	svc := NewService(Config{EmailSMTPHost: "smtp.example.com", EmailSMTPPort: 587, EmailFrom: "yunwei@example.com"}, discard())
	var gotAddr string
	var gotTo []string
	var gotMsg string
	svc.sendMail = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := svc.SendToChannel(context.Background(), ChannelEmail, Message{
		EventType: EventBudgetWarning, Title: "Budget Warning: prod", Body: "80% reached",
		Facts: []Fact{{Label: "Spent", Value: "$800.00"}, {Label: "Budget", Value: "$1000.00"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"yunwei@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [yunwei] Budget Warning: prod\r\n")
	assert.Contains(t, gotMsg, "Spent:     $800.00\r\n")
	assert.Less(t, strings.Index(gotMsg, "Spent:"), strings.Index(gotMsg, "Budget:"), "facts keep their order")

	svc.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	assert.ErrorContains(t, svc.Send(context.Background(), Message{Title: "x"}), "refused")
}

func TestSendToUnknownChannel(t *testing.T) {
	svc := NewService(Config{}, discard())
	assert.ErrorContains(t, svc.SendToChannel(context.Background(), Channel("pager"), Message{}), "unsupported channel")
	assert.NoError(t, svc.Send(context.Background(), Message{}), "no channels, nothing to fail")
}
