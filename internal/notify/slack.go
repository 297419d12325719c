package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/salesfusion/pkg/logging"
)

// LeadAlert is the content of a qualification notification.
type LeadAlert struct {
	SessionID         string
	ProspectName      string
	Company           string
	Email             string
	Score             int
	PreviousScore     int
	QualifiedCriteria []string
	ReadyToConnect    bool
	Reason            Reason
	Thresholds        []int
}

// Delta is the score change carried by the alert.
func (a LeadAlert) Delta() int { return a.Score - a.PreviousScore }

// AlertSender delivers a LeadAlert to an external channel.
type AlertSender interface {
	SendAlert(ctx context.Context, alert LeadAlert) error
}

// SlackWebhook posts alerts to a Slack incoming webhook.
type SlackWebhook struct {
	url    string
	client *http.Client
	logger *logging.Logger
}

// NewSlackWebhook returns nil when url is empty.
func NewSlackWebhook(url string, client *http.Client, logger *logging.Logger) *SlackWebhook {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SlackWebhook{url: url, client: client, logger: logger}
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// SendAlert posts the alert. Non-2xx responses are returned as errors.
func (s *SlackWebhook) SendAlert(ctx context.Context, alert LeadAlert) error {
	if s == nil || s.url == "" {
		return errors.New("notify: slack webhook not configured")
	}
	body, err := json.Marshal(buildSlackPayload(alert))
	if err != nil {
		return fmt.Errorf("notify: encode slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: slack returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	s.logger.Info("slack alert sent", "session_id", alert.SessionID, "score", alert.Score)
	return nil
}

func buildSlackPayload(alert LeadAlert) slackPayload {
	name := alert.ProspectName
	if name == "" {
		name = "Anonymous prospect"
	}
	company := alert.Company
	if company == "" {
		company = "Unknown company"
	}
	email := alert.Email
	if email == "" {
		email = "not provided"
	}
	criteria := "none yet"
	if len(alert.QualifiedCriteria) > 0 {
		criteria = strings.Join(alert.QualifiedCriteria, ", ")
	}

	headline := fmt.Sprintf("%s (%s) scored %d", name, company, alert.Score)
	if alert.ReadyToConnect {
		headline = "🔥 Ready to connect: " + headline
	}

	return slackPayload{
		Text: headline,
		Blocks: []slackBlock{
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: "*" + headline + "*"}},
			{Type: "section", Fields: []slackText{
				{Type: "mrkdwn", Text: "*Name:*\n" + name},
				{Type: "mrkdwn", Text: "*Company:*\n" + company},
				{Type: "mrkdwn", Text: "*Email:*\n" + email},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Score:*\n%d (%+d)", alert.Score, alert.Delta())},
				{Type: "mrkdwn", Text: "*Qualified:*\n" + criteria},
				{Type: "mrkdwn", Text: "*Session:*\n" + alert.SessionID},
			}},
		},
	}
}

var _ AlertSender = (*SlackWebhook)(nil)
