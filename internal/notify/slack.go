package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/covwatch/covwatch/internal/alert"
)

type Slack struct {
	Webhook string
	Channel string // optional override of the webhook's default channel
	Client  *http.Client
}

func NewSlack(webhook, channel string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Channel: channel,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, ev alert.Event) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}

	field := func(text string) map[string]any {
		return map[string]any{"type": "mrkdwn", "text": text}
	}
	payload := map[string]any{
		"text": subject(ev),
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{"type": "plain_text", "text": subject(ev)},
			},
			{
				"type": "section",
				"fields": []map[string]any{
					field(fmt.Sprintf("*Current Coverage:* %.2f%%", ev.Sample.CoveragePercentage)),
					field(fmt.Sprintf("*Severity:* %s", ev.Level)),
					field(fmt.Sprintf("*Test Suite:* %s", ev.Scope.TestSuite)),
					field(fmt.Sprintf("*Branch:* %s", ev.Scope.BranchName)),
					field(fmt.Sprintf("*Total Lines:* %d", ev.Sample.TotalLines)),
					field(fmt.Sprintf("*Missing Lines:* %d", ev.Sample.MissingLines)),
				},
			},
			{
				"type": "section",
				"text": field(fmt.Sprintf("*Commit:* `%s`\n*Timestamp:* %s",
					orNA(ev.Sample.CommitHash), ev.FiredAt.Format(time.RFC3339))),
			},
		},
	}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}

	body, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack returned HTTP %d", resp.StatusCode)
	}
	return nil
}
