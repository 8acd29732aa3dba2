package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elonfeng/trendpulse/pkg/httpclient"
)

// Slack sends notifications via Slack incoming webhook.
type Slack struct {
	client     *httpclient.Client
	webhookURL string
}

func NewSlack(client *httpclient.Client, webhookURL string) *Slack {
	return &Slack{client: client, webhookURL: webhookURL}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n *Notification) error {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": n.Title,
			},
		},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("%s\n*Run:* `%s`", n.Body, n.RunID),
			},
		},
	}

	if len(n.Failures) > 0 {
		var elements []map[string]any
		for _, f := range listed(n.Failures) {
			elements = append(elements, map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*%s*: %s", f.Source, firstError(f)),
			})
		}
		blocks = append(blocks, map[string]any{
			"type":     "context",
			"elements": elements,
		})
	}

	body, err := json.Marshal(map[string]any{"blocks": blocks})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	if _, err := s.client.Do(ctx, s.webhookURL, requestOptions(body, nil)); err != nil {
		return fmt.Errorf("send slack webhook: %w", err)
	}
	return nil
}
