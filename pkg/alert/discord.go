package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/trendpulse/pkg/httpclient"
)

const discordRed = 0xE03E2F

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *httpclient.Client
	webhookURL string
}

func NewDiscord(client *httpclient.Client, webhookURL string) *Discord {
	return &Discord{client: client, webhookURL: webhookURL}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	var lines []string
	for _, f := range listed(n.Failures) {
		lines = append(lines, fmt.Sprintf("• **%s**: %s", f.Source, firstError(f)))
	}

	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	embed := map[string]any{
		"title":       n.Title,
		"description": fmt.Sprintf("%s\n\n%s", n.Body, strings.Join(lines, "\n")),
		"color":       discordRed,
		"timestamp":   ts.UTC().Format(time.RFC3339),
		"footer":      map[string]any{"text": "run " + n.RunID},
	}

	body, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	if _, err := d.client.Do(ctx, d.webhookURL, requestOptions(body, nil)); err != nil {
		return fmt.Errorf("send discord webhook: %w", err)
	}
	return nil
}
