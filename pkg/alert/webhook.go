package alert

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/elonfeng/trendpulse/pkg/httpclient"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Signature-256"

// Webhook posts the notification as JSON to a generic HTTP endpoint.
type Webhook struct {
	client *httpclient.Client
	url    string
	secret string
}

func NewWebhook(client *httpclient.Client, url, secret string) *Webhook {
	return &Webhook{client: client, url: url, secret: secret}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	headers := map[string]string{"User-Agent": "trendpulse/1.0"}
	if w.secret != "" {
		headers[SignatureHeader] = "sha256=" + Sign(w.secret, body)
	}

	if _, err := w.client.Do(ctx, w.url, requestOptions(body, headers)); err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
