package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// WebhookBody is the payload of a Slack-style incoming webhook.
type WebhookBody struct {
	Text string `json:"text"`
}

// WebhookNotifier posts notifications to an incoming webhook, retrying on
// connection errors, 5xx and 429 responses.
type WebhookNotifier struct {
	URL    string
	Client *retryablehttp.Client
}

func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.HTTPClient.Timeout = 20 * time.Second
	client.Logger = logger.With("system", "webhook")
	return &WebhookNotifier{URL: url, Client: client}
}

func (n *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	text := fmt.Sprintf("*%s*\n%s", msg.Subject, msg.Body)
	body, err := json.Marshal(WebhookBody{Text: text})
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", n.URL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook POST failed. status=%d", resp.StatusCode)
	}
	return nil
}
