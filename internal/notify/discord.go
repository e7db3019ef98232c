package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DiscordSender delivers notifications through a Discord webhook. Discord
// answers 204 No Content on success.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender returns a sender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the message with the title in bold markdown.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	})
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
