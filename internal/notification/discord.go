package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Discord posts run results to webhooks. An empty URL disables that kind of
// notification.
type Discord struct {
	errorURL   string
	successURL string
	client     *http.Client
}

func NewDiscord(errorURL, successURL string) *Discord {
	return &Discord{
		errorURL:   errorURL,
		successURL: successURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *Discord) SendError(ctx context.Context, errorMessage string) error {
	return d.send(ctx, d.errorURL, DiscordEmbed{
		Title:       "🚨 Flood mapping failed",
		Description: fmt.Sprintf("An error occurred: %s", errorMessage),
		Color:       16711680, // Red color
	})
}

func (d *Discord) SendSuccess(ctx context.Context, successMessage string) error {
	return d.send(ctx, d.successURL, DiscordEmbed{
		Title:       "✅ Flood map ready",
		Description: successMessage,
		Color:       65280, // Green color
	})
}

func (d *Discord) send(ctx context.Context, url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}
	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}
