package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embed colors per event severity (Discord decimal RGB).
const (
	colorGreen = 0x2ecc71
	colorGrey  = 0x95a5a6
	colorRed   = 0xe74c3c
)

// DiscordSender delivers alerts via a Discord webhook as a single embed.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Color       int           `json:"color"`
	Timestamp   string        `json:"timestamp"`
	Footer      discordFooter `json:"footer"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// eventColor picks the embed color for the alert's event type.
func eventColor(event string) int {
	switch event {
	case EventDaemonStarted:
		return colorGreen
	case EventCollectorFailed:
		return colorRed
	default:
		return colorGrey
	}
}

// Send posts the alert to the webhook. Discord returns 204 No Content on
// success.
func (d *DiscordSender) Send(ctx context.Context, a Alert) error {
	payload := map[string]any{
		"embeds": []discordEmbed{{
			Title:       a.Title,
			Description: a.Message,
			Color:       eventColor(a.Event),
			Timestamp:   a.At.Format(time.RFC3339),
			Footer:      discordFooter{Text: a.Event},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
