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

// TelegramSender delivers alerts via the Telegram Bot API sendMessage
// endpoint.
type TelegramSender struct {
	apiURL string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and
// chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiURL: fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", token),
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// tgResponse is the slice of the Bot API envelope we care about: the API
// answers 200 with ok=false on some failures, so the flag must be checked.
type tgResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts the alert to the configured chat. The title is bold, the
// event type and UTC timestamp go on a trailing context line.
func (t *TelegramSender) Send(ctx context.Context, a Alert) error {
	text := fmt.Sprintf("*%s*\n%s\n`%s` %s",
		a.Title, a.Message, a.Event, a.At.Format("2006-01-02 15:04:05 UTC"))

	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var tg tgResponse
	if err := json.Unmarshal(raw, &tg); err == nil && !tg.OK {
		return fmt.Errorf("telegram: api rejected message: %s", tg.Description)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
