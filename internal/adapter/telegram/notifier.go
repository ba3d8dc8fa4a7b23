// Package telegram implements a notifier.Notifier for the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Strob0t/ReviewLoop/internal/port/notifier"
)

const (
	providerName = "telegram"
	apiBase      = "https://api.telegram.org"
)

// Notifier sends messages to a Telegram chat through a bot.
type Notifier struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client
}

// NewNotifier creates a Telegram notifier for the given bot and chat.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		apiBase:    apiBase,
		httpClient: http.DefaultClient,
	}
}

func (n *Notifier) Name() string { return providerName }

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func levelEmoji(level string) string {
	switch level {
	case "warning":
		return "⚠️"
	case "error":
		return "\U0001f6a8"
	default:
		return "ℹ️"
	}
}

func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.botToken == "" || n.chatID == "" {
		return notifier.ErrNotConfigured
	}

	text := fmt.Sprintf("%s <b>%s</b>\n\n%s", levelEmoji(notification.Level), notification.Title, notification.Message)
	if notification.Source != "" {
		text += fmt.Sprintf("\n\n<i>%s</i>", notification.Source)
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    n.chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("telegram marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
