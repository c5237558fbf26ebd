// Package notify raises Telegram alerts for profitable deals.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dropscout/logger"
	pkgerrors "dropscout/pkg/errors"
)

const (
	telegramAPIBase = "https://api.telegram.org"
	// Telegram caps messages at 4096 characters.
	maxMessageLength = 4096
	truncateAt       = 4090
)

// Sender delivers one formatted message. Satisfied by Client.
type Sender interface {
	Send(ctx context.Context, message string) error
}

// Client talks to the Telegram Bot API.
type Client struct {
	apiBase    string
	botToken   string
	chatID     string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a Telegram client for the given bot and chat.
func NewClient(botToken, chatID string) *Client {
	return &Client{
		apiBase:    telegramAPIBase,
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        logger.ForNotifier(),
	}
}

// Send posts a message with HTML formatting. Overlong messages are
// truncated with a trailing ellipsis rather than rejected.
func (c *Client) Send(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return pkgerrors.NewNotification("refusing to send empty message", nil)
	}

	// the cap is in characters, so count and cut runes rather than bytes
	if runes := []rune(message); len(runes) > maxMessageLength {
		c.log.Warn().Int("length", len(runes)).Msg("Message too long, truncating")
		message = string(runes[:truncateAt]) + "\n\n..."
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.botToken)
	form := url.Values{
		"chat_id":    {c.chatID},
		"text":       {message},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return pkgerrors.NewNotification("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.NewNotification("failed to reach telegram", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.NewNotification(fmt.Sprintf("telegram returned status %d", resp.StatusCode), nil)
	}

	c.log.Info().Msg("Notification sent")
	return nil
}
