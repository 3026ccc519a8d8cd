package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const telegramAPIBaseURL = "https://api.telegram.org"

type telegramSendResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// TelegramClient posts alert messages to a single chat via the Bot API.
type TelegramClient struct {
	chatID  string
	token   string
	enabled bool
	http    *resty.Client
}

func NewTelegramClient(cfg Config) *TelegramClient {
	if !cfg.TelegramEnabled() {
		logger.Warn("Telegram credentials not configured, telegram alerts disabled")
	}

	httpClient := resty.New().
		SetBaseURL(telegramAPIBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(4 * time.Second).
		AddRetryCondition(isRetryableResp)

	return &TelegramClient{
		chatID:  cfg.TelegramChatID,
		token:   cfg.TelegramBotToken,
		enabled: cfg.TelegramEnabled(),
		http:    httpClient,
	}
}

func (c *TelegramClient) Enabled() bool {
	return c.enabled
}

// SendMessage delivers one message to the configured chat. Messages use
// Telegram HTML parse mode, so callers escape user-controlled text themselves.
func (c *TelegramClient) SendMessage(ctx context.Context, text string) error {
	if !c.enabled {
		return fmt.Errorf("telegram channel disabled")
	}

	var result telegramSendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"chat_id":    c.chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("/bot%s/sendMessage", c.token))
	if err != nil {
		return fmt.Errorf("telegram sendMessage request failed: %w", err)
	}
	if resp.StatusCode() != 200 || !result.OK {
		return fmt.Errorf("telegram sendMessage rejected: status=%d description=%s",
			resp.StatusCode(), result.Description)
	}

	logger.WithFields(map[string]interface{}{
		"chat_id": c.chatID,
		"length":  len(text),
	}).Debug("telegram message sent")

	return nil
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}

	return false
}
