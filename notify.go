package main

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Telegram refuses messages over 4096 characters.
const telegramMessageSize = 4000

// Notifier delivers a plain text message to an operator. Delivery is best
// effort: failures are logged and never returned.
type Notifier interface {
	Notify(ctx context.Context, msg string)
}

func newNotifier(cfg *Config, log *zap.Logger) Notifier {
	if cfg.TelegramToken == "" {
		return &logNotifier{log: log}
	}
	return &telegramNotifier{
		client: &http.Client{Timeout: 30 * time.Second},
		api:    strings.TrimRight(cfg.TelegramAPI, "/"),
		token:  cfg.TelegramToken,
		chatID: cfg.TelegramChatID,
		log:    log,
	}
}

// logNotifier is used when no channel is configured.
type logNotifier struct {
	log *zap.Logger
}

func (n *logNotifier) Notify(_ context.Context, msg string) {
	n.log.Warn("notification", zap.String("message", msg))
}

type telegramNotifier struct {
	client *http.Client
	api    string
	token  string
	chatID string
	log    *zap.Logger
}

func (t *telegramNotifier) Notify(ctx context.Context, msg string) {
	msg = truncateUTF8(msg, telegramMessageSize)
	form := url.Values{
		"chat_id": {t.chatID},
		"text":    {msg},
	}
	endpoint := t.api + "/bot" + t.token + "/sendMessage"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		t.failed(err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		// the error text embeds the URL, which carries the bot token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		t.failed(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		RecordNotification(false)
		t.log.Warn("notification rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return
	}
	RecordNotification(true)
}

func (t *telegramNotifier) failed(err error) {
	RecordNotification(false)
	t.log.Warn("notification failed", zap.Error(err))
}

// truncateUTF8 cuts msg to at most n bytes without splitting a character;
// the API refuses text that is not valid UTF-8.
func truncateUTF8(msg string, n int) string {
	if len(msg) <= n {
		return msg
	}
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}
