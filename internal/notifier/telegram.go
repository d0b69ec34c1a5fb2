package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"BreakoutScreener/internal/logging"
)

// Sender is the part of the Telegram client used to deliver messages.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	ChatID string
	// RetryBase is the first backoff delay of SendWithRetry; it doubles per attempt.
	RetryBase time.Duration

	sender  Sender
	bot     *bot.Bot
	handler CommandHandler
	log     *logrus.Entry
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, logger *logrus.Entry) (*TelegramNotifier, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	client := &http.Client{Timeout: 65 * time.Second, Transport: transport}

	t := &TelegramNotifier{ChatID: chatID, RetryBase: time.Second, log: logging.OrDiscard(logger)}
	b, err := bot.New(botToken,
		bot.WithHTTPClient(time.Minute, client),
		bot.WithSkipGetMe(),
		bot.WithDefaultHandler(t.handleUpdate),
	)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = b
	t.sender = b
	return t, nil
}

// NewWithSender builds a send-only notifier around an existing client.
func NewWithSender(sender Sender, chatID string, logger *logrus.Entry) *TelegramNotifier {
	return &TelegramNotifier{ChatID: chatID, RetryBase: time.Second, sender: sender, log: logging.OrDiscard(logger)}
}

// Send sends an HTML message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	return t.sendTo(ctx, t.ChatID, text)
}

func (t *TelegramNotifier) sendTo(ctx context.Context, chatID any, text string) error {
	_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := t.Send(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		backoff := t.RetryBase * time.Duration(1<<uint(i))
		t.log.WithFields(logrus.Fields{
			"attempt": i + 1,
			"of":      maxRetries + 1,
			"backoff": backoff,
		}).WithError(err).Warn("telegram send failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", maxRetries+1, lastErr)
}
