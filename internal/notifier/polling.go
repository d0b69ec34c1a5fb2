package notifier

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// CommandHandler is called when a user command is received from the
// configured chat. A non-empty return value is sent back to that chat.
type CommandHandler func(ctx context.Context, command string) string

// StartPolling begins long-polling for Telegram commands. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) error {
	if t.bot == nil {
		return errors.New("telegram notifier has no bot client")
	}
	t.handler = handler
	t.log.Info("telegram polling started")
	t.bot.Start(ctx)
	t.log.Info("telegram polling stopped")
	return nil
}

func (t *TelegramNotifier) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil || t.handler == nil {
		return
	}
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}
	chatID := update.Message.Chat.ID
	if strconv.FormatInt(chatID, 10) != t.ChatID {
		t.log.WithField("chat", chatID).Warn("ignored command from unknown chat")
		return
	}
	t.log.WithField("chat", chatID).WithField("command", text).Info("received command")

	reply := t.handler(ctx, text)
	if reply == "" {
		return
	}
	if err := t.sendTo(ctx, chatID, reply); err != nil {
		t.log.WithError(err).Error("send reply failed")
	}
}
