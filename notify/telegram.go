// Package notify pushes one-line execution summaries to Telegram.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gridhook/logger"
)

// Telegram sends messages to a fixed chat. A nil *Telegram is a no-op, so
// callers never need to guard the unconfigured case.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram creates a notifier. Returns nil (no-op) when token or chat ID
// are unset.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Infof("Telegram notifications enabled for chat %d", chatID)
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Send delivers one message. Delivery failures are logged, never propagated:
// notification is best-effort and must not affect signal processing.
func (t *Telegram) Send(text string) {
	if t == nil {
		return
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		logger.Warnf("telegram send failed: %v", err)
	}
}
