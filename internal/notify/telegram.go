// Package notify sends due-word reminders. The engine only needs a Notifier;
// the Telegram implementation is optional and enabled by configuration.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers a "words due for review" reminder.
type Notifier interface {
	SendReminder(dueCount int) error
}

// Telegram sends reminders to a single chat.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram creates a Telegram notifier for the given bot token and chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

// SendReminder implements Notifier.
func (t *Telegram) SendReminder(dueCount int) error {
	text := fmt.Sprintf("📚 You have %d word(s) due for review today.", dueCount)
	if dueCount == 1 {
		text = "📚 You have 1 word due for review today."
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	_, err := t.api.Send(msg)
	return err
}
