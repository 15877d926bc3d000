// internal/infra/telegram/client.go
package telegram

import (
	"fmt"

	"gopkg.in/telebot.v3"
)

// Client sends plain messages to a Telegram chat.
type Client interface {
	SendMessage(chatID int64, text string, options *telebot.SendOptions) error
}

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// NewOfflineBot creates a send-only bot: it never polls for updates.
func NewOfflineBot(token string) (*telebot.Bot, error) {
	bot, err := telebot.NewBot(telebot.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return bot, nil
}

// SendMessage sends a text message to the specified chat.
func (tba *TelebotAdapter) SendMessage(chatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}
	_, err := tba.bot.Send(&telebot.Chat{ID: chatID}, text, options)
	return err
}
