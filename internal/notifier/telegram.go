package notifier

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
)

// TelegramClient is a send-only wrapper around the bot API.
type TelegramClient struct {
	bot *bot.Bot
}

// NewTelegram creates a new telegram client
func NewTelegram(token string) (*TelegramClient, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return &TelegramClient{bot: b}, nil
}

// SendMessage sends a text message to a chat
func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}
