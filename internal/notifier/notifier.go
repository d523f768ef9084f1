// Package notifier tells the creator about confirmed tips over Telegram.
// It is a best-effort enhancement: failures are logged, never surfaced.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skovald/storyteller/internal/config"
)

// Sender sends a message to a Telegram chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Notifier sends tip notifications to the creator's chat.
type Notifier struct {
	sender Sender
	chatID int64
	log    *slog.Logger
}

// New creates a Notifier. When the bot token or chat ID is not configured it
// returns a disabled notifier rather than an error.
func New(cfg *config.Config, log *slog.Logger) *Notifier {
	if cfg.BotToken == "" || cfg.AdminChatID == 0 {
		log.Info("tip notifications disabled: BOT_TOKEN or ADMIN_CHAT_ID not set")
		return &Notifier{log: log}
	}

	client, err := NewTelegram(cfg.BotToken)
	if err != nil {
		log.Error("init telegram client, notifications disabled", "error", err)
		return &Notifier{log: log}
	}

	log.Info("tip notifications enabled", "chat_id", cfg.AdminChatID)
	return &Notifier{
		sender: client,
		chatID: cfg.AdminChatID,
		log:    log,
	}
}

// HandleUnlock reports a confirmed tip for a wallet.
func (n *Notifier) HandleUnlock(ctx context.Context, wallet, txHash string) {
	if n.sender == nil {
		return
	}

	text := fmt.Sprintf(
		"💰 Tip received!\nFrom: %s\nTx: https://testnet.arcscan.app/tx/%s",
		wallet, txHash,
	)

	if err := n.sender.SendMessage(ctx, n.chatID, text); err != nil {
		n.log.Error("send tip notification", "error", err)
	}
}
