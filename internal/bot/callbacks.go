package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data prefixes of the /mysubs removal buttons.
const (
	cbUnsub  = "unsub"
	cbUndept = "undept"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	action, value, ok := strings.Cut(cb.Data, ":")
	if !ok || value == "" {
		return
	}
	if !b.cfg.IsUserAllowed(cb.From.ID) {
		return
	}

	b.log.Info("callback",
		"action", action,
		"value", value,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cbUnsub:
		b.reply(chatID, b.removeKeyword(ctx, cb.From.ID, value))
	case cbUndept:
		b.reply(chatID, b.removeSource(ctx, cb.From.ID, value))
	}
}
