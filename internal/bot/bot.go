package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"notice_bot/internal/config"
	"notice_bot/internal/model"
	"notice_bot/internal/notify"
	"notice_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot that handles user commands and delivers notices.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	cfg     *config.Config
	sources []model.Source
	log     *slog.Logger
}

var _ notify.Notifier = (*Bot)(nil)

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.Storage, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		store:   store,
		cfg:     cfg,
		sources: cfg.AllSources(),
		log:     log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	if msg.From == nil {
		b.reply(msg.Chat.ID, "⚠️ DM으로 사용해주세요.")
		return
	}
	if !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, "⛔ 접근 권한이 없습니다.")
		return
	}
	b.handleCommand(ctx, msg)
}

// Send delivers msg to a chat id or a channel username. A recipient that
// blocked the bot yields an error wrapping notify.ErrRecipientUnreachable.
func (b *Bot) Send(_ context.Context, to string, msg notify.Message) error {
	var mc tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(to, 10, 64); err == nil {
		mc = tgbotapi.NewMessage(id, msg.Text)
	} else {
		mc = tgbotapi.NewMessageToChannel(to, msg.Text)
	}
	mc.ParseMode = tgbotapi.ModeHTML
	mc.DisableWebPagePreview = true
	if msg.ButtonURL != "" {
		mc.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(msg.ButtonText, msg.ButtonURL)),
		)
	}

	if _, err := b.api.Send(mc); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
			return fmt.Errorf("send to %s: %w: %s", to, notify.ErrRecipientUnreachable, apiErr.Message)
		}
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	b.replyWithMarkup(chatID, text, nil)
}

func (b *Bot) replyWithMarkup(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) source(key string) (model.Source, bool) {
	for _, s := range b.sources {
		if s.Key == key {
			return s, true
		}
	}
	return model.Source{}, false
}

func (b *Bot) sourceNames() map[string]string {
	names := make(map[string]string, len(b.sources))
	for _, s := range b.sources {
		names[s.Key] = s.Name
	}
	return names
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID
	userID := msg.From.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID, "user_id", userID)

	err := b.store.RegisterUser(ctx, model.User{
		TelegramID: userID,
		Username:   msg.From.UserName,
		FirstName:  msg.From.FirstName,
	})
	if err != nil {
		b.log.Error("register user", "user_id", userID, "error", err)
		b.reply(chatID, errorText)
		return
	}

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "sub":
		b.handleSub(ctx, chatID, userID, args)
	case "unsub":
		b.handleUnsub(ctx, chatID, userID, args)
	case "dept":
		b.handleDept(ctx, chatID, userID, args)
	case "undept":
		b.handleUndept(ctx, chatID, userID, args)
	case "mysubs":
		b.handleMySubs(ctx, chatID, userID)
	case "sources":
		b.handleSources(chatID)
	case "status":
		b.handleStatus(ctx, chatID)
	default:
		b.reply(chatID, "❓ 알 수 없는 명령어입니다. /help 를 참고하세요.")
	}
}
