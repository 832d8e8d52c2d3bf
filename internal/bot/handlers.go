package bot

import (
	"context"
	"fmt"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, startText)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, helpText)
}

func (b *Bot) handleSub(ctx context.Context, chatID, userID int64, args string) {
	kw, err := ParseKeyword("sub", args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	added, err := b.store.AddKeywordSubscription(ctx, userID, kw)
	if err != nil {
		b.log.Error("add keyword subscription", "user_id", userID, "keyword", kw, "error", err)
		b.reply(chatID, errorText)
		return
	}
	if !added {
		b.reply(chatID, fmt.Sprintf("ℹ️ '%s' 이미 구독 중입니다.", escape(kw)))
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ '%s' 키워드 구독 완료!", escape(kw)))
}

func (b *Bot) handleUnsub(ctx context.Context, chatID, userID int64, args string) {
	kw, err := ParseKeyword("unsub", args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.reply(chatID, b.removeKeyword(ctx, userID, kw))
}

func (b *Bot) removeKeyword(ctx context.Context, userID int64, kw string) string {
	removed, err := b.store.RemoveKeywordSubscription(ctx, userID, kw)
	if err != nil {
		b.log.Error("remove keyword subscription", "user_id", userID, "keyword", kw, "error", err)
		return errorText
	}
	if !removed {
		return fmt.Sprintf("ℹ️ '%s' 구독 중이 아닙니다.", escape(kw))
	}
	return fmt.Sprintf("✅ '%s' 키워드 구독 해제!", escape(kw))
}

func (b *Bot) handleDept(ctx context.Context, chatID, userID int64, args string) {
	src, err := ParseSourceKey("dept", args, b.sources)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	added, err := b.store.AddSourceSubscription(ctx, userID, src.Key)
	if err != nil {
		b.log.Error("add source subscription", "user_id", userID, "source", src.Key, "error", err)
		b.reply(chatID, errorText)
		return
	}
	if !added {
		b.reply(chatID, fmt.Sprintf("ℹ️ '%s' 이미 구독 중입니다.", escape(src.Name)))
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ '%s' 학과 구독 완료!", escape(src.Name)))
}

func (b *Bot) handleUndept(ctx context.Context, chatID, userID int64, args string) {
	src, err := ParseSourceKey("undept", args, b.sources)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.reply(chatID, b.removeSource(ctx, userID, src.Key))
}

func (b *Bot) removeSource(ctx context.Context, userID int64, key string) string {
	removed, err := b.store.RemoveSourceSubscription(ctx, userID, key)
	if err != nil {
		b.log.Error("remove source subscription", "user_id", userID, "source", key, "error", err)
		return errorText
	}
	name := key
	if src, ok := b.source(key); ok {
		name = src.Name
	}
	if !removed {
		return fmt.Sprintf("ℹ️ '%s' 구독 중이 아닙니다.", escape(name))
	}
	return fmt.Sprintf("✅ '%s' 학과 구독 해제!", escape(name))
}

func (b *Bot) handleMySubs(ctx context.Context, chatID, userID int64) {
	subs, err := b.store.UserSubscriptions(ctx, userID)
	if err != nil {
		b.log.Error("list subscriptions", "user_id", userID, "error", err)
		b.reply(chatID, errorText)
		return
	}
	b.replyWithMarkup(chatID, FormatSubscriptions(subs, b.sourceNames()), subscriptionKeyboard(subs))
}

func (b *Bot) handleSources(chatID int64) {
	b.reply(chatID, FormatSources(b.sources))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	states, err := b.store.ListCrawlStates(ctx)
	if err != nil {
		b.log.Error("list crawl states", "error", err)
		b.reply(chatID, errorText)
		return
	}
	b.reply(chatID, FormatStatus(states, b.sourceNames()))
}
