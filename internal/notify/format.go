package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"notice_bot/internal/model"
)

const (
	linkButton    = "🔗 원문 보기"
	unknownDate   = "날짜 미상"
	unknownAuthor = "작성자 미상"
)

// EscapeHTML escapes text for Telegram's HTML parse mode.
func EscapeHTML(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func withLink(text, url string) Message {
	msg := Message{Text: text}
	if url != "" {
		msg.ButtonText = linkButton
		msg.ButtonURL = url
	}
	return msg
}

// FormatBroadcast renders a notice for a broadcast channel.
func FormatBroadcast(n model.Notice, sourceName string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n\n", n.Category.Emoji(), EscapeHTML(sourceName))
	if n.Category != model.CategoryGeneral {
		fmt.Fprintf(&b, "[%s] ", n.Category.Label())
	}
	b.WriteString(EscapeHTML(n.Title))
	fmt.Fprintf(&b, "\n\n📅 %s | ✍️ %s",
		EscapeHTML(orDefault(n.Published, unknownDate)),
		EscapeHTML(orDefault(n.Author, unknownAuthor)),
	)
	return withLink(b.String(), n.URL)
}

// FormatDirect renders a notice for a subscriber, naming the subscription
// that matched.
func FormatDirect(n model.Notice, sourceName string, reason model.MatchReason, value string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n\n", n.Category.Emoji(), EscapeHTML(sourceName))
	b.WriteString(EscapeHTML(n.Title))
	b.WriteString("\n\n")
	switch reason {
	case model.MatchKeyword:
		fmt.Fprintf(&b, "🔍 키워드: %s\n", EscapeHTML(value))
	case model.MatchSource:
		fmt.Fprintf(&b, "🏫 학과: %s\n", EscapeHTML(sourceName))
	}
	fmt.Fprintf(&b, "📅 %s", EscapeHTML(orDefault(n.Published, unknownDate)))
	if n.Deadline != nil {
		fmt.Fprintf(&b, "\n⏰ 마감: %s", n.Deadline.Format("2006-01-02"))
	}
	return withLink(b.String(), n.URL)
}
