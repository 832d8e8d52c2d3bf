package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"notice_bot/internal/model"
	"notice_bot/internal/notify"
)

const (
	errorText = "⚠️ 처리 중 오류가 발생했습니다. 잠시 후 다시 시도해주세요."

	startText = `👋 <b>충북대 공지 알림봇</b>입니다!

학교와 학과 공지를 모아 채널로 보내고, 구독한 키워드나 학과의 새 공지는 DM으로 알려드립니다.

/help 로 명령어를 확인하세요.`

	helpText = `📖 <b>명령어 안내</b>

/sub &lt;키워드&gt; — 키워드 구독
/unsub &lt;키워드&gt; — 키워드 구독 해제
/dept &lt;코드&gt; — 학과 구독
/undept &lt;코드&gt; — 학과 구독 해제
/mysubs — 내 구독 현황
/sources — 사용 가능한 소스 목록
/status — 봇 상태`

	// Telegram rejects callback data longer than this many bytes.
	maxCallbackData = 64
)

func escape(s string) string {
	return notify.EscapeHTML(s)
}

// FormatSubscriptions lists the subscriptions of one user.
func FormatSubscriptions(subs model.Subscriptions, names map[string]string) string {
	if len(subs.Keywords) == 0 && len(subs.Sources) == 0 {
		return "📭 구독 중인 항목이 없습니다.\n/sub 또는 /dept 로 구독해보세요!"
	}

	var b strings.Builder
	b.WriteString("📋 <b>내 구독 현황</b>\n")
	if len(subs.Keywords) > 0 {
		b.WriteString("\n🔍 <b>키워드 구독:</b>\n")
		for _, kw := range subs.Keywords {
			fmt.Fprintf(&b, "  • %s\n", escape(kw))
		}
	}
	if len(subs.Sources) > 0 {
		b.WriteString("\n🏫 <b>학과 구독:</b>\n")
		for _, key := range subs.Sources {
			name := names[key]
			if name == "" {
				name = key
			}
			fmt.Fprintf(&b, "  • %s (%s)\n", escape(name), escape(key))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// subscriptionKeyboard offers one removal button per subscription.
func subscriptionKeyboard(subs model.Subscriptions) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, kw := range subs.Keywords {
		data := cbUnsub + ":" + kw
		if len(data) > maxCallbackData {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ "+kw, data)))
	}
	for _, key := range subs.Sources {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ "+key, cbUndept+":"+key)))
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// FormatSources lists every configured source and whether it is crawled.
func FormatSources(sources []model.Source) string {
	var b strings.Builder
	b.WriteString("📚 <b>사용 가능한 소스 목록</b>\n\n")
	for _, s := range sources {
		mark := "✅"
		if !s.Enabled {
			mark = "⏸️"
		}
		fmt.Fprintf(&b, "%s <code>%s</code> — %s\n", mark, escape(s.Key), escape(s.Name))
	}
	b.WriteString("\n💡 /dept &lt;코드&gt; 로 구독하세요!")
	return b.String()
}

// FormatStatus reports the crawl state of every source seen so far.
func FormatStatus(states []model.CrawlState, names map[string]string) string {
	if len(states) == 0 {
		return "ℹ️ 아직 크롤링 기록이 없습니다."
	}

	var b strings.Builder
	b.WriteString("📊 <b>봇 상태</b>\n\n")
	for _, st := range states {
		name := names[st.SourceKey]
		if name == "" {
			name = st.SourceKey
		}
		last := "없음"
		if st.LastCrawled != nil {
			last = st.LastCrawled.UTC().Format("2006-01-02 15:04 UTC")
		}
		fmt.Fprintf(&b, "• %s — 최근: %s", escape(name), last)
		if st.ErrorCount > 0 {
			fmt.Fprintf(&b, " ⚠️(%d)", st.ErrorCount)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
