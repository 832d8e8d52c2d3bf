// Package dm matches recently broadcast notices against user subscriptions
// and delivers each notice to each interested user at most once.
package dm

import (
	"strings"

	"github.com/cloudflare/ahocorasick"

	"notice_bot/internal/model"
)

// KeywordIndex finds the keyword subscriptions contained in a title.
// Matching is case-insensitive.
type KeywordIndex struct {
	matcher *ahocorasick.Matcher
	words   []string
	subs    []model.KeywordSubscription
}

// NewKeywordIndex builds an index over subs. Subscription order is kept.
func NewKeywordIndex(subs []model.KeywordSubscription) *KeywordIndex {
	idx := &KeywordIndex{}
	seen := make(map[string]bool)
	for _, s := range subs {
		w := strings.ToLower(strings.TrimSpace(s.Keyword))
		if w == "" {
			continue
		}
		idx.subs = append(idx.subs, s)
		if !seen[w] {
			seen[w] = true
			idx.words = append(idx.words, w)
		}
	}
	if len(idx.words) > 0 {
		idx.matcher = ahocorasick.NewStringMatcher(idx.words)
	}
	return idx
}

// Match returns the subscriptions whose keyword occurs in title.
func (idx *KeywordIndex) Match(title string) []model.KeywordSubscription {
	if idx.matcher == nil {
		return nil
	}
	hits := idx.matcher.MatchThreadSafe([]byte(strings.ToLower(title)))
	if len(hits) == 0 {
		return nil
	}
	found := make(map[string]bool, len(hits))
	for _, h := range hits {
		found[idx.words[h]] = true
	}

	var out []model.KeywordSubscription
	for _, s := range idx.subs {
		if found[strings.ToLower(strings.TrimSpace(s.Keyword))] {
			out = append(out, s)
		}
	}
	return out
}

// Candidate is one user that should receive a notice, with the reason.
type Candidate struct {
	TelegramID int64
	Reason     model.MatchReason
	Value      string
}

// Candidates returns the recipients of n: keyword matches first, then source
// subscribers. Each user appears once, with the first reason that matched.
func Candidates(n model.Notice, index *KeywordIndex, sourceSubscribers []int64) []Candidate {
	var out []Candidate
	seen := make(map[int64]bool)
	for _, s := range index.Match(n.Title) {
		if seen[s.TelegramID] {
			continue
		}
		seen[s.TelegramID] = true
		out = append(out, Candidate{TelegramID: s.TelegramID, Reason: model.MatchKeyword, Value: s.Keyword})
	}
	for _, id := range sourceSubscribers {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Candidate{TelegramID: id, Reason: model.MatchSource, Value: n.SourceKey})
	}
	return out
}
