// Package model defines the domain types used across the application.
package model

import "time"

// Source is one configured department notice board.
type Source struct {
	Key     string
	Name    string
	Dialect string
	URL     string
	Params  map[string]string
	Enabled bool
	// Channel overrides the default broadcast channel when non-empty.
	Channel string
}

// Param returns a dialect parameter or def when it is unset.
func (s Source) Param(name, def string) string {
	if v, ok := s.Params[name]; ok && v != "" {
		return v
	}
	return def
}

// RawNotice is a single listing row produced by a parser. It is never stored as is.
type RawNotice struct {
	ID       string
	Title    string
	URL      string
	Author   string
	Date     string
	Category string
	Pinned   bool
}

// Notice is a persisted notice. (SourceKey, NoticeID) is unique.
type Notice struct {
	ID         int64
	SourceKey  string
	NoticeID   string
	Title      string
	URL        string
	Author     string
	Category   Category
	Published  string
	Deadline   *time.Time
	CrawledAt  time.Time
	Notified   bool
	NotifiedAt *time.Time
}

// CrawlState tracks crawl progress and consecutive failures of one source.
type CrawlState struct {
	SourceKey    string
	LastCrawled  *time.Time
	LastNoticeID string
	ErrorCount   int
}

// User is a Telegram user that interacted with the bot.
type User struct {
	TelegramID   int64
	Username     string
	FirstName    string
	RegisteredAt time.Time
	IsActive     bool
}

// KeywordSubscription asks for every notice whose title contains Keyword.
type KeywordSubscription struct {
	TelegramID int64
	Keyword    string
}

// SourceSubscription asks for every notice of one source.
type SourceSubscription struct {
	TelegramID int64
	SourceKey  string
}

// Subscriptions lists everything a single user subscribed to.
type Subscriptions struct {
	Keywords []string
	Sources  []string
}

// MatchReason tells why a direct message was sent.
type MatchReason string

// Supported match reasons.
const (
	MatchKeyword MatchReason = "keyword"
	MatchSource  MatchReason = "source"
)

// Delivery is a delivery log entry: notice NoticeID was sent to TelegramID.
type Delivery struct {
	NoticeID   int64
	TelegramID int64
	Reason     MatchReason
	MatchValue string
	SentAt     time.Time
}
