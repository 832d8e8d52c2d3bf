// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"notice_bot/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations. Every method is a
// single statement, so callers may retry any of them.
type Storage interface {
	// InsertIfNew stores n unless (sourceKey, n.ID) already exists and
	// reports whether a row was created.
	InsertIfNew(ctx context.Context, sourceKey string, n model.RawNotice) (bool, error)
	GetNotice(ctx context.Context, id int64) (*model.Notice, error)
	// PendingNotices returns unbroadcast notices, most recently crawled first.
	PendingNotices(ctx context.Context, limit int) ([]model.Notice, error)
	MarkNotified(ctx context.Context, id int64) error
	// RecentlyNotified returns notices broadcast at or after since.
	RecentlyNotified(ctx context.Context, since time.Time, limit int) ([]model.Notice, error)
	// SetDeadline records a deadline for a notice that does not have one yet.
	SetDeadline(ctx context.Context, id int64, deadline time.Time) error

	UpdateCrawlState(ctx context.Context, sourceKey, lastNoticeID string) error
	IncrementError(ctx context.Context, sourceKey string) (int, error)
	ListCrawlStates(ctx context.Context) ([]model.CrawlState, error)

	RegisterUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
	DeactivateUser(ctx context.Context, telegramID int64) error

	AddKeywordSubscription(ctx context.Context, telegramID int64, keyword string) (bool, error)
	RemoveKeywordSubscription(ctx context.Context, telegramID int64, keyword string) (bool, error)
	AddSourceSubscription(ctx context.Context, telegramID int64, sourceKey string) (bool, error)
	RemoveSourceSubscription(ctx context.Context, telegramID int64, sourceKey string) (bool, error)
	UserSubscriptions(ctx context.Context, telegramID int64) (model.Subscriptions, error)
	SourceSubscribers(ctx context.Context, sourceKey string) ([]int64, error)
	AllKeywordSubscriptions(ctx context.Context) ([]model.KeywordSubscription, error)

	IsDelivered(ctx context.Context, noticeID, telegramID int64) (bool, error)
	LogDelivery(ctx context.Context, d model.Delivery) error

	Close() error
}
