package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"notice_bot/internal/classify"
	"notice_bot/internal/model"
	"notice_bot/migrations"
)

const (
	timeLayout = "2006-01-02T15:04:05Z"
	dateLayout = "2006-01-02"
)

const noticeColumns = `id, source_key, notice_id, title, url, author, category, published,
	deadline, crawled_at, notified, notified_at`

// SQLite implements Storage backed by a SQLite database. The pool is limited
// to one connection, which serialises writes from the crawl loop and the
// command handlers.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Storage = (*SQLite)(nil)

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// InsertIfNew classifies n and inserts it unless it is already stored.
func (s *SQLite) InsertIfNew(ctx context.Context, sourceKey string, n model.RawNotice) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notices (source_key, notice_id, title, url, author, category, published, crawled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sourceKey, n.ID, n.Title, n.URL, n.Author, string(classify.Classify(n.Title)), n.Date, s.timestamp(),
	)
	if err != nil {
		return false, fmt.Errorf("insert notice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetNotice returns a single notice by its surrogate id.
func (s *SQLite) GetNotice(ctx context.Context, id int64) (*model.Notice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noticeColumns+` FROM notices WHERE id = ?`, id)
	n, err := scanNotice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notice %d: %w", id, ErrNotFound)
	}
	return n, err
}

// PendingNotices returns up to limit notices that were not broadcast yet.
func (s *SQLite) PendingNotices(ctx context.Context, limit int) ([]model.Notice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noticeColumns+` FROM notices
		 WHERE notified = 0
		 ORDER BY crawled_at DESC, id DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending notices: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanNotices(rows)
}

// MarkNotified flags a notice as broadcast. Notices already flagged keep
// their original broadcast time.
func (s *SQLite) MarkNotified(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notices SET notified = 1, notified_at = ? WHERE id = ? AND notified = 0`,
		s.timestamp(), id,
	)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// RecentlyNotified returns up to limit notices broadcast since the given time,
// newest first.
func (s *SQLite) RecentlyNotified(ctx context.Context, since time.Time, limit int) ([]model.Notice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noticeColumns+` FROM notices
		 WHERE notified = 1 AND notified_at >= ?
		 ORDER BY notified_at DESC, id DESC
		 LIMIT ?`, since.UTC().Format(timeLayout), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent notices: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanNotices(rows)
}

// SetDeadline stores the deadline date of a notice. An existing deadline is kept.
func (s *SQLite) SetDeadline(ctx context.Context, id int64, deadline time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notices SET deadline = ? WHERE id = ? AND deadline IS NULL`,
		deadline.Format(dateLayout), id,
	)
	if err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	return nil
}

// UpdateCrawlState records a successful crawl and resets the error counter.
// An empty lastNoticeID keeps the previous watermark.
func (s *SQLite) UpdateCrawlState(ctx context.Context, sourceKey, lastNoticeID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crawl_state (source_key, last_crawled, last_notice_id, error_count)
		 VALUES (?, ?, ?, 0)
		 ON CONFLICT (source_key) DO UPDATE SET
		   last_crawled = excluded.last_crawled,
		   last_notice_id = COALESCE(NULLIF(excluded.last_notice_id, ''), last_notice_id),
		   error_count = 0`,
		sourceKey, s.timestamp(), lastNoticeID,
	)
	if err != nil {
		return fmt.Errorf("update crawl state: %w", err)
	}
	return nil
}

// IncrementError bumps the consecutive error counter and returns the new value.
func (s *SQLite) IncrementError(ctx context.Context, sourceKey string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO crawl_state (source_key, error_count) VALUES (?, 1)
		 ON CONFLICT (source_key) DO UPDATE SET error_count = error_count + 1
		 RETURNING error_count`,
		sourceKey,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment error: %w", err)
	}
	return count, nil
}

// ListCrawlStates returns the crawl state of every source seen so far.
func (s *SQLite) ListCrawlStates(ctx context.Context) ([]model.CrawlState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_key, last_crawled, last_notice_id, error_count FROM crawl_state ORDER BY source_key`,
	)
	if err != nil {
		return nil, fmt.Errorf("query crawl state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []model.CrawlState
	for rows.Next() {
		var st model.CrawlState
		var last sql.NullString
		if err := rows.Scan(&st.SourceKey, &last, &st.LastNoticeID, &st.ErrorCount); err != nil {
			return nil, fmt.Errorf("scan crawl state: %w", err)
		}
		st.LastCrawled = parseTime(last)
		states = append(states, st)
	}
	return states, rows.Err()
}

// RegisterUser creates the user or refreshes its names. Any interaction
// proves the user is reachable again, so the user is re-activated.
func (s *SQLite) RegisterUser(ctx context.Context, u model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username, first_name, registered_at, is_active)
		 VALUES (?, ?, ?, ?, 1)
		 ON CONFLICT (telegram_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   is_active = 1`,
		u.TelegramID, u.Username, u.FirstName, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	return nil
}

// GetUser returns a user by telegram id.
func (s *SQLite) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	var u model.User
	var registered string
	var active int
	err := s.db.QueryRowContext(ctx,
		`SELECT telegram_id, username, first_name, registered_at, is_active FROM users WHERE telegram_id = ?`,
		telegramID,
	).Scan(&u.TelegramID, &u.Username, &u.FirstName, &registered, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", telegramID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.RegisteredAt, _ = time.Parse(timeLayout, registered)
	u.IsActive = active == 1
	return &u, nil
}

// DeactivateUser excludes a user from all subscriber queries.
func (s *SQLite) DeactivateUser(ctx context.Context, telegramID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = 0 WHERE telegram_id = ?`, telegramID)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

// AddKeywordSubscription subscribes a user to a keyword. It returns false
// when the subscription already exists.
func (s *SQLite) AddKeywordSubscription(ctx context.Context, telegramID int64, keyword string) (bool, error) {
	return s.execAffected(ctx, "add keyword subscription",
		`INSERT OR IGNORE INTO keyword_subs (telegram_id, keyword, created_at) VALUES (?, ?, ?)`,
		telegramID, strings.TrimSpace(keyword), s.timestamp(),
	)
}

// RemoveKeywordSubscription reports whether a subscription was removed.
func (s *SQLite) RemoveKeywordSubscription(ctx context.Context, telegramID int64, keyword string) (bool, error) {
	return s.execAffected(ctx, "remove keyword subscription",
		`DELETE FROM keyword_subs WHERE telegram_id = ? AND keyword = ?`,
		telegramID, strings.TrimSpace(keyword),
	)
}

// AddSourceSubscription subscribes a user to every notice of a source.
func (s *SQLite) AddSourceSubscription(ctx context.Context, telegramID int64, sourceKey string) (bool, error) {
	return s.execAffected(ctx, "add source subscription",
		`INSERT OR IGNORE INTO source_subs (telegram_id, source_key, created_at) VALUES (?, ?, ?)`,
		telegramID, sourceKey, s.timestamp(),
	)
}

// RemoveSourceSubscription reports whether a subscription was removed.
func (s *SQLite) RemoveSourceSubscription(ctx context.Context, telegramID int64, sourceKey string) (bool, error) {
	return s.execAffected(ctx, "remove source subscription",
		`DELETE FROM source_subs WHERE telegram_id = ? AND source_key = ?`,
		telegramID, sourceKey,
	)
}

// UserSubscriptions lists the keywords and sources of one user in the order
// they were added.
func (s *SQLite) UserSubscriptions(ctx context.Context, telegramID int64) (model.Subscriptions, error) {
	var subs model.Subscriptions
	var err error
	subs.Keywords, err = s.queryStrings(ctx,
		`SELECT keyword FROM keyword_subs WHERE telegram_id = ? ORDER BY id`, telegramID)
	if err != nil {
		return subs, fmt.Errorf("query keyword subscriptions: %w", err)
	}
	subs.Sources, err = s.queryStrings(ctx,
		`SELECT source_key FROM source_subs WHERE telegram_id = ? ORDER BY id`, telegramID)
	if err != nil {
		return subs, fmt.Errorf("query source subscriptions: %w", err)
	}
	return subs, nil
}

// SourceSubscribers returns the active users subscribed to a source.
func (s *SQLite) SourceSubscribers(ctx context.Context, sourceKey string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ss.telegram_id FROM source_subs ss
		 JOIN users u ON u.telegram_id = ss.telegram_id
		 WHERE ss.source_key = ? AND u.is_active = 1
		 ORDER BY ss.id`, sourceKey,
	)
	if err != nil {
		return nil, fmt.Errorf("query source subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllKeywordSubscriptions returns every keyword subscription of active users.
func (s *SQLite) AllKeywordSubscriptions(ctx context.Context) ([]model.KeywordSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ks.telegram_id, ks.keyword FROM keyword_subs ks
		 JOIN users u ON u.telegram_id = ks.telegram_id
		 WHERE u.is_active = 1
		 ORDER BY ks.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query keyword subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.KeywordSubscription
	for rows.Next() {
		var ks model.KeywordSubscription
		if err := rows.Scan(&ks.TelegramID, &ks.Keyword); err != nil {
			return nil, fmt.Errorf("scan keyword subscription: %w", err)
		}
		subs = append(subs, ks)
	}
	return subs, rows.Err()
}

// IsDelivered checks whether a notice was already sent to a user directly.
func (s *SQLite) IsDelivered(ctx context.Context, noticeID, telegramID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dm_log WHERE notice_id = ? AND telegram_id = ?`,
		noticeID, telegramID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check delivery: %w", err)
	}
	return count > 0, nil
}

// LogDelivery records a direct delivery. Logging the same pair twice is a no-op.
func (s *SQLite) LogDelivery(ctx context.Context, d model.Delivery) error {
	sentAt := d.SentAt
	if sentAt.IsZero() {
		sentAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dm_log (notice_id, telegram_id, match_type, match_value, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		d.NoticeID, d.TelegramID, string(d.Reason), d.MatchValue, sentAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("log delivery: %w", err)
	}
	return nil
}

func (s *SQLite) execAffected(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n > 0, nil
}

func (s *SQLite) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanNotice(row scannable) (*model.Notice, error) {
	var n model.Notice
	var category, crawled string
	var deadline, notifiedAt sql.NullString
	var notified int
	err := row.Scan(&n.ID, &n.SourceKey, &n.NoticeID, &n.Title, &n.URL, &n.Author, &category, &n.Published,
		&deadline, &crawled, &notified, &notifiedAt)
	if err != nil {
		return nil, fmt.Errorf("scan notice: %w", err)
	}
	n.Category = model.ParseCategory(category)
	n.CrawledAt, _ = time.Parse(timeLayout, crawled)
	n.Notified = notified == 1
	n.NotifiedAt = parseTime(notifiedAt)
	if deadline.Valid {
		if d, err := time.Parse(dateLayout, deadline.String); err == nil {
			n.Deadline = &d
		}
	}
	return &n, nil
}

func scanNotices(rows *sql.Rows) ([]model.Notice, error) {
	var notices []model.Notice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, err
		}
		notices = append(notices, *n)
	}
	return notices, rows.Err()
}

func parseTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}
