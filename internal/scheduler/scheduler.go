// Package scheduler runs crawl cycles: fetch every enabled source, store new
// notices, broadcast them, enrich deadlines and hand over to direct delivery.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"notice_bot/internal/deadline"
	"notice_bot/internal/dm"
	"notice_bot/internal/metrics"
	"notice_bot/internal/model"
	"notice_bot/internal/notify"
	"notice_bot/internal/parser"
	"notice_bot/internal/storage"
)

const (
	// AlertThreshold is the consecutive failure count that triggers an alert.
	AlertThreshold = 5
	// MaxRetries is the number of fetch retries after the first attempt.
	MaxRetries = 3
)

// Delivery sends direct messages for recently broadcast notices.
type Delivery interface {
	Process(ctx context.Context) (int, error)
}

// Options configures a Scheduler.
type Options struct {
	Interval   time.Duration
	MaxNotices int
	// Channel is the default broadcast destination.
	Channel string
	// LogChannel receives alerts and cycle summaries. Empty disables them.
	LogChannel string
	// RecentWindow bounds deadline enrichment.
	RecentWindow time.Duration
	// RetryBase is the first backoff delay; later delays double.
	RetryBase time.Duration
	Limiter   *rate.Limiter
}

// Scheduler runs crawl cycles over a fixed set of sources.
type Scheduler struct {
	store    storage.Storage
	parsers  []parser.Parser
	channels map[string]string
	names    map[string]string
	notifier notify.Notifier
	delivery Delivery
	opts     Options
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Scheduler for the enabled sources. newParser builds the
// parser of each source.
func New(
	store storage.Storage,
	sources []model.Source,
	newParser func(model.Source) (parser.Parser, error),
	notifier notify.Notifier,
	delivery Delivery,
	opts Options,
	log *slog.Logger,
) (*Scheduler, error) {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	if opts.MaxNotices <= 0 {
		opts.MaxNotices = 20
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = 24 * time.Hour
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 2 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Inf, 1)
	}

	s := &Scheduler{
		store:    store,
		channels: make(map[string]string),
		names:    make(map[string]string),
		notifier: notifier,
		delivery: delivery,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		p, err := newParser(src)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Key, err)
		}
		s.parsers = append(s.parsers, p)
		s.names[src.Key] = src.Name
		if src.Channel != "" {
			s.channels[src.Key] = src.Channel
		}
	}
	return s, nil
}

// Run executes a cycle immediately and then one cycle per interval until ctx
// is cancelled. A cycle in progress always runs to completion.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("crawl loop started", "sources", len(s.parsers), "interval", s.opts.Interval)
	for {
		s.RunCycle(context.WithoutCancel(ctx))

		timer := time.NewTimer(s.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("crawl loop stopped")
			return
		case <-timer.C:
		}
	}
}

// RunCycle performs one full crawl cycle and returns its summary. Failures of
// single sources or deliveries are logged and never abort the cycle.
func (s *Scheduler) RunCycle(ctx context.Context) Summary {
	start := s.now()
	var sum Summary

	for _, p := range s.parsers {
		res := s.crawlSource(ctx, p)
		sum.New += res.New
		sum.Sources = append(sum.Sources, res)
	}

	sum.Broadcast = s.broadcast(ctx)
	s.enrichDeadlines(ctx)

	if s.delivery != nil {
		n, err := s.delivery.Process(ctx)
		if err != nil {
			s.log.Error("direct delivery", "error", err)
		}
		sum.Direct = n
	}

	metrics.CycleDuration.Observe(s.now().Sub(start).Seconds())
	s.log.Info("crawl cycle complete",
		"new", sum.New, "broadcast", sum.Broadcast, "direct", sum.Direct,
		"duration", s.now().Sub(start).Round(time.Millisecond))

	if sum.Active() {
		s.sendLog(ctx, sum.String())
	}
	return sum
}

func (s *Scheduler) crawlSource(ctx context.Context, p parser.Parser) SourceResult {
	key := p.SourceKey()
	res := SourceResult{Key: key}

	b := retry.WithMaxRetries(MaxRetries, retry.NewExponential(s.opts.RetryBase))
	attempt := 0
	raw, err := retry.DoValue(ctx, b, func(ctx context.Context) ([]model.RawNotice, error) {
		attempt++
		notices, err := p.Fetch(ctx)
		if err == nil || errors.Is(err, parser.ErrNoRows) {
			return notices, err
		}
		s.log.Warn("fetch source", "source", key, "attempt", attempt, "error", err)
		return nil, retry.RetryableError(err)
	})

	switch {
	case errors.Is(err, parser.ErrNoRows):
		s.log.Warn("no rows matched", "source", key)
		res.Status = StatusEmpty
	case err != nil:
		res.Status = StatusError
		s.recordFailure(ctx, key, err)
		return res
	default:
		res.Status = StatusOK
	}

	for _, n := range raw {
		created, err := s.store.InsertIfNew(ctx, key, n)
		if err != nil {
			s.log.Error("insert notice", "source", key, "notice", n.ID, "error", err)
			continue
		}
		if created {
			res.New++
		}
	}
	metrics.NoticesNew.WithLabelValues(key).Add(float64(res.New))

	watermark := ""
	if len(raw) > 0 {
		watermark = raw[0].ID
	}
	if err := s.store.UpdateCrawlState(ctx, key, watermark); err != nil {
		s.log.Error("update crawl state", "source", key, "error", err)
	}
	metrics.SourceErrors.WithLabelValues(key).Set(0)

	s.log.Debug("source crawled", "source", key, "fetched", len(raw), "new", res.New)
	return res
}

func (s *Scheduler) recordFailure(ctx context.Context, key string, cause error) {
	metrics.FetchFailures.WithLabelValues(key).Inc()
	s.log.Error("source failed", "source", key, "error", cause)

	count, err := s.store.IncrementError(ctx, key)
	if err != nil {
		s.log.Error("increment error count", "source", key, "error", err)
		return
	}
	metrics.SourceErrors.WithLabelValues(key).Set(float64(count))

	if count == AlertThreshold {
		s.sendLog(ctx, fmt.Sprintf("⚠️ 크롤링 경고\n\n소스: %s\n상태: 연속 %d회 실패\n에러: %s",
			notify.EscapeHTML(key), count, notify.EscapeHTML(cause.Error())))
	}
}

func (s *Scheduler) broadcast(ctx context.Context) int {
	pending, err := s.store.PendingNotices(ctx, s.opts.MaxNotices)
	if err != nil {
		s.log.Error("load pending notices", "error", err)
		return 0
	}

	sent := 0
	for _, n := range pending {
		channel := s.channelFor(n.SourceKey)
		if channel == "" {
			s.log.Warn("no broadcast channel", "source", n.SourceKey)
			continue
		}
		if err := s.opts.Limiter.Wait(ctx); err != nil {
			s.log.Error("wait for rate limiter", "error", err)
			break
		}

		msg := notify.FormatBroadcast(n, s.sourceName(n.SourceKey))
		if err := s.notifier.Send(ctx, channel, msg); err != nil {
			metrics.Broadcasts.WithLabelValues(metrics.ResultFailed).Inc()
			s.log.Error("broadcast notice", "notice", n.ID, "channel", channel, "error", err)
			continue
		}
		metrics.Broadcasts.WithLabelValues(metrics.ResultSent).Inc()

		if err := s.store.MarkNotified(ctx, n.ID); err != nil {
			s.log.Error("mark notified", "notice", n.ID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func (s *Scheduler) enrichDeadlines(ctx context.Context) {
	now := s.now()
	recent, err := s.store.RecentlyNotified(ctx, now.Add(-s.opts.RecentWindow), dm.DefaultLimit)
	if err != nil {
		s.log.Error("load recent notices", "error", err)
		return
	}
	for _, n := range recent {
		if n.Deadline != nil {
			continue
		}
		d, ok := deadline.Extract(n.Title, now.Year())
		if !ok {
			continue
		}
		if err := s.store.SetDeadline(ctx, n.ID, d); err != nil {
			s.log.Error("set deadline", "notice", n.ID, "error", err)
		}
	}
}

func (s *Scheduler) channelFor(key string) string {
	if ch, ok := s.channels[key]; ok {
		return ch
	}
	return s.opts.Channel
}

func (s *Scheduler) sourceName(key string) string {
	if name := s.names[key]; name != "" {
		return name
	}
	return key
}

func (s *Scheduler) sendLog(ctx context.Context, text string) {
	if s.opts.LogChannel == "" {
		return
	}
	if err := s.notifier.Send(ctx, s.opts.LogChannel, notify.Message{Text: text}); err != nil {
		s.log.Error("send to log channel", "error", err)
	}
}

// Status is the outcome of crawling one source.
type Status int

const (
	// StatusOK means the source returned rows.
	StatusOK Status = iota
	// StatusEmpty means no listing rows matched any selector.
	StatusEmpty
	// StatusError means the fetch failed after all retries.
	StatusError
)

// SourceResult reports one source of a cycle.
type SourceResult struct {
	Key    string
	New    int
	Status Status
}

// Summary reports one crawl cycle.
type Summary struct {
	New       int
	Broadcast int
	Direct    int
	Sources   []SourceResult
}

// Active reports whether the cycle stored or delivered anything.
func (s Summary) Active() bool {
	return s.New+s.Broadcast+s.Direct > 0
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Crawl done: %d new / %d ch-sent / %d dm |", s.New, s.Broadcast, s.Direct)
	for _, r := range s.Sources {
		switch r.Status {
		case StatusError:
			fmt.Fprintf(&b, " %s:ERR", r.Key)
		case StatusEmpty:
			fmt.Fprintf(&b, " %s:EMPTY", r.Key)
		default:
			fmt.Fprintf(&b, " %s:%d", r.Key, r.New)
		}
	}
	return b.String()
}
