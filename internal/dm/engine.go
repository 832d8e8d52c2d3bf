package dm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"notice_bot/internal/metrics"
	"notice_bot/internal/model"
	"notice_bot/internal/notify"
	"notice_bot/internal/storage"
)

// DefaultLimit caps the number of recent notices considered per run.
const DefaultLimit = 100

// Options configures an Engine.
type Options struct {
	// Window is how far back broadcast notices stay eligible.
	Window time.Duration
	// Limit caps the notices read per run. Zero means DefaultLimit.
	Limit int
	// Limiter paces delivery attempts. Nil means unpaced.
	Limiter *rate.Limiter
}

// Engine delivers direct messages to subscribers.
type Engine struct {
	store    storage.Storage
	notifier notify.Notifier
	names    map[string]string
	opts     Options
	log      *slog.Logger
	now      func() time.Time
}

// New creates an Engine. sources provides the display names used in messages.
func New(store storage.Storage, notifier notify.Notifier, sources []model.Source, opts Options, log *slog.Logger) *Engine {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	names := make(map[string]string, len(sources))
	for _, s := range sources {
		names[s.Key] = s.Name
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		names:    names,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

func (e *Engine) sourceName(key string) string {
	if name, ok := e.names[key]; ok && name != "" {
		return name
	}
	return key
}

// Process delivers every notice broadcast within the window to its matching
// subscribers and returns the number of messages sent. Failures for one
// recipient never stop delivery to the others.
func (e *Engine) Process(ctx context.Context) (int, error) {
	notices, err := e.store.RecentlyNotified(ctx, e.now().Add(-e.opts.Window), e.opts.Limit)
	if err != nil {
		return 0, fmt.Errorf("load recent notices: %w", err)
	}
	if len(notices) == 0 {
		return 0, nil
	}

	subs, err := e.store.AllKeywordSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load keyword subscriptions: %w", err)
	}
	index := NewKeywordIndex(subs)

	subscribers := make(map[string][]int64)
	unreachable := make(map[int64]bool)
	sent := 0

	for _, n := range notices {
		ids, ok := subscribers[n.SourceKey]
		if !ok {
			ids, err = e.store.SourceSubscribers(ctx, n.SourceKey)
			if err != nil {
				e.log.Error("load source subscribers", "source", n.SourceKey, "error", err)
			}
			subscribers[n.SourceKey] = ids
		}

		for _, c := range Candidates(n, index, ids) {
			if unreachable[c.TelegramID] {
				continue
			}
			out, err := e.deliver(ctx, n, c)
			if err != nil {
				return sent, err
			}
			switch out {
			case outcomeSent:
				sent++
			case outcomeUnreachable:
				unreachable[c.TelegramID] = true
			}
		}
	}

	if sent > 0 {
		e.log.Info("direct delivery complete", "sent", sent)
	}
	return sent, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
	outcomeUnreachable
)

// deliver sends n to one candidate unless the delivery log already has it.
// A non-nil error means the run must stop.
func (e *Engine) deliver(ctx context.Context, n model.Notice, c Candidate) (outcome, error) {
	delivered, err := e.store.IsDelivered(ctx, n.ID, c.TelegramID)
	if err != nil {
		e.log.Error("check delivery", "notice", n.ID, "user", c.TelegramID, "error", err)
		return outcomeFailed, nil
	}
	if delivered {
		return outcomeSkipped, nil
	}

	if err := e.opts.Limiter.Wait(ctx); err != nil {
		return outcomeFailed, fmt.Errorf("wait for rate limiter: %w", err)
	}

	msg := notify.FormatDirect(n, e.sourceName(n.SourceKey), c.Reason, c.Value)
	if err := e.notifier.Send(ctx, strconv.FormatInt(c.TelegramID, 10), msg); err != nil {
		metrics.DirectMessages.WithLabelValues(metrics.ResultFailed).Inc()
		e.log.Warn("send direct message", "notice", n.ID, "user", c.TelegramID, "error", err)
		if !notify.IsUnreachable(err) {
			return outcomeFailed, nil
		}
		if err := e.store.DeactivateUser(ctx, c.TelegramID); err != nil {
			e.log.Error("deactivate user", "user", c.TelegramID, "error", err)
		} else {
			e.log.Info("user deactivated", "user", c.TelegramID)
		}
		return outcomeUnreachable, nil
	}
	metrics.DirectMessages.WithLabelValues(metrics.ResultSent).Inc()

	err = e.store.LogDelivery(ctx, model.Delivery{
		NoticeID:   n.ID,
		TelegramID: c.TelegramID,
		Reason:     c.Reason,
		MatchValue: c.Value,
		SentAt:     e.now(),
	})
	if err != nil {
		e.log.Error("log delivery", "notice", n.ID, "user", c.TelegramID, "error", err)
	}
	return outcomeSent, nil
}
