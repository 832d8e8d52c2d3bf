package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/time/rate"

	"notice_bot/internal/model"
	"notice_bot/internal/notify"
	"notice_bot/internal/parser"
	"notice_bot/internal/storage"
)

type sentMessage struct {
	To   string
	Text string
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []sentMessage
	fail     map[string]bool
}

func (m *mockNotifier) Send(_ context.Context, to string, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[to] {
		return errors.New("send failed")
	}
	m.messages = append(m.messages, sentMessage{To: to, Text: msg.Text})
	return nil
}

func (m *mockNotifier) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *mockNotifier) countByDestination() map[string]int {
	out := make(map[string]int)
	for _, msg := range m.getMessages() {
		out[msg.To]++
	}
	return out
}

type fetchResult struct {
	notices []model.RawNotice
	err     error
}

// mockParser replays results in order and repeats the last one.
type mockParser struct {
	key     string
	results []fetchResult

	mu    sync.Mutex
	calls int
}

func (p *mockParser) Fetch(_ context.Context) ([]model.RawNotice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.results[min(p.calls, len(p.results)-1)]
	p.calls++
	return r.notices, r.err
}

func (p *mockParser) SourceKey() string   { return p.key }
func (p *mockParser) DisplayName() string { return p.key }

func (p *mockParser) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type mockDelivery struct {
	sent  int
	calls int
}

func (d *mockDelivery) Process(_ context.Context) (int, error) {
	d.calls++
	return d.sent, nil
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testOptions() Options {
	return Options{
		Interval:   10 * time.Millisecond,
		MaxNotices: 20,
		Channel:    "@main",
		LogChannel: "@log",
		RetryBase:  time.Millisecond,
	}
}

func newTestScheduler(t *testing.T, store storage.Storage, n notify.Notifier, d Delivery, parsers ...*mockParser) *Scheduler {
	t.Helper()
	byKey := make(map[string]*mockParser)
	var sources []model.Source
	for _, p := range parsers {
		byKey[p.key] = p
		src := model.Source{Key: p.key, Name: p.key, Enabled: true}
		if p.key == "biz" {
			src.Channel = "@biz"
		}
		sources = append(sources, src)
	}
	newParser := func(src model.Source) (parser.Parser, error) {
		return byKey[src.Key], nil
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(store, sources, newParser, n, d, testOptions(), log)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func ok(notices ...model.RawNotice) fetchResult {
	return fetchResult{notices: notices}
}

func failed(msg string) fetchResult {
	return fetchResult{err: errors.New(msg)}
}

func crawlState(t *testing.T, store storage.Storage, key string) model.CrawlState {
	t.Helper()
	states, err := store.ListCrawlStates(context.Background())
	if err != nil {
		t.Fatalf("list crawl states: %v", err)
	}
	for _, s := range states {
		if s.SourceKey == key {
			return s
		}
	}
	t.Fatalf("no crawl state for %s", key)
	return model.CrawlState{}
}

func TestRunCycleStoresAndBroadcasts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mainSrc := &mockParser{key: "cbnu_main", results: []fetchResult{ok(
		model.RawNotice{ID: "182452", Title: "2026학년도 수강신청 안내", URL: "https://a/182452"},
		model.RawNotice{ID: "182451", Title: "교내장학금 신청 모집", URL: "https://a/182451"},
	)}}
	biz := &mockParser{key: "biz", results: []fetchResult{ok(
		model.RawNotice{ID: "77", Title: "졸업사정 결과", URL: "https://b/77"},
	)}}
	n := &mockNotifier{}
	d := &mockDelivery{}
	sched := newTestScheduler(t, store, n, d, mainSrc, biz)

	got := sched.RunCycle(ctx)
	want := Summary{
		New:       3,
		Broadcast: 3,
		Sources: []SourceResult{
			{Key: "cbnu_main", New: 2, Status: StatusOK},
			{Key: "biz", New: 1, Status: StatusOK},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"@main": 2, "@biz": 1, "@log": 1}, n.countByDestination()); diff != "" {
		t.Errorf("destinations mismatch (-want +got):\n%s", diff)
	}
	if d.calls != 1 {
		t.Errorf("delivery calls = %d, want 1", d.calls)
	}

	msgs := n.getMessages()
	last := msgs[len(msgs)-1]
	if diff := cmp.Diff("✅ Crawl done: 3 new / 3 ch-sent / 0 dm | cbnu_main:2 biz:1", last.Text); diff != "" {
		t.Errorf("summary text mismatch (-want +got):\n%s", diff)
	}

	pending, err := store.PendingNotices(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
	if st := crawlState(t, store, "cbnu_main"); st.LastNoticeID != "182452" {
		t.Errorf("watermark = %q, want 182452", st.LastNoticeID)
	}

	// Same listing again: nothing new, nothing sent, no summary.
	got = sched.RunCycle(ctx)
	if got.Active() {
		t.Errorf("second cycle active: %+v", got)
	}
	if len(n.getMessages()) != len(msgs) {
		t.Errorf("second cycle sent %d messages", len(n.getMessages())-len(msgs))
	}
}

func TestRunCycleBroadcastIsPaced(t *testing.T) {
	const delay = 20 * time.Millisecond
	store := newTestStore(t)
	src := &mockParser{key: "cbnu_main", results: []fetchResult{ok(
		model.RawNotice{ID: "3", Title: "세 번째", URL: "https://a/3"},
		model.RawNotice{ID: "2", Title: "두 번째", URL: "https://a/2"},
		model.RawNotice{ID: "1", Title: "첫 번째", URL: "https://a/1"},
	)}}
	n := &mockNotifier{}

	opts := testOptions()
	opts.LogChannel = ""
	opts.Limiter = rate.NewLimiter(rate.Every(delay), 1)
	newParser := func(model.Source) (parser.Parser, error) { return src, nil }
	sources := []model.Source{{Key: "cbnu_main", Name: "충북대 공지", Enabled: true}}
	sched, err := New(store, sources, newParser, n, nil, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	start := time.Now()
	sum := sched.RunCycle(context.Background())
	elapsed := time.Since(start)

	if sum.Broadcast != 3 {
		t.Fatalf("broadcast = %d, want 3", sum.Broadcast)
	}
	if minimum := 2 * delay; elapsed < minimum {
		t.Errorf("3 broadcasts took %v, want at least %v", elapsed, minimum)
	}
}

func TestRunCycleRetriesAndAlerts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	p := &mockParser{key: "cbnu_main", results: []fetchResult{failed("connection refused")}}
	n := &mockNotifier{}
	sched := newTestScheduler(t, store, n, nil, p)

	for cycle := 1; cycle <= AlertThreshold+1; cycle++ {
		sum := sched.RunCycle(ctx)
		if sum.Sources[0].Status != StatusError {
			t.Fatalf("cycle %d status = %v, want error", cycle, sum.Sources[0].Status)
		}
		if got, want := p.callCount(), cycle*(MaxRetries+1); got != want {
			t.Errorf("cycle %d fetch calls = %d, want %d", cycle, got, want)
		}
		if got := crawlState(t, store, "cbnu_main").ErrorCount; got != cycle {
			t.Errorf("cycle %d error count = %d", cycle, got)
		}
	}

	msgs := n.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want exactly one alert", len(msgs))
	}
	want := "⚠️ 크롤링 경고\n\n소스: cbnu_main\n상태: 연속 5회 실패\n에러: connection refused"
	if diff := cmp.Diff(sentMessage{To: "@log", Text: want}, msgs[0]); diff != "" {
		t.Errorf("alert mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCycleRecoversWithinRetries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	p := &mockParser{key: "biz", results: []fetchResult{
		failed("timeout"),
		failed("timeout"),
		ok(model.RawNotice{ID: "1", Title: "학과 행사"}),
	}}
	sched := newTestScheduler(t, store, &mockNotifier{}, nil, p)

	sum := sched.RunCycle(ctx)
	if diff := cmp.Diff([]SourceResult{{Key: "biz", New: 1, Status: StatusOK}}, sum.Sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
	if p.callCount() != 3 {
		t.Errorf("fetch calls = %d, want 3", p.callCount())
	}
	if got := crawlState(t, store, "biz").ErrorCount; got != 0 {
		t.Errorf("error count = %d, want 0", got)
	}
}

func TestRunCycleEmptySource(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if _, err := store.IncrementError(ctx, "cbnu_main"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	p := &mockParser{key: "cbnu_main", results: []fetchResult{{err: parser.ErrNoRows}}}
	n := &mockNotifier{}
	sched := newTestScheduler(t, store, n, nil, p)

	sum := sched.RunCycle(ctx)
	if sum.Sources[0].Status != StatusEmpty {
		t.Errorf("status = %v, want empty", sum.Sources[0].Status)
	}
	if p.callCount() != 1 {
		t.Errorf("fetch calls = %d, want 1", p.callCount())
	}
	if got := crawlState(t, store, "cbnu_main").ErrorCount; got != 0 {
		t.Errorf("error count = %d, want 0", got)
	}
	if len(n.getMessages()) != 0 {
		t.Errorf("empty cycle sent %d messages", len(n.getMessages()))
	}
}

func TestRunCycleBroadcastFailureKeepsNoticePending(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mainSrc := &mockParser{key: "cbnu_main", results: []fetchResult{ok(model.RawNotice{ID: "1", Title: "본부 공지"})}}
	biz := &mockParser{key: "biz", results: []fetchResult{ok(model.RawNotice{ID: "2", Title: "학과 공지"})}}
	n := &mockNotifier{fail: map[string]bool{"@biz": true}}
	sched := newTestScheduler(t, store, n, nil, mainSrc, biz)

	sum := sched.RunCycle(ctx)
	if sum.Broadcast != 1 {
		t.Errorf("broadcast = %d, want 1", sum.Broadcast)
	}

	pending, err := store.PendingNotices(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].SourceKey != "biz" {
		t.Fatalf("pending = %+v, want the biz notice", pending)
	}

	delete(n.fail, "@biz")
	if sum := sched.RunCycle(ctx); sum.Broadcast != 1 {
		t.Errorf("retry broadcast = %d, want 1", sum.Broadcast)
	}
}

func TestRunCycleEnrichesDeadlines(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	p := &mockParser{key: "cbnu_main", results: []fetchResult{ok(
		model.RawNotice{ID: "1", Title: "장학금 신청 (~2026.02.14까지)"},
		model.RawNotice{ID: "2", Title: "장학금 신청 안내"},
	)}}
	sched := newTestScheduler(t, store, &mockNotifier{}, &mockDelivery{sent: 2}, p)

	sum := sched.RunCycle(ctx)
	if sum.Direct != 2 {
		t.Errorf("direct = %d, want 2", sum.Direct)
	}

	recent, err := store.RecentlyNotified(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	deadlines := make(map[string]string)
	for _, n := range recent {
		if n.Deadline != nil {
			deadlines[n.NoticeID] = n.Deadline.Format("2006-01-02")
		}
	}
	if diff := cmp.Diff(map[string]string{"1": "2026-02-14"}, deadlines); diff != "" {
		t.Errorf("deadlines mismatch (-want +got):\n%s", diff)
	}
}

func TestNewSkipsDisabledSources(t *testing.T) {
	built := 0
	newParser := func(src model.Source) (parser.Parser, error) {
		built++
		return &mockParser{key: src.Key, results: []fetchResult{ok()}}, nil
	}
	sources := []model.Source{
		{Key: "a", Enabled: true},
		{Key: "b", Enabled: false},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(newTestStore(t), sources, newParser, &mockNotifier{}, nil, Options{}, log); err != nil {
		t.Fatalf("new: %v", err)
	}
	if built != 1 {
		t.Errorf("parsers built = %d, want 1", built)
	}
}

func TestNewUnknownDialect(t *testing.T) {
	newParser := func(src model.Source) (parser.Parser, error) {
		return parser.New(src, nil)
	}
	sources := []model.Source{{Key: "x", Dialect: "wordpress", Enabled: true}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(newTestStore(t), sources, newParser, &mockNotifier{}, nil, Options{}, log)
	if !errors.Is(err, parser.ErrUnknownDialect) {
		t.Errorf("err = %v, want ErrUnknownDialect", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	p := &mockParser{key: "biz", results: []fetchResult{ok()}}
	sched := newTestScheduler(t, newTestStore(t), &mockNotifier{}, nil, p)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
	if p.callCount() < 2 {
		t.Errorf("fetch calls = %d, want at least 2 cycles", p.callCount())
	}
}

func TestSummaryString(t *testing.T) {
	s := Summary{
		New: 4, Broadcast: 3, Direct: 7,
		Sources: []SourceResult{
			{Key: "cbnu_main", New: 4, Status: StatusOK},
			{Key: "biz", Status: StatusError},
			{Key: "sw", Status: StatusEmpty},
		},
	}
	got := s.String()
	if !strings.HasPrefix(got, "✅ Crawl done: 4 new / 3 ch-sent / 7 dm |") {
		t.Errorf("unexpected prefix: %q", got)
	}
	if !strings.HasSuffix(got, "| cbnu_main:4 biz:ERR sw:EMPTY") {
		t.Errorf("unexpected sources: %q", got)
	}
	if (Summary{}).Active() {
		t.Error("empty summary reported active")
	}
}
