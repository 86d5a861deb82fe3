package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"dealsbot/internal/deal"
	"dealsbot/internal/sources/cheapshark"
	"dealsbot/internal/sources/itad"
	"dealsbot/internal/storage"
	"dealsbot/internal/transport"
	"dealsbot/pkg/logx"
)

// memStore is an in-memory storage.Store with per-method error injection.
type memStore struct {
	posted  map[string]time.Time
	threads map[deal.Category]int
	config  map[string]string

	hasErr      error
	markErr     error
	markFailKey string
	threadErr   error
	putErr      error
	pruneErr    error

	markCalls int
}

func newMemStore() *memStore {
	return &memStore{
		posted:  make(map[string]time.Time),
		threads: make(map[deal.Category]int),
		config:  make(map[string]string),
	}
}

func (m *memStore) HasPosted(_ context.Context, key string) (bool, error) {
	if m.hasErr != nil {
		return false, m.hasErr
	}
	_, ok := m.posted[key]
	return ok, nil
}

func (m *memStore) MarkPosted(_ context.Context, key string, _ deal.Source, _ string) error {
	m.markCalls++
	if m.markErr != nil {
		return m.markErr
	}
	if m.markFailKey != "" && key == m.markFailKey {
		return errors.New("injected mark failure")
	}
	if _, ok := m.posted[key]; !ok {
		m.posted[key] = time.Now()
	}
	return nil
}

func (m *memStore) Prune(_ context.Context, retention time.Duration) (int64, error) {
	if m.pruneErr != nil {
		return 0, m.pruneErr
	}
	cutoff := time.Now().Add(-retention)
	var n int64
	for k, at := range m.posted {
		if at.Before(cutoff) {
			delete(m.posted, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) Thread(_ context.Context, cat deal.Category) (int, bool, error) {
	if m.threadErr != nil {
		return 0, false, m.threadErr
	}
	id, ok := m.threads[cat]
	return id, ok, nil
}

func (m *memStore) PutThread(_ context.Context, cat deal.Category, id int) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.threads[cat] = id
	return nil
}

func (m *memStore) GetConfig(_ context.Context, key string) (string, bool, error) {
	v, ok := m.config[key]
	return v, ok, nil
}

func (m *memStore) SetConfig(_ context.Context, key, value string) error {
	m.config[key] = value
	return nil
}

func (m *memStore) Close() error { return nil }

var _ storage.Store = (*memStore)(nil)

// fakeSender records deliveries and can be told to fail.
type fakeSender struct {
	fail    bool
	sent    []sentMsg
	nextID  int
	targets []transport.Target
}

type sentMsg struct {
	target transport.Target
	plain  string
	html   string
}

func (f *fakeSender) Send(_ context.Context, to transport.Target, plain, html string) transport.Result {
	if f.fail {
		return transport.Failed("boom")
	}
	f.nextID++
	f.sent = append(f.sent, sentMsg{target: to, plain: plain, html: html})
	f.targets = append(f.targets, to)
	return transport.Delivered(transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextID})
}

type staticPrices struct{}

func (staticPrices) Format(usd float64) string     { return fmt.Sprintf("$%.2f", usd) }
func (staticPrices) EnsureFresh(_ context.Context) {}

type fixedClassifier struct{ low bool }

func (f fixedClassifier) IsHistoricalLow(_ context.Context, _ string) bool { return f.low }

func testCandidate() deal.Candidate {
	return deal.Candidate{
		Key:      "src-42-100",
		Source:   deal.SourceCheapShark,
		Category: deal.CategoryGameDeals,
		Title:    "Some Game",
		Price:    &deal.Price{Sale: 9.99, Normal: 19.99, Discount: 50, Store: "Steam"},
	}
}

func newTestBot(store storage.Store, send transport.Sender, useThreads bool) *Bot {
	return New(store, send, staticPrices{}, Options{
		ChatID:     -100,
		UseThreads: useThreads,
		Retention:  30 * 24 * time.Hour,
	}, logx.Nop())
}

func TestProcessDeliversThenPersists(t *testing.T) {
	store := newMemStore()
	send := &fakeSender{}
	b := newTestBot(store, send, false)

	if err := b.process(context.Background(), testCandidate()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(send.sent) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(send.sent))
	}
	if _, ok := store.posted["src-42-100"]; !ok {
		t.Fatalf("candidate not marked posted after delivery")
	}
}

func TestProcessIsIdempotentAcrossCycles(t *testing.T) {
	store := newMemStore()
	send := &fakeSender{}
	b := newTestBot(store, send, false)
	c := testCandidate()

	// Cycle 1: not posted, delivered.
	if err := b.process(context.Background(), c); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	// Cycle 2: same identity key, must be a no-op.
	if err := b.process(context.Background(), c); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if len(send.sent) != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", len(send.sent))
	}
	if store.markCalls != 1 {
		t.Fatalf("expected exactly 1 mark call, got %d", store.markCalls)
	}
}

func TestNoDeliveryWhenAlreadyPosted(t *testing.T) {
	store := newMemStore()
	store.posted["src-42-100"] = time.Now()
	send := &fakeSender{}
	b := newTestBot(store, send, false)

	if err := b.process(context.Background(), testCandidate()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(send.sent) != 0 {
		t.Fatalf("expected no delivery for already-posted key, got %d", len(send.sent))
	}
}

func TestDeliveryFailureLeavesCandidateRetryable(t *testing.T) {
	store := newMemStore()
	send := &fakeSender{fail: true}
	b := newTestBot(store, send, false)
	c := testCandidate()

	if err := b.process(context.Background(), c); err != nil {
		t.Fatalf("delivery failure must not surface as error: %v", err)
	}
	if _, ok := store.posted[c.Key]; ok {
		t.Fatalf("failed delivery must not be marked posted")
	}

	// Next cycle: transport recovered, candidate goes out.
	send.fail = false
	if err := b.process(context.Background(), c); err != nil {
		t.Fatalf("retry cycle: %v", err)
	}
	if len(send.sent) != 1 {
		t.Fatalf("expected delivery on retry, got %d", len(send.sent))
	}
}

func TestCrashSafetyBiasTowardDuplicate(t *testing.T) {
	store := newMemStore()
	send := &fakeSender{}
	b := newTestBot(store, send, false)
	c := testCandidate()

	// Delivery succeeds, persistence fails: error surfaces, key stays absent.
	store.markErr = errors.New("disk full")
	if err := b.process(context.Background(), c); err == nil {
		t.Fatalf("expected persistence error to propagate")
	}
	if len(send.sent) != 1 {
		t.Fatalf("expected 1 delivery before persistence fault, got %d", len(send.sent))
	}

	// Storage recovers; the retry delivers again (duplicate-tolerant, not
	// loss-tolerant).
	store.markErr = nil
	if err := b.process(context.Background(), c); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(send.sent) != 2 {
		t.Fatalf("expected a second delivery after persistence fault, got %d", len(send.sent))
	}
}

func TestLookupFailureAbortsCandidateWithoutDelivery(t *testing.T) {
	store := newMemStore()
	store.hasErr = errors.New("db locked")
	send := &fakeSender{}
	b := newTestBot(store, send, false)

	if err := b.process(context.Background(), testCandidate()); err == nil {
		t.Fatalf("expected lookup error to propagate")
	}
	if len(send.sent) != 0 {
		t.Fatalf("masked lookup failure must not cause a delivery")
	}
}

func TestSourceReportedHistoricalLowAnnotates(t *testing.T) {
	store := newMemStore()
	send := &fakeSender{}
	b := newTestBot(store, send, false)

	// ITAD deals carry the milestone from the feed itself and have no
	// Steam app ID, so no classifier is involved.
	c := deal.Candidate{
		Key:      "itad-game-a-1-75",
		Source:   deal.SourceITAD,
		Category: deal.CategoryGameDeals,
		Title:    "Flagged Game",
		Price:    &deal.Price{Sale: 4.99, Normal: 19.99, Discount: 75, Store: "Steam"},

		HistoricalLow: true,
	}
	if err := b.process(context.Background(), c); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(send.sent) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(send.sent))
	}
	if !strings.Contains(send.sent[0].plain, "All-time low!") {
		t.Fatalf("source-flagged candidate missing milestone line:\n%s", send.sent[0].plain)
	}
}

func TestSourceFlagSkipsClassifierLookup(t *testing.T) {
	store := newMemStore()
	send := &fakeSender{}
	b := newTestBot(store, send, false)

	calls := 0
	b.SetClassifier(countingClassifier{calls: &calls})

	c := testCandidate()
	c.SteamAppID = "220"
	c.HistoricalLow = true
	if err := b.process(context.Background(), c); err != nil {
		t.Fatalf("process: %v", err)
	}
	if calls != 0 {
		t.Fatalf("classifier consulted despite source-reported milestone")
	}
	if !strings.Contains(send.sent[0].plain, "All-time low!") {
		t.Fatalf("milestone line missing:\n%s", send.sent[0].plain)
	}
}

type countingClassifier struct{ calls *int }

func (c countingClassifier) IsHistoricalLow(_ context.Context, _ string) bool {
	*c.calls++
	return false
}

func TestClassifierDegradationStillDelivers(t *testing.T) {
	store := newMemStore()
	send := &fakeSender{}
	b := newTestBot(store, send, false)
	b.SetClassifier(fixedClassifier{low: false})

	c := testCandidate()
	c.SteamAppID = "220"
	if err := b.process(context.Background(), c); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(send.sent) != 1 {
		t.Fatalf("expected delivery despite classifier returning false")
	}
}

type fakeCheap struct{ out []deal.Candidate }

func (f fakeCheap) Fetch(_ context.Context, _ cheapshark.Filters) []deal.Candidate { return f.out }

type fakeEpic struct{ current, upcoming []deal.Candidate }

func (f fakeEpic) Fetch(_ context.Context) ([]deal.Candidate, []deal.Candidate) {
	return f.current, f.upcoming
}

type fakeITAD struct{ out []deal.Candidate }

func (f fakeITAD) Enabled() bool { return true }
func (f fakeITAD) FetchDeals(_ context.Context, _ []string, _ itad.Filters, _ int) []deal.Candidate {
	return f.out
}

func TestFirstRunPopulatesSilently(t *testing.T) {
	store := newMemStore()
	send := &fakeSender{}
	b := newTestBot(store, send, false)

	steady := []deal.Candidate{testCandidate()}
	epicNow := []deal.Candidate{{
		Key: "epic-abc", Source: deal.SourceEpic,
		Category: deal.CategoryEpicFree, Title: "Free Game",
	}}
	b.SetSources(fakeCheap{out: steady}, fakeEpic{current: epicNow}, fakeITAD{})

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(send.sent) != 0 {
		t.Fatalf("first run must not deliver, got %d deliveries", len(send.sent))
	}
	if _, ok := store.posted["src-42-100"]; !ok {
		t.Fatalf("steady-source candidate not recorded on first run")
	}
	// Promotional sources are excluded from silent population.
	if _, ok := store.posted["epic-abc"]; ok {
		t.Fatalf("epic candidate must not be pre-recorded on first run")
	}
	if store.config[firstRunKey] != "true" {
		t.Fatalf("first_run_done flag not set")
	}

	// Second start is a no-op.
	marks := store.markCalls
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if store.markCalls != marks {
		t.Fatalf("second start must not repopulate")
	}

	// The epic cycle after first run delivers the promo.
	b.CheckEpic(context.Background())
	if len(send.sent) != 1 {
		t.Fatalf("expected epic promo delivered on first cycle, got %d", len(send.sent))
	}
}

func TestBatchContinuesPastFaultyCandidate(t *testing.T) {
	store := newMemStore()
	send := &fakeSender{}
	b := newTestBot(store, send, false)

	bad := testCandidate()
	bad.Key = "bad"
	good := testCandidate()
	good.Key = "good"
	store.markFailKey = "bad"

	b.processBatch(context.Background(), []deal.Candidate{bad, good}, b.options())
	if len(send.sent) != 2 {
		t.Fatalf("expected both candidates attempted, got %d deliveries", len(send.sent))
	}
	if _, ok := store.posted["good"]; !ok {
		t.Fatalf("second candidate not persisted after first candidate's fault")
	}
	if _, ok := store.posted["bad"]; ok {
		t.Fatalf("faulted candidate must not be persisted")
	}
}

func TestThreadedDeliveryTargetsThread(t *testing.T) {
	store := newMemStore()
	send := &fakeSender{}
	b := newTestBot(store, send, true)

	if err := b.process(context.Background(), testCandidate()); err != nil {
		t.Fatalf("process: %v", err)
	}
	// First send is the thread root, second the deal itself.
	if len(send.sent) != 2 {
		t.Fatalf("expected root + deal deliveries, got %d", len(send.sent))
	}
	root := send.sent[0]
	dealMsg := send.sent[1]
	if root.target.ThreadID != 0 {
		t.Fatalf("thread root must go to the main channel")
	}
	if dealMsg.target.ThreadID == 0 {
		t.Fatalf("deal must be threaded when threading is enabled")
	}
	if got := store.threads[deal.CategoryGameDeals]; got != dealMsg.target.ThreadID {
		t.Fatalf("persisted thread handle %d != delivery thread %d", got, dealMsg.target.ThreadID)
	}
}
