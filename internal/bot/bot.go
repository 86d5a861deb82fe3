// Package bot is the delivery coordinator: for every candidate of a fetch
// cycle it decides new-vs-seen against the persistent store, annotates
// price-history milestones, composes the message, routes it to a category
// thread or the main channel, and commits the identity key only after the
// transport confirms delivery.
package bot

import (
	"context"
	"sync"
	"time"

	"dealsbot/internal/compose"
	"dealsbot/internal/deal"
	"dealsbot/internal/sources/cheapshark"
	"dealsbot/internal/sources/itad"
	"dealsbot/internal/storage"
	"dealsbot/internal/transport"
	"dealsbot/pkg/logx"
)

const firstRunKey = "first_run_done"

// Classifier answers whether a candidate's current price is a historical
// low. Implementations must degrade to false instead of erroring.
type Classifier interface {
	IsHistoricalLow(ctx context.Context, steamAppID string) bool
}

// PriceFormatter turns a USD amount into the pre-joined multi-currency
// display string embedded in messages.
type PriceFormatter interface {
	Format(usd float64) string
	EnsureFresh(ctx context.Context)
}

// CheapSharkSource, EpicSource and ITADSource are the fetch collaborators.
// They return normalized candidates and degrade to empty slices on failure.
type CheapSharkSource interface {
	Fetch(ctx context.Context, f cheapshark.Filters) []deal.Candidate
}

type EpicSource interface {
	Fetch(ctx context.Context) (current, upcoming []deal.Candidate)
}

type ITADSource interface {
	Enabled() bool
	FetchDeals(ctx context.Context, countries []string, f itad.Filters, limit int) []deal.Candidate
}

// Options carries the coordinator's runtime knobs. Filter values can be
// swapped at runtime via Reconfigure (config hot reload).
type Options struct {
	ChatID     int64
	UseThreads bool

	MaxPriceUSD        float64
	MinDealRating      float64
	MinDiscountPercent float64

	Countries []string
	ITADLimit int

	Retention time.Duration
}

type Bot struct {
	store      storage.Store
	send       transport.Sender
	classifier Classifier // nil when not configured
	prices     PriceFormatter
	threads    *Router
	log        logx.Logger

	cheap CheapSharkSource
	epic  EpicSource
	itad  ITADSource

	mu  sync.Mutex
	opt Options
}

func New(store storage.Store, send transport.Sender, prices PriceFormatter, opt Options, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Retention <= 0 {
		opt.Retention = 30 * 24 * time.Hour
	}
	b := &Bot{
		store:  store,
		send:   send,
		prices: prices,
		opt:    opt,
		log:    log,
	}
	b.threads = NewRouter(store, send, transport.Target{ChatID: opt.ChatID}, log)
	return b
}

// SetSources wires the fetch collaborators. Kept separate from New so tests
// can drive process() directly without any source.
func (b *Bot) SetSources(cheap CheapSharkSource, epic EpicSource, itad ITADSource) {
	b.cheap = cheap
	b.epic = epic
	b.itad = itad
}

// SetClassifier wires the optional historical-low classifier.
func (b *Bot) SetClassifier(c Classifier) { b.classifier = c }

// Reconfigure swaps filter thresholds at runtime. Identity, storage and
// transport wiring are fixed for the process lifetime.
func (b *Bot) Reconfigure(opt Options) {
	b.mu.Lock()
	opt.ChatID = b.opt.ChatID
	opt.UseThreads = b.opt.UseThreads
	if opt.Retention <= 0 {
		opt.Retention = b.opt.Retention
	}
	b.opt = opt
	b.mu.Unlock()
	b.log.Info("filters reconfigured",
		logx.Float64("max_price_usd", opt.MaxPriceUSD),
		logx.Float64("min_discount", opt.MinDiscountPercent))
}

func (b *Bot) options() Options {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opt
}

// Start runs the first-run population when the store has never seen one.
// Steady sources (CheapShark, ITAD) are recorded without posting so the
// first cycle doesn't flood the channel with every currently live deal.
// Epic promotions are deliberately excluded: the weekly rotation is small
// and short-lived, so immediate visibility beats silence.
func (b *Bot) Start(ctx context.Context) error {
	done, ok, err := b.store.GetConfig(ctx, firstRunKey)
	if err != nil {
		return err
	}
	if ok && done == "true" {
		return nil
	}

	b.log.Info("first run detected; populating store without posting")
	opt := b.options()

	recorded := 0
	if b.cheap != nil {
		for _, c := range b.cheap.Fetch(ctx, cheapsharkFilters(opt)) {
			if err := b.store.MarkPosted(ctx, c.Key, c.Source, c.Title); err != nil {
				b.log.Warn("first-run record failed", logx.String("key", c.Key), logx.Err(err))
				continue
			}
			recorded++
		}
	}
	if b.itad != nil && b.itad.Enabled() {
		for _, c := range b.itad.FetchDeals(ctx, opt.Countries, itadFilters(opt), opt.ITADLimit) {
			if err := b.store.MarkPosted(ctx, c.Key, c.Source, c.Title); err != nil {
				b.log.Warn("first-run record failed", logx.String("key", c.Key), logx.Err(err))
				continue
			}
			recorded++
		}
	}

	if err := b.store.SetConfig(ctx, firstRunKey, "true"); err != nil {
		return err
	}
	b.log.Info("first run complete", logx.Int("recorded", recorded))
	return nil
}

// CheckCheapShark runs one polling cycle against the discount aggregator.
func (b *Bot) CheckCheapShark(ctx context.Context) {
	if b.cheap == nil {
		return
	}
	opt := b.options()
	b.prices.EnsureFresh(ctx)
	b.processBatch(ctx, b.cheap.Fetch(ctx, cheapsharkFilters(opt)), opt)
}

// CheckEpic runs one polling cycle against the free-games feed.
func (b *Bot) CheckEpic(ctx context.Context) {
	if b.epic == nil {
		return
	}
	opt := b.options()
	current, upcoming := b.epic.Fetch(ctx)
	batch := make([]deal.Candidate, 0, len(current)+len(upcoming))
	batch = append(batch, current...)
	batch = append(batch, upcoming...)
	b.processBatch(ctx, batch, opt)
}

// CheckITAD runs one polling cycle against the cross-region aggregator.
func (b *Bot) CheckITAD(ctx context.Context) {
	if b.itad == nil || !b.itad.Enabled() {
		return
	}
	opt := b.options()
	b.prices.EnsureFresh(ctx)
	b.processBatch(ctx, b.itad.FetchDeals(ctx, opt.Countries, itadFilters(opt), opt.ITADLimit), opt)
}

// processBatch handles candidates strictly sequentially, in fetch order, so
// the check-then-act dedup sequence can never race itself within a cycle.
// A persistence fault on one candidate aborts that candidate only. After
// the batch, stale posted records are pruned.
func (b *Bot) processBatch(ctx context.Context, batch []deal.Candidate, opt Options) {
	for _, c := range batch {
		if ctx.Err() != nil {
			return
		}
		if err := b.process(ctx, c); err != nil {
			b.log.Warn("candidate aborted", logx.String("key", c.Key), logx.Err(err))
		}
	}
	if _, err := b.store.Prune(ctx, opt.Retention); err != nil {
		b.log.Warn("prune failed", logx.Err(err))
	}
}

// process runs the per-candidate pipeline. The deliver-then-persist order
// is deliberate: a fault between the two steps costs at most a duplicate
// post next cycle, never a silently dropped deal. Errors returned here are
// persistence faults; delivery failures are absorbed and retried by the
// next cycle because the key was never committed.
func (b *Bot) process(ctx context.Context, c deal.Candidate) error {
	posted, err := b.store.HasPosted(ctx, c.Key)
	if err != nil {
		return err
	}
	if posted {
		return nil
	}

	// Sources that report the milestone themselves skip the lookup.
	histLow := c.HistoricalLow
	if !histLow && c.SteamAppID != "" && b.classifier != nil {
		histLow = b.classifier.IsHistoricalLow(ctx, c.SteamAppID)
	}

	msg := b.composeFor(c, histLow)

	opt := b.options()
	target := transport.Target{ChatID: opt.ChatID}
	if opt.UseThreads {
		if rootID, ok := b.threads.Route(ctx, c.Category); ok {
			target = target.Thread(rootID)
		}
	}

	res := b.send.Send(ctx, target, msg.Plain, msg.HTML)
	if !res.OK {
		b.log.Warn("delivery failed; will retry next cycle",
			logx.String("key", c.Key), logx.String("title", c.Title), logx.String("reason", res.Reason))
		return nil
	}

	if err := b.store.MarkPosted(ctx, c.Key, c.Source, c.Title); err != nil {
		// Delivered but not recorded: the next cycle may post a duplicate,
		// which the pipeline prefers over losing a deal.
		return err
	}
	b.log.Info("posted", logx.String("source", string(c.Source)), logx.String("title", c.Title))
	return nil
}

func (b *Bot) composeFor(c deal.Candidate, histLow bool) compose.Message {
	if c.Price == nil {
		if c.Upcoming {
			return compose.EpicUpcoming(c)
		}
		return compose.EpicFree(c)
	}
	return compose.Deal(c, histLow, b.prices.Format(c.Price.Sale), b.prices.Format(c.Price.Normal))
}

func cheapsharkFilters(opt Options) cheapshark.Filters {
	return cheapshark.Filters{
		MaxPriceUSD:        opt.MaxPriceUSD,
		MinDealRating:      opt.MinDealRating,
		MinDiscountPercent: opt.MinDiscountPercent,
	}
}

func itadFilters(opt Options) itad.Filters {
	return itad.Filters{
		MaxPriceUSD:        opt.MaxPriceUSD,
		MinDiscountPercent: opt.MinDiscountPercent,
	}
}
