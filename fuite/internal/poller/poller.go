// Package poller runs one scheduling loop per monitored site.
//
// Each cycle fetches the listing page, filters out already-seen
// identifiers, fetches each remaining paste, evaluates the rule set,
// consults the duplicate filter, and dispatches qualifying incidents. All
// errors inside a cycle are absorbed at paste or fetch granularity; only
// context cancellation stops the loop.
//
// Reload semantics: the rule-set provider is consulted once per paste, so
// an in-flight evaluation always finishes against the generation it
// started with.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/fuite/fuite/internal/alert"
	"github.com/hazyhaar/fuite/fuite/internal/dedup"
	"github.com/hazyhaar/fuite/fuite/internal/fetch"
	"github.com/hazyhaar/fuite/fuite/internal/rules"
	"github.com/hazyhaar/fuite/fuite/internal/seen"
	"github.com/hazyhaar/fuite/fuite/internal/sites"
)

// State names the poller's position in its cycle, for status reporting.
type State string

const (
	StateIdle       State = "idle"
	StateListing    State = "listing"
	StateProcessing State = "processing"
	StateSleeping   State = "sleeping"
	StateStopped    State = "stopped"
)

// errRateLimitAbandon aborts the current listing pass after a paste stayed
// rate-limited through its single pause-and-retry. Unprocessed identifiers
// are left un-seen so the next cycle picks them up.
var errRateLimitAbandon = errors.New("poller: still rate-limited after pause")

// Dispatcher receives finalized incidents.
type Dispatcher interface {
	Deliver(ctx context.Context, inc *alert.Incident) error
}

// RuleProvider returns the current rule-set generation.
type RuleProvider func() *rules.Set

// Config configures one site poller.
type Config struct {
	// Interval is the per-site poll interval. Default: 60s.
	Interval time.Duration
	// Jitter is the maximum courtesy delay between consecutive paste
	// fetches within one site. Default: 2s.
	Jitter time.Duration
	// RateLimitPause is the mandatory pause after a rate-limit
	// indication. Default: 5s.
	RateLimitPause time.Duration
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.Jitter <= 0 {
		c.Jitter = 2 * time.Second
	}
	if c.RateLimitPause <= 0 {
		c.RateLimitPause = 5 * time.Second
	}
}

// Status is a point-in-time snapshot of a poller, for the admin API.
type Status struct {
	Site       string    `json:"site"`
	State      State     `json:"state"`
	Cycles     int64     `json:"cycles"`
	Pastes     int64     `json:"pastes_processed"`
	Incidents  int64     `json:"incidents"`
	Suppressed int64     `json:"suppressed_duplicates"`
	LastCycle  time.Time `json:"last_cycle,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
}

// Poller is the per-site scheduling loop.
type Poller struct {
	site       sites.Adapter
	fetcher    *fetch.Fetcher
	engine     *rules.Engine
	ruleset    RuleProvider
	filter     *dedup.Filter
	registry   *seen.Registry
	dispatcher Dispatcher
	logger     *slog.Logger
	config     Config
	newID      func() string

	state      atomic.Value // State
	cycles     atomic.Int64
	pastes     atomic.Int64
	incidents  atomic.Int64
	suppressed atomic.Int64

	mu        sync.Mutex
	lastCycle time.Time
	lastError string
}

// New creates a Poller for one site.
func New(site sites.Adapter, fetcher *fetch.Fetcher, engine *rules.Engine,
	ruleset RuleProvider, filter *dedup.Filter, registry *seen.Registry,
	dispatcher Dispatcher, cfg Config, logger *slog.Logger) *Poller {

	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		site:       site,
		fetcher:    fetcher,
		engine:     engine,
		ruleset:    ruleset,
		filter:     filter,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger.With("site", site.Name()),
		config:     cfg,
		newID:      func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	p.state.Store(StateIdle)
	return p
}

// Status returns a snapshot of the poller's counters and state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	lastCycle, lastError := p.lastCycle, p.lastError
	p.mu.Unlock()
	return Status{
		Site:       p.site.Name(),
		State:      p.state.Load().(State),
		Cycles:     p.cycles.Load(),
		Pastes:     p.pastes.Load(),
		Incidents:  p.incidents.Load(),
		Suppressed: p.suppressed.Load(),
		LastCycle:  lastCycle,
		LastError:  lastError,
	}
}

// Run loops Listing → Processing → Sleeping until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	defer p.state.Store(StateStopped)
	for {
		if ctx.Err() != nil {
			return
		}
		p.RunOnce(ctx)

		p.state.Store(StateSleeping)
		if !p.pause(ctx, p.config.Interval) {
			return
		}
		p.state.Store(StateIdle)
	}
}

// RunOnce executes a single listing pass. Exported for one-shot mode and
// tests.
func (p *Poller) RunOnce(ctx context.Context) {
	p.cycles.Add(1)
	p.mu.Lock()
	p.lastCycle = time.Now()
	p.lastError = ""
	p.mu.Unlock()

	p.state.Store(StateListing)
	res, err := p.fetcher.Fetch(ctx, fetch.Request{
		URL:            p.site.ListingURL(),
		SlowDownMarker: p.site.SlowDownMarker(),
	})
	if err != nil {
		p.fail("listing fetch failed", err)
		return
	}
	if res.RateLimited {
		p.logger.Info("poller: listing rate-limited, pausing")
		p.pause(ctx, p.config.RateLimitPause)
		return
	}

	ids := p.site.ListPastes(res.Body)
	p.state.Store(StateProcessing)

	first := true
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if p.registry.Contains(p.site.Name(), id) {
			continue
		}
		if !first {
			// Courtesy throttling toward the source site.
			if !p.pause(ctx, time.Duration(rand.Int64N(int64(p.config.Jitter)))) {
				return
			}
		}
		first = false

		if err := p.processPaste(ctx, id); errors.Is(err, errRateLimitAbandon) {
			p.logger.Info("poller: rate-limited twice, abandoning pass",
				"remaining", len(ids))
			return
		}
	}
}

// processPaste runs one paste through fetch → rules → dedup → dispatch.
// The identifier is marked seen whenever content was obtained, matched or
// not — including when a sink fails — so delivery problems never cause
// repeated attempts on every cycle. Fetch failures leave it unmarked for
// the next cycle.
func (p *Poller) processPaste(ctx context.Context, id string) error {
	url := p.site.ContentURL(id)

	// One rule-set generation per paste, taken when processing starts: a
	// reload landing while this paste is in flight applies from the next
	// paste on.
	set := p.ruleset()

	var res *fetch.Result
	for attempt := 0; ; attempt++ {
		var err error
		res, err = p.fetcher.Fetch(ctx, fetch.Request{
			URL:            url,
			SlowDownMarker: p.site.SlowDownMarker(),
		})
		if err != nil {
			p.fail("paste fetch failed", err, "paste_id", id)
			return nil
		}
		if !res.RateLimited {
			break
		}
		if attempt > 0 {
			return errRateLimitAbandon
		}
		p.logger.Info("poller: paste rate-limited, pausing", "paste_id", id)
		if !p.pause(ctx, p.config.RateLimitPause) {
			return ctx.Err()
		}
	}

	fetchedAt := time.Now()
	content, err := p.site.ExtractText(res.Body)
	if err != nil {
		p.fail("content extraction failed", err, "paste_id", id)
		p.registry.Add(p.site.Name(), id)
		return nil
	}

	matches := p.engine.Evaluate(content, set)
	p.pastes.Add(1)

	if len(matches) > 0 {
		dup, sim, err := p.filter.IsDuplicate(ctx, content)
		if err != nil {
			// An unavailable history must not swallow an alert.
			p.logger.Warn("poller: dedup check failed, alerting anyway", "error", err)
			dup = false
		}
		if dup {
			p.suppressed.Add(1)
			p.logger.Info("poller: near-duplicate suppressed",
				"paste_id", id, "similarity", sim)
		} else {
			inc := &alert.Incident{
				ID:        p.newID(),
				Site:      p.site.Name(),
				PasteID:   id,
				URL:       url,
				Matches:   matches,
				Content:   content,
				FetchedAt: fetchedAt,
			}
			p.incidents.Add(1)
			if err := p.dispatcher.Deliver(ctx, inc); err != nil {
				p.fail("incident delivery failed", err, "paste_id", id)
			}
		}
	}

	p.registry.Add(p.site.Name(), id)
	return nil
}

// pause sleeps for d unless the context is cancelled first. Returns false
// on cancellation.
func (p *Poller) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (p *Poller) fail(msg string, err error, attrs ...any) {
	p.logger.Warn("poller: "+msg, append(attrs, "error", err)...)
	p.mu.Lock()
	p.lastError = err.Error()
	p.mu.Unlock()
}
