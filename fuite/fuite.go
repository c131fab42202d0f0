package fuite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/fuite/fuite/internal/alert"
	"github.com/hazyhaar/fuite/fuite/internal/dedup"
	"github.com/hazyhaar/fuite/fuite/internal/fetch"
	"github.com/hazyhaar/fuite/fuite/internal/poller"
	"github.com/hazyhaar/fuite/fuite/internal/proxy"
	"github.com/hazyhaar/fuite/fuite/internal/rules"
	"github.com/hazyhaar/fuite/fuite/internal/seen"
	"github.com/hazyhaar/fuite/fuite/internal/sites"
	"github.com/hazyhaar/fuite/fuite/internal/store"
)

// Service is the main fuite orchestrator: it owns the shared proxy pool,
// rule-set generations, seen registry, archive store and sink router, and
// runs one poller per configured site.
type Service struct {
	config     *Config
	logger     *slog.Logger
	store      *store.Store
	pool       *proxy.Pool
	fetcher    *fetch.Fetcher
	registry   *seen.Registry
	engine     *rules.Engine
	dispatcher poller.Dispatcher
	router     *alert.Router
	pollers    []*poller.Poller

	ruleset    atomic.Pointer[rules.Set]
	generation atomic.Int64

	wg sync.WaitGroup
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithDispatcher replaces the sink router with a custom dispatcher.
// Used in tests to capture incidents without real sinks.
func WithDispatcher(d poller.Dispatcher) ServiceOption {
	return func(svc *Service) { svc.dispatcher = d }
}

// New creates a fuite Service. Any configuration problem — unreadable rule
// or proxy source, unknown site name, invalid sink settings — is a fatal
// startup error.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("fuite: nil config")
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, err
	}

	svc := &Service{
		config:   cfg,
		logger:   logger,
		store:    store.NewStore(db),
		registry: seen.NewRegistry(cfg.SeenCapacity),
		engine:   &rules.Engine{SampleRadius: cfg.SampleRadius},
	}

	// Initial rule generation.
	set, err := rules.LoadFile(cfg.RulesFile, cfg.IgnoreCase, svc.generation.Add(1))
	if err != nil {
		return nil, err
	}
	svc.ruleset.Store(set)

	// Initial proxy generation. An absent proxies_file means direct or
	// ambient egress.
	var endpoints []string
	svc.pool = proxy.NewPool(nil)
	if cfg.ProxiesFile != "" {
		parsed, err := proxy.LoadFile(cfg.ProxiesFile)
		if err != nil {
			return nil, err
		}
		svc.pool.Replace(parsed)
		endpoints = svc.pool.Endpoints()
	}

	svc.fetcher = fetch.New(cfg.Fetch.toInternal(), svc.pool)

	sinks, err := svc.buildSinks()
	if err != nil {
		return nil, err
	}
	svc.router = alert.NewRouter(logger, sinks...)
	svc.dispatcher = svc.router

	for _, opt := range opts {
		opt(svc)
	}

	filter := dedup.New(cfg.Dedup.toInternal(), svc.store)

	for _, sc := range cfg.Sites {
		adapter, err := sites.ByName(sc.Name)
		if err != nil {
			return nil, err
		}
		p := poller.New(adapter, svc.fetcher, svc.engine, svc.ruleset.Load,
			filter, svc.registry, svc.dispatcher, sc.toInternal(), logger)
		svc.pollers = append(svc.pollers, p)
	}

	logger.Info("fuite: configured",
		"sites", len(svc.pollers),
		"rules", set.Len(),
		"proxies", len(endpoints),
		"dedup", cfg.Dedup.Threshold > 0)
	return svc, nil
}

// buildSinks assembles the sink set from configuration. The structured log
// sink is always present.
func (svc *Service) buildSinks() ([]alert.Sink, error) {
	sinks := []alert.Sink{alert.NewLogSink(svc.logger)}

	if c := svc.config.Sinks.CEF; c != nil {
		s, err := alert.NewCEFSink(alert.CEFSinkConfig{Addr: c.Addr, Severity: c.Severity})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if c := svc.config.Sinks.Mail; c != nil {
		s, err := alert.NewMailSink(alert.MailSinkConfig{
			Host: c.Host, Port: c.Port,
			Username: c.Username, Password: c.Password,
			From: c.From, To: c.To,
			SubjectPrefix: c.SubjectPrefix,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if c := svc.config.Sinks.Archive; c != nil {
		s, err := alert.NewArchiveSink(c.toInternal(), svc.store)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	} else if svc.config.Dedup.Threshold > 0 {
		// The dedup filter reads prior samples from the archive; with the
		// filter enabled the archive sink must run even without a dump dir.
		s, err := alert.NewArchiveSink(alert.ArchiveSinkConfig{}, svc.store)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if c := svc.config.Sinks.Publish; c != nil {
		s, err := alert.NewPublishSink(alert.PublishSinkConfig{URL: c.URL, Token: c.Token})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// Start launches one poller goroutine per site. Non-blocking.
func (svc *Service) Start(ctx context.Context) {
	for _, p := range svc.pollers {
		svc.wg.Add(1)
		go func(p *poller.Poller) {
			defer svc.wg.Done()
			p.Run(ctx)
		}(p)
	}
	svc.logger.Info("fuite: started", "pollers", len(svc.pollers))
}

// RunOnce executes a single listing pass on every poller, concurrently,
// and waits for completion. One-shot mode for smoke testing.
func (svc *Service) RunOnce(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range svc.pollers {
		wg.Add(1)
		go func(p *poller.Poller) {
			defer wg.Done()
			p.RunOnce(ctx)
		}(p)
	}
	wg.Wait()
}

// Wait blocks until every poller has stopped.
func (svc *Service) Wait() { svc.wg.Wait() }

// Reload re-reads the rule and proxy sources and swaps both generations
// atomically. On any error the previous generations stay in effect and the
// error is returned wrapped in ErrReloadFailed.
func (svc *Service) Reload(ctx context.Context) error {
	gen := svc.generation.Add(1)

	set, err := rules.LoadFile(svc.config.RulesFile, svc.config.IgnoreCase, gen)
	if err != nil {
		svc.logger.Error("fuite: reload: rules", "error", err)
		return fmt.Errorf("%w: %v", ErrReloadFailed, err)
	}

	var endpoints int
	if svc.config.ProxiesFile != "" {
		parsed, err := proxy.LoadFile(svc.config.ProxiesFile)
		if err != nil {
			svc.logger.Error("fuite: reload: proxies", "error", err)
			return fmt.Errorf("%w: %v", ErrReloadFailed, err)
		}
		svc.pool.Replace(parsed)
		endpoints = len(parsed)
	}

	svc.ruleset.Store(set)
	svc.logger.Info("fuite: reloaded",
		"generation", gen, "rules", set.Len(), "proxies", endpoints)
	return nil
}

// Close shuts down the sink router.
func (svc *Service) Close() error {
	err := svc.router.Close()
	svc.logger.Info("fuite: closed")
	return err
}

// Status reports every poller's state and counters.
func (svc *Service) Status() []poller.Status {
	out := make([]poller.Status, 0, len(svc.pollers))
	for _, p := range svc.pollers {
		out = append(out, p.Status())
	}
	return out
}

// Rules returns the current rule generation.
func (svc *Service) Rules() *rules.Set { return svc.ruleset.Load() }

// Proxies returns the live proxy endpoints.
func (svc *Service) Proxies() []string { return svc.pool.Endpoints() }

// RecentIncidents lists the newest archived incidents.
func (svc *Service) RecentIncidents(ctx context.Context, limit int) ([]*Incident, error) {
	if limit <= 0 {
		limit = 50
	}
	return svc.store.RecentIncidents(ctx, limit)
}
