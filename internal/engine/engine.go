// Package engine wires the metadata cache, the indexer dispatcher, the filter
// and the ranker into the scrape pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelscout/reelscout/internal/config"
	"github.com/reelscout/reelscout/internal/database"
	"github.com/reelscout/reelscout/internal/filter"
	"github.com/reelscout/reelscout/internal/indexer"
	"github.com/reelscout/reelscout/internal/indexer/types"
	"github.com/reelscout/reelscout/internal/metadata"
	"github.com/reelscout/reelscout/internal/metrics"
	"github.com/reelscout/reelscout/internal/profile"
	"github.com/reelscout/reelscout/internal/ranking"
	"github.com/reelscout/reelscout/internal/scrape"
	"github.com/reelscout/reelscout/internal/state"
	"github.com/reelscout/reelscout/internal/trakt"
)

// ErrNoTitle is returned when neither the caller nor the metadata cache can
// name the requested item.
var ErrNoTitle = errors.New("no title for query")

// Engine is the long-lived context shared by every scrape.
type Engine struct {
	cfg        *config.Config
	settings   *config.SettingsStore
	db         *database.DB
	metadata   *metadata.Service
	registry   *indexer.Registry
	dispatcher *scrape.Dispatcher
	filter     *filter.Filter
	ranker     *ranking.Ranker
	states     state.Provider
	metrics    *metrics.Metrics
	sortOrder  profile.UltimateSort
	closers    []func()
	logger     zerolog.Logger
}

type options struct {
	upstream metadata.Upstream
	scrapers []indexer.Scraper
	states   state.Provider
	metrics  *metrics.Metrics
	jitter   metadata.JitterFunc
}

// Option customises engine construction.
type Option func(*options)

// WithUpstream replaces the trakt client, e.g. with an offline fake.
func WithUpstream(u metadata.Upstream) Option {
	return func(o *options) { o.upstream = u }
}

// WithScrapers registers extra scrapers next to the configured instances.
func WithScrapers(s ...indexer.Scraper) Option {
	return func(o *options) { o.scrapers = append(o.scrapers, s...) }
}

// WithStates replaces the SQLite state provider used for pack wantedness.
func WithStates(p state.Provider) Option {
	return func(o *options) { o.states = p }
}

// WithMetrics shares a metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithStalenessJitter overrides the metadata staleness jitter.
func WithStalenessJitter(j metadata.JitterFunc) Option {
	return func(o *options) { o.jitter = j }
}

// New validates configuration and builds every component. Configuration
// errors fail here rather than on the first scrape.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sortOrder, err := profile.ParseUltimateSort(cfg.Scraping.UltimateSortOrder)
	if err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	e := &Engine{
		cfg:       cfg,
		sortOrder: sortOrder,
		metrics:   o.metrics,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}

	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	e.settings, err = config.LoadSettings(cfg.Paths.Config, cfg.Metadata.StalenessThresholdDays, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	e.db, err = database.Open(cfg.Paths.DBContent, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	e.closers = append(e.closers, func() { _ = e.db.Close() })

	upstream := o.upstream
	if upstream == nil {
		client := trakt.NewClient(cfg.Trakt, logger,
			trakt.WithTokenStore(trakt.NewFileTokenStore(cfg.Trakt.TokenFile)),
			trakt.WithObserver(e.metrics),
		)
		if !client.IsConfigured() {
			e.logger.Warn().Msg("Trakt client id is not set, metadata lookups will fail")
		}
		e.closers = append(e.closers, client.Close)
		upstream = client
	}

	e.metadata = metadata.NewService(e.db, upstream, e.settings, metadata.Options{
		IncludeSpecials: cfg.Metadata.IncludeSpecials,
		AliasCacheTTL:   cfg.Metadata.AliasCacheTTL,
		Jitter:          o.jitter,
	}, logger)
	e.closers = append(e.closers, e.metadata.Close)

	e.registry, err = indexer.NewRegistry(cfg.Indexers, cfg.Scraping.RequestTimeout, logger)
	if err != nil {
		return nil, err
	}
	for _, s := range o.scrapers {
		e.registry.Register(s)
	}

	e.dispatcher = scrape.NewDispatcher(e.registry, scrape.Config{
		ScraperTimeout: cfg.Scraping.ScraperTimeout,
		BatchTimeout:   cfg.Scraping.BatchTimeout,
		AnimeTimeout:   cfg.Scraping.AnimeTimeout,
		Workers:        cfg.Scraping.Workers,
	}, logger, scrape.WithObserver(e.metrics))

	e.states = o.states
	if e.states == nil && cfg.Scraping.PackWantedness {
		e.states = state.NewSQLite(e.db)
	}
	e.filter = filter.New(filter.Options{
		FilterTrash:  cfg.Scraping.FilterTrashReleases,
		DisableAdult: cfg.Scraping.DisableAdult,
		States:       e.states,
	}, logger)
	e.ranker = ranking.NewDefaultRanker(logger)

	e.logger.Info().
		Int("indexers", len(e.registry.All())).
		Strs("versions", e.settings.VersionNames()).
		Str("ultimateSort", sortOrder.String()).
		Msg("Engine ready")

	ok = true
	return e, nil
}

// Close releases every resource in reverse construction order.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// Metadata returns the metadata service.
func (e *Engine) Metadata() *metadata.Service { return e.metadata }

// Settings returns the settings store.
func (e *Engine) Settings() *config.SettingsStore { return e.settings }

// Metrics returns the collectors the engine reports to.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// DB returns the cache database.
func (e *Engine) DB() *database.DB { return e.db }

// Response is the outcome of one scrape.
type Response struct {
	ScrapeID string                   `json:"scrape_id"`
	Query    types.Query              `json:"query"`
	Version  string                   `json:"version"`
	Results  []ranking.Result         `json:"results"`
	Rejected []filter.Candidate       `json:"rejected"`
	Summary  []scrape.InstanceSummary `json:"summary"`
	// SizeFallback is set when soft max size returned size-rejected releases.
	SizeFallback      bool  `json:"size_fallback,omitempty"`
	AnimeShortCircuit bool  `json:"anime_short_circuit,omitempty"`
	ElapsedMs         int64 `json:"elapsed_ms"`
}

// Scrape runs the full pipeline: enrich the query from metadata, dispatch to
// every eligible indexer, filter against the version profile and rank.
func (e *Engine) Scrape(ctx context.Context, query types.Query) (*Response, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	prof, err := e.settings.Version(strings.TrimSpace(query.Version))
	if err != nil {
		return nil, err
	}
	// State lookups key on the resolved version.
	version := prof.Name
	query.Version = version
	start := time.Now()

	query = e.Enrich(ctx, query)
	if strings.TrimSpace(query.Title) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoTitle, query.IMDbID)
	}

	scraped, err := e.dispatcher.ScrapeAll(ctx, query)
	if err != nil {
		return nil, err
	}
	logger := e.logger.With().Str("scrapeId", scraped.ScrapeID).Logger()

	outcome := e.filter.Apply(ctx, scraped.Results, query, prof)
	ranked, fellBack := e.ranker.Finalize(outcome, query, prof, ranking.Options{
		UltimateSort: e.sortOrder,
		SoftMaxSize:  e.cfg.Scraping.SoftMaxSize,
	})

	resp := &Response{
		ScrapeID:          scraped.ScrapeID,
		Query:             query,
		Version:           version,
		Results:           ranked,
		Rejected:          outcome.Rejected,
		Summary:           scraped.Summary,
		SizeFallback:      fellBack,
		AnimeShortCircuit: scraped.AnimeShortCircuit,
		ElapsedMs:         time.Since(start).Milliseconds(),
	}
	if resp.Results == nil {
		resp.Results = []ranking.Result{}
	}

	logger.Info().
		Str("imdbId", query.IMDbID).
		Str("title", query.Title).
		Str("version", version).
		Int("scraped", len(scraped.Results)).
		Int("passed", len(ranked)).
		Int("rejected", len(outcome.Rejected)).
		Dur("elapsed", time.Since(start)).
		Msg("Scrape complete")
	return resp, nil
}

// Movie returns cached movie metadata and records where it came from.
func (e *Engine) Movie(ctx context.Context, imdbID string) (*metadata.Movie, metadata.Source, error) {
	movie, src, err := e.metadata.GetMovie(ctx, imdbID)
	if err == nil && movie != nil {
		e.metrics.ObserveMetadata(string(metadata.MediaMovie), string(src))
	}
	return movie, src, err
}

// Show returns cached show metadata and records where it came from.
func (e *Engine) Show(ctx context.Context, imdbID string) (*metadata.Show, metadata.Source, error) {
	show, src, err := e.metadata.GetShow(ctx, imdbID)
	if err == nil && show != nil {
		e.metrics.ObserveMetadata(string(metadata.MediaShow), string(src))
	}
	return show, src, err
}

// RefreshUpdated force-refreshes cached movies and shows changed upstream
// since the given time.
func (e *Engine) RefreshUpdated(ctx context.Context, since time.Time) (int, error) {
	total := 0
	for _, mt := range []metadata.MediaType{metadata.MediaMovie, metadata.MediaShow} {
		n, err := e.metadata.RefreshUpdatedSince(ctx, mt, since)
		total += n
		if err != nil {
			return total, fmt.Errorf("refresh updated %ss: %w", mt, err)
		}
	}
	return total, nil
}
