// Package scrape fans a query out to every configured indexer and gathers
// deduplicated results.
package scrape

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/reelscout/reelscout/internal/indexer"
	"github.com/reelscout/reelscout/internal/indexer/ratelimit"
	"github.com/reelscout/reelscout/internal/indexer/types"
	"github.com/reelscout/reelscout/internal/parser"
)

// Config holds dispatcher deadlines. A zero timeout disables that deadline.
type Config struct {
	ScraperTimeout time.Duration
	BatchTimeout   time.Duration
	AnimeTimeout   time.Duration
	Workers        int
}

// Observer receives one call per instance per scrape.
type Observer interface {
	ObserveScrape(instance string, backend types.BackendType, results int, label string, elapsed time.Duration)
}

// InstanceSummary reports how one instance did during a scrape. Label is
// empty on success.
type InstanceSummary struct {
	Instance  string            `json:"instance"`
	Backend   types.BackendType `json:"backend"`
	Count     int               `json:"count"`
	Label     string            `json:"label,omitempty"`
	Error     string            `json:"error,omitempty"`
	ElapsedMs int64             `json:"elapsed_ms"`
}

// Result is the outcome of ScrapeAll.
type Result struct {
	ScrapeID string            `json:"scrape_id"`
	Results  []types.RawResult `json:"results"`
	Summary  []InstanceSummary `json:"summary"`
	// AnimeShortCircuit is set when the anime indexes alone answered the query.
	AnimeShortCircuit bool `json:"anime_short_circuit,omitempty"`
}

// Dispatcher runs adapter calls on a bounded worker pool.
type Dispatcher struct {
	registry *indexer.Registry
	limits   *ratelimit.Instances
	sem      *semaphore.Weighted
	cfg      Config
	observer Observer
	logger   zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver reports per-instance outcomes to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithLimits shares per-instance limiters between dispatchers.
func WithLimits(l *ratelimit.Instances) Option {
	return func(d *Dispatcher) { d.limits = l }
}

// NewDispatcher creates a dispatcher over the registry's scrapers.
func NewDispatcher(registry *indexer.Registry, cfg Config, logger zerolog.Logger, opts ...Option) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	d := &Dispatcher{
		registry: registry,
		limits:   ratelimit.NewInstances(),
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		cfg:      cfg,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ScrapeAll queries every eligible instance and returns the merged results.
// Slow or failing instances are reported in the summary and never fail the call.
func (d *Dispatcher) ScrapeAll(ctx context.Context, query types.Query) (*Result, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	res := &Result{ScrapeID: uuid.NewString()}
	logger := d.logger.With().Str("scrapeId", res.ScrapeID).Logger()
	start := time.Now()

	scrapers := d.registry.All()
	if strings.TrimSpace(query.IMDbID) == "" {
		scrapers = d.registry.TitleOnly()
		logger.Debug().Str("title", query.Title).Msg("No IMDb id, using title-only indexers")
	}

	var collected []types.RawResult
	if query.IsEpisode() && query.IsAnime {
		anime := intersect(d.registry.Anime(), scrapers)
		if len(anime) > 0 {
			results, summary := d.fanOut(ctx, anime, query, d.cfg.AnimeTimeout, logger)
			res.Summary = append(res.Summary, summary...)
			if hasEpisodeMatch(results, query) {
				res.Results = Finish(results)
				res.AnimeShortCircuit = true
				d.logSummary(logger, res, time.Since(start))
				return res, nil
			}
			collected = results
			scrapers = subtract(scrapers, anime)
		}
	}

	results, summary := d.fanOut(ctx, scrapers, query, d.cfg.BatchTimeout, logger)
	res.Summary = append(res.Summary, summary...)
	res.Results = Finish(append(collected, results...))
	d.logSummary(logger, res, time.Since(start))
	return res, nil
}

type taskOutcome struct {
	index   int
	results []types.RawResult
	summary InstanceSummary
}

// fanOut runs one task per scraper and gathers what finishes before the
// batch deadline. Tasks still running at the deadline are reported timed out.
func (d *Dispatcher) fanOut(ctx context.Context, scrapers []indexer.Scraper, query types.Query, batchTimeout time.Duration, logger zerolog.Logger) ([]types.RawResult, []InstanceSummary) {
	if len(scrapers) == 0 {
		return nil, nil
	}

	batchCtx, cancel := withOptionalTimeout(ctx, batchTimeout)
	defer cancel()

	outcomes := make(chan taskOutcome, len(scrapers))
	for i, s := range scrapers {
		go func() {
			outcomes <- d.runTask(batchCtx, ctx, i, s, query, logger)
		}()
	}

	summaries := make([]InstanceSummary, len(scrapers))
	done := make([]bool, len(scrapers))
	var all []types.RawResult

	for received := 0; received < len(scrapers); received++ {
		select {
		case o := <-outcomes:
			summaries[o.index] = o.summary
			done[o.index] = true
			all = append(all, o.results...)
		case <-batchCtx.Done():
			label := indexer.LabelTimedOut
			if errors.Is(ctx.Err(), context.Canceled) {
				label = indexer.LabelCancelled
			}
			for i, s := range scrapers {
				if done[i] {
					continue
				}
				inst := s.Instance()
				summaries[i] = InstanceSummary{Instance: inst.Name, Backend: inst.Type, Label: label}
				d.observe(summaries[i], 0)
			}
			return all, summaries
		}
	}
	return all, summaries
}

func (d *Dispatcher) runTask(batchCtx, parentCtx context.Context, index int, s indexer.Scraper, query types.Query, logger zerolog.Logger) taskOutcome {
	inst := s.Instance()
	out := taskOutcome{index: index, summary: InstanceSummary{Instance: inst.Name, Backend: inst.Type}}
	start := time.Now()

	fail := func(taskCtx context.Context, err error) taskOutcome {
		ie := indexer.Classify(inst.Name, err, taskCtx, parentCtx)
		out.summary.Label = ie.Label()
		out.summary.Error = ie.Error()
		out.summary.ElapsedMs = time.Since(start).Milliseconds()
		logger.Warn().Err(err).Str("instance", inst.Name).Str("code", ie.Code).Msg("Indexer search failed")
		d.observe(out.summary, time.Since(start))
		return out
	}

	if err := d.sem.Acquire(batchCtx, 1); err != nil {
		return fail(batchCtx, err)
	}
	defer d.sem.Release(1)

	taskCtx, cancel := withOptionalTimeout(batchCtx, d.cfg.ScraperTimeout)
	defer cancel()

	if err := d.limits.Wait(taskCtx, inst.Name, inst.RequestsPerSecond); err != nil {
		return fail(taskCtx, err)
	}

	results, err := s.Scrape(taskCtx, query)
	if err == nil && taskCtx.Err() != nil {
		err = taskCtx.Err()
	}
	if err != nil {
		return fail(taskCtx, err)
	}

	for i := range results {
		if results[i].SourceLabel == "" {
			results[i].SourceLabel = inst.Name
		}
	}
	out.results = results
	out.summary.Count = len(results)
	out.summary.ElapsedMs = time.Since(start).Milliseconds()
	d.observe(out.summary, time.Since(start))
	return out
}

func (d *Dispatcher) observe(s InstanceSummary, elapsed time.Duration) {
	if d.observer != nil {
		d.observer.ObserveScrape(s.Instance, s.Backend, s.Count, s.Label, elapsed)
	}
}

func (d *Dispatcher) logSummary(logger zerolog.Logger, res *Result, elapsed time.Duration) {
	for _, s := range res.Summary {
		event := logger.Info().Str("instance", s.Instance).Str("backend", string(s.Backend))
		if s.Label != "" {
			event.Str("result", s.Label).Msg("Indexer summary")
			continue
		}
		event.Int("count", s.Count).Int64("elapsedMs", s.ElapsedMs).Msg("Indexer summary")
	}
	logger.Info().
		Int("results", len(res.Results)).
		Int("instances", len(res.Summary)).
		Bool("animeShortCircuit", res.AnimeShortCircuit).
		Dur("elapsed", elapsed).
		Msg("Scrape completed")
}

// hasEpisodeMatch reports whether any result names the target episode. An
// explicit conflicting season disqualifies a result; a missing season only
// counts as season one unless the number is absolute.
func hasEpisodeMatch(results []types.RawResult, query types.Query) bool {
	absolute := append([]int{}, query.AbsoluteNumbers...)
	if query.AbsoluteEpisode > 0 {
		absolute = append(absolute, query.AbsoluteEpisode)
	}

	for _, r := range results {
		p := parser.Parse(r.Title)
		if p == nil || p.IsPack() {
			continue
		}
		se := p.SeasonEpisode
		switch {
		case len(se.Seasons) > 0:
			if slices.Contains(se.Seasons, query.Season) && slices.Contains(se.Episodes, query.Episode) {
				return true
			}
		case query.Season <= 1 && slices.Contains(se.Episodes, query.Episode):
			return true
		default:
			for _, n := range absolute {
				if slices.Contains(se.Episodes, n) {
					return true
				}
			}
		}
	}
	return false
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func intersect(a, b []indexer.Scraper) []indexer.Scraper {
	var out []indexer.Scraper
	for _, s := range a {
		if slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}

func subtract(a, b []indexer.Scraper) []indexer.Scraper {
	var out []indexer.Scraper
	for _, s := range a {
		if !slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}
