// Package metadata is the read-through cache of canonical movie and show
// facts used by filtering and ranking.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/reelscout/reelscout/internal/database"
	"github.com/reelscout/reelscout/internal/trakt"
)

var (
	// ErrNotCached is returned when an operation needs an item that was never fetched.
	ErrNotCached = errors.New("item not cached")
	// ErrWrongType is returned when a cached id belongs to the other media type.
	ErrWrongType = errors.New("cached item has a different type")
)

// Upstream is the subset of the trakt client the cache needs.
type Upstream interface {
	SearchByID(ctx context.Context, idType, id string, types ...string) ([]trakt.SearchResult, error)
	GetMovie(ctx context.Context, idOrSlug string) (*trakt.Movie, error)
	GetShow(ctx context.Context, idOrSlug string) (*trakt.Show, error)
	GetSeasons(ctx context.Context, idOrSlug string, includeSpecials bool) ([]trakt.Season, error)
	GetMovieReleases(ctx context.Context, idOrSlug string) ([]trakt.Release, error)
	GetAliases(ctx context.Context, kind trakt.MediaKind, idOrSlug string) ([]trakt.Alias, error)
	GetUpdates(ctx context.Context, kind trakt.MediaKind, since time.Time, page, limit int) (*trakt.UpdatesPage, error)
	ConvertToIMDb(ctx context.Context, source, id, mediaType string) (string, string, error)
	OnRecovered(fn func(method, path string))
}

// Options tunes the service.
type Options struct {
	IncludeSpecials bool
	AliasCacheTTL   time.Duration
	// Jitter overrides the staleness jitter; tests pass a constant.
	Jitter JitterFunc
	Now    func() time.Time
}

// Service provides cached metadata with at most one upstream refresh in
// flight per id.
type Service struct {
	repo            *repository
	upstream        Upstream
	staleness       stalenessPolicy
	includeSpecials bool
	aliases         *AliasCache
	group           singleflight.Group
	logger          zerolog.Logger

	pendingMu sync.Mutex
	pending   map[string]pendingRefresh

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

type pendingRefresh struct {
	imdbID    string
	mediaType MediaType
}

// NewService creates the metadata service.
func NewService(db *database.DB, upstream Upstream, staleness StalenessSource, opts Options, logger zerolog.Logger) *Service {
	if opts.Jitter == nil {
		opts.Jitter = DefaultJitter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	s := &Service{
		repo:     &repository{db: db},
		upstream: upstream,
		staleness: stalenessPolicy{
			source: staleness,
			jitter: opts.Jitter,
			now:    opts.Now,
		},
		includeSpecials: opts.IncludeSpecials,
		aliases:         NewAliasCache(opts.AliasCacheTTL, 0),
		logger:          logger.With().Str("component", "metadata").Logger(),
		pending:         make(map[string]pendingRefresh),
		bgCtx:           bgCtx,
		bgCancel:        bgCancel,
	}
	upstream.OnRecovered(s.handleRecovered)
	return s
}

// Close stops background refreshes started by recovered upstream requests.
func (s *Service) Close() {
	s.bgCancel()
	s.bgWG.Wait()
}

// WaitBackground blocks until background refreshes finish.
func (s *Service) WaitBackground() {
	s.bgWG.Wait()
}

// GetMovie returns a movie from the cache, refreshing it when missing or stale.
// A nil movie with a nil error means upstream does not know the id.
func (s *Service) GetMovie(ctx context.Context, imdbID string) (*Movie, Source, error) {
	cached, err := s.loadMovie(ctx, imdbID)
	if err != nil {
		return nil, "", err
	}
	if cached != nil && !s.staleness.isStale(cached.UpdatedAt) && cached.complete {
		return cached.Movie, SourceCache, nil
	}

	movie, err := s.refresh(ctx, MediaMovie, imdbID)
	return resolve(s, imdbID, cachedMovie(cached), movie, err)
}

// GetShow returns a show with its seasons, refreshing it when missing or stale.
func (s *Service) GetShow(ctx context.Context, imdbID string) (*Show, Source, error) {
	cached, err := s.loadShow(ctx, imdbID)
	if err != nil {
		return nil, "", err
	}
	if cached != nil && !s.staleness.isStale(cached.UpdatedAt) && cached.complete {
		return cached.Show, SourceCache, nil
	}

	show, err := s.refresh(ctx, MediaShow, imdbID)
	return resolve(s, imdbID, cachedShow(cached), show, err)
}

// resolve turns a refresh outcome into the returned value and source. A
// failed refresh falls back to the cached copy.
func resolve[T any](s *Service, imdbID string, cached *T, fresh any, err error) (*T, Source, error) {
	switch {
	case err == nil && fresh == nil:
		return nil, SourceUpstream, nil
	case err == nil:
		return fresh.(*T), SourceUpstream, nil
	case cached != nil:
		s.logger.Warn().Err(err).Str("imdbId", imdbID).Msg("refresh failed, serving stale metadata")
		return cached, SourceStale, nil
	}
	return nil, "", err
}

// ForceRefresh refreshes a cached item regardless of staleness and drops its
// alias cache entries.
func (s *Service) ForceRefresh(ctx context.Context, imdbID string) (Source, error) {
	item, err := s.repo.getItem(ctx, imdbID)
	if err != nil {
		return "", err
	}
	if item == nil {
		return "", fmt.Errorf("%w: %s", ErrNotCached, imdbID)
	}
	s.aliases.Invalidate(imdbID)

	fresh, err := s.refresh(ctx, item.Type, imdbID)
	if err != nil {
		return SourceStale, err
	}
	if fresh == nil {
		return SourceStale, nil
	}
	return SourceUpstream, nil
}

// refresh fetches an item upstream and stores it. Concurrent callers for the
// same id share one fetch; each caller can still give up on its own context.
func (s *Service) refresh(ctx context.Context, mediaType MediaType, imdbID string) (any, error) {
	ch := s.group.DoChan(string(mediaType)+":"+imdbID, func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		var (
			v   any
			err error
		)
		if mediaType == MediaMovie {
			v, err = s.refreshMovie(fetchCtx, imdbID)
		} else {
			v, err = s.refreshShow(fetchCtx, imdbID)
		}
		if errors.Is(err, trakt.ErrNotFound) {
			s.logger.Warn().Str("imdbId", imdbID).Str("type", string(mediaType)).Msg("upstream does not know this id")
			return nil, nil
		}
		var deferred *trakt.DeferredError
		if errors.As(err, &deferred) {
			s.trackDeferred(deferred, imdbID, mediaType)
		}
		return v, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (s *Service) refreshMovie(ctx context.Context, imdbID string) (*Movie, error) {
	tm, err := s.upstream.GetMovie(ctx, imdbID)
	if err != nil {
		return nil, err
	}
	key := tm.IDs.Key()
	if key == "" {
		key = imdbID
	}
	releases, err := s.upstream.GetMovieReleases(ctx, key)
	if err != nil && !errors.Is(err, trakt.ErrNotFound) {
		return nil, err
	}
	aliases, err := s.upstream.GetAliases(ctx, trakt.KindMovies, key)
	if err != nil && !errors.Is(err, trakt.ErrNotFound) {
		return nil, err
	}

	item := Item{
		IMDbID:        imdbID,
		Type:          MediaMovie,
		Title:         tm.Title,
		OriginalTitle: tm.OriginalTitle,
		Year:          tm.Year,
		Country:       tm.Country,
		Language:      tm.Language,
		Status:        tm.Status,
		Runtime:       tm.Runtime,
		Genres:        tm.Genres,
		Slug:          tm.IDs.Slug,
		TraktID:       tm.IDs.Trakt,
		TMDBID:        tm.IDs.TMDB,
		TVDBID:        tm.IDs.TVDB,
		UpdatedAt:     s.staleness.now(),
	}
	dates := groupReleases(releases)
	grouped := groupAliases(aliases)

	records := map[string]any{keyAliases: grouped, keyReleaseDates: dates}
	if err := s.repo.save(ctx, &item, records, nil); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("imdbId", imdbID).Str("title", item.Title).Msg("movie refreshed")

	loaded, err := s.loadMovie(ctx, imdbID)
	if err != nil {
		return nil, err
	}
	return loaded.Movie, nil
}

func (s *Service) refreshShow(ctx context.Context, imdbID string) (*Show, error) {
	ts, err := s.upstream.GetShow(ctx, imdbID)
	if err != nil {
		return nil, err
	}
	key := ts.IDs.Key()
	if key == "" {
		key = imdbID
	}
	tseasons, err := s.upstream.GetSeasons(ctx, key, s.includeSpecials)
	if err != nil && !errors.Is(err, trakt.ErrNotFound) {
		return nil, err
	}
	aliases, err := s.upstream.GetAliases(ctx, trakt.KindShows, key)
	if err != nil && !errors.Is(err, trakt.ErrNotFound) {
		return nil, err
	}

	item := Item{
		IMDbID:        imdbID,
		Type:          MediaShow,
		Title:         ts.Title,
		OriginalTitle: ts.OriginalTitle,
		Year:          ts.Year,
		Country:       ts.Country,
		Language:      ts.Language,
		Network:       ts.Network,
		Timezone:      ts.Airs.Timezone,
		Status:        ts.Status,
		Runtime:       ts.Runtime,
		Genres:        ts.Genres,
		Slug:          ts.IDs.Slug,
		TraktID:       ts.IDs.Trakt,
		TMDBID:        ts.IDs.TMDB,
		TVDBID:        ts.IDs.TVDB,
		UpdatedAt:     s.staleness.now(),
	}
	if item.Year == 0 && ts.FirstAired != nil {
		item.Year = ts.FirstAired.In(ts.Airs.Timezone).Year()
	}

	seasons := convertSeasons(tseasons, ts.Airs.Timezone, ts.Runtime)
	records := map[string]any{
		keyAliases: groupAliases(aliases),
		keyAirs:    Airs{Day: ts.Airs.Day, Time: ts.Airs.Time, Timezone: ts.Airs.Timezone},
	}
	if err := s.repo.save(ctx, &item, records, seasons); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("imdbId", imdbID).Str("title", item.Title).Int("seasons", len(seasons)).Msg("show refreshed")

	loaded, err := s.loadShow(ctx, imdbID)
	if err != nil {
		return nil, err
	}
	return loaded.Show, nil
}

func convertSeasons(tseasons []trakt.Season, timezone string, showRuntime int) map[int]*Season {
	seasons := make(map[int]*Season, len(tseasons))
	for _, ts := range tseasons {
		season := &Season{
			Number:       ts.Number,
			EpisodeCount: ts.EpisodeCount,
			Episodes:     make(map[int]*Episode, len(ts.Episodes)),
		}
		for _, te := range ts.Episodes {
			ep := &Episode{
				Season:         ts.Number,
				Number:         te.Number,
				Title:          te.Title,
				Overview:       te.Overview,
				Runtime:        te.Runtime,
				IMDbID:         te.IDs.IMDb,
				TVDBID:         te.IDs.TVDB,
				AbsoluteNumber: te.NumberAbs,
			}
			if ep.Runtime == 0 {
				ep.Runtime = showRuntime
			}
			if te.FirstAired != nil && !te.FirstAired.IsZero() {
				at := te.FirstAired.In(timezone)
				ep.FirstAired = &at
			}
			season.Episodes[te.Number] = ep
		}
		if season.EpisodeCount == 0 {
			season.EpisodeCount = len(season.Episodes)
		}
		seasons[ts.Number] = season
	}
	return seasons
}

func groupAliases(aliases []trakt.Alias) Aliases {
	grouped := make(Aliases)
	for _, a := range aliases {
		if a.Title == "" {
			continue
		}
		grouped[a.Country] = append(grouped[a.Country], a.Title)
	}
	return grouped
}

func groupReleases(releases []trakt.Release) map[string][]ReleaseDate {
	grouped := make(map[string][]ReleaseDate)
	for _, r := range releases {
		if r.ReleaseDate == "" {
			continue
		}
		grouped[r.Country] = append(grouped[r.Country], ReleaseDate{Date: r.ReleaseDate, Type: r.ReleaseType})
	}
	return grouped
}

type loadedMovie struct {
	*Movie
	complete bool
}

type loadedShow struct {
	*Show
	complete bool
}

func cachedMovie(l *loadedMovie) *Movie {
	if l == nil {
		return nil
	}
	return l.Movie
}

func cachedShow(l *loadedShow) *Show {
	if l == nil {
		return nil
	}
	return l.Show
}

func (s *Service) loadMovie(ctx context.Context, imdbID string) (*loadedMovie, error) {
	item, err := s.repo.getItem(ctx, imdbID)
	if err != nil || item == nil {
		return nil, err
	}
	if item.Type != MediaMovie {
		return nil, fmt.Errorf("%w: %s is a %s", ErrWrongType, imdbID, item.Type)
	}
	records, err := s.repo.getRecords(ctx, imdbID)
	if err != nil {
		return nil, err
	}
	movie := &Movie{Item: *item}
	_, hasAliases := records[keyAliases]
	_, hasDates := records[keyReleaseDates]
	if err := decodeRecord(records, keyAliases, &movie.Aliases); err != nil {
		return nil, err
	}
	if err := decodeRecord(records, keyReleaseDates, &movie.ReleaseDates); err != nil {
		return nil, err
	}
	return &loadedMovie{Movie: movie, complete: hasAliases && hasDates}, nil
}

func (s *Service) loadShow(ctx context.Context, imdbID string) (*loadedShow, error) {
	item, err := s.repo.getItem(ctx, imdbID)
	if err != nil || item == nil {
		return nil, err
	}
	if item.Type != MediaShow {
		return nil, fmt.Errorf("%w: %s is a %s", ErrWrongType, imdbID, item.Type)
	}
	records, err := s.repo.getRecords(ctx, imdbID)
	if err != nil {
		return nil, err
	}
	seasons, err := s.repo.getSeasons(ctx, imdbID)
	if err != nil {
		return nil, err
	}
	show := &Show{Item: *item, Seasons: seasons}
	_, hasAliases := records[keyAliases]
	_, hasAirs := records[keyAirs]
	if err := decodeRecord(records, keyAliases, &show.Aliases); err != nil {
		return nil, err
	}
	if err := decodeRecord(records, keyAirs, &show.Airs); err != nil {
		return nil, err
	}
	return &loadedShow{Show: show, complete: hasAliases && hasAirs}, nil
}

func decodeRecord(records map[string]json.RawMessage, key string, out any) error {
	raw, ok := records[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s record: %w", key, err)
	}
	return nil
}

// GetSeasons returns the seasons of a show.
func (s *Service) GetSeasons(ctx context.Context, imdbID string) (map[int]*Season, Source, error) {
	show, source, err := s.GetShow(ctx, imdbID)
	if err != nil || show == nil {
		return nil, source, err
	}
	return show.Seasons, source, nil
}

// GetEpisodeByExternalID finds an episode by its own IMDb id. On a cache miss
// the parent show is looked up upstream and cached.
func (s *Service) GetEpisodeByExternalID(ctx context.Context, episodeIMDb string) (*EpisodeLookup, error) {
	found, err := s.repo.findEpisode(ctx, episodeIMDb)
	if err != nil || found != nil {
		return found, err
	}

	results, err := s.upstream.SearchByID(ctx, "imdb", episodeIMDb, "episode")
	if errors.Is(err, trakt.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Show == nil || r.Show.IDs.IMDb == "" {
			continue
		}
		if _, _, err := s.GetShow(ctx, r.Show.IDs.IMDb); err != nil {
			return nil, err
		}
		return s.repo.findEpisode(ctx, episodeIMDb)
	}
	return nil, nil
}

// GetReleaseDates returns a movie's release dates keyed by country.
func (s *Service) GetReleaseDates(ctx context.Context, imdbID string) (map[string][]ReleaseDate, error) {
	movie, _, err := s.GetMovie(ctx, imdbID)
	if err != nil || movie == nil {
		return nil, err
	}
	return movie.ReleaseDates, nil
}

// GetShowAliases returns a show's aliases grouped by country.
func (s *Service) GetShowAliases(ctx context.Context, imdbID string) (Aliases, error) {
	return s.cachedAliases(MediaShow, imdbID, func() (Aliases, error) {
		show, _, err := s.GetShow(ctx, imdbID)
		if err != nil || show == nil {
			return nil, err
		}
		return show.Aliases, nil
	})
}

// GetMovieAliases returns a movie's aliases grouped by country.
func (s *Service) GetMovieAliases(ctx context.Context, imdbID string) (Aliases, error) {
	return s.cachedAliases(MediaMovie, imdbID, func() (Aliases, error) {
		movie, _, err := s.GetMovie(ctx, imdbID)
		if err != nil || movie == nil {
			return nil, err
		}
		return movie.Aliases, nil
	})
}

// cachedAliases serves aliases from the in-process cache. Failures and
// unknown ids are remembered as negatives until a force refresh.
func (s *Service) cachedAliases(mediaType MediaType, imdbID string, load func() (Aliases, error)) (Aliases, error) {
	key := aliasKey(mediaType, imdbID)
	if aliases, negative, ok := s.aliases.Get(key); ok {
		if negative {
			return nil, nil
		}
		return aliases, nil
	}
	aliases, err := load()
	if err != nil || aliases == nil {
		s.aliases.SetNegative(key)
		return nil, err
	}
	s.aliases.Set(key, aliases)
	return aliases, nil
}

// RemoveMetadata deletes the stored records and seasons of an item. The next
// read refreshes it from upstream.
func (s *Service) RemoveMetadata(ctx context.Context, imdbID string) (int64, error) {
	removed, err := s.repo.deleteRecords(ctx, imdbID)
	if err != nil {
		return 0, err
	}
	s.aliases.Invalidate(imdbID)
	s.logger.Info().Str("imdbId", imdbID).Int64("records", removed).Msg("metadata removed")
	return removed, nil
}

func (s *Service) trackDeferred(d *trakt.DeferredError, imdbID string, mediaType MediaType) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[d.Method+" "+d.Path] = pendingRefresh{imdbID: imdbID, mediaType: mediaType}
}

// handleRecovered refreshes the item whose request failed with a server
// error once the upstream client's background retry succeeds.
func (s *Service) handleRecovered(method, path string) {
	s.pendingMu.Lock()
	p, ok := s.pending[method+" "+path]
	delete(s.pending, method+" "+path)
	s.pendingMu.Unlock()
	if !ok {
		return
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if _, err := s.refresh(s.bgCtx, p.mediaType, p.imdbID); err != nil {
			s.logger.Warn().Err(err).Str("imdbId", p.imdbID).Msg("background refresh failed")
			return
		}
		s.aliases.Invalidate(p.imdbID)
		s.logger.Info().Str("imdbId", p.imdbID).Msg("metadata refreshed after upstream recovery")
	}()
}
