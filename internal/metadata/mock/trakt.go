// Package mock provides an in-memory upstream for metadata tests and offline runs.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelscout/reelscout/internal/trakt"
)

// Upstream serves canned trakt data and counts calls.
type Upstream struct {
	mu        sync.Mutex
	movies    map[string]*trakt.Movie
	shows     map[string]*trakt.Show
	seasons   map[string][]trakt.Season
	releases  map[string][]trakt.Release
	aliases   map[string][]trakt.Alias
	searches  map[string][]trakt.SearchResult
	mappings  map[string]string
	updates   map[trakt.MediaKind][]trakt.UpdatedItem
	failNext  map[string]error
	hooks     []func(method, path string)
	pageLimit int

	// Delay is applied to GetMovie and GetShow.
	Delay time.Duration

	MovieCalls   atomic.Int32
	ShowCalls    atomic.Int32
	SeasonCalls  atomic.Int32
	ConvertCalls atomic.Int32
}

// NewUpstream returns an empty fake.
func NewUpstream() *Upstream {
	return &Upstream{
		movies:   make(map[string]*trakt.Movie),
		shows:    make(map[string]*trakt.Show),
		seasons:  make(map[string][]trakt.Season),
		releases: make(map[string][]trakt.Release),
		aliases:  make(map[string][]trakt.Alias),
		searches: make(map[string][]trakt.SearchResult),
		mappings: make(map[string]string),
		updates:  make(map[trakt.MediaKind][]trakt.UpdatedItem),
		failNext: make(map[string]error),
	}
}

// AddMovie registers a movie under its IMDb id and slug.
func (u *Upstream) AddMovie(m trakt.Movie, releases []trakt.Release, aliases []trakt.Alias) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.movies[m.IDs.IMDb] = &m
	for _, key := range keys(m.IDs) {
		u.releases[key] = releases
		u.aliases["movies/"+key] = aliases
	}
}

// AddShow registers a show with its seasons.
func (u *Upstream) AddShow(s trakt.Show, seasons []trakt.Season, aliases []trakt.Alias) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.shows[s.IDs.IMDb] = &s
	for _, key := range keys(s.IDs) {
		u.seasons[key] = seasons
		u.aliases["shows/"+key] = aliases
	}
}

// AddSearch registers results for an id lookup.
func (u *Upstream) AddSearch(idType, id string, results ...trakt.SearchResult) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.searches[idType+"/"+id] = results
}

// AddMapping registers a foreign id conversion.
func (u *Upstream) AddMapping(source, id, imdbID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mappings[source+"/"+id] = imdbID
}

// AddUpdates sets the updated items returned for kind. pageLimit splits them
// into pages; zero returns a single page.
func (u *Upstream) AddUpdates(kind trakt.MediaKind, pageLimit int, items ...trakt.UpdatedItem) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.updates[kind] = append(u.updates[kind], items...)
	u.pageLimit = pageLimit
}

// FailNext makes the next call of op ("GetShow", "GetMovie", ...) return err.
func (u *Upstream) FailNext(op string, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failNext[op] = err
}

// Recover fires the registered recovery hooks.
func (u *Upstream) Recover(method, path string) {
	u.mu.Lock()
	hooks := append([]func(string, string){}, u.hooks...)
	u.mu.Unlock()
	for _, h := range hooks {
		h(method, path)
	}
}

func (u *Upstream) takeFailure(op string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	err := u.failNext[op]
	delete(u.failNext, op)
	return err
}

func keys(ids trakt.IDs) []string {
	out := []string{ids.IMDb}
	if ids.Slug != "" {
		out = append(out, ids.Slug)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (u *Upstream) SearchByID(_ context.Context, idType, id string, _ ...string) ([]trakt.SearchResult, error) {
	if err := u.takeFailure("SearchByID"); err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	results, ok := u.searches[idType+"/"+id]
	if !ok {
		return nil, trakt.ErrNotFound
	}
	return results, nil
}

func (u *Upstream) GetMovie(ctx context.Context, id string) (*trakt.Movie, error) {
	u.MovieCalls.Add(1)
	if err := sleep(ctx, u.Delay); err != nil {
		return nil, err
	}
	if err := u.takeFailure("GetMovie"); err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	m, ok := u.movies[id]
	if !ok {
		return nil, trakt.ErrNotFound
	}
	clone := *m
	return &clone, nil
}

func (u *Upstream) GetShow(ctx context.Context, id string) (*trakt.Show, error) {
	u.ShowCalls.Add(1)
	if err := sleep(ctx, u.Delay); err != nil {
		return nil, err
	}
	if err := u.takeFailure("GetShow"); err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	s, ok := u.shows[id]
	if !ok {
		return nil, trakt.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (u *Upstream) GetSeasons(_ context.Context, id string, includeSpecials bool) ([]trakt.Season, error) {
	u.SeasonCalls.Add(1)
	if err := u.takeFailure("GetSeasons"); err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []trakt.Season
	for _, s := range u.seasons[id] {
		if s.Number == 0 && !includeSpecials {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (u *Upstream) GetMovieReleases(_ context.Context, id string) ([]trakt.Release, error) {
	if err := u.takeFailure("GetMovieReleases"); err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.releases[id], nil
}

func (u *Upstream) GetAliases(_ context.Context, kind trakt.MediaKind, id string) ([]trakt.Alias, error) {
	if err := u.takeFailure("GetAliases"); err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.aliases[string(kind)+"/"+id], nil
}

func (u *Upstream) GetUpdates(_ context.Context, kind trakt.MediaKind, _ time.Time, page, limit int) (*trakt.UpdatesPage, error) {
	if err := u.takeFailure("GetUpdates"); err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	items := u.updates[kind]
	per := u.pageLimit
	if per <= 0 {
		per = max(len(items), 1)
	}
	pages := max((len(items)+per-1)/per, 1)
	start := min((page-1)*per, len(items))
	end := min(start+per, len(items))
	return &trakt.UpdatesPage{Items: items[start:end], Page: page, PageCount: pages}, nil
}

func (u *Upstream) ConvertToIMDb(_ context.Context, source, id, mediaType string) (string, string, error) {
	u.ConvertCalls.Add(1)
	if err := u.takeFailure("ConvertToIMDb"); err != nil {
		return "", "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	imdbID, ok := u.mappings[source+"/"+id]
	if !ok {
		return "", "", trakt.ErrNotFound
	}
	return imdbID, mediaType, nil
}

func (u *Upstream) OnRecovered(fn func(method, path string)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.hooks = append(u.hooks, fn)
}
