package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/reelscout/reelscout/internal/config"
	"github.com/reelscout/reelscout/internal/indexer/types"
	"github.com/reelscout/reelscout/internal/metadata/mock"
	"github.com/reelscout/reelscout/internal/profile"
	"github.com/reelscout/reelscout/internal/state"
	"github.com/reelscout/reelscout/internal/testutil"
	"github.com/reelscout/reelscout/internal/trakt"
)

type stubScraper struct {
	inst    types.Instance
	results []types.RawResult
}

func (s *stubScraper) Instance() types.Instance { return s.inst }

func (s *stubScraper) Scrape(ctx context.Context, _ types.Query) ([]types.RawResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]types.RawResult(nil), s.results...), nil
}

func stub(name string, releases map[string]float64) *stubScraper {
	s := &stubScraper{inst: types.Instance{Name: name, Type: types.BackendTorrentio, Enabled: true}}
	i := 0
	for title, size := range releases {
		s.results = append(s.results, types.RawResult{
			Title:       title,
			SizeGB:      size,
			InfoHash:    fmt.Sprintf("%040x", i+1),
			SourceLabel: name,
		})
		i++
	}
	return s
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		DBContent: filepath.Join(dir, "db"),
		Config:    filepath.Join(dir, "config"),
		Logs:      filepath.Join(dir, "logs"),
	}
	cfg.Scraping.ScraperTimeout = 2 * time.Second
	cfg.Scraping.BatchTimeout = 5 * time.Second
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config, up *mock.Upstream, scrapers ...*stubScraper) *Engine {
	t.Helper()
	return newEngineWith(t, cfg, up, nil, scrapers...)
}

func newEngineWith(t *testing.T, cfg *config.Config, up *mock.Upstream, extra []Option, scrapers ...*stubScraper) *Engine {
	t.Helper()
	opts := []Option{
		WithUpstream(up),
		WithStalenessJitter(func() time.Duration { return 0 }),
	}
	for _, s := range scrapers {
		opts = append(opts, WithScrapers(s))
	}
	opts = append(opts, extra...)
	e, err := New(cfg, testutil.NewTestLogger(t), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func addMatrix(up *mock.Upstream) {
	up.AddMovie(trakt.Movie{
		Title:   "The Matrix",
		Year:    1999,
		IDs:     trakt.IDs{Slug: "the-matrix-1999", IMDb: "tt0133093", TMDB: 603},
		Runtime: 136,
		Country: "us",
		Genres:  []string{"action", "science-fiction"},
	}, nil, []trakt.Alias{{Title: "Matrix", Country: "fr"}})
}

func addSeverance(up *mock.Upstream) {
	var s2 []trakt.Episode
	for i := 1; i <= 10; i++ {
		// Weekly from 2025-01-17 02:00 UTC.
		at := time.Date(2025, time.January, 17+7*(i-1), 2, 0, 0, 0, time.UTC)
		s2 = append(s2, trakt.Episode{Season: 2, Number: i, Runtime: 50, FirstAired: &trakt.Timestamp{Time: at}})
	}
	up.AddShow(trakt.Show{
		Title:   "Severance",
		Year:    2022,
		IDs:     trakt.IDs{Slug: "severance", IMDb: "tt11280740", TVDB: 371980},
		Airs:    trakt.Airs{Timezone: "America/New_York"},
		Runtime: 55,
		Country: "us",
		Genres:  []string{"drama", "mystery"},
	}, []trakt.Season{
		{Number: 1, EpisodeCount: 9},
		{Number: 2, EpisodeCount: 10, Episodes: s2},
	}, nil)
}

func titlesOf(resp *Response) []string {
	out := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.Title
	}
	return out
}

func TestScrape_MovieFromMetadata(t *testing.T) {
	up := mock.NewUpstream()
	addMatrix(up)
	e := newEngine(t, testConfig(t), up, stub("stub", map[string]float64{
		"The.Matrix.1999.1080p.BluRay.x264-GRP":    10,
		"The.Matrix.1999.720p.WEB-DL.x264-GRP":     4,
		"The.Matrix.1999.2160p.UHD.BluRay.x265-GR": 40,
		"The.Matrix.Reloaded.2003.1080p.BluRay":    12,
	}))

	resp, err := e.Scrape(context.Background(), types.Query{IMDbID: "tt0133093", ContentType: types.ContentMovie})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}

	if resp.ScrapeID == "" {
		t.Error("ScrapeID is empty")
	}
	if resp.Version != config.DefaultVersion {
		t.Errorf("Version = %q, want %q", resp.Version, config.DefaultVersion)
	}
	q := resp.Query
	if q.Title != "The Matrix" || q.Year != 1999 || q.RuntimeMinutes != 136 {
		t.Errorf("query = %q (%d, %d min), want The Matrix (1999, 136 min)", q.Title, q.Year, q.RuntimeMinutes)
	}
	if !slices.Contains(q.Aliases, "Matrix") {
		t.Errorf("Aliases = %v, want Matrix", q.Aliases)
	}

	want := []string{
		"The.Matrix.1999.1080p.BluRay.x264-GRP",
		"The.Matrix.1999.720p.WEB-DL.x264-GRP",
	}
	if got := titlesOf(resp); !slices.Equal(got, want) {
		t.Fatalf("results = %v, want %v", got, want)
	}
	if resp.Results[0].Score <= resp.Results[1].Score {
		t.Errorf("scores %v, %v are not descending", resp.Results[0].Score, resp.Results[1].Score)
	}

	if len(resp.Rejected) != 2 {
		t.Fatalf("rejected %d results, want 2", len(resp.Rejected))
	}
	for _, r := range resp.Rejected {
		if r.FilterReason == "" {
			t.Errorf("%s: empty filter reason", r.Title)
		}
	}

	if len(resp.Summary) != 1 {
		t.Fatalf("summary has %d entries, want 1", len(resp.Summary))
	}
	if s := resp.Summary[0]; s.Instance != "stub" || s.Count != 4 || s.Label != "" {
		t.Errorf("summary = %+v, want stub with 4 results and no label", s)
	}
}

func TestScrape_EpisodeEnrichment(t *testing.T) {
	up := mock.NewUpstream()
	addSeverance(up)
	e := newEngine(t, testConfig(t), up, stub("stub", map[string]float64{
		"Severance.S02E03.1080p.WEB.H264-GRP": 2.5,
		"Severance.S02E04.1080p.WEB.H264-GRP": 2.5,
	}))

	resp, err := e.Scrape(context.Background(), types.Query{
		IMDbID:      "tt11280740",
		ContentType: types.ContentEpisode,
		Season:      2,
		Episode:     3,
	})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}

	q := resp.Query
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Title", q.Title, "Severance"},
		{"EpisodeCounts[1]", q.EpisodeCounts[1], 9},
		{"EpisodeCounts[2]", q.EpisodeCounts[2], 10},
		{"SeasonYear", q.SeasonYear, 2025},
		{"RuntimeMinutes", q.RuntimeMinutes, 50},
		{"AbsoluteEpisode", q.AbsoluteEpisode, 12},
		{"Country", q.Country, "US"},
		// 02:00 UTC is the previous evening in New York.
		{"AirDate", q.AirDate, "2025-01-30"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if got, want := titlesOf(resp), []string{"Severance.S02E03.1080p.WEB.H264-GRP"}; !slices.Equal(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
	if len(resp.Rejected) != 1 {
		t.Fatalf("rejected %d results, want 1", len(resp.Rejected))
	}
	if r := resp.Rejected[0].FilterReason; !strings.Contains(r, "do not include 3") {
		t.Errorf("reason = %q, want it to mention episode 3", r)
	}
}

// Pack wantedness is looked up under the default version when the caller
// names none.
func TestScrape_PackWantednessDefaultVersion(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	for ep := 1; ep <= 10; ep++ {
		key := state.Key{IMDbID: "tt11280740", Season: 2, Episode: ep, Version: config.DefaultVersion}
		if err := store.Set(ctx, key, state.Wanted); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	up := mock.NewUpstream()
	addSeverance(up)
	cfg := testConfig(t)
	cfg.Scraping.PackWantedness = true
	e := newEngineWith(t, cfg, up, []Option{WithStates(store)}, stub("stub", map[string]float64{
		"Severance.S02.1080p.WEB-DL.x264-GRP": 25,
	}))

	resp, err := e.Scrape(ctx, types.Query{
		IMDbID:      "tt11280740",
		ContentType: types.ContentEpisode,
		Season:      2,
		Multi:       true,
	})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if resp.Query.Version != config.DefaultVersion {
		t.Errorf("Query.Version = %q, want %q", resp.Query.Version, config.DefaultVersion)
	}
	if got, want := titlesOf(resp), []string{"Severance.S02.1080p.WEB-DL.x264-GRP"}; !slices.Equal(got, want) {
		for _, r := range resp.Rejected {
			t.Logf("rejected %s: %s", r.Title, r.FilterReason)
		}
		t.Fatalf("results = %v, want %v", got, want)
	}

	// One collected episode still keeps the pack out.
	if err := store.Set(ctx, state.Key{IMDbID: "tt11280740", Season: 2, Episode: 4, Version: config.DefaultVersion}, state.Collected); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	resp, err = e.Scrape(ctx, types.Query{IMDbID: "tt11280740", ContentType: types.ContentEpisode, Season: 2, Multi: true})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("results = %v, want none", titlesOf(resp))
	}
	if len(resp.Rejected) != 1 || !strings.Contains(resp.Rejected[0].FilterReason, "S02E04") {
		t.Errorf("rejected = %+v, want the pack rejected for S02E04", resp.Rejected)
	}
}

func TestScrape_SingleVersionResolvesByName(t *testing.T) {
	up := mock.NewUpstream()
	addMatrix(up)
	e := newEngine(t, testConfig(t), up, stub("stub", map[string]float64{
		"The.Matrix.1999.1080p.BluRay.x264-GRP": 10,
	}))

	settings := e.Settings().Get()
	settings.Versions = map[string]profile.VersionProfile{"hd": profile.Default()}
	if err := e.Settings().Save(settings); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	resp, err := e.Scrape(context.Background(), types.Query{IMDbID: "tt0133093", ContentType: types.ContentMovie})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if resp.Version != "hd" || resp.Query.Version != "hd" {
		t.Errorf("Version = %q, Query.Version = %q, want hd", resp.Version, resp.Query.Version)
	}
}

func TestScrape_CallerTitleWithoutMetadata(t *testing.T) {
	e := newEngine(t, testConfig(t), mock.NewUpstream(), stub("stub", map[string]float64{
		"Obscure.Film.2019.1080p.WEB-DL": 3,
	}))

	resp, err := e.Scrape(context.Background(), types.Query{
		IMDbID:      "tt9999999",
		Title:       "Obscure Film",
		Year:        2019,
		ContentType: types.ContentMovie,
	})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if got, want := titlesOf(resp), []string{"Obscure.Film.2019.1080p.WEB-DL"}; !slices.Equal(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
}

func TestScrape_Errors(t *testing.T) {
	e := newEngine(t, testConfig(t), mock.NewUpstream())
	ctx := context.Background()

	tests := []struct {
		name  string
		query types.Query
		want  error
	}{
		{"content type", types.Query{IMDbID: "tt0000001", ContentType: "trailer"}, types.ErrInvalidContentType},
		{"version", types.Query{IMDbID: "tt0000001", Title: "X", ContentType: types.ContentMovie, Version: "missing"}, config.ErrUnknownVersion},
		{"no title", types.Query{IMDbID: "tt0000001", ContentType: types.ContentMovie}, ErrNoTitle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Scrape(ctx, tt.query); !errors.Is(err, tt.want) {
				t.Errorf("Scrape() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestScrape_ConfiguredAliasesJoinQuery(t *testing.T) {
	up := mock.NewUpstream()
	addMatrix(up)
	e := newEngine(t, testConfig(t), up)

	settings := e.Settings().Get()
	settings.Aliases = map[string][]string{"tt0133093": {"Matrice"}}
	if err := e.Settings().Save(settings); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	q := e.Enrich(context.Background(), types.Query{IMDbID: "tt0133093", ContentType: types.ContentMovie})
	if q.Title != "The Matrix" {
		t.Errorf("Title = %q, want The Matrix", q.Title)
	}
	for _, alias := range []string{"Matrice", "Matrix"} {
		if !slices.Contains(q.Aliases, alias) {
			t.Errorf("Aliases = %v, want %q", q.Aliases, alias)
		}
	}
}

func TestNew_FailsFast(t *testing.T) {
	logger := testutil.NewTestLogger(t)

	cfg := testConfig(t)
	cfg.Scraping.UltimateSortOrder = "by mood"
	if _, err := New(cfg, logger, WithUpstream(mock.NewUpstream())); err == nil {
		t.Error("New() accepted an unknown sort order")
	}

	cfg = testConfig(t)
	cfg.Paths.DBContent = ""
	if _, err := New(cfg, logger, WithUpstream(mock.NewUpstream())); !errors.Is(err, config.ErrMissingBasePath) {
		t.Errorf("New() error = %v, want %v", err, config.ErrMissingBasePath)
	}

	cfg = testConfig(t)
	cfg.Indexers = []types.Instance{{Name: "x", Type: "carrier-pigeon", Enabled: true}}
	if _, err := New(cfg, logger, WithUpstream(mock.NewUpstream())); err == nil {
		t.Error("New() accepted an unknown indexer type")
	}
}

func TestRefreshUpdated(t *testing.T) {
	up := mock.NewUpstream()
	addMatrix(up)
	e := newEngine(t, testConfig(t), up)
	ctx := context.Background()

	if _, _, err := e.Movie(ctx, "tt0133093"); err != nil {
		t.Fatalf("Movie() error = %v", err)
	}
	up.AddUpdates(trakt.KindMovies, 100, trakt.UpdatedItem{Movie: &trakt.Movie{IDs: trakt.IDs{IMDb: "tt0133093"}}})

	n, err := e.RefreshUpdated(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("RefreshUpdated() error = %v", err)
	}
	if n != 1 {
		t.Errorf("refreshed %d items, want 1", n)
	}
	if calls := up.MovieCalls.Load(); calls != 2 {
		t.Errorf("upstream movie calls = %d, want 2", calls)
	}
}
