package metadata

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/reelscout/reelscout/internal/metadata/mock"
	"github.com/reelscout/reelscout/internal/testutil"
	"github.com/reelscout/reelscout/internal/trakt"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, upstream *mock.Upstream) (*Service, *clock) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	clk := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(tdb.DB, upstream, FixedStaleness(7), Options{
		Jitter: func() time.Duration { return 0 },
		Now:    clk.Now,
	}, tdb.Logger)
	t.Cleanup(svc.Close)
	return svc, clk
}

func naive(year int, month time.Month, day, hour int) *trakt.Timestamp {
	return &trakt.Timestamp{Time: time.Date(year, month, day, hour, 0, 0, 0, time.UTC), Naive: true}
}

func addDandadan(u *mock.Upstream) {
	var s1, s2 []trakt.Episode
	for i := 1; i <= 12; i++ {
		s1 = append(s1, trakt.Episode{Season: 1, Number: i, Title: "Episode", FirstAired: naive(2024, 10, 3+i, 23)})
	}
	for i := 1; i <= 12; i++ {
		s2 = append(s2, trakt.Episode{Season: 2, Number: i, FirstAired: naive(2025, 7, 2+i, 23)})
	}
	s2[6].IDs.IMDb = "tt9990007"

	u.AddShow(trakt.Show{
		Title:   "Dandadan",
		Year:    2024,
		IDs:     trakt.IDs{Trakt: 1, Slug: "dandadan", IMDb: "tt30217403", TVDB: 433925},
		Airs:    trakt.Airs{Day: "Thursday", Time: "23:00", Timezone: "Asia/Tokyo"},
		Runtime: 24,
		Country: "jp",
		Genres:  []string{"anime", "action"},
		Status:  "returning series",
	}, []trakt.Season{
		{Number: 0, Episodes: []trakt.Episode{{Season: 0, Number: 1}}},
		{Number: 1, EpisodeCount: 12, Episodes: s1},
		{Number: 2, EpisodeCount: 12, Episodes: s2},
	}, []trakt.Alias{
		{Title: "Dan Da Dan", Country: "us"},
		{Title: "ダンダダン", Country: "jp"},
	})
}

func TestGetShow_CachesAfterFirstFetch(t *testing.T) {
	up := mock.NewUpstream()
	addDandadan(up)
	svc, _ := newTestService(t, up)
	ctx := context.Background()

	show, source, err := svc.GetShow(ctx, "tt30217403")
	if err != nil {
		t.Fatalf("GetShow() error = %v", err)
	}
	if show == nil {
		t.Fatal("GetShow() = nil, want show")
	}
	if source != SourceUpstream {
		t.Errorf("source = %q, want %q", source, SourceUpstream)
	}
	if show.Title != "Dandadan" {
		t.Errorf("Title = %q, want Dandadan", show.Title)
	}
	if !show.IsAnime() {
		t.Error("IsAnime() = false, want true")
	}
	// specials are excluded by default
	if got, want := show.EpisodeCounts(), map[int]int{1: 12, 2: 12}; !maps.Equal(got, want) {
		t.Errorf("EpisodeCounts() = %v, want %v", got, want)
	}
	if got := show.Aliases["us"]; !slices.Equal(got, []string{"Dan Da Dan"}) {
		t.Errorf("Aliases[us] = %v, want [Dan Da Dan]", got)
	}

	ep := show.Episode(1, 1)
	if ep == nil || ep.FirstAired == nil {
		t.Fatalf("Episode(1, 1) = %+v, want aired episode", ep)
	}
	// 23:00 in Tokyo is 14:00 UTC
	if got, want := ep.FirstAired.UTC(), time.Date(2024, 10, 4, 14, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("FirstAired = %v, want %v", got, want)
	}
	if ep.Runtime != 24 {
		t.Errorf("Runtime = %d, want show runtime 24", ep.Runtime)
	}

	again, source, err := svc.GetShow(ctx, "tt30217403")
	if err != nil {
		t.Fatalf("GetShow() second call error = %v", err)
	}
	if source != SourceCache {
		t.Errorf("second source = %q, want %q", source, SourceCache)
	}
	if !maps.Equal(again.EpisodeCounts(), show.EpisodeCounts()) {
		t.Errorf("cached EpisodeCounts() = %v, want %v", again.EpisodeCounts(), show.EpisodeCounts())
	}
	wantCalls(t, up.ShowCalls.Load(), 1)
}

func wantCalls(t *testing.T, got, want int32) {
	t.Helper()
	if got != want {
		t.Errorf("upstream calls = %d, want %d", got, want)
	}
}

func TestGetShow_ConcurrentCallersShareOneFetch(t *testing.T) {
	up := mock.NewUpstream()
	addDandadan(up)
	up.Delay = 50 * time.Millisecond
	svc, _ := newTestService(t, up)

	var wg sync.WaitGroup
	results := make([]*Show, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _, errs[i] = svc.GetShow(context.Background(), "tt30217403")
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d error = %v", i, err)
		}
	}
	wantCalls(t, up.ShowCalls.Load(), 1)
	if results[0].Title != results[1].Title {
		t.Errorf("titles differ: %q vs %q", results[0].Title, results[1].Title)
	}
	if !maps.Equal(results[0].EpisodeCounts(), results[1].EpisodeCounts()) {
		t.Errorf("episode counts differ: %v vs %v", results[0].EpisodeCounts(), results[1].EpisodeCounts())
	}
}

func TestGetShow_StaleRefreshAndFallback(t *testing.T) {
	up := mock.NewUpstream()
	addDandadan(up)
	svc, clk := newTestService(t, up)
	ctx := context.Background()

	if _, _, err := svc.GetShow(ctx, "tt30217403"); err != nil {
		t.Fatalf("GetShow() error = %v", err)
	}

	clk.Advance(8 * 24 * time.Hour)
	up.FailNext("GetShow", errors.New("connection reset"))

	show, source, err := svc.GetShow(ctx, "tt30217403")
	if err != nil {
		t.Fatalf("GetShow() with failing upstream error = %v", err)
	}
	if show == nil || show.Title != "Dandadan" {
		t.Fatalf("stale show = %+v, want Dandadan", show)
	}
	if source != SourceStale {
		t.Errorf("source = %q, want %q", source, SourceStale)
	}

	show, source, err = svc.GetShow(ctx, "tt30217403")
	if err != nil {
		t.Fatalf("GetShow() after recovery error = %v", err)
	}
	if source != SourceUpstream {
		t.Errorf("source = %q, want %q", source, SourceUpstream)
	}
	if !show.UpdatedAt.Equal(clk.Now()) {
		t.Errorf("UpdatedAt = %v, want %v", show.UpdatedAt, clk.Now())
	}
	wantCalls(t, up.ShowCalls.Load(), 3)
}

func TestGetMovie_UnknownIDReturnsNil(t *testing.T) {
	up := mock.NewUpstream()
	svc, _ := newTestService(t, up)

	movie, _, err := svc.GetMovie(context.Background(), "tt0000001")
	if err != nil {
		t.Fatalf("GetMovie() error = %v", err)
	}
	if movie != nil {
		t.Errorf("GetMovie() = %+v, want nil", movie)
	}
}

func TestGetMovie_ReleaseDatesAndAliases(t *testing.T) {
	up := mock.NewUpstream()
	up.AddMovie(trakt.Movie{
		Title: "Oppenheimer",
		Year:  2023,
		IDs:   trakt.IDs{Slug: "oppenheimer-2023", IMDb: "tt15398776"},
	}, []trakt.Release{
		{Country: "us", ReleaseDate: "2023-07-21", ReleaseType: "theatrical"},
		{Country: "us", ReleaseDate: "2023-11-21", ReleaseType: "digital"},
		{Country: "gb", ReleaseDate: "2023-07-21", ReleaseType: "theatrical"},
	}, []trakt.Alias{{Title: "Оппенгеймер", Country: "ru"}})
	svc, _ := newTestService(t, up)
	ctx := context.Background()

	dates, err := svc.GetReleaseDates(ctx, "tt15398776")
	if err != nil {
		t.Fatalf("GetReleaseDates() error = %v", err)
	}
	if len(dates["us"]) != 2 {
		t.Errorf("us release dates = %v, want 2 entries", dates["us"])
	}
	if len(dates["gb"]) == 0 {
		t.Fatal("no gb release dates")
	}
	if want := (ReleaseDate{Date: "2023-07-21", Type: "theatrical"}); dates["gb"][0] != want {
		t.Errorf("gb[0] = %+v, want %+v", dates["gb"][0], want)
	}

	aliases, err := svc.GetMovieAliases(ctx, "tt15398776")
	if err != nil {
		t.Fatalf("GetMovieAliases() error = %v", err)
	}
	if got := aliases.Titles(); !slices.Equal(got, []string{"Оппенгеймер"}) {
		t.Errorf("Titles() = %v, want [Оппенгеймер]", got)
	}
	if got := up.MovieCalls.Load(); got != 1 {
		t.Errorf("movie calls = %d, want 1", got)
	}

	if _, _, err := svc.GetShow(ctx, "tt15398776"); !errors.Is(err, ErrWrongType) {
		t.Errorf("GetShow() on a movie error = %v, want ErrWrongType", err)
	}
}

func TestAliases_NegativeEntriesSuppressRetries(t *testing.T) {
	up := mock.NewUpstream()
	svc, _ := newTestService(t, up)
	ctx := context.Background()

	for range 3 {
		aliases, err := svc.GetShowAliases(ctx, "tt404")
		if err != nil {
			t.Fatalf("GetShowAliases() error = %v", err)
		}
		if aliases != nil {
			t.Errorf("GetShowAliases() = %v, want nil", aliases)
		}
	}
	wantCalls(t, up.ShowCalls.Load(), 1)
}

func TestGetShow_DeferredServerErrorRefreshesOnRecovery(t *testing.T) {
	up := mock.NewUpstream()
	addDandadan(up)
	svc, _ := newTestService(t, up)
	ctx := context.Background()

	path := "/shows/tt30217403?extended=full"
	up.FailNext("GetShow", &trakt.DeferredError{Method: "GET", Path: path})

	show, _, err := svc.GetShow(ctx, "tt30217403")
	if !errors.Is(err, trakt.ErrDeferred) {
		t.Fatalf("GetShow() error = %v, want ErrDeferred", err)
	}
	if show != nil {
		t.Errorf("GetShow() = %+v, want nil on deferred error", show)
	}

	up.Recover("GET", path)
	svc.WaitBackground()

	show, source, err := svc.GetShow(ctx, "tt30217403")
	if err != nil {
		t.Fatalf("GetShow() after recovery error = %v", err)
	}
	if show == nil {
		t.Fatal("GetShow() after recovery = nil")
	}
	if source != SourceCache {
		t.Errorf("source = %q, want %q", source, SourceCache)
	}
	wantCalls(t, up.ShowCalls.Load(), 2)
}

func TestForceRefreshAndRemoveMetadata(t *testing.T) {
	up := mock.NewUpstream()
	addDandadan(up)
	svc, _ := newTestService(t, up)
	ctx := context.Background()

	if _, err := svc.ForceRefresh(ctx, "tt30217403"); !errors.Is(err, ErrNotCached) {
		t.Fatalf("ForceRefresh() uncached error = %v, want ErrNotCached", err)
	}

	if _, _, err := svc.GetShow(ctx, "tt30217403"); err != nil {
		t.Fatalf("GetShow() error = %v", err)
	}

	source, err := svc.ForceRefresh(ctx, "tt30217403")
	if err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}
	if source != SourceUpstream {
		t.Errorf("ForceRefresh() source = %q, want %q", source, SourceUpstream)
	}
	wantCalls(t, up.ShowCalls.Load(), 2)

	removed, err := svc.RemoveMetadata(ctx, "tt30217403")
	if err != nil {
		t.Fatalf("RemoveMetadata() error = %v", err)
	}
	// aliases and airs records
	if removed != 2 {
		t.Errorf("RemoveMetadata() = %d, want 2", removed)
	}

	show, source, err := svc.GetShow(ctx, "tt30217403")
	if err != nil {
		t.Fatalf("GetShow() after removal error = %v", err)
	}
	// incomplete items are refetched
	if source != SourceUpstream {
		t.Errorf("source = %q, want %q", source, SourceUpstream)
	}
	if len(show.Seasons) != 2 {
		t.Errorf("len(Seasons) = %d, want 2", len(show.Seasons))
	}
	wantCalls(t, up.ShowCalls.Load(), 3)
}

func TestGetEpisodeByExternalID(t *testing.T) {
	up := mock.NewUpstream()
	addDandadan(up)
	up.AddSearch("imdb", "tt9990007", trakt.SearchResult{
		Type: "episode",
		Show: &trakt.Show{Title: "Dandadan", IDs: trakt.IDs{IMDb: "tt30217403"}},
	})
	svc, _ := newTestService(t, up)

	found, err := svc.GetEpisodeByExternalID(context.Background(), "tt9990007")
	if err != nil {
		t.Fatalf("GetEpisodeByExternalID() error = %v", err)
	}
	if found == nil {
		t.Fatal("GetEpisodeByExternalID() = nil, want episode")
	}
	if found.ShowIMDbID != "tt30217403" {
		t.Errorf("ShowIMDbID = %q, want tt30217403", found.ShowIMDbID)
	}
	if found.Episode.Season != 2 || found.Episode.Number != 7 {
		t.Errorf("episode = S%dE%d, want S2E7", found.Episode.Season, found.Episode.Number)
	}

	missing, err := svc.GetEpisodeByExternalID(context.Background(), "tt0000000")
	if err != nil {
		t.Fatalf("GetEpisodeByExternalID() unknown error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetEpisodeByExternalID() unknown = %+v, want nil", missing)
	}
}

func TestMapTMDBToIMDb_RecordsMapping(t *testing.T) {
	up := mock.NewUpstream()
	up.AddMapping("tmdb", "872585", "tt15398776")
	svc, _ := newTestService(t, up)
	ctx := context.Background()

	for range 2 {
		imdbID, err := svc.MapTMDBToIMDb(ctx, "872585", "movie")
		if err != nil {
			t.Fatalf("MapTMDBToIMDb() error = %v", err)
		}
		if imdbID != "tt15398776" {
			t.Errorf("MapTMDBToIMDb() = %q, want tt15398776", imdbID)
		}
	}
	if got := up.ConvertCalls.Load(); got != 1 {
		t.Errorf("convert calls = %d, want 1", got)
	}

	imdbID, err := svc.MapTVDBToIMDb(ctx, "1")
	if err != nil {
		t.Fatalf("MapTVDBToIMDb() error = %v", err)
	}
	if imdbID != "" {
		t.Errorf("MapTVDBToIMDb() = %q, want empty", imdbID)
	}
}

func TestBulkGetShowAirs(t *testing.T) {
	up := mock.NewUpstream()
	addDandadan(up)
	svc, _ := newTestService(t, up)

	airs, err := svc.BulkGetShowAirs(context.Background(), []string{"tt30217403", "tt404", "tt30217403"})
	if err != nil {
		t.Fatalf("BulkGetShowAirs() error = %v", err)
	}
	if len(airs) != 1 {
		t.Fatalf("len(airs) = %d, want 1", len(airs))
	}
	got := airs["tt30217403"]
	if got.Timezone != "Asia/Tokyo" || got.Day != "Thursday" {
		t.Errorf("airs = %+v, want Thursday in Asia/Tokyo", got)
	}
}

func TestRefreshUpdatedSince_OnlyCachedItems(t *testing.T) {
	up := mock.NewUpstream()
	addDandadan(up)
	up.AddUpdates(trakt.KindShows, 1,
		trakt.UpdatedItem{Show: &trakt.Show{IDs: trakt.IDs{IMDb: "tt30217403"}}},
		trakt.UpdatedItem{Show: &trakt.Show{IDs: trakt.IDs{IMDb: "tt0903747"}}},
	)
	svc, _ := newTestService(t, up)
	ctx := context.Background()

	if _, _, err := svc.GetShow(ctx, "tt30217403"); err != nil {
		t.Fatalf("GetShow() error = %v", err)
	}

	n, err := svc.RefreshUpdatedSince(ctx, MediaShow, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RefreshUpdatedSince() error = %v", err)
	}
	if n != 1 {
		t.Errorf("RefreshUpdatedSince() = %d, want 1", n)
	}
	wantCalls(t, up.ShowCalls.Load(), 2)
}

func TestStalenessPolicy(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		age     time.Duration
		jitter  time.Duration
		want    bool
		zeroAge bool
	}{
		{name: "fresh", age: 24 * time.Hour, want: false},
		{name: "past threshold", age: 8 * 24 * time.Hour, want: true},
		{name: "jitter extends", age: 8 * 24 * time.Hour, jitter: 2 * 24 * time.Hour, want: false},
		{name: "jitter shortens", age: 3 * 24 * time.Hour, jitter: -5 * 24 * time.Hour, want: true},
		{name: "never updated", zeroAge: true, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := stalenessPolicy{
				source: FixedStaleness(7),
				jitter: func() time.Duration { return tt.jitter },
				now:    func() time.Time { return now },
			}
			updated := now.Add(-tt.age)
			if tt.zeroAge {
				updated = time.Time{}
			}
			if got := p.isStale(updated); got != tt.want {
				t.Errorf("isStale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultJitterBounds(t *testing.T) {
	limit := 5*24*time.Hour + 12*time.Hour
	for range 200 {
		if j := DefaultJitter(); j > limit || j < -limit {
			t.Fatalf("DefaultJitter() = %v, want within ±%v", j, limit)
		}
	}
}

func TestParseDBTime_NaiveIsUTC(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-01-02 03:04:05", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2025-01-02T03:04:05+02:00", time.Date(2025, 1, 2, 1, 4, 5, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseDBTime(tt.in)
		if err != nil {
			t.Fatalf("parseDBTime(%q) error = %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDBTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
