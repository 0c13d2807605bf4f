package torrentio

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelscout/reelscout/internal/indexer/types"
)

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func newTestScraper(url string) *Scraper {
	return New(types.Instance{
		Name:    "Torrentio",
		Type:    types.BackendTorrentio,
		Enabled: true,
		URL:     url,
		Options: map[string]string{"filter": "none"},
	}, time.Second, zerolog.Nop())
}

func TestScraper_Movie(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stream/movie/tt15398776.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"streams":[
			{"name":"Torrentio\n4k","title":"Oppenheimer.2023.2160p.UHD.BluRay.HDR.x265-GROUP\n👤 120 💾 58.2 GB ⚙️ ThePirateBay","infoHash":"` + hashA + `"},
			{"name":"Torrentio\n1080p","title":"Oppenheimer.2023.1080p.WEB-DL.x264\n👤 40 💾 12 GB ⚙️ YTS","infoHash":"` + hashB + `","behaviorHints":{"bingeGroup":"torrentio|1080p","filename":"Oppenheimer.2023.1080p.mkv","videoSize":12884901888}},
			{"name":"broken","title":"No hash","infoHash":""}
		]}`))
	}))
	defer server.Close()

	s := newTestScraper(server.URL)
	results, err := s.Scrape(context.Background(), types.Query{
		IMDbID: "tt15398776", Title: "Oppenheimer", Year: 2023, ContentType: types.ContentMovie,
	})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (streams without a hash are dropped)", len(results))
	}

	first := results[0]
	if first.Title != "Oppenheimer.2023.2160p.UHD.BluRay.HDR.x265-GROUP" {
		t.Errorf("Title = %q, want the first line of the stream title", first.Title)
	}
	if first.InfoHash != hashA {
		t.Errorf("InfoHash = %q, want %q", first.InfoHash, hashA)
	}
	if math.Abs(first.SizeGB-58.2) > 0.001 {
		t.Errorf("SizeGB = %v, want 58.2", first.SizeGB)
	}
	if first.SeederCount() != 120 {
		t.Errorf("SeederCount() = %d, want 120", first.SeederCount())
	}
	if first.SourceSite != "ThePirateBay" {
		t.Errorf("SourceSite = %q, want ThePirateBay", first.SourceSite)
	}
	if !first.PerItemSize {
		t.Error("PerItemSize = false, want true")
	}
	if first.SourceLabel != "Torrentio" {
		t.Errorf("SourceLabel = %q, want Torrentio", first.SourceLabel)
	}

	second := results[1]
	if math.Abs(second.SizeGB-12.0) > 0.001 {
		t.Errorf("SizeGB = %v, want 12", second.SizeGB)
	}
	if second.BingeGroup != "torrentio|1080p" {
		t.Errorf("BingeGroup = %q", second.BingeGroup)
	}
	if second.Filename != "Oppenheimer.2023.1080p.mkv" {
		t.Errorf("Filename = %q", second.Filename)
	}
}

func TestScraper_EpisodeAliasesUnion(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/stream/series/tt1:2:3.json":
			_, _ = w.Write([]byte(`{"streams":[{"title":"Show.S02E03.1080p","infoHash":"` + hashA + `"}]}`))
		case "/stream/series/tt2:2:3.json":
			_, _ = w.Write([]byte(`{"streams":[
				{"title":"Show.S02E03.1080p.dup","infoHash":"` + hashA + `"},
				{"title":"Show.S02E03.720p","infoHash":"` + hashB + `"}]}`))
		}
	}))
	defer server.Close()

	s := newTestScraper(server.URL)
	results, err := s.Scrape(context.Background(), types.Query{
		IMDbID: "tt1", IMDbAliases: []string{"tt2"}, ContentType: types.ContentEpisode, Season: 2, Episode: 3,
	})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if want := []string{"/stream/series/tt1:2:3.json", "/stream/series/tt2:2:3.json"}; !slices.Equal(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 after the union", len(results))
	}
	if results[0].Title != "Show.S02E03.1080p" {
		t.Errorf("results[0].Title = %q, want the first-seen copy", results[0].Title)
	}
	if results[1].InfoHash != hashB {
		t.Errorf("results[1].InfoHash = %q, want %q", results[1].InfoHash, hashB)
	}
}

func TestScraper_ServerErrorReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := newTestScraper(server.URL)
	results, err := s.Scrape(context.Background(), types.Query{IMDbID: "tt1", ContentType: types.ContentMovie})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want none", len(results))
	}
}

func TestStreamPath_DefaultFilter(t *testing.T) {
	s := New(types.Instance{Name: "t", URL: "http://x"}, time.Second, zerolog.Nop())
	path := s.streamPath(types.Query{ContentType: types.ContentMovie}, "tt1")
	if want := "/" + defaultFilter + "/stream/movie/tt1.json"; path != want {
		t.Errorf("streamPath() = %q, want %q", path, want)
	}
}
