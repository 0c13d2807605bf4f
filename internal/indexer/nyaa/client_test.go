package nyaa

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

const listing = `<html><body>
<table class="table torrent-list">
<thead><tr><th>Category</th><th>Name</th><th>Link</th><th>Size</th><th>Date</th><th>Seeders</th><th>Leechers</th></tr></thead>
<tbody>
<tr class="success">
  <td><a href="/?c=1_2">Anime</a></td>
  <td colspan="2">
    <a href="/view/1#comments" class="comments">3</a>
    <a href="/view/1" title="[SubsPlease] Dandadan - 20 (1080p) [ABCD1234].mkv">[SubsPlease] Dandadan - 20 (1080p) [ABCD1234].mkv</a>
  </td>
  <td class="text-center"><a href="/download/1.torrent">t</a><a href="magnet:?xt=urn:btih:dddddddddddddddddddddddddddddddddddddddd&dn=x">m</a></td>
  <td class="text-center">1.4 GiB</td>
  <td class="text-center">2024-11-21 17:02</td>
  <td class="text-center">812</td>
  <td class="text-center">12</td>
</tr>
<tr>
  <td><a href="/?c=1_2">Anime</a></td>
  <td colspan="2"><a href="/view/2" title="No magnet row">No magnet row</a></td>
  <td class="text-center"><a href="/download/2.torrent">t</a></td>
  <td class="text-center">500 MiB</td>
  <td class="text-center">2024-11-21 17:02</td>
  <td class="text-center">5</td>
  <td class="text-center">1</td>
</tr>
</tbody>
</table>
</body></html>`

func TestScraper_Scrape(t *testing.T) {
	var terms []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		terms = append(terms, r.URL.Query().Get("q"))
		if c := r.URL.Query().Get("c"); c != "1_2" {
			t.Errorf("category = %q, want 1_2", c)
		}
		if s := r.URL.Query().Get("s"); s != "seeders" {
			t.Errorf("sort = %q, want seeders", s)
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listing))
	}))
	defer server.Close()

	s := New(types.Instance{Name: "Nyaa", Type: types.BackendNyaa, Enabled: true, URL: server.URL}, time.Second, zerolog.Nop())
	results, err := s.Scrape(context.Background(), types.Query{
		Title: "Dandadan", ContentType: types.ContentEpisode, Season: 2, Episode: 7, AbsoluteEpisode: 20,
	})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}

	if want := []string{"Dandadan 20", "Dandadan 07"}; !slices.Equal(terms, want) {
		t.Errorf("search terms = %v, want %v", terms, want)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (rows without a magnet are skipped)", len(results))
	}
	r := results[0]
	if r.Title != "[SubsPlease] Dandadan - 20 (1080p) [ABCD1234].mkv" {
		t.Errorf("Title = %q", r.Title)
	}
	if r.InfoHash != "dddddddddddddddddddddddddddddddddddddddd" {
		t.Errorf("InfoHash = %q", r.InfoHash)
	}
	if math.Abs(r.SizeGB-1.4) > 0.0001 {
		t.Errorf("SizeGB = %v, want 1.4", r.SizeGB)
	}
	if r.SeederCount() != 812 {
		t.Errorf("SeederCount() = %d, want 812", r.SeederCount())
	}
	if r.SourceLabel != "Nyaa" {
		t.Errorf("SourceLabel = %q, want Nyaa", r.SourceLabel)
	}
}

func TestSearchTerms(t *testing.T) {
	tests := []struct {
		name  string
		query types.Query
		want  []string
	}{
		{"movie", types.Query{Title: "Your Name", ContentType: types.ContentMovie}, []string{"Your Name"}},
		{"episode", types.Query{Title: "Frieren", ContentType: types.ContentEpisode, Season: 1, Episode: 3}, []string{"Frieren 03"}},
		{"multi", types.Query{Title: "Frieren", ContentType: types.ContentEpisode, Season: 1, Episode: 3, Multi: true}, []string{"Frieren 03", "Frieren"}},
		{"no title", types.Query{IMDbID: "tt1", ContentType: types.ContentMovie}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SearchTerms(tt.query); !slices.Equal(got, tt.want) {
				t.Errorf("SearchTerms() = %v, want %v", got, tt.want)
			}
		})
	}
}
