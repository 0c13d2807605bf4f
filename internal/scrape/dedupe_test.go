package scrape

import (
	"maps"
	"testing"

	"github.com/reelscout/reelscout/internal/indexer/types"
)

const hashA = "0123456789abcdef0123456789abcdef01234567"

func seeders(n int) *int { return &n }

func TestDedupeKey(t *testing.T) {
	tests := []struct {
		name string
		a, b types.RawResult
		same bool
	}{
		{
			name: "magnets differing only in trackers",
			a:    types.RawResult{Magnet: "magnet:?xt=urn:btih:" + hashA + "&tr=udp://a"},
			b:    types.RawResult{Magnet: "magnet:?xt=urn:btih:" + hashA + "&dn=x&tr=udp://b"},
			same: true,
		},
		{
			name: "magnet and bare hash",
			a:    types.RawResult{Magnet: "magnet:?xt=urn:btih:" + hashA},
			b:    types.RawResult{InfoHash: "0123456789ABCDEF0123456789ABCDEF01234567"},
			same: true,
		},
		{
			name: "title and size",
			a:    types.RawResult{Title: "Movie.2020.1080p", SizeGB: 4.001},
			b:    types.RawResult{Title: "movie.2020.1080P ", SizeGB: 4.004},
			same: true,
		},
		{
			name: "title with different size",
			a:    types.RawResult{Title: "Movie.2020.1080p", SizeGB: 4.0},
			b:    types.RawResult{Title: "Movie.2020.1080p", SizeGB: 4.2},
			same: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DedupeKey(tt.a) == DedupeKey(tt.b); got != tt.same {
				t.Errorf("keys %q and %q: same = %v, want %v", DedupeKey(tt.a), DedupeKey(tt.b), got, tt.same)
			}
		})
	}
}

func TestDedupe_PrefersRicherThenSeeded(t *testing.T) {
	poor := types.RawResult{Title: "A", InfoHash: hashA, SourceLabel: "zilean"}
	rich := types.RawResult{Title: "A", InfoHash: hashA, Seeders: seeders(3), SizeGB: 2, SourceLabel: "torrentio"}
	richer := types.RawResult{Title: "A", InfoHash: hashA, Seeders: seeders(9), SizeGB: 2, SourceLabel: "jackett"}
	other := types.RawResult{Title: "B", SizeGB: 1}

	out := Dedupe([]types.RawResult{poor, other, rich, richer})
	if len(out) != 2 {
		t.Fatalf("Dedupe() returned %d results, want 2", len(out))
	}
	// The first-seen slot keeps the best duplicate.
	if out[0].SourceLabel != "jackett" {
		t.Errorf("out[0] from %q, want jackett", out[0].SourceLabel)
	}
	if out[1].Title != "B" {
		t.Errorf("out[1] = %q, want B", out[1].Title)
	}
}

func TestDedupe_Idempotent(t *testing.T) {
	in := []types.RawResult{
		{Title: "A", InfoHash: hashA},
		{Title: "A copy", Magnet: "magnet:?xt=urn:btih:" + hashA + "&tr=x"},
		{Title: "B", SizeGB: 1.5},
		{Title: "b", SizeGB: 1.5},
	}
	once := Dedupe(in)
	if len(once) != 2 {
		t.Fatalf("Dedupe() returned %d results, want 2", len(once))
	}
	twice := Dedupe(once)
	if len(twice) != len(once) {
		t.Fatalf("second Dedupe() returned %d results, want %d", len(twice), len(once))
	}
	for i := range once {
		if twice[i].Title != once[i].Title || DedupeKey(twice[i]) != DedupeKey(once[i]) {
			t.Errorf("result %d changed: %q -> %q", i, once[i].Title, twice[i].Title)
		}
	}
}

func TestTrimDecoration(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Movie.2020.1080p ┈➤ Cached", "Movie.2020.1080p"},
		{"┈➤ Movie.2020.1080p", "Movie.2020.1080p"},
		{"  Plain.Title  ", "Plain.Title"},
	}
	for _, tt := range tests {
		if got := TrimDecoration(tt.in); got != tt.want {
			t.Errorf("TrimDecoration(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPostProcess_LiftsAdapterFields(t *testing.T) {
	results := []types.RawResult{{
		Title:      "Show.S01E01 ┈➤ extra",
		Filename:   "Show.S01E01.mkv",
		BingeGroup: "torrentio|1080p",
		Languages:  []string{"en", "fr"},
	}}
	PostProcess(results)
	if results[0].Title != "Show.S01E01" {
		t.Errorf("Title = %q, want Show.S01E01", results[0].Title)
	}
	want := map[string]string{
		"filename":    "Show.S01E01.mkv",
		"binge_group": "torrentio|1080p",
		"languages":   "en,fr",
	}
	if got := results[0].AdditionalMetadata; !maps.Equal(got, want) {
		t.Errorf("AdditionalMetadata = %v, want %v", got, want)
	}
}
