// Package types contains shared type definitions for indexer packages.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidContentType is returned for queries that are neither movies nor episodes.
var ErrInvalidContentType = errors.New("invalid content type")

// ContentType is the kind of media being scraped.
type ContentType string

const (
	ContentMovie   ContentType = "movie"
	ContentEpisode ContentType = "episode"
)

// BackendType enumerates indexer backends.
type BackendType string

const (
	// BackendTorrentio is a stream-manifest aggregator.
	BackendTorrentio BackendType = "torrentio"
	// BackendZilean is a DHT index.
	BackendZilean BackendType = "zilean"
	// BackendNyaa is an anime index queried by title.
	BackendNyaa BackendType = "nyaa"
	// BackendJackett is a Jackett tracker proxy.
	BackendJackett BackendType = "jackett"
	// BackendProwlarr is a Prowlarr tracker proxy.
	BackendProwlarr BackendType = "prowlarr"
)

// Valid reports whether the backend type is known.
func (b BackendType) Valid() bool {
	switch b {
	case BackendTorrentio, BackendZilean, BackendNyaa, BackendJackett, BackendProwlarr:
		return true
	}
	return false
}

// TitleOnly reports whether the backend accepts queries without an IMDb id.
func (b BackendType) TitleOnly() bool {
	return b == BackendNyaa || b == BackendJackett || b == BackendProwlarr
}

// Anime reports whether the backend specialises in anime.
func (b BackendType) Anime() bool {
	return b == BackendNyaa
}

// Instance is one configured indexer.
type Instance struct {
	Name              string            `json:"name" mapstructure:"name"`
	Type              BackendType       `json:"type" mapstructure:"type"`
	Enabled           bool              `json:"enabled" mapstructure:"enabled"`
	URL               string            `json:"url" mapstructure:"url"`
	APIKey            string            `json:"api_key,omitempty" mapstructure:"api_key"`
	RequestsPerSecond float64           `json:"requests_per_second,omitempty" mapstructure:"requests_per_second"`
	Options           map[string]string `json:"options,omitempty" mapstructure:"options"`
}

// Option returns a type-specific tuning value or def.
func (i Instance) Option(key, def string) string {
	if v, ok := i.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// Query is the canonical description of what to scrape. Fields after Version
// are filled from the metadata cache before filtering.
type Query struct {
	IMDbID          string      `json:"imdb_id"`
	Title           string      `json:"title"`
	Year            int         `json:"year,omitempty"`
	ContentType     ContentType `json:"type"`
	Season          int         `json:"season,omitempty"`
	Episode         int         `json:"episode,omitempty"`
	Multi           bool        `json:"multi,omitempty"`
	TranslatedTitle string      `json:"translated_title,omitempty"`
	Version         string      `json:"version,omitempty"`

	IMDbAliases     []string    `json:"imdb_aliases,omitempty"`
	Aliases         []string    `json:"aliases,omitempty"`
	IsAnime         bool        `json:"is_anime,omitempty"`
	Genres          []string    `json:"genres,omitempty"`
	TVDBID          int         `json:"tvdb_id,omitempty"`
	TMDBID          int         `json:"tmdb_id,omitempty"`
	Country         string      `json:"country,omitempty"`
	AirDate         string      `json:"air_date,omitempty"`
	SeasonYear      int         `json:"season_year,omitempty"`
	RuntimeMinutes  int         `json:"runtime,omitempty"`
	EpisodeCounts   map[int]int `json:"episode_counts,omitempty"`
	AbsoluteEpisode int         `json:"absolute_episode,omitempty"`
	// AbsoluteNumbers are extra absolute numbers for the target episode from index mappings.
	AbsoluteNumbers []int `json:"absolute_numbers,omitempty"`
}

// IsEpisode reports whether the query targets a TV episode.
func (q Query) IsEpisode() bool {
	return q.ContentType == ContentEpisode
}

// Validate checks the fields every scrape needs.
func (q Query) Validate() error {
	switch q.ContentType {
	case ContentMovie, ContentEpisode:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidContentType, q.ContentType)
	}
	if strings.TrimSpace(q.IMDbID) == "" && strings.TrimSpace(q.Title) == "" {
		return errors.New("query needs an imdb id or a title")
	}
	if q.IsEpisode() && (q.Season < 0 || q.Episode < 0) {
		return errors.New("season and episode must be non-negative")
	}
	return nil
}

// IMDbIDs returns the canonical id followed by its aliases, deduplicated.
func (q Query) IMDbIDs() []string {
	var ids []string
	seen := make(map[string]bool)
	for _, id := range append([]string{q.IMDbID}, q.IMDbAliases...) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// RawResult is one release emitted by an indexer adapter.
type RawResult struct {
	Title       string  `json:"title"`
	SizeGB      float64 `json:"size_gb"`
	Seeders     *int    `json:"seeders,omitempty"`
	Magnet      string  `json:"magnet,omitempty"`
	InfoHash    string  `json:"info_hash"`
	SourceLabel string  `json:"source"`
	// PerItemSize is set by adapters that report the size of one file rather than the pack.
	PerItemSize        bool              `json:"per_item_size,omitempty"`
	Filename           string            `json:"filename,omitempty"`
	BingeGroup         string            `json:"binge_group,omitempty"`
	SourceSite         string            `json:"source_site,omitempty"`
	Languages          []string          `json:"languages,omitempty"`
	AdditionalMetadata map[string]string `json:"additional_metadata,omitempty"`
}

// SeederCount returns the seeder count, treating unknown as zero.
func (r RawResult) SeederCount() int {
	if r.Seeders == nil {
		return 0
	}
	return *r.Seeders
}

// Richness counts populated optional fields; used to pick between duplicates.
func (r RawResult) Richness() int {
	n := 0
	for _, s := range []string{r.Magnet, r.InfoHash, r.Filename, r.BingeGroup, r.SourceSite} {
		if s != "" {
			n++
		}
	}
	if r.Seeders != nil {
		n++
	}
	if r.SizeGB > 0 {
		n++
	}
	if len(r.Languages) > 0 {
		n++
	}
	return n + len(r.AdditionalMetadata)
}

// BytesToGB converts a byte count to gigabytes.
func BytesToGB(b int64) float64 {
	return float64(b) / (1024 * 1024 * 1024)
}
