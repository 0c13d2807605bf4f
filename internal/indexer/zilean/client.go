// Package zilean scrapes a DHT index and exposes its scene/tvdb/absolute
// episode mapping.
package zilean

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelscout/reelscout/internal/indexer/transport"
	"github.com/reelscout/reelscout/internal/indexer/types"
)

// Torrent is one row of a filtered search.
type Torrent struct {
	RawTitle string    `json:"raw_title"`
	InfoHash string    `json:"info_hash"`
	Size     flexInt64 `json:"size"`
	ImdbID   string    `json:"imdb_id,omitempty"`
}

// Coordinate is a season/episode pair in one numbering scheme.
type Coordinate struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

// EpisodeMapping links scene and tvdb numbering to an absolute number.
type EpisodeMapping struct {
	Scene    Coordinate `json:"scene"`
	TVDB     Coordinate `json:"tvdb"`
	Absolute int        `json:"absolute"`
}

// flexInt64 accepts a JSON number or a numeric string.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		var v float64
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return fmt.Errorf("invalid size %q", s)
		}
		n = int64(v)
	}
	*f = flexInt64(n)
	return nil
}

// Scraper queries one DHT index instance.
type Scraper struct {
	instance types.Instance
	client   *transport.Client
	logger   zerolog.Logger
}

// New creates a scraper for the instance.
func New(instance types.Instance, timeout time.Duration, logger zerolog.Logger) *Scraper {
	return &Scraper{
		instance: instance,
		client:   transport.New(instance.URL, timeout, nil, logger),
		logger:   logger.With().Str("component", "zilean").Str("instance", instance.Name).Logger(),
	}
}

// Instance returns the configured instance.
func (s *Scraper) Instance() types.Instance {
	return s.instance
}

// Scrape searches by every IMDb id of the query, merging rows by info-hash.
func (s *Scraper) Scrape(ctx context.Context, query types.Query) ([]types.RawResult, error) {
	var results []types.RawResult
	seen := make(map[string]bool)

	for _, params := range s.searchParams(query) {
		var torrents []Torrent
		if err := s.client.GetJSON(ctx, "/dmm/filtered", params, &torrents); err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			if transport.IsServerError(err) {
				s.logger.Warn().Err(err).Msg("Search failed")
				continue
			}
			return results, err
		}

		for _, t := range torrents {
			hash := types.NormalizeInfoHash(t.InfoHash)
			title := strings.TrimSpace(t.RawTitle)
			if hash == "" || title == "" || seen[hash] {
				continue
			}
			seen[hash] = true
			results = append(results, types.RawResult{
				Title:       title,
				InfoHash:    hash,
				Magnet:      types.BuildMagnet(hash, title, nil),
				SizeGB:      types.BytesToGB(int64(t.Size)),
				SourceLabel: s.instance.Name,
			})
		}
	}

	s.logger.Debug().Int("count", len(results)).Msg("Scrape completed")
	return results, nil
}

func (s *Scraper) searchParams(query types.Query) []url.Values {
	base := url.Values{}
	if query.IsEpisode() {
		base.Set("Season", strconv.Itoa(query.Season))
		base.Set("Episode", strconv.Itoa(query.Episode))
	} else if query.Year > 0 {
		base.Set("Year", strconv.Itoa(query.Year))
	}

	ids := query.IMDbIDs()
	if len(ids) == 0 {
		params := cloneValues(base)
		params.Set("Query", query.Title)
		return []url.Values{params}
	}

	out := make([]url.Values, 0, len(ids))
	for _, id := range ids {
		params := cloneValues(base)
		params.Set("ImdbId", id)
		out = append(out, params)
	}
	return out
}

// EpisodeMap fetches the episode numbering map for a tvdb show id.
func (s *Scraper) EpisodeMap(ctx context.Context, tvdbID int) ([]EpisodeMapping, error) {
	if tvdbID <= 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("id", strconv.Itoa(tvdbID))
	params.Set("origin", "tvdb")

	var rows []EpisodeMapping
	if err := s.client.GetJSON(ctx, "/map/all", params, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch episode map for tvdb %d: %w", tvdbID, err)
	}
	return rows, nil
}

// AbsoluteNumbers returns the absolute numbers mapped to season/episode in
// either the scene or the tvdb numbering.
func AbsoluteNumbers(rows []EpisodeMapping, season, episode int) []int {
	var out []int
	seen := make(map[int]bool)
	for _, row := range rows {
		if row.Absolute <= 0 || seen[row.Absolute] {
			continue
		}
		if (row.TVDB.Season == season && row.TVDB.Episode == episode) ||
			(row.Scene.Season == season && row.Scene.Episode == episode) {
			seen[row.Absolute] = true
			out = append(out, row.Absolute)
		}
	}
	return out
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
