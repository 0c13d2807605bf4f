// Package torrentio scrapes stream-manifest addons that expose
// /stream/{movie|series}/{id}.json endpoints.
package torrentio

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelscout/reelscout/internal/indexer/transport"
	"github.com/reelscout/reelscout/internal/indexer/types"
)

const defaultFilter = "sort=qualitysize%7Cqualityfilter=480p,scr,cam"

var (
	seedersPattern = regexp.MustCompile(`👤\s*(\d+)`)
	sizePattern    = regexp.MustCompile(`💾\s*([\d.,]+\s*[KMGT]i?B)`)
	sitePattern    = regexp.MustCompile(`⚙️\s*(\S+)`)
)

// Stream is one entry of a stream manifest response.
type Stream struct {
	Name          string        `json:"name"`
	Title         string        `json:"title"`
	InfoHash      string        `json:"infoHash"`
	FileIdx       *int          `json:"fileIdx,omitempty"`
	BehaviorHints BehaviorHints `json:"behaviorHints"`
}

// BehaviorHints carries per-file information for a stream.
type BehaviorHints struct {
	BingeGroup string `json:"bingeGroup,omitempty"`
	Filename   string `json:"filename,omitempty"`
	VideoSize  int64  `json:"videoSize,omitempty"`
}

type streamResponse struct {
	Streams []Stream `json:"streams"`
}

// Scraper queries one stream-manifest instance.
type Scraper struct {
	instance types.Instance
	client   *transport.Client
	logger   zerolog.Logger
}

// New creates a scraper for the instance. The "filter" option is inserted
// into the URL path before /stream.
func New(instance types.Instance, timeout time.Duration, logger zerolog.Logger) *Scraper {
	return &Scraper{
		instance: instance,
		client:   transport.New(instance.URL, timeout, nil, logger),
		logger:   logger.With().Str("component", "torrentio").Str("instance", instance.Name).Logger(),
	}
}

// Instance returns the configured instance.
func (s *Scraper) Instance() types.Instance {
	return s.instance
}

// Scrape fetches streams for every IMDb id of the query and merges them by info-hash.
func (s *Scraper) Scrape(ctx context.Context, query types.Query) ([]types.RawResult, error) {
	ids := query.IMDbIDs()
	if len(ids) == 0 {
		return nil, nil
	}

	var results []types.RawResult
	seen := make(map[string]bool)

	for _, id := range ids {
		streams, err := s.fetch(ctx, s.streamPath(query, id))
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			if transport.IsServerError(err) || transport.IsNotFound(err) {
				s.logger.Warn().Err(err).Str("imdbId", id).Msg("Stream lookup failed")
				continue
			}
			return results, err
		}

		for _, stream := range streams {
			result, ok := s.toResult(stream)
			if !ok || seen[result.InfoHash] {
				continue
			}
			seen[result.InfoHash] = true
			results = append(results, result)
		}
	}

	s.logger.Debug().Int("count", len(results)).Msg("Scrape completed")
	return results, nil
}

func (s *Scraper) streamPath(query types.Query, imdbID string) string {
	prefix := ""
	if filter := s.instance.Option("filter", defaultFilter); filter != "none" {
		prefix = "/" + strings.Trim(filter, "/")
	}
	if query.IsEpisode() {
		return fmt.Sprintf("%s/stream/series/%s:%d:%d.json", prefix, imdbID, query.Season, query.Episode)
	}
	return fmt.Sprintf("%s/stream/movie/%s.json", prefix, imdbID)
}

func (s *Scraper) fetch(ctx context.Context, path string) ([]Stream, error) {
	var resp streamResponse
	if err := s.client.GetJSON(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Streams, nil
}

func (s *Scraper) toResult(stream Stream) (types.RawResult, bool) {
	hash := types.NormalizeInfoHash(stream.InfoHash)
	if hash == "" {
		return types.RawResult{}, false
	}

	lines := strings.Split(stream.Title, "\n")
	title := strings.TrimSpace(lines[0])
	if title == "" {
		title = stream.BehaviorHints.Filename
	}
	if title == "" {
		return types.RawResult{}, false
	}

	result := types.RawResult{
		Title:       title,
		InfoHash:    hash,
		Magnet:      types.BuildMagnet(hash, title, nil),
		SourceLabel: s.instance.Name,
		PerItemSize: true,
		Filename:    stream.BehaviorHints.Filename,
		BingeGroup:  stream.BehaviorHints.BingeGroup,
	}

	if stream.BehaviorHints.VideoSize > 0 {
		result.SizeGB = types.BytesToGB(stream.BehaviorHints.VideoSize)
	} else if m := sizePattern.FindStringSubmatch(stream.Title); m != nil {
		result.SizeGB = transport.ParseSizeGB(m[1])
	}

	if m := seedersPattern.FindStringSubmatch(stream.Title); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			result.Seeders = &n
		}
	}
	if m := sitePattern.FindStringSubmatch(stream.Title); m != nil {
		result.SourceSite = m[1]
	}

	return result, true
}
