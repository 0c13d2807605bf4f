// Package jackett scrapes tracker proxies. Both the Jackett and the Prowlarr
// JSON search APIs are supported; the instance type selects the shape.
package jackett

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelscout/reelscout/internal/indexer/transport"
	"github.com/reelscout/reelscout/internal/indexer/types"
)

const (
	categoryMovies = 2000
	categoryTV     = 5000
)

// Scraper queries one tracker proxy instance.
type Scraper struct {
	instance types.Instance
	client   *transport.Client
	logger   zerolog.Logger
}

// New creates a scraper for a jackett or prowlarr instance.
func New(instance types.Instance, timeout time.Duration, logger zerolog.Logger) *Scraper {
	var headers map[string]string
	if instance.Type == types.BackendProwlarr && instance.APIKey != "" {
		headers = map[string]string{"X-Api-Key": instance.APIKey}
	}
	return &Scraper{
		instance: instance,
		client:   transport.New(instance.URL, timeout, headers, logger),
		logger: logger.With().
			Str("component", string(instance.Type)).
			Str("instance", instance.Name).
			Logger(),
	}
}

// Instance returns the configured instance.
func (s *Scraper) Instance() types.Instance {
	return s.instance
}

// Scrape runs every search term for the query and merges results by info-hash.
// Results without a recoverable info-hash are dropped.
func (s *Scraper) Scrape(ctx context.Context, query types.Query) ([]types.RawResult, error) {
	var results []types.RawResult
	seen := make(map[string]bool)

	for _, term := range SearchTerms(query) {
		var (
			batch []types.RawResult
			err   error
		)
		if s.instance.Type == types.BackendProwlarr {
			batch, err = s.searchProwlarr(ctx, term, query)
		} else {
			batch, err = s.searchJackett(ctx, term, query)
		}
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			if transport.IsServerError(err) {
				s.logger.Warn().Err(err).Str("term", term).Msg("Search failed")
				continue
			}
			return results, fmt.Errorf("search failed: %w", err)
		}

		for _, r := range batch {
			if seen[r.InfoHash] {
				continue
			}
			seen[r.InfoHash] = true
			results = append(results, r)
		}
	}

	s.logger.Debug().Int("count", len(results)).Msg("Scrape completed")
	return results, nil
}

// SearchTerms builds the free-text searches for a query. Episodes also search
// the bare season so packs are returned.
func SearchTerms(query types.Query) []string {
	title := strings.TrimSpace(query.Title)
	if title == "" {
		return nil
	}
	if !query.IsEpisode() {
		if query.Year > 0 {
			return []string{fmt.Sprintf("%s %d", title, query.Year)}
		}
		return []string{title}
	}

	season := fmt.Sprintf("%s S%02d", title, query.Season)
	if query.Multi {
		return []string{season}
	}
	return []string{fmt.Sprintf("%s S%02dE%02d", title, query.Season, query.Episode), season}
}

func categoryFor(query types.Query) int {
	if query.IsEpisode() {
		return categoryTV
	}
	return categoryMovies
}

// hashFor recovers an info-hash from the explicit field or a magnet link.
func hashFor(infoHash string, links ...string) (string, string) {
	for _, link := range links {
		if strings.HasPrefix(link, "magnet:") {
			if hash := types.InfoHashFromMagnet(link); hash != "" {
				return hash, link
			}
		}
	}
	if hash := types.NormalizeInfoHash(infoHash); hash != "" {
		return hash, ""
	}
	return "", ""
}

func (s *Scraper) newResult(title string, size int64, seeders int, hash, magnet, site string) types.RawResult {
	if magnet == "" {
		magnet = types.BuildMagnet(hash, title, nil)
	}
	n := seeders
	return types.RawResult{
		Title:       strings.TrimSpace(title),
		SizeGB:      types.BytesToGB(size),
		Seeders:     &n,
		Magnet:      magnet,
		InfoHash:    hash,
		SourceLabel: s.instance.Name,
		SourceSite:  site,
	}
}
