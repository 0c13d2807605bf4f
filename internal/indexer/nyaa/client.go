// Package nyaa scrapes an anime index from its HTML listing.
package nyaa

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/reelscout/reelscout/internal/indexer/transport"
	"github.com/reelscout/reelscout/internal/indexer/types"
)

const (
	defaultCategory = "1_2"
	defaultFilter   = "0"
)

// Scraper queries one anime index instance. It only needs a title.
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
		logger:   logger.With().Str("component", "nyaa").Str("instance", instance.Name).Logger(),
	}
}

// Instance returns the configured instance.
func (s *Scraper) Instance() types.Instance {
	return s.instance
}

// Scrape searches the listing by title, adding the episode number for episodes.
func (s *Scraper) Scrape(ctx context.Context, query types.Query) ([]types.RawResult, error) {
	var results []types.RawResult
	seen := make(map[string]bool)

	for _, term := range SearchTerms(query) {
		params := url.Values{}
		params.Set("f", s.instance.Option("filter", defaultFilter))
		params.Set("c", s.instance.Option("category", defaultCategory))
		params.Set("q", term)
		params.Set("s", "seeders")
		params.Set("o", "desc")

		body, err := s.client.Get(ctx, "/", params)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			if transport.IsServerError(err) {
				s.logger.Warn().Err(err).Str("term", term).Msg("Search failed")
				continue
			}
			return results, err
		}

		rows, err := s.parseListing(body)
		if err != nil {
			return results, err
		}
		for _, r := range rows {
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

// SearchTerms builds the title searches for a query. Episodes are searched by
// their absolute number when known, otherwise by their in-season number.
func SearchTerms(query types.Query) []string {
	title := strings.TrimSpace(query.Title)
	if title == "" {
		return nil
	}
	if !query.IsEpisode() {
		return []string{title}
	}

	terms := []string{}
	if query.AbsoluteEpisode > 0 {
		terms = append(terms, fmt.Sprintf("%s %02d", title, query.AbsoluteEpisode))
	}
	if query.Episode > 0 && query.Episode != query.AbsoluteEpisode {
		terms = append(terms, fmt.Sprintf("%s %02d", title, query.Episode))
	}
	if query.Multi || len(terms) == 0 {
		terms = append(terms, title)
	}
	return terms
}

func (s *Scraper) parseListing(html []byte) ([]types.RawResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []types.RawResult
	doc.Find("table.torrent-list tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 6 {
			return
		}

		title := strings.TrimSpace(cells.Eq(1).Find("a:not(.comments)").Last().AttrOr("title", ""))
		if title == "" {
			title = strings.TrimSpace(cells.Eq(1).Find("a:not(.comments)").Last().Text())
		}
		magnet := cells.Eq(2).Find(`a[href^="magnet:"]`).AttrOr("href", "")
		hash := types.InfoHashFromMagnet(magnet)
		if title == "" || hash == "" {
			return
		}

		result := types.RawResult{
			Title:       title,
			InfoHash:    hash,
			Magnet:      magnet,
			SizeGB:      transport.ParseSizeGB(cells.Eq(3).Text()),
			SourceLabel: s.instance.Name,
			SourceSite:  "nyaa",
		}
		if n, err := strconv.Atoi(strings.TrimSpace(cells.Eq(5).Text())); err == nil {
			result.Seeders = &n
		}
		results = append(results, result)
	})

	return results, nil
}
