// Package indexer holds the adapter contract and the registry of configured
// indexer instances.
package indexer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelscout/reelscout/internal/indexer/jackett"
	"github.com/reelscout/reelscout/internal/indexer/nyaa"
	"github.com/reelscout/reelscout/internal/indexer/torrentio"
	"github.com/reelscout/reelscout/internal/indexer/types"
	"github.com/reelscout/reelscout/internal/indexer/zilean"
)

// Scraper is implemented by every indexer adapter.
type Scraper interface {
	// Instance returns the configured instance the scraper talks to.
	Instance() types.Instance

	// Scrape returns releases for the query. Results carry a unique info-hash.
	Scrape(ctx context.Context, query types.Query) ([]types.RawResult, error)
}

// EpisodeMapper resolves absolute episode numbers from an index mapping.
type EpisodeMapper interface {
	AbsoluteNumbers(ctx context.Context, tvdbID, season, episode int) ([]int, error)
}

// Registry holds the scrapers for every enabled instance.
type Registry struct {
	scrapers []Scraper
	byName   map[string]Scraper
	mapper   EpisodeMapper
	logger   zerolog.Logger
}

// NewRegistry validates instances and builds a scraper for each enabled one.
// timeout bounds each HTTP request an adapter makes.
func NewRegistry(instances []types.Instance, timeout time.Duration, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]Scraper),
		logger: logger.With().Str("component", "indexer-registry").Logger(),
	}

	names := make(map[string]bool)
	for _, inst := range instances {
		key := strings.ToLower(inst.Name)
		if names[key] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInstance, inst.Name)
		}
		names[key] = true

		if !inst.Type.Valid() {
			return nil, fmt.Errorf("%w: %q for instance %s", ErrUnknownBackend, inst.Type, inst.Name)
		}
		if !inst.Enabled {
			r.logger.Debug().Str("instance", inst.Name).Msg("Instance disabled, skipping")
			continue
		}
		if strings.TrimSpace(inst.URL) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingURL, inst.Name)
		}

		s := build(inst, timeout, logger)
		if z, ok := s.(*zilean.Scraper); ok && r.mapper == nil {
			r.mapper = zileanMapper{z}
		}
		r.Register(s)
	}

	r.logger.Info().Int("instances", len(r.scrapers)).Msg("Indexer registry ready")
	return r, nil
}

func build(inst types.Instance, timeout time.Duration, logger zerolog.Logger) Scraper {
	switch inst.Type {
	case types.BackendTorrentio:
		return torrentio.New(inst, timeout, logger)
	case types.BackendZilean:
		return zilean.New(inst, timeout, logger)
	case types.BackendNyaa:
		return nyaa.New(inst, timeout, logger)
	default:
		return jackett.New(inst, timeout, logger)
	}
}

// Register adds a scraper. Used for custom adapters and tests.
func (r *Registry) Register(s Scraper) {
	r.scrapers = append(r.scrapers, s)
	r.byName[strings.ToLower(s.Instance().Name)] = s
}

// Get returns the scraper for the named instance.
func (r *Registry) Get(name string) (Scraper, bool) {
	s, ok := r.byName[strings.ToLower(name)]
	return s, ok
}

// All returns every enabled scraper in configuration order.
func (r *Registry) All() []Scraper {
	out := make([]Scraper, len(r.scrapers))
	copy(out, r.scrapers)
	return out
}

// TitleOnly returns the scrapers that accept queries without an IMDb id.
func (r *Registry) TitleOnly() []Scraper {
	return r.filter(func(b types.BackendType) bool { return b.TitleOnly() })
}

// Anime returns the anime-specialised scrapers.
func (r *Registry) Anime() []Scraper {
	return r.filter(func(b types.BackendType) bool { return b.Anime() })
}

// EpisodeMapper returns the index mapping source, or nil when no DHT index is configured.
func (r *Registry) EpisodeMapper() EpisodeMapper {
	return r.mapper
}

func (r *Registry) filter(keep func(types.BackendType) bool) []Scraper {
	var out []Scraper
	for _, s := range r.scrapers {
		if keep(s.Instance().Type) {
			out = append(out, s)
		}
	}
	return out
}

type zileanMapper struct {
	s *zilean.Scraper
}

func (m zileanMapper) AbsoluteNumbers(ctx context.Context, tvdbID, season, episode int) ([]int, error) {
	rows, err := m.s.EpisodeMap(ctx, tvdbID)
	if err != nil {
		return nil, err
	}
	return zilean.AbsoluteNumbers(rows, season, episode), nil
}
