package metadata

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelscout/reelscout/internal/trakt"
)

const (
	bulkConcurrency = 4
	updatesPageSize = 100
)

// BulkGetShows loads many shows. Ids that fail or are unknown upstream are
// logged and left out of the result.
func (s *Service) BulkGetShows(ctx context.Context, ids []string) (map[string]*Show, error) {
	return bulkGet(ctx, s, ids, func(ctx context.Context, id string) (*Show, error) {
		show, _, err := s.GetShow(ctx, id)
		return show, err
	})
}

// BulkGetMovies loads many movies.
func (s *Service) BulkGetMovies(ctx context.Context, ids []string) (map[string]*Movie, error) {
	return bulkGet(ctx, s, ids, func(ctx context.Context, id string) (*Movie, error) {
		movie, _, err := s.GetMovie(ctx, id)
		return movie, err
	})
}

// BulkGetShowAirs returns airing info for many shows.
func (s *Service) BulkGetShowAirs(ctx context.Context, ids []string) (map[string]ShowAirs, error) {
	shows, err := s.BulkGetShows(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ShowAirs, len(shows))
	for id, show := range shows {
		airs := show.Airs
		if airs.Timezone == "" {
			airs.Timezone = show.Timezone
		}
		out[id] = ShowAirs{IMDbID: id, Airs: airs, Status: show.Status}
	}
	return out, nil
}

func bulkGet[T any](ctx context.Context, s *Service, ids []string, get func(context.Context, string) (*T, error)) (map[string]*T, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]*T, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		g.Go(func() error {
			v, err := get(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn().Err(err).Str("imdbId", id).Msg("bulk lookup failed")
				return nil
			}
			if v == nil {
				return nil
			}
			mu.Lock()
			out[id] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RefreshUpdatedSince pages through upstream updates since the given time and
// force-refreshes the cached items among them. It returns how many items were
// refreshed.
func (s *Service) RefreshUpdatedSince(ctx context.Context, mediaType MediaType, since time.Time) (int, error) {
	kind := trakt.KindShows
	if mediaType == MediaMovie {
		kind = trakt.KindMovies
	}

	var ids []string
	for page, pages := 1, 1; page <= pages; page++ {
		result, err := s.upstream.GetUpdates(ctx, kind, since, page, updatesPageSize)
		if err != nil {
			return 0, err
		}
		pages = result.PageCount
		for _, item := range result.Items {
			if id := item.IMDbID(); id != "" {
				ids = append(ids, id)
			}
		}
	}

	cached, err := s.repo.cachedIDs(ctx, mediaType, ids)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for id := range cached {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if _, err := s.ForceRefresh(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("imdbId", id).Msg("updated item refresh failed")
			continue
		}
		refreshed++
	}
	s.logger.Info().
		Str("type", string(mediaType)).
		Time("since", since).
		Int("updated", len(ids)).
		Int("refreshed", refreshed).
		Msg("refreshed updated items")
	return refreshed, nil
}
