package engine

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/reelscout/reelscout/internal/indexer/types"
	"github.com/reelscout/reelscout/internal/metadata"
)

// Enrich fills the metadata-derived query fields. Lookup failures are logged
// and the caller's fields are used as given.
func (e *Engine) Enrich(ctx context.Context, q types.Query) types.Query {
	q.Aliases = appendTitles(q.Aliases, e.settings.Aliases(q.IMDbID)...)
	if strings.TrimSpace(q.IMDbID) == "" {
		return q
	}

	logger := e.logger.With().Str("imdbId", q.IMDbID).Logger()
	if q.IsEpisode() {
		show, _, err := e.Show(ctx, q.IMDbID)
		if err != nil {
			logger.Warn().Err(err).Msg("Show metadata unavailable, scraping with caller fields")
			return q
		}
		if show != nil {
			q = e.enrichEpisode(ctx, q, show)
		}
		return q
	}

	movie, _, err := e.Movie(ctx, q.IMDbID)
	if err != nil {
		logger.Warn().Err(err).Msg("Movie metadata unavailable, scraping with caller fields")
		return q
	}
	if movie != nil {
		q = enrichItem(q, &movie.Item, movie.Aliases)
	}
	return q
}

func enrichItem(q types.Query, item *metadata.Item, aliases metadata.Aliases) types.Query {
	if strings.TrimSpace(q.Title) == "" {
		q.Title = item.Title
	} else if !strings.EqualFold(q.Title, item.Title) {
		q.Aliases = appendTitles(q.Aliases, item.Title)
	}
	if q.Year == 0 {
		q.Year = item.Year
	}
	q.Aliases = appendTitles(q.Aliases, item.OriginalTitle)
	q.Aliases = appendTitles(q.Aliases, aliases.Titles()...)

	if len(q.Genres) == 0 {
		q.Genres = item.Genres
	}
	q.IsAnime = q.IsAnime || item.IsAnime()
	if q.TMDBID == 0 {
		q.TMDBID = item.TMDBID
	}
	if q.TVDBID == 0 {
		q.TVDBID = item.TVDBID
	}
	if q.Country == "" {
		q.Country = strings.ToUpper(item.Country)
	}
	if q.RuntimeMinutes == 0 {
		q.RuntimeMinutes = item.Runtime
	}
	return q
}

func (e *Engine) enrichEpisode(ctx context.Context, q types.Query, show *metadata.Show) types.Query {
	q = enrichItem(q, &show.Item, show.Aliases)
	if len(q.EpisodeCounts) == 0 {
		q.EpisodeCounts = show.EpisodeCounts()
	}
	if q.SeasonYear == 0 {
		q.SeasonYear = show.SeasonYear(q.Season)
	}

	if ep := show.Episode(q.Season, q.Episode); ep != nil {
		if ep.Runtime > 0 {
			q.RuntimeMinutes = ep.Runtime
		}
		if q.AirDate == "" && ep.FirstAired != nil {
			q.AirDate = localDate(*ep.FirstAired, show.Timezone)
		}
	}
	if q.Episode > 0 && q.AbsoluteEpisode == 0 {
		q.AbsoluteEpisode = show.AbsoluteNumber(q.Season, q.Episode)
	}

	if q.IsAnime && q.TVDBID > 0 && q.Episode > 0 {
		if mapper := e.registry.EpisodeMapper(); mapper != nil {
			nums, err := mapper.AbsoluteNumbers(ctx, q.TVDBID, q.Season, q.Episode)
			if err != nil {
				e.logger.Debug().Err(err).Int("tvdbId", q.TVDBID).Msg("Episode mapping lookup failed")
			} else {
				q.AbsoluteNumbers = appendInts(q.AbsoluteNumbers, nums...)
			}
		}
	}
	return q
}

// localDate formats an air time as a calendar date in the show's timezone.
func localDate(t time.Time, zone string) string {
	if zone != "" {
		if loc, err := time.LoadLocation(zone); err == nil {
			t = t.In(loc)
		}
	}
	return t.Format("2006-01-02")
}

func appendTitles(dst []string, titles ...string) []string {
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" || containsFold(dst, t) {
			continue
		}
		dst = append(dst, t)
	}
	return dst
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func appendInts(dst []int, nums ...int) []int {
	for _, n := range nums {
		if !slices.Contains(dst, n) {
			dst = append(dst, n)
		}
	}
	return dst
}
