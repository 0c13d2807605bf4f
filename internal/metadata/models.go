package metadata

import (
	"sort"
	"strings"
	"time"
)

// MediaType is the kind of cached item.
type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaShow  MediaType = "show"
)

// Source tells callers where returned metadata came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceUpstream Source = "upstream"
	// SourceStale is a cached copy returned because the refresh failed.
	SourceStale Source = "stale"
)

// Record keys stored in the metadata table.
const (
	keyAliases      = "aliases"
	keyReleaseDates = "release_dates"
	keyAirs         = "airs"
	providerTrakt   = "trakt"
)

// Item is the row shared by movies and shows.
type Item struct {
	IMDbID        string    `json:"imdb_id"`
	Type          MediaType `json:"type"`
	Title         string    `json:"title"`
	OriginalTitle string    `json:"original_title,omitempty"`
	Year          int       `json:"year,omitempty"`
	Country       string    `json:"country,omitempty"`
	Language      string    `json:"language,omitempty"`
	Network       string    `json:"network,omitempty"`
	Timezone      string    `json:"timezone,omitempty"`
	Status        string    `json:"status,omitempty"`
	Runtime       int       `json:"runtime,omitempty"`
	Genres        []string  `json:"genres,omitempty"`
	Slug          string    `json:"slug,omitempty"`
	TraktID       int       `json:"trakt_id,omitempty"`
	TMDBID        int       `json:"tmdb_id,omitempty"`
	TVDBID        int       `json:"tvdb_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsAnime reports whether the genres mark the item as anime.
func (i *Item) IsAnime() bool {
	for _, g := range i.Genres {
		if strings.EqualFold(g, "anime") {
			return true
		}
	}
	return false
}

// Aliases maps a country code to alternative titles.
type Aliases map[string][]string

// Titles flattens the aliases into a sorted, deduplicated list.
func (a Aliases) Titles() []string {
	seen := make(map[string]bool)
	var out []string
	for _, titles := range a {
		for _, t := range titles {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// ReleaseDate is one release of a movie in a country.
type ReleaseDate struct {
	Date string `json:"date"`
	Type string `json:"type"`
}

// Movie is a cached movie with its records.
type Movie struct {
	Item
	Aliases      Aliases                  `json:"aliases,omitempty"`
	ReleaseDates map[string][]ReleaseDate `json:"release_dates,omitempty"`
}

// Airs is a show's broadcast slot.
type Airs struct {
	Day      string `json:"day,omitempty"`
	Time     string `json:"time,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Episode is one cached episode. FirstAired is UTC with the show timezone applied.
type Episode struct {
	Season         int        `json:"season"`
	Number         int        `json:"number"`
	Title          string     `json:"title,omitempty"`
	Overview       string     `json:"overview,omitempty"`
	Runtime        int        `json:"runtime,omitempty"`
	FirstAired     *time.Time `json:"first_aired,omitempty"`
	IMDbID         string     `json:"imdb_id,omitempty"`
	TVDBID         int        `json:"tvdb_id,omitempty"`
	AbsoluteNumber *int       `json:"absolute_number,omitempty"`
}

// Season holds episodes keyed by number.
type Season struct {
	Number       int              `json:"number"`
	EpisodeCount int              `json:"episode_count"`
	Episodes     map[int]*Episode `json:"episodes"`
}

// EpisodeNumbers returns the episode numbers in order.
func (s *Season) EpisodeNumbers() []int {
	nums := make([]int, 0, len(s.Episodes))
	for n := range s.Episodes {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// FirstAired returns the air date of the earliest episode that has one.
func (s *Season) FirstAired() *time.Time {
	for _, n := range s.EpisodeNumbers() {
		if at := s.Episodes[n].FirstAired; at != nil {
			return at
		}
	}
	return nil
}

// Show is a cached show with seasons and records.
type Show struct {
	Item
	Airs    Airs            `json:"airs"`
	Aliases Aliases         `json:"aliases,omitempty"`
	Seasons map[int]*Season `json:"seasons"`
}

// EpisodeCounts maps season number to its episode count. The declared count
// wins over the number of cached episodes.
func (s *Show) EpisodeCounts() map[int]int {
	counts := make(map[int]int, len(s.Seasons))
	for n, season := range s.Seasons {
		count := season.EpisodeCount
		if count == 0 {
			count = len(season.Episodes)
		}
		counts[n] = count
	}
	return counts
}

// Episode returns one episode or nil.
func (s *Show) Episode(season, episode int) *Episode {
	sn, ok := s.Seasons[season]
	if !ok {
		return nil
	}
	return sn.Episodes[episode]
}

// SeasonYear returns the year the season first aired, falling back to the
// show year.
func (s *Show) SeasonYear(season int) int {
	if sn, ok := s.Seasons[season]; ok {
		if at := sn.FirstAired(); at != nil {
			return at.Year()
		}
	}
	return s.Year
}

// AbsoluteNumber returns the absolute number of an episode: the stored value
// when known, else the sum of earlier regular season counts plus the episode.
func (s *Show) AbsoluteNumber(season, episode int) int {
	if ep := s.Episode(season, episode); ep != nil && ep.AbsoluteNumber != nil {
		return *ep.AbsoluteNumber
	}
	total := 0
	for n, count := range s.EpisodeCounts() {
		if n > 0 && n < season {
			total += count
		}
	}
	return total + episode
}

// ShowAirs is the airing info returned by bulk lookups.
type ShowAirs struct {
	IMDbID string `json:"imdb_id"`
	Airs
	Status string `json:"status,omitempty"`
}

// EpisodeLookup is the result of finding an episode by its own IMDb id.
type EpisodeLookup struct {
	ShowIMDbID string   `json:"show_imdb_id"`
	Episode    *Episode `json:"episode"`
}
