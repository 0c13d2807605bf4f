package trakt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var naiveLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is an air time that may arrive without a zone. Naive values are
// held as UTC wall time with Naive set.
type Timestamp struct {
	time.Time
	Naive bool
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			t.Naive = true
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	if t.Naive {
		return []byte(`"` + t.Format("2006-01-02T15:04:05") + `"`), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339) + `"`), nil
}

// In resolves a naive timestamp in the named zone. Zoned values and unknown
// zones return the time unchanged.
func (t Timestamp) In(zone string) time.Time {
	if !t.Naive || zone == "" {
		return t.UTC()
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return t.UTC()
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc).UTC()
}

// IDs identifies an item across providers.
type IDs struct {
	Trakt int    `json:"trakt,omitempty"`
	Slug  string `json:"slug,omitempty"`
	IMDb  string `json:"imdb,omitempty"`
	TMDB  int    `json:"tmdb,omitempty"`
	TVDB  int    `json:"tvdb,omitempty"`
}

// Key returns the best identifier for URL paths: slug, then imdb, then trakt id.
func (i IDs) Key() string {
	switch {
	case i.Slug != "":
		return i.Slug
	case i.IMDb != "":
		return i.IMDb
	case i.Trakt > 0:
		return strconv.Itoa(i.Trakt)
	}
	return ""
}

// Movie is the extended movie representation.
type Movie struct {
	Title         string     `json:"title"`
	OriginalTitle string     `json:"original_title,omitempty"`
	Year          int        `json:"year"`
	IDs           IDs        `json:"ids"`
	Released      string     `json:"released,omitempty"`
	Runtime       int        `json:"runtime,omitempty"`
	Country       string     `json:"country,omitempty"`
	Language      string     `json:"language,omitempty"`
	Genres        []string   `json:"genres,omitempty"`
	Status        string     `json:"status,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Airs describes a show's broadcast slot.
type Airs struct {
	Day      string `json:"day,omitempty"`
	Time     string `json:"time,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Show is the extended show representation.
type Show struct {
	Title         string     `json:"title"`
	OriginalTitle string     `json:"original_title,omitempty"`
	Year          int        `json:"year"`
	IDs           IDs        `json:"ids"`
	FirstAired    *Timestamp `json:"first_aired,omitempty"`
	Airs          Airs       `json:"airs"`
	Runtime       int        `json:"runtime,omitempty"`
	Network       string     `json:"network,omitempty"`
	Country       string     `json:"country,omitempty"`
	Language      string     `json:"language,omitempty"`
	Genres        []string   `json:"genres,omitempty"`
	Status        string     `json:"status,omitempty"`
	AiredEpisodes int        `json:"aired_episodes,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Season is a season with its episodes.
type Season struct {
	Number        int        `json:"number"`
	IDs           IDs        `json:"ids"`
	EpisodeCount  int        `json:"episode_count"`
	AiredEpisodes int        `json:"aired_episodes"`
	FirstAired    *Timestamp `json:"first_aired,omitempty"`
	Episodes      []Episode  `json:"episodes,omitempty"`
}

// Episode is one episode of a season.
type Episode struct {
	Season     int        `json:"season"`
	Number     int        `json:"number"`
	Title      string     `json:"title"`
	IDs        IDs        `json:"ids"`
	NumberAbs  *int       `json:"number_abs,omitempty"`
	Overview   string     `json:"overview,omitempty"`
	Runtime    int        `json:"runtime,omitempty"`
	FirstAired *Timestamp `json:"first_aired,omitempty"`
}

// Release is one per-country movie release.
type Release struct {
	Country       string `json:"country"`
	Certification string `json:"certification,omitempty"`
	ReleaseDate   string `json:"release_date"`
	ReleaseType   string `json:"release_type"`
}

// Alias is an alternative title scoped by country.
type Alias struct {
	Title   string `json:"title"`
	Country string `json:"country"`
}

// SearchResult is one hit of an id lookup.
type SearchResult struct {
	Type    string   `json:"type"`
	Score   float64  `json:"score"`
	Movie   *Movie   `json:"movie,omitempty"`
	Show    *Show    `json:"show,omitempty"`
	Episode *Episode `json:"episode,omitempty"`
}

// IDs returns the ids of whichever item the result holds.
func (r SearchResult) IDs() IDs {
	switch {
	case r.Movie != nil:
		return r.Movie.IDs
	case r.Show != nil:
		return r.Show.IDs
	case r.Episode != nil:
		return r.Episode.IDs
	}
	return IDs{}
}

// UpdatedItem is one entry of an updates-since page.
type UpdatedItem struct {
	UpdatedAt time.Time `json:"updated_at"`
	Movie     *Movie    `json:"movie,omitempty"`
	Show      *Show     `json:"show,omitempty"`
}

// IMDbID returns the IMDb id of the updated item.
func (u UpdatedItem) IMDbID() string {
	switch {
	case u.Movie != nil:
		return u.Movie.IDs.IMDb
	case u.Show != nil:
		return u.Show.IDs.IMDb
	}
	return ""
}
