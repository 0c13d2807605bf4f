package trakt

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// MediaKind is the path segment for movies or shows.
type MediaKind string

const (
	KindMovies MediaKind = "movies"
	KindShows  MediaKind = "shows"
)

func (c *Client) getJSON(ctx context.Context, path string, headers http.Header, out any) (*Response, error) {
	resp, _, err := c.Request(ctx, http.MethodGet, path, headers)
	if err != nil {
		return nil, err
	}
	if err := resp.Decode(out); err != nil {
		return nil, err
	}
	return resp, nil
}

// SearchByID looks up items by an external id. idType is one of imdb, tmdb,
// tvdb or trakt; types restricts the result kinds ("movie", "show").
func (c *Client) SearchByID(ctx context.Context, idType, id string, types ...string) ([]SearchResult, error) {
	path := fmt.Sprintf("/search/%s/%s", url.PathEscape(idType), url.PathEscape(id))
	if len(types) == 0 {
		types = []string{"movie", "show"}
	}
	path += "?type=" + strings.Join(types, ",")

	var results []SearchResult
	if _, err := c.getJSON(ctx, path, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// GetMovie fetches a movie by id or slug.
func (c *Client) GetMovie(ctx context.Context, idOrSlug string) (*Movie, error) {
	var movie Movie
	if _, err := c.getJSON(ctx, "/movies/"+url.PathEscape(idOrSlug)+"?extended=full", nil, &movie); err != nil {
		return nil, err
	}
	return &movie, nil
}

// GetShow fetches a show by id or slug.
func (c *Client) GetShow(ctx context.Context, idOrSlug string) (*Show, error) {
	var show Show
	if _, err := c.getJSON(ctx, "/shows/"+url.PathEscape(idOrSlug)+"?extended=full", nil, &show); err != nil {
		return nil, err
	}
	return &show, nil
}

// GetSeasons fetches seasons with their episodes. Season 0 is dropped unless
// includeSpecials is set.
func (c *Client) GetSeasons(ctx context.Context, idOrSlug string, includeSpecials bool) ([]Season, error) {
	var seasons []Season
	path := "/shows/" + url.PathEscape(idOrSlug) + "/seasons?extended=full,episodes"
	if _, err := c.getJSON(ctx, path, nil, &seasons); err != nil {
		return nil, err
	}
	if includeSpecials {
		return seasons, nil
	}
	out := seasons[:0]
	for _, s := range seasons {
		if s.Number != 0 {
			out = append(out, s)
		}
	}
	return out, nil
}

// GetMovieReleases fetches per-country release entries.
func (c *Client) GetMovieReleases(ctx context.Context, idOrSlug string) ([]Release, error) {
	var releases []Release
	if _, err := c.getJSON(ctx, "/movies/"+url.PathEscape(idOrSlug)+"/releases", nil, &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

// GetAliases fetches alternative titles.
func (c *Client) GetAliases(ctx context.Context, kind MediaKind, idOrSlug string) ([]Alias, error) {
	var aliases []Alias
	path := fmt.Sprintf("/%s/%s/aliases", kind, url.PathEscape(idOrSlug))
	if _, err := c.getJSON(ctx, path, nil, &aliases); err != nil {
		return nil, err
	}
	return aliases, nil
}

// UpdatesPage is one page of items updated since a date.
type UpdatesPage struct {
	Items     []UpdatedItem
	Page      int
	PageCount int
}

// GetUpdates fetches one page of items updated since the given date.
func (c *Client) GetUpdates(ctx context.Context, kind MediaKind, since time.Time, page, limit int) (*UpdatesPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 100
	}
	date := since.UTC().Format("2006-01-02")
	path := fmt.Sprintf("/%s/updates/%s?page=%d&limit=%d", kind, date, page, limit)

	headers := http.Header{}
	headers.Set("X-Start-Date", date)

	var items []UpdatedItem
	resp, err := c.getJSON(ctx, path, headers, &items)
	if err != nil {
		return nil, err
	}

	result := &UpdatesPage{Items: items, Page: page, PageCount: page}
	if n, err := strconv.Atoi(resp.Header.Get("X-Pagination-Page-Count")); err == nil {
		result.PageCount = n
	}
	return result, nil
}

// ConvertToIMDb maps a tmdb or tvdb id to an IMDb id via search. mediaType
// narrows the lookup ("movie" or "show") and may be empty.
func (c *Client) ConvertToIMDb(ctx context.Context, source, id, mediaType string) (string, string, error) {
	var types []string
	if mediaType != "" {
		types = []string{mediaType}
	}
	results, err := c.SearchByID(ctx, source, id, types...)
	if err != nil {
		return "", "", err
	}
	for _, r := range results {
		if imdb := r.IDs().IMDb; imdb != "" {
			return imdb, r.Type, nil
		}
	}
	return "", "", ErrNotFound
}
