package api

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/reelscout/reelscout/internal/metadata"
)

type movieResponse struct {
	Source metadata.Source `json:"source"`
	Movie  *metadata.Movie `json:"movie"`
}

type showResponse struct {
	Source metadata.Source `json:"source"`
	Show   *metadata.Show  `json:"show"`
}

type seasonsResponse struct {
	Source  metadata.Source    `json:"source"`
	Seasons []*metadata.Season `json:"seasons"`
}

func imdbParam(c echo.Context) (string, error) {
	id := strings.TrimSpace(c.Param("imdb"))
	if !strings.HasPrefix(id, "tt") || len(id) < 3 {
		return "", fmt.Errorf("%w: invalid imdb id %q", errBadRequest, id)
	}
	return id, nil
}

// getMovie returns cached movie metadata, refreshing when stale.
// GET /api/v1/metadata/movies/:imdb
func (s *Server) getMovie(c echo.Context) error {
	id, err := imdbParam(c)
	if err != nil {
		return err
	}
	movie, src, err := s.engine.Movie(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if movie == nil {
		return fmt.Errorf("%w: movie %s", errNotFound, id)
	}
	return c.JSON(http.StatusOK, movieResponse{Source: src, Movie: movie})
}

// getShow returns cached show metadata with seasons.
// GET /api/v1/metadata/shows/:imdb
func (s *Server) getShow(c echo.Context) error {
	id, err := imdbParam(c)
	if err != nil {
		return err
	}
	show, src, err := s.engine.Show(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if show == nil {
		return fmt.Errorf("%w: show %s", errNotFound, id)
	}
	return c.JSON(http.StatusOK, showResponse{Source: src, Show: show})
}

// getSeasons returns a show's seasons ordered by number.
// GET /api/v1/metadata/shows/:imdb/seasons
func (s *Server) getSeasons(c echo.Context) error {
	id, err := imdbParam(c)
	if err != nil {
		return err
	}
	show, src, err := s.engine.Show(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if show == nil {
		return fmt.Errorf("%w: show %s", errNotFound, id)
	}

	seasons := make([]*metadata.Season, 0, len(show.Seasons))
	for _, sn := range show.Seasons {
		seasons = append(seasons, sn)
	}
	sort.Slice(seasons, func(i, j int) bool { return seasons[i].Number < seasons[j].Number })
	return c.JSON(http.StatusOK, seasonsResponse{Source: src, Seasons: seasons})
}

// getEpisode finds an episode by its own IMDb id.
// GET /api/v1/metadata/episodes/:imdb
func (s *Server) getEpisode(c echo.Context) error {
	id, err := imdbParam(c)
	if err != nil {
		return err
	}
	found, err := s.engine.Metadata().GetEpisodeByExternalID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if found == nil {
		return fmt.Errorf("%w: episode %s", errNotFound, id)
	}
	return c.JSON(http.StatusOK, found)
}

// refreshMetadata force-refreshes a cached item.
// POST /api/v1/metadata/:imdb/refresh
func (s *Server) refreshMetadata(c echo.Context) error {
	id, err := imdbParam(c)
	if err != nil {
		return err
	}
	src, err := s.engine.Metadata().ForceRefresh(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"imdb_id": id, "source": src})
}

// removeMetadata deletes stored records and seasons of an item.
// DELETE /api/v1/metadata/:imdb
func (s *Server) removeMetadata(c echo.Context) error {
	id, err := imdbParam(c)
	if err != nil {
		return err
	}
	removed, err := s.engine.Metadata().RemoveMetadata(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"imdb_id": id, "removed": removed})
}

// mapTMDB converts a TMDB id; ?type=movie|show narrows the lookup.
// GET /api/v1/mapping/tmdb/:id
func (s *Server) mapTMDB(c echo.Context) error {
	id := c.Param("id")
	mediaType := c.QueryParam("type")
	switch mediaType {
	case "", "movie", "show":
	default:
		return fmt.Errorf("%w: type must be movie or show", errBadRequest)
	}
	imdbID, err := s.engine.Metadata().MapTMDBToIMDb(c.Request().Context(), id, mediaType)
	return s.mappingResult(c, "tmdb", id, imdbID, err)
}

// mapTVDB converts a TVDB show id.
// GET /api/v1/mapping/tvdb/:id
func (s *Server) mapTVDB(c echo.Context) error {
	id := c.Param("id")
	imdbID, err := s.engine.Metadata().MapTVDBToIMDb(c.Request().Context(), id)
	return s.mappingResult(c, "tvdb", id, imdbID, err)
}

func (s *Server) mappingResult(c echo.Context, source, id, imdbID string, err error) error {
	if err != nil {
		return err
	}
	if imdbID == "" {
		return fmt.Errorf("%w: no imdb id for %s %s", errNotFound, source, id)
	}
	return c.JSON(http.StatusOK, map[string]string{"source": source, "id": id, "imdb_id": imdbID})
}
