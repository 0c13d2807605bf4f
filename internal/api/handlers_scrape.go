package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/reelscout/reelscout/internal/config"
	"github.com/reelscout/reelscout/internal/indexer/types"
)

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

// scrape runs the full pipeline for the query in the body.
// POST /api/v1/scrape
func (s *Server) scrape(c echo.Context) error {
	var q types.Query
	if err := c.Bind(&q); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	q.IMDbID = strings.TrimSpace(q.IMDbID)
	q.ContentType = types.ContentType(strings.ToLower(string(q.ContentType)))

	resp, err := s.engine.Scrape(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

type versionInfo struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// listVersions returns the configured version profile names.
// GET /api/v1/versions
func (s *Server) listVersions(c echo.Context) error {
	names := s.engine.Settings().VersionNames()
	out := make([]versionInfo, len(names))
	for i, n := range names {
		out[i] = versionInfo{Name: n, Default: n == config.DefaultVersion}
	}
	return c.JSON(http.StatusOK, out)
}
