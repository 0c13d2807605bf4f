package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
)

// LogsHandlers serves the rotating log file.
type LogsHandlers struct {
	path string
}

// NewLogsHandlers creates handlers for the log file at path.
func NewLogsHandlers(path string) *LogsHandlers {
	return &LogsHandlers{path: path}
}

// RegisterRoutes registers log routes on the given group.
func (h *LogsHandlers) RegisterRoutes(g *echo.Group) {
	g.GET("/download", h.DownloadLogFile)
}

// DownloadLogFile serves the current log file for download.
func (h *LogsHandlers) DownloadLogFile(c echo.Context) error {
	if h.path == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no log file configured")
	}
	if _, err := os.Stat(h.path); errors.Is(err, fs.ErrNotExist) {
		return echo.NewHTTPError(http.StatusNotFound, "log file not found")
	}
	return c.Attachment(h.path, filepath.Base(h.path))
}
