// Package api serves the engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	apimw "github.com/reelscout/reelscout/internal/api/middleware"
	"github.com/reelscout/reelscout/internal/api/ratelimit"
	"github.com/reelscout/reelscout/internal/config"
	"github.com/reelscout/reelscout/internal/engine"
	"github.com/reelscout/reelscout/internal/indexer/types"
	"github.com/reelscout/reelscout/internal/metadata"
	"github.com/reelscout/reelscout/internal/profile"
)

// Server handles HTTP requests for the engine.
type Server struct {
	echo    *echo.Echo
	engine  *engine.Engine
	limiter *ratelimit.IPLimiter
	logFile string
	logger  zerolog.Logger
}

// NewServer creates the server and registers every route. logFile is the
// active log file served by the logs endpoint and may be empty.
func NewServer(e *engine.Engine, cfg config.ServerConfig, logFile string, logger zerolog.Logger) *Server {
	ec := echo.New()
	ec.HideBanner = true
	ec.HidePort = true

	s := &Server{
		echo:    ec,
		engine:  e,
		limiter: ratelimit.NewIPLimiter(cfg.ScrapesPerMinute, ratelimit.DefaultWindow),
		logFile: logFile,
		logger:  logger.With().Str("component", "api").Logger(),
	}
	ec.HTTPErrorHandler = s.errorHandler

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())
	s.echo.Use(middleware.BodyLimit("1M"))
	s.echo.Use(apimw.Metrics(s.engine.Metrics()))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Debug()
			if v.Error != nil {
				event = s.logger.Warn().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("requestId", v.RequestID).
				Msg("request")
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", echo.WrapHandler(s.engine.Metrics().Handler()))

	api := s.echo.Group("/api/v1")
	api.POST("/scrape", s.scrape, s.limiter.Middleware())
	api.GET("/versions", s.listVersions)

	md := api.Group("/metadata")
	md.GET("/movies/:imdb", s.getMovie)
	md.GET("/shows/:imdb", s.getShow)
	md.GET("/shows/:imdb/seasons", s.getSeasons)
	md.GET("/episodes/:imdb", s.getEpisode)
	md.POST("/:imdb/refresh", s.refreshMetadata)
	md.DELETE("/:imdb", s.removeMetadata)

	mapping := api.Group("/mapping")
	mapping.GET("/tmdb/:id", s.mapTMDB)
	mapping.GET("/tvdb/:id", s.mapTVDB)

	NewLogsHandlers(s.logFile).RegisterRoutes(api.Group("/logs"))
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	if err := s.engine.DB().Conn().PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// errorHandler maps domain errors to status codes and writes {"error": msg}.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := err.Error()

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	case errors.Is(err, types.ErrInvalidContentType),
		errors.Is(err, config.ErrUnknownVersion),
		errors.Is(err, profile.ErrInvalidProfile),
		errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
	case errors.Is(err, engine.ErrNoTitle),
		errors.Is(err, metadata.ErrNotCached),
		errors.Is(err, errNotFound):
		code = http.StatusNotFound
	case errors.Is(err, metadata.ErrWrongType):
		code = http.StatusConflict
	case errors.Is(err, context.Canceled):
		// Client went away.
		code = 499
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("request failed")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}
