package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
)

// HTTPObserver records served requests.
type HTTPObserver interface {
	ObserveHTTP(method, path string, status int, elapsed time.Duration)
}

// Metrics reports each request under its route template so ids in the URL
// do not create new label values. Unmatched routes are reported as "unmatched".
func Metrics(o HTTPObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			// The error handler runs here so the recorded status is the one written.
			if err := next(c); err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			o.ObserveHTTP(c.Request().Method, path, c.Response().Status, time.Since(start))
			return nil
		}
	}
}
