package trakt

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("trakt: not found")
	ErrUnauthorized  = errors.New("trakt: unauthorized")
	ErrDeferred      = errors.New("trakt: request deferred to background retry")
	ErrNoCredentials = errors.New("trakt: client id is not configured")
)

// StatusError is returned for non-2xx responses not covered by a sentinel.
type StatusError struct {
	Code   int
	Method string
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("trakt: %s %s returned status %d", e.Method, e.Path, e.Code)
}

// DeferredError reports a 500 whose retry continues in the background.
// errors.Is(err, ErrDeferred) holds for it.
type DeferredError struct {
	Method string
	Path   string
}

func (e *DeferredError) Error() string {
	return fmt.Sprintf("trakt: %s %s deferred to background retry", e.Method, e.Path)
}

// Is matches ErrDeferred.
func (e *DeferredError) Is(target error) bool {
	return target == ErrDeferred
}
