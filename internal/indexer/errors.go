package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/reelscout/reelscout/internal/indexer/transport"
)

// Error codes for categorizing scrape failures
const (
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeSearch        = "SEARCH_ERROR"
	ErrCodeServer        = "SERVER_ERROR"
	ErrCodeConfiguration = "CONFIG_ERROR"
	ErrCodeCancelled     = "CANCELLED"
)

// Summary labels shown for failed instances.
const (
	LabelTimedOut  = "Timed Out"
	LabelFailed    = "Failed"
	LabelCancelled = "Cancelled"
)

// Common errors
var (
	ErrUnknownBackend    = errors.New("unknown backend type")
	ErrDuplicateInstance = errors.New("duplicate instance name")
	ErrMissingURL        = errors.New("instance has no url")
)

// IndexerError is a categorized failure of one instance during a scrape.
type IndexerError struct {
	Code     string
	Instance string
	Cause    error
}

// Error implements the error interface.
func (e *IndexerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Instance, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Instance)
}

// Unwrap returns the underlying error.
func (e *IndexerError) Unwrap() error {
	return e.Cause
}

// Label returns the summary label for the failure.
func (e *IndexerError) Label() string {
	switch e.Code {
	case ErrCodeTimeout:
		return LabelTimedOut
	case ErrCodeCancelled:
		return LabelCancelled
	default:
		return LabelFailed
	}
}

// Classify wraps an adapter error for the named instance. taskCtx is the
// task's own context; parentCtx is the caller's.
func Classify(instance string, err error, taskCtx, parentCtx context.Context) *IndexerError {
	code := ErrCodeSearch
	switch {
	case parentCtx.Err() != nil && errors.Is(parentCtx.Err(), context.Canceled):
		code = ErrCodeCancelled
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(taskCtx.Err(), context.DeadlineExceeded):
		code = ErrCodeTimeout
	case transport.IsServerError(err):
		code = ErrCodeServer
	case errors.Is(err, ErrMissingURL), errors.Is(err, ErrUnknownBackend):
		code = ErrCodeConfiguration
	}
	return &IndexerError{Code: code, Instance: instance, Cause: err}
}
