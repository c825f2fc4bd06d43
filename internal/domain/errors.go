package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed fetch.
type ErrorKind string

const (
	ErrKindNetwork    ErrorKind = "network"
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindHTTPStatus ErrorKind = "http_status"
	ErrKindMalformed  ErrorKind = "malformed_payload"
	ErrKindCanceled   ErrorKind = "canceled"
	ErrKindUnknown    ErrorKind = "unknown"
)

// FetchError is a failure reported by the fetcher adapter.
// It is recorded in CurrentState and never escalated past the sampler.
type FetchError struct {
	Kind   ErrorKind
	Status int // HTTP status, only for ErrKindHTTPStatus
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == ErrKindHTTPStatus && e.Err != nil:
		return fmt.Sprintf("fetch failed (%s %d): %v", e.Kind, e.Status, e.Err)
	case e.Kind == ErrKindHTTPStatus:
		return fmt.Sprintf("fetch failed (%s %d)", e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch failed (%s): %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch failed (%s)", e.Kind)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err with the given kind.
func NewFetchError(kind ErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// AsFetchError returns err as a *FetchError, classifying it when it is not one already.
func AsFetchError(err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Kind: Classify(err), Err: err}
}

// Classify maps a transport-level error to an ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ErrKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrKindCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrKindTimeout
		}
		return ErrKindNetwork
	}

	return ErrKindUnknown
}

// ErrInvalidConfig is matched by every ConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError reports an invalid construction parameter. It is fatal and never
// occurs once the engine is running.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }
