package omerokv

import (
	"errors"
	"fmt"
)

var (
	// ErrQueryUnavailable is returned when the external store cannot perform a lookup,
	// whether due to connectivity, permission, or a service fault.
	ErrQueryUnavailable = errors.New("query unavailable")

	// ErrNotFound is returned when no object matches a name or id.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguousName is returned when more than one object shares a name.
	ErrAmbiguousName = errors.New("ambiguous name")

	// ErrUnauthorized is returned when the session is missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrIncompatibleServer is returned when the server API version is too old.
	ErrIncompatibleServer = errors.New("incompatible server")
)

// QueryError records the annotation lookup that failed.  It unwraps to both
// ErrQueryUnavailable and the underlying cause.
type QueryError struct {
	Key   string
	Value string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%v for %s=%s: %v", ErrQueryUnavailable, e.Key, e.Value, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{ErrQueryUnavailable, e.Err}
}
