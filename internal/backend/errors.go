package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse marks a 2xx response whose body did not have the
// expected shape.
var ErrMalformedResponse = errors.New("malformed response")

// NetworkError means the request did not complete: dial failure, reset
// connection, cancelled context, unreadable body.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BackendError means the request completed but the backend answered with an
// error status or a body we could not use.
type BackendError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Message)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient failure worth a
// user-initiated retry. Validation and auth errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var beErr *BackendError
	if errors.As(err, &beErr) {
		return beErr.Status >= http.StatusInternalServerError || beErr.Status == http.StatusTooManyRequests
	}
	return false
}

// IsNotFound reports whether the backend answered 404.
func IsNotFound(err error) bool {
	var beErr *BackendError
	return errors.As(err, &beErr) && beErr.Status == http.StatusNotFound
}

// IsUnauthorized reports whether the backend rejected our credentials.
func IsUnauthorized(err error) bool {
	var beErr *BackendError
	return errors.As(err, &beErr) && (beErr.Status == http.StatusUnauthorized || beErr.Status == http.StatusForbidden)
}
