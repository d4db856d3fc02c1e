package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrRemoteUnavailable indicates the remote API could not be reached.
	ErrRemoteUnavailable = errors.New("transport: remote unavailable")
	// ErrMalformedBody indicates the response body was not valid JSON.
	ErrMalformedBody = errors.New("transport: malformed response body")
)

// maxErrorBody bounds how much of a failed response body is kept on the error.
const maxErrorBody = 512

// Error is returned for non-2xx responses and undecodable bodies. It carries
// the raw status code and a truncated copy of the body so callers can report
// the failure without ever re-reading the response.
type Error struct {
	// StatusCode is the HTTP status code, 0 when the request never completed.
	StatusCode int
	// Body is the response body, truncated to maxErrorBody bytes.
	Body string
	// Message is the remote error message when the body carried one.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("transport: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("transport: status %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("transport: status %d, body: %s", e.StatusCode, e.Body)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// truncate bounds body text kept on errors.
func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody])
	}
	return string(b)
}
