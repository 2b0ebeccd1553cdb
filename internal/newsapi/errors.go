package newsapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel conditions a [*StatusError] matches through errors.Is.
var (
	ErrNotFound      = errors.New("not found on server")
	ErrAlreadyExists = errors.New("already exists on server")
	ErrUnprocessable = errors.New("rejected as invalid or unreadable")
	ErrServerTooOld  = errors.New("not supported by this server version, please update the News app on your server")
	ErrUnauthorized  = errors.New("invalid credentials")
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: server returned %d", e.Endpoint, e.Code)
	if s := e.condition(); s != nil {
		msg += ": " + s.Error()
	}
	if e.Body != "" {
		msg += " (" + e.Body + ")"
	}
	return msg
}

// Is maps the HTTP status to the package sentinels.
func (e *StatusError) Is(target error) bool {
	c := e.condition()
	return c != nil && c == target
}

func (e *StatusError) condition() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrAlreadyExists
	case http.StatusUnprocessableEntity:
		return ErrUnprocessable
	case http.StatusMethodNotAllowed:
		return ErrServerTooOld
	case http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return nil
	}
}

// TransportError wraps failures that prevented a response from arriving at
// all: no connectivity, DNS, TLS, timeouts, cancellation.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is returned when a response body is not the expected JSON.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decoding response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsTransport reports whether err (or anything it wraps) is a [*TransportError].
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDecode reports whether err (or anything it wraps) is a [*DecodeError].
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsStatus reports whether err (or anything it wraps) is a [*StatusError].
func IsStatus(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
