package netclient

import (
	"errors"
	"fmt"
)

// Kind classifies a request failure.
type Kind string

const (
	// KindTransport means no response was received.
	KindTransport Kind = "transport"
	// KindStatus means the server answered with a non-2xx status.
	KindStatus Kind = "status"
	// KindEncode means the request could not be built.
	KindEncode Kind = "encode"
	// KindDecode means the response body was not the expected JSON.
	KindDecode Kind = "decode"
	// KindCanceled means the context ended first.
	KindCanceled Kind = "canceled"
)

// Error describes a failed request.
type Error struct {
	Kind       Kind
	Method     string
	URL        string
	StatusCode int    // set for KindStatus and KindDecode
	Body       string // leading bytes of a non-2xx response
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	case KindCanceled:
		return fmt.Sprintf("%s %s: canceled: %v", e.Method, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s %s: %s error: %v", e.Method, e.URL, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transport failure worth another try.
func IsRetryable(err error) bool {
	var nerr *Error
	return errors.As(err, &nerr) && nerr.Kind == KindTransport
}

// KindOf returns the kind of a netclient error, or "" for other errors.
func KindOf(err error) Kind {
	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr.Kind
	}
	return ""
}
