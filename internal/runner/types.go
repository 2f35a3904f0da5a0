package runner

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"loadq/internal/body"
	"loadq/internal/stats"
)

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError reports a configuration problem found before any request
// is sent.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidConfig}
	}
	return []error{ErrInvalidConfig, e.Err}
}

func invalid(field, reason string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

// Method is an HTTP method accepted by the runner.
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodHead   Method = http.MethodHead
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodPatch  Method = http.MethodPatch
	MethodDelete Method = http.MethodDelete
)

// ParseMethod parses a method name case-insensitively.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodGet, MethodHead, MethodPost, MethodPut, MethodPatch, MethodDelete:
		return m, nil
	}
	return "", invalid("method", fmt.Sprintf("'%s' is not a valid HTTP method", s), nil)
}

// AllowsBody reports whether requests with this method may carry a body.
func (m Method) AllowsBody() bool {
	return m != MethodGet && m != MethodHead
}

// TLSConfig points at PEM material for the client transport.
type TLSConfig struct {
	CAFile   string
	CertFile string
	KeyFile  string
	Insecure bool
}

// Config is the immutable description of a run.
type Config struct {
	URL         string
	Requests    int
	Concurrency int
	Method      Method
	Header      http.Header
	Body        body.Spec
	// Template renders every body as a text/template before sending.
	Template bool
	// OutputDir enables one JSON file per completed request.
	OutputDir string
	TLS       TLSConfig
	// Timeout bounds a single request; zero leaves it to the transport.
	Timeout time.Duration
}

// Outcome is the result of one completed request.
type Outcome struct {
	// Index is the 0-based submission index.
	Index    int
	Label    string
	Duration time.Duration
	Response *Response
	Err      error
}

func (o Outcome) Success() bool {
	return o.Err == nil
}

// StatusCode returns the response status, or 0 when no response was received.
func (o Outcome) StatusCode() int {
	if o.Response == nil {
		return 0
	}
	return o.Response.StatusCode
}

// Response is a captured HTTP response.
type Response struct {
	Proto      string
	StatusCode int
	Status     string
	Header     http.Header
	Body       string
	// DecodeErr is set when the body is not valid UTF-8 text.
	DecodeErr error
}

// StatusError is returned for responses with a 4xx or 5xx status.
type StatusError struct {
	URL      string
	Response *Response
}

func (e *StatusError) Error() string {
	kind := "client error"
	if e.Response.StatusCode >= 500 {
		kind = "server error"
	}
	return fmt.Sprintf("HTTP status %s (%s) for url (%s)", kind, e.Response.Status, e.URL)
}

// ProgressFunc receives the aggregated view after every completion. It runs
// on the aggregating goroutine, so a slow callback slows the run, and it must
// not retain the value's Durations slice.
type ProgressFunc func(stats.RunResult)
