package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"loadq/internal/persist"
)

// Executor issues single requests on a shared client.
type Executor struct {
	client HTTPClient
	// capture keeps the response body; otherwise it is drained and dropped.
	capture bool
}

func NewExecutor(client HTTPClient, capture bool) *Executor {
	return &Executor{client: client, capture: capture}
}

// Do sends one request. GET and HEAD requests never carry the payload. A
// response with a 4xx or 5xx status is returned together with a *StatusError.
func (e *Executor) Do(ctx context.Context, method Method, url string, header http.Header, payload []byte) (*Response, error) {
	var reader io.Reader
	if len(payload) > 0 && method.AllowsBody() {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, string(method), url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if header != nil {
		req.Header = header.Clone()
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := &Response{
		Proto:      resp.Proto,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
	}

	if e.capture {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		res.Body = string(b)
		if !utf8.Valid(b) {
			res.DecodeErr = persist.ErrUndecodable
		}
	} else if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return res, &StatusError{URL: url, Response: res}
	}
	return res, nil
}
