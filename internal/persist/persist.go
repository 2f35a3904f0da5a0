// Package persist writes one JSON file per completed request.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrUndecodable is returned when a response body cannot be stored as text.
var ErrUndecodable = errors.New("response body is not valid text")

// SuccessRecord is the document stored for a successful request.
type SuccessRecord struct {
	Version    string              `json:"version"`
	Status     int                 `json:"status"`
	Headers    map[string][]string `json:"headers"`
	Body       string              `json:"body"`
	DurationMs float64             `json:"duration_ms"`
}

// FailureRecord is the document stored for a failed request.
type FailureRecord struct {
	Error string `json:"error"`
}

// Persister writes records into a directory. Writes for different indices
// are independent and may run concurrently.
type Persister struct {
	dir   string
	total int
}

// New creates dir, including parents, and returns a Persister for a run of
// total requests.
func New(dir string, total int) (*Persister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Persister{dir: dir, total: total}, nil
}

func (p *Persister) Dir() string {
	return p.dir
}

// FileName returns the name for the request at the 0-based index of a run of
// total requests: {success|failure}-{index+1, zero-padded}[-label].json.
func FileName(success bool, index, total int, label string) string {
	kind := "failure"
	if success {
		kind = "success"
	}
	width := len(strconv.Itoa(total))
	name := fmt.Sprintf("%s-%0*d", kind, width, index+1)
	if label != "" {
		name += "-" + label
	}
	return name + ".json"
}

// WriteSuccess stores rec for the request at index.
func (p *Persister) WriteSuccess(index int, label string, rec SuccessRecord) error {
	return p.write(FileName(true, index, p.total, label), rec)
}

// WriteFailure stores the stringified err for the request at index.
func (p *Persister) WriteFailure(index int, label string, err error) error {
	return p.write(FileName(false, index, p.total, label), FailureRecord{Error: err.Error()})
}

func (p *Persister) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(p.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Milliseconds converts d for SuccessRecord.DurationMs.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
