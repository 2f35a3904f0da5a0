package body

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	ErrNotRegularFile = errors.New("not a regular file")
	ErrNoFiles        = errors.New("no body files found")
	ErrUnknownOrder   = errors.New("unknown order")
)

// Kind tags the variant held by a Spec.
type Kind int

const (
	KindLiteral Kind = iota
	KindFile
	KindDirectory
	KindManifest
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindManifest:
		return "manifest"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Order selects which candidate file serves a given request index.
type Order int

const (
	Sequential Order = iota
	Random
)

func (o Order) String() string {
	if o == Random {
		return "random"
	}
	return "sequential"
}

// ParseOrder parses "sequential" or "random", case-insensitively.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential", "seq":
		return Sequential, nil
	case "random", "rand":
		return Random, nil
	}
	return Sequential, fmt.Errorf("%w: %q", ErrUnknownOrder, s)
}

// Spec describes where request bodies come from.
type Spec struct {
	Kind  Kind
	Data  []byte
	Path  string
	Order Order
}

func Literal(data []byte) Spec { return Spec{Kind: KindLiteral, Data: data} }

func File(path string) Spec { return Spec{Kind: KindFile, Path: path} }

func Directory(path string, order Order) Spec {
	return Spec{Kind: KindDirectory, Path: path, Order: order}
}

func Manifest(path string, order Order) Spec {
	return Spec{Kind: KindManifest, Path: path, Order: order}
}

// IsEmpty reports whether no body is sent at all.
func (s Spec) IsEmpty() bool {
	return s.Kind == KindLiteral && len(s.Data) == 0
}

func (s Spec) String() string {
	switch s.Kind {
	case KindLiteral:
		return fmt.Sprintf("literal (%d bytes)", len(s.Data))
	case KindFile:
		return "file " + s.Path
	default:
		return fmt.Sprintf("%s %s (%s)", s.Kind, s.Path, s.Order)
	}
}

// Payload is the body resolved for one request.
type Payload struct {
	Data []byte
	// Label is the source file name without extension, empty for literal and
	// single-file bodies.
	Label string
}

// Source resolves the body for a request index. Implementations are safe for
// concurrent use.
type Source interface {
	Resolve(index int) (Payload, error)
}

// Open validates spec and returns a Source for it. File listings and single
// file contents are read here, once.
func Open(spec Spec) (Source, error) {
	switch spec.Kind {
	case KindLiteral:
		return staticSource{payload: Payload{Data: spec.Data}}, nil
	case KindFile:
		data, err := readRegular(spec.Path)
		if err != nil {
			return nil, err
		}
		return staticSource{payload: Payload{Data: data}}, nil
	case KindDirectory:
		files, err := listDirectory(spec.Path)
		if err != nil {
			return nil, err
		}
		return newFileSet(files, spec.Order), nil
	case KindManifest:
		files, err := readManifest(spec.Path)
		if err != nil {
			return nil, err
		}
		return newFileSet(files, spec.Order), nil
	}
	return nil, fmt.Errorf("unsupported body kind %s", spec.Kind)
}

type staticSource struct {
	payload Payload
}

func (s staticSource) Resolve(int) (Payload, error) {
	return s.payload, nil
}

type fileSet struct {
	files  []string
	labels []string
	order  Order
}

func newFileSet(files []string, order Order) *fileSet {
	labels := make([]string, len(files))
	for i, f := range files {
		base := filepath.Base(f)
		labels[i] = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &fileSet{files: files, labels: labels, order: order}
}

// Pick returns the position in the file list used for index.
func (s *fileSet) Pick(index int) int {
	if s.order == Random {
		return rand.IntN(len(s.files))
	}
	return index % len(s.files)
}

func (s *fileSet) Resolve(index int) (Payload, error) {
	i := s.Pick(index)
	data, err := os.ReadFile(s.files[i])
	if err != nil {
		return Payload{Label: s.labels[i]}, fmt.Errorf("read body file: %w", err)
	}
	return Payload{Data: data, Label: s.labels[i]}, nil
}

func readRegular(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("body file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("body file %s: %w", path, ErrNotRegularFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("body file: %w", err)
	}
	return data, nil
}

func listDirectory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("body directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("body directory %s: %w", dir, ErrNoFiles)
	}

	slices.Sort(files)
	return files, nil
}

// readManifest parses one body file path per line. Blank lines and lines
// starting with '#' are skipped; relative paths are resolved against the
// manifest's own directory.
func readManifest(path string) ([]string, error) {
	data, err := readRegular(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	base := filepath.Dir(path)
	var files []string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		files = append(files, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("manifest %s: %w", path, ErrNoFiles)
	}

	return files, nil
}
