package body

import (
	"bufio"
	"bytes"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/google/uuid"
)

// TemplateData is passed to every body template execution.
type TemplateData struct {
	Index int
	Seq   int
	RunID string
	UUID  string
	Label string
}

// TemplateEngine parses and executes body templates. Parsed templates and
// files read by randomLine are cached for the lifetime of the engine.
type TemplateEngine struct {
	funcMap template.FuncMap

	mu        sync.RWMutex
	templates map[string]*template.Template
	fileCache map[string][]string
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*template.Template),
		fileCache: make(map[string][]string),
	}

	e.funcMap = sprig.TxtFuncMap()
	e.funcMap["randomInt"] = e.randomInt
	e.funcMap["randomUUID"] = e.randomUUID
	e.funcMap["randomChoice"] = e.randomChoice
	e.funcMap["randomLine"] = e.randomLine

	return e
}

// Preprocess converts the bare shorthands {{index}}, {{seq}}, {{runID}} and
// {{requestID}} to field access.
func (e *TemplateEngine) Preprocess(input string) string {
	r := strings.NewReplacer(
		"{{index}}", "{{.Index}}",
		"{{seq}}", "{{.Seq}}",
		"{{runID}}", "{{.RunID}}",
		"{{requestID}}", "{{.UUID}}",
	)
	return r.Replace(input)
}

// Parse returns the cached template for text, parsing it on first use.
func (e *TemplateEngine) Parse(text string) (*template.Template, error) {
	e.mu.RLock()
	t, ok := e.templates[text]
	e.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := template.New("body").Funcs(e.funcMap).Parse(e.Preprocess(text))
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}

	e.mu.Lock()
	e.templates[text] = t
	e.mu.Unlock()
	return t, nil
}

func (e *TemplateEngine) Render(text []byte, data TemplateData) ([]byte, error) {
	t, err := e.Parse(string(text))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute body template: %w", err)
	}
	return buf.Bytes(), nil
}

type templatedSource struct {
	src    Source
	engine *TemplateEngine
	runID  string
}

// Templated wraps src so that every resolved payload is rendered as a template.
func Templated(src Source, engine *TemplateEngine, runID string) Source {
	return &templatedSource{src: src, engine: engine, runID: runID}
}

func (s *templatedSource) Resolve(index int) (Payload, error) {
	p, err := s.src.Resolve(index)
	if err != nil {
		return p, err
	}
	data, err := s.engine.Render(p.Data, TemplateData{
		Index: index,
		Seq:   index + 1,
		RunID: s.runID,
		UUID:  uuid.NewString(),
		Label: p.Label,
	})
	if err != nil {
		return Payload{Label: p.Label}, err
	}
	p.Data = data
	return p, nil
}

func (e *TemplateEngine) randomInt(min, max int) int {
	if max <= min {
		return min
	}
	return rand.IntN(max-min) + min
}

func (e *TemplateEngine) randomUUID() string {
	return uuid.NewString()
}

func (e *TemplateEngine) randomChoice(choices ...string) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[rand.IntN(len(choices))]
}

func (e *TemplateEngine) randomLine(filename string) (string, error) {
	e.mu.RLock()
	lines, ok := e.fileCache[filename]
	e.mu.RUnlock()

	if !ok {
		var err error
		if lines, err = e.loadLines(filename); err != nil {
			return "", err
		}
	}

	if len(lines) == 0 {
		return "", nil
	}
	return lines[rand.IntN(len(lines))], nil
}

func (e *TemplateEngine) loadLines(filename string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Double check
	if lines, ok := e.fileCache[filename]; ok {
		return lines, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file '%s': %w", filename, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	var loaded []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			loaded = append(loaded, line)
		}
	}

	e.fileCache[filename] = loaded
	return loaded, nil
}
