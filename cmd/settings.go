package cmd

import (
	"strings"
	"time"

	"loadq/internal/body"
	"loadq/internal/runner"
)

// settings is the merged view of flags, LOADQ_* variables and the config
// file. It is turned into a runner.Config, which validates it.
type settings struct {
	Requests    int           `mapstructure:"requests"`
	Concurrency int           `mapstructure:"concurrency"`
	Method      string        `mapstructure:"method"`
	Headers     []string      `mapstructure:"header"`
	Data        string        `mapstructure:"data"`
	DataFile    string        `mapstructure:"data-file"`
	DataDir     string        `mapstructure:"data-dir"`
	Manifest    string        `mapstructure:"manifest"`
	Order       string        `mapstructure:"order"`
	Template    bool          `mapstructure:"template"`
	Output      string        `mapstructure:"output"`
	CACert      string        `mapstructure:"cacert"`
	Cert        string        `mapstructure:"cert"`
	Key         string        `mapstructure:"key"`
	Insecure    bool          `mapstructure:"insecure"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Debug       bool          `mapstructure:"debug"`
	NoTUI       bool          `mapstructure:"no-tui"`
	NoHistory   bool          `mapstructure:"no-history"`
	HistoryFile string        `mapstructure:"history-file"`
	MetricsAddr string        `mapstructure:"metrics-addr"`
	FailOnError bool          `mapstructure:"fail-on-error"`
	Verbose     bool          `mapstructure:"verbose"`
}

// bodySpec picks the single configured body source.
func (s settings) bodySpec() (body.Spec, error) {
	order, err := body.ParseOrder(s.Order)
	if err != nil {
		return body.Spec{}, &runner.ValidationError{Field: "order", Reason: "must be sequential or random", Err: err}
	}

	var specs []body.Spec
	var names []string
	if s.Data != "" {
		specs = append(specs, body.Literal([]byte(s.Data)))
		names = append(names, "--data")
	}
	if s.DataFile != "" {
		specs = append(specs, body.File(s.DataFile))
		names = append(names, "--data-file")
	}
	if s.DataDir != "" {
		specs = append(specs, body.Directory(s.DataDir, order))
		names = append(names, "--data-dir")
	}
	if s.Manifest != "" {
		specs = append(specs, body.Manifest(s.Manifest, order))
		names = append(names, "--manifest")
	}

	switch len(specs) {
	case 0:
		return body.Literal(nil), nil
	case 1:
		return specs[0], nil
	}
	return body.Spec{}, &runner.ValidationError{
		Field:  "body",
		Reason: "only one of " + strings.Join(names, ", ") + " may be given",
	}
}

func (s settings) runnerConfig(url string) (runner.Config, error) {
	header, err := runner.ParseHeaders(s.Headers)
	if err != nil {
		return runner.Config{}, err
	}

	spec, err := s.bodySpec()
	if err != nil {
		return runner.Config{}, err
	}

	cfg := runner.Config{
		URL:         url,
		Requests:    s.Requests,
		Concurrency: s.Concurrency,
		Method:      runner.Method(s.Method),
		Header:      header,
		Body:        spec,
		Template:    s.Template,
		OutputDir:   s.Output,
		TLS: runner.TLSConfig{
			CAFile:   s.CACert,
			CertFile: s.Cert,
			KeyFile:  s.Key,
			Insecure: s.Insecure,
		},
		Timeout: s.Timeout,
	}
	if err := cfg.Validate(); err != nil {
		return runner.Config{}, err
	}
	return cfg, nil
}
