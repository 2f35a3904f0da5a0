package runner

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Validate checks the configuration and fills in defaults. It does not touch
// the filesystem; body sources and TLS material are checked by NewRunner.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return invalid("url", "target URL is required", nil)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return invalid("url", "cannot parse target URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("url", fmt.Sprintf("unsupported scheme %q", u.Scheme), nil)
	}
	if u.Host == "" {
		return invalid("url", "target URL has no host", nil)
	}

	if c.Requests <= 0 {
		return invalid("requests", "total requests must be greater than 0", nil)
	}
	if c.Concurrency <= 0 {
		return invalid("concurrency", "concurrency must be greater than 0", nil)
	}
	if c.Concurrency > c.Requests {
		return invalid("concurrency", fmt.Sprintf("concurrency (%d) cannot exceed total requests (%d)", c.Concurrency, c.Requests), nil)
	}

	if c.Method == "" {
		c.Method = MethodGet
	}
	m, err := ParseMethod(string(c.Method))
	if err != nil {
		return err
	}
	c.Method = m

	if !c.Method.AllowsBody() && !c.Body.IsEmpty() {
		return invalid("body", fmt.Sprintf("%s requests cannot send a %s body", c.Method, c.Body.Kind), nil)
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return invalid("tls", "client certificate and key must be given together", nil)
	}
	if c.Timeout < 0 {
		return invalid("timeout", "timeout cannot be negative", nil)
	}

	if c.Header == nil {
		c.Header = http.Header{}
	}
	return nil
}

// ParseHeaders parses "Name: Value" lines into a header collection.
func ParseHeaders(lines []string) (http.Header, error) {
	h := http.Header{}
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, invalid("header", fmt.Sprintf("'%s' is not in \"Name: Value\" format", line), nil)
		}
		if strings.ContainsAny(name, " \t") {
			return nil, invalid("header", fmt.Sprintf("invalid header name '%s'", name), nil)
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h, nil
}
