package runner

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	TCPDialTimeout        = 5 * time.Second
	TCPKeepAliveInterval  = 30 * time.Second
	TLSHandshakeTimeout   = 10 * time.Second
	IdleConnTimeout       = 90 * time.Second
	ExpectContinueTimeout = 1 * time.Second
)

// HTTPClient is the transport capability the executor needs. *http.Client
// satisfies it and is safe for concurrent use.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// NewHTTPClient builds a pooled client sized for cfg.Concurrency with the
// configured TLS material loaded.
func NewHTTPClient(cfg Config) (*http.Client, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = cfg.Concurrency
	t.MaxIdleConnsPerHost = cfg.Concurrency
	t.IdleConnTimeout = IdleConnTimeout
	t.ForceAttemptHTTP2 = true
	t.DialContext = (&net.Dialer{
		Timeout:   TCPDialTimeout,
		KeepAlive: TCPKeepAliveInterval,
	}).DialContext
	t.TLSHandshakeTimeout = TLSHandshakeTimeout
	t.ExpectContinueTimeout = ExpectContinueTimeout

	tlsCfg, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	t.TLSClientConfig = tlsCfg

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: t,
	}, nil
}

func buildTLSConfig(c TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: c.Insecure,
	}

	// mTLS
	if c.CertFile != "" || c.KeyFile != "" {
		if c.CertFile == "" || c.KeyFile == "" {
			return nil, invalid("tls", "client certificate and key must be given together", nil)
		}
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, invalid("tls", "failed to load client certificate", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		caCert, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, invalid("tls", "failed to read CA certificate", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, invalid("tls", fmt.Sprintf("no PEM certificates found in %s", c.CAFile), nil)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}
