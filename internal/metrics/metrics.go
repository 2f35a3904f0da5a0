// Package metrics exposes run progress in the Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"loadq/internal/runner"
)

// Recorder holds the collectors for one run on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NewRecorder registers the run collectors. inflight, when not nil, backs the
// in-flight gauge.
func NewRecorder(inflight func() int64) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loadq_requests_total",
			Help: "Completed requests by result and status code",
		}, []string{"result", "code"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "loadq_request_duration_seconds",
			Help:    "Latency distribution of successful requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
	}
	r.registry.MustRegister(r.requests, r.latency)

	if inflight != nil {
		r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "loadq_in_flight_requests",
			Help: "Requests currently in flight",
		}, func() float64 { return float64(inflight()) }))
	}

	return r
}

// Observe records one outcome. It has the signature expected by
// runner.WithObserver.
func (r *Recorder) Observe(o runner.Outcome) {
	result := "failure"
	if o.Success() {
		result = "success"
		r.latency.Observe(o.Duration.Seconds())
	}
	r.requests.WithLabelValues(result, strconv.Itoa(o.StatusCode())).Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("component", "metrics").
		Str("addr", addr).
		Msg("prometheus metrics endpoint available at /metrics")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
