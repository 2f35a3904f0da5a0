package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"loadq/internal/body"
	"loadq/internal/persist"
	"loadq/internal/stats"
)

// Runner executes a configured run: at most Concurrency requests in flight
// until Requests have been sent.
type Runner struct {
	Cfg Config

	client    HTTPClient
	source    body.Source
	runID     string
	observers []func(Outcome)

	inflight int64
}

type Option func(*Runner)

// WithClient replaces the client built from the TLS and timeout settings.
func WithClient(c HTTPClient) Option {
	return func(r *Runner) { r.client = c }
}

// WithObserver registers fn to see every outcome before it is aggregated.
// Observers run on the aggregating goroutine.
func WithObserver(fn func(Outcome)) Option {
	return func(r *Runner) { r.observers = append(r.observers, fn) }
}

// WithRunID sets the identifier exposed to body templates.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// NewRunner validates cfg, opens its body source and builds the client.
// Every error it returns is a *ValidationError.
func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{Cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}

	src, err := body.Open(cfg.Body)
	if err != nil {
		return nil, invalid("body", fmt.Sprintf("cannot use %s", cfg.Body), err)
	}
	if cfg.Template {
		src = body.Templated(src, body.NewTemplateEngine(), r.runID)
	}
	r.source = src

	if r.client == nil {
		c, err := NewHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
		r.client = c
	}

	return r, nil
}

// Inflight returns the number of requests currently being executed.
func (r *Runner) Inflight() int64 {
	return atomic.LoadInt64(&r.inflight)
}

// Run sends the configured requests and returns the final statistics.
//
// Completions are aggregated one at a time, in completion order, on the
// calling goroutine; progress is invoked after each one. When ctx is
// cancelled or a response cannot be persisted, no further requests are
// started, in-flight requests are aborted and their outcomes dropped, and
// the partial result is returned together with the error.
func (r *Runner) Run(ctx context.Context, progress ProgressFunc) (stats.RunResult, error) {
	var persister *persist.Persister
	if r.Cfg.OutputDir != "" {
		p, err := persist.New(r.Cfg.OutputDir, r.Cfg.Requests)
		if err != nil {
			return stats.RunResult{Total: r.Cfg.Requests}, err
		}
		persister = p
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Debug().
		Str("component", "runner").
		Str("url", r.Cfg.URL).
		Str("method", string(r.Cfg.Method)).
		Int("requests", r.Cfg.Requests).
		Int("concurrency", r.Cfg.Concurrency).
		Msg("starting run")

	start := time.Now()
	agg := stats.NewAggregator(r.Cfg.Requests, start)
	outcomes := make(chan Outcome, r.Cfg.Concurrency)

	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < r.Cfg.Concurrency; w++ {
		g.Go(func() error {
			r.work(gctx, &next, outcomes)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(outcomes)
	}()

	var runErr error
	for o := range outcomes {
		if runErr != nil {
			// draining after a fatal error
			continue
		}

		if persister != nil {
			if err := r.persist(persister, o); err != nil {
				log.Error().
					Str("component", "runner").
					Int("index", o.Index).
					Err(err).
					Msg("cannot persist response, aborting run")
				runErr = err
				cancel()
				continue
			}
		}

		for _, fn := range r.observers {
			fn(o)
		}

		res := agg.Add(o.Success(), o.Duration)
		if progress != nil {
			progress(res)
		}
	}

	result := agg.Finish()
	if runErr == nil && result.Completed < r.Cfg.Requests {
		runErr = ctx.Err()
	}

	log.Debug().
		Str("component", "runner").
		Int("success", result.Success).
		Int("failures", result.Failures).
		Dur("elapsed", result.Elapsed).
		Msg("run finished")

	return result, runErr
}

func (r *Runner) work(ctx context.Context, next *atomic.Int64, out chan<- Outcome) {
	executor := NewExecutor(r.client, r.Cfg.OutputDir != "")
	for {
		if ctx.Err() != nil {
			return
		}
		i := int(next.Add(1) - 1)
		if i >= r.Cfg.Requests {
			return
		}

		o := r.execute(ctx, executor, i)
		if ctx.Err() != nil {
			return
		}

		select {
		case out <- o:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) execute(ctx context.Context, executor *Executor, index int) Outcome {
	payload, err := r.source.Resolve(index)
	o := Outcome{Index: index, Label: payload.Label}
	if err != nil {
		o.Err = err
		return o
	}

	atomic.AddInt64(&r.inflight, 1)
	defer atomic.AddInt64(&r.inflight, -1)

	start := time.Now()
	o.Response, o.Err = executor.Do(ctx, r.Cfg.Method, r.Cfg.URL, r.Cfg.Header, payload.Data)
	o.Duration = time.Since(start)

	return o
}

func (r *Runner) persist(p *persist.Persister, o Outcome) error {
	if o.Err != nil {
		return p.WriteFailure(o.Index, o.Label, o.Err)
	}
	if o.Response.DecodeErr != nil {
		return fmt.Errorf("request %d: %w", o.Index+1, o.Response.DecodeErr)
	}
	return p.WriteSuccess(o.Index, o.Label, persist.SuccessRecord{
		Version:    o.Response.Proto,
		Status:     o.Response.StatusCode,
		Headers:    o.Response.Header,
		Body:       o.Response.Body,
		DurationMs: persist.Milliseconds(o.Duration),
	})
}

// Debug sends exactly one request, using the body for index 0, and returns
// the captured response. Error statuses are returned as responses, not errors.
func (r *Runner) Debug(ctx context.Context) (*Response, error) {
	payload, err := r.source.Resolve(0)
	if err != nil {
		return nil, err
	}

	resp, err := NewExecutor(r.client, true).Do(ctx, r.Cfg.Method, r.Cfg.URL, r.Cfg.Header, payload.Data)
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Response, nil
	}
	return resp, err
}
