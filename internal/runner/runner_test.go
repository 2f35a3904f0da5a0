package runner

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadq/internal/body"
	"loadq/internal/dummy"
	"loadq/internal/persist"
	"loadq/internal/stats"
)

func newRunner(t *testing.T, cfg Config, opts ...Option) *Runner {
	t.Helper()
	r, err := NewRunner(cfg, opts...)
	require.NoError(t, err)
	return r
}

func outputFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRunner_AlwaysSucceeds(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	vars := []struct {
		name        string
		requests    int
		concurrency int
	}{
		{name: "Single", requests: 1, concurrency: 1},
		{name: "Sequential", requests: 5, concurrency: 1},
		{name: "Uneven", requests: 50, concurrency: 7},
		{name: "AllAtOnce", requests: 20, concurrency: 20},
	}

	for _, v := range vars {
		t.Run(v.name, func(t *testing.T) {
			r := newRunner(t, Config{URL: srv.URL + "/ok", Requests: v.requests, Concurrency: v.concurrency})

			res, err := r.Run(context.Background(), nil)
			require.NoError(t, err)

			assert.Equal(t, v.requests, res.Success)
			assert.Equal(t, 0, res.Failures)
			assert.Equal(t, v.requests, res.Completed)
			assert.Len(t, res.Durations, v.requests)
			assert.True(t, res.Finished)
			assert.True(t, slices.IsSorted(res.Durations))
			assert.Equal(t, res.TotalDuration/time.Duration(v.requests), res.Avg)
			assert.LessOrEqual(t, res.P50, res.P90)
			assert.LessOrEqual(t, res.P90, res.P95)
			assert.Greater(t, res.RPS, 0.0)
			assert.Equal(t, int64(0), r.Inflight())
		})
	}
}

func TestRunner_AlwaysFails(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	r := newRunner(t, Config{URL: srv.URL + "/fail", Requests: 12, Concurrency: 3})
	res, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Success)
	assert.Equal(t, 12, res.Failures)
	assert.Equal(t, 0.0, res.RPS)
	assert.Equal(t, 100.0, res.ErrorRate())
}

func TestRunner_ConcurrencyBound(t *testing.T) {
	var current, peak atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		defer current.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newRunner(t, Config{URL: srv.URL, Requests: 30, Concurrency: 4})

	var observedInflight int64
	res, err := r.Run(context.Background(), func(stats.RunResult) {
		if n := r.Inflight(); n > observedInflight {
			observedInflight = n
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 30, res.Success)
	assert.LessOrEqual(t, peak.Load(), int64(4))
	assert.Greater(t, peak.Load(), int64(1))
	assert.LessOrEqual(t, observedInflight, int64(4))
}

func TestRunner_ProgressPerCompletion(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	r := newRunner(t, Config{URL: srv.URL + "/ok", Requests: 25, Concurrency: 5})

	var seen []int
	res, err := r.Run(context.Background(), func(p stats.RunResult) {
		assert.Equal(t, p.Completed, p.Success+p.Failures)
		assert.Equal(t, 25, p.Total)
		assert.False(t, p.Finished)
		if p.Completed > 0 {
			assert.Equal(t, p.TotalDuration/time.Duration(p.Completed), p.Avg)
		}
		seen = append(seen, p.Completed)
	})
	require.NoError(t, err)

	require.Len(t, seen, 25)
	for i, c := range seen {
		assert.Equal(t, i+1, c)
	}
	assert.True(t, res.Finished)
}

func TestRunner_CompletionOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) == "0" {
			time.Sleep(200 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var order []int
	r := newRunner(t, Config{
		URL:         srv.URL,
		Requests:    6,
		Concurrency: 3,
		Method:      MethodPost,
		Body:        body.Literal([]byte("{{index}}")),
		Template:    true,
	}, WithObserver(func(o Outcome) { order = append(order, o.Index) }))

	_, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, order, 6)
	assert.NotEqual(t, 0, order[0])
	assert.Equal(t, 0, order[len(order)-1])
	sorted := slices.Clone(order)
	slices.Sort(sorted)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, sorted)
}

func TestRunner_MixedOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) == "fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("fail"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("ok"), 0o600))

	r := newRunner(t, Config{
		URL:         srv.URL,
		Requests:    4,
		Concurrency: 2,
		Method:      MethodPost,
		Body:        body.Directory(dir, body.Sequential),
	})
	res, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 2, res.Failures)
	assert.Len(t, res.Durations, 2)
	assert.Equal(t, res.TotalDuration/4, res.Avg)
	assert.Equal(t, 50.0, res.ErrorRate())
}

func TestRunner_PersistSuccess(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "nested", "out")
	r := newRunner(t, Config{URL: srv.URL + "/ok", Requests: 3, Concurrency: 2, OutputDir: out})
	_, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"success-1.json", "success-2.json", "success-3.json"}, outputFiles(t, out))

	raw, err := os.ReadFile(filepath.Join(out, "success-2.json"))
	require.NoError(t, err)
	var rec persist.SuccessRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "HTTP/1.1", rec.Version)
	assert.Equal(t, http.StatusOK, rec.Status)
	assert.Equal(t, "Hello", rec.Body)
	assert.Equal(t, []string{"text/plain"}, rec.Headers["Content-Type"])
	assert.GreaterOrEqual(t, rec.DurationMs, 0.0)
}

func TestRunner_PersistFailures(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	out := t.TempDir()
	r := newRunner(t, Config{URL: srv.URL + "/fail", Requests: 3, Concurrency: 3, OutputDir: out})
	res, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Failures)

	assert.ElementsMatch(t, []string{"failure-1.json", "failure-2.json", "failure-3.json"}, outputFiles(t, out))

	raw, err := os.ReadFile(filepath.Join(out, "failure-1.json"))
	require.NoError(t, err)
	var rec persist.FailureRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Contains(t, rec.Error, "HTTP status server error (500 Internal Server Error)")
}

func TestRunner_PersistWithLabels(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	dir := t.TempDir()
	for _, name := range []string{"test1", "test2", "test3"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(`{"name":"`+name+`"}`), 0o600))
	}

	out := t.TempDir()
	r := newRunner(t, Config{
		URL:         srv.URL + "/echo",
		Requests:    3,
		Concurrency: 1,
		Method:      MethodPost,
		Body:        body.Directory(dir, body.Sequential),
		OutputDir:   out,
	})
	_, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"success-1-test1.json", "success-2-test2.json", "success-3-test3.json"}, outputFiles(t, out))

	raw, err := os.ReadFile(filepath.Join(out, "success-2-test2.json"))
	require.NoError(t, err)
	var rec persist.SuccessRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.JSONEq(t, `{"method":"POST","body":"{\"name\":\"test2\"}"}`, rec.Body)
}

func TestRunner_UndecodableBodyAbortsPersistence(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	r := newRunner(t, Config{URL: srv.URL + "/binary", Requests: 5, Concurrency: 1, OutputDir: t.TempDir()})
	res, err := r.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, persist.ErrUndecodable)
	assert.Less(t, res.Completed, 5)
}

func TestRunner_UndecodableBodyWithoutPersistence(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	r := newRunner(t, Config{URL: srv.URL + "/binary", Requests: 5, Concurrency: 2})
	res, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Success)
}

func TestRunner_OutputDirUnusable(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	r := newRunner(t, Config{URL: srv.URL, Requests: 2, Concurrency: 1, OutputDir: filepath.Join(file, "out")})
	_, err := r.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, int64(0), hits.Load())
}

func TestRunner_RejectsBodyForGet(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	for _, b := range []body.Spec{
		body.Directory(t.TempDir(), body.Sequential),
		body.Literal([]byte("hello")),
	} {
		for _, m := range []Method{MethodGet, MethodHead} {
			_, err := NewRunner(Config{
				URL:         srv.URL,
				Requests:    3,
				Concurrency: 1,
				Method:      m,
				Body:        b,
			})
			require.Error(t, err, "%s with %s", m, b)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		}
	}
	assert.Equal(t, int64(0), hits.Load())
}

func TestRunner_InvalidBodySource(t *testing.T) {
	_, err := NewRunner(Config{
		URL:         "http://localhost",
		Requests:    1,
		Concurrency: 1,
		Method:      MethodPost,
		Body:        body.Directory(t.TempDir(), body.Sequential),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, body.ErrNoFiles)
}

func TestRunner_BodyReadFailureCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte("{}"), 0o600))

	r := newRunner(t, Config{
		URL:         srv.URL + "/echo",
		Requests:    4,
		Concurrency: 1,
		Method:      MethodPost,
		Body:        body.Directory(dir, body.Sequential),
	})
	require.NoError(t, os.Remove(filepath.Join(dir, "b.json")))

	res, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 2, res.Failures)
}

func TestRunner_CancelBeforeStart(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newRunner(t, Config{URL: srv.URL + "/ok", Requests: 10, Concurrency: 2})
	res, err := r.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Completed)
	assert.Equal(t, 10, res.Total)
}

func TestRunner_CancelAbortsInflight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	r := newRunner(t, Config{URL: srv.URL, Requests: 10, Concurrency: 2})
	start := time.Now()
	res, err := r.Run(ctx, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, 0, res.Completed)
	assert.Equal(t, int64(0), r.Inflight())
}

func TestRunner_CancelMidRunKeepsPartialResult(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newRunner(t, Config{URL: srv.URL + "/ok", Requests: 1000, Concurrency: 1})
	res, err := r.Run(ctx, func(p stats.RunResult) {
		if p.Completed == 3 {
			cancel()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, res.Completed, 3)
	assert.Less(t, res.Completed, 1000)
	assert.True(t, res.Finished)
	assert.Len(t, res.Durations, res.Success)
}

func TestRunner_Observers(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	var mu sync.Mutex
	statuses := map[int]int{}
	r := newRunner(t, Config{URL: srv.URL + "/fail", Requests: 7, Concurrency: 3},
		WithObserver(func(o Outcome) {
			mu.Lock()
			defer mu.Unlock()
			statuses[o.StatusCode()]++
			assert.False(t, o.Success())
		}))

	_, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{http.StatusInternalServerError: 7}, statuses)
}

func TestRunner_WithClient(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	r := newRunner(t, Config{URL: srv.URL + "/ok", Requests: 2, Concurrency: 1}, WithClient(srv.Client()))
	res, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
}

func TestRunner_TemplatedRunID(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	r := newRunner(t, Config{
		URL:         srv.URL + "/echo",
		Requests:    1,
		Concurrency: 1,
		Method:      MethodPost,
		Body:        body.Literal([]byte("{{runID}}-{{seq}}")),
		Template:    true,
	}, WithRunID("run-42"))

	resp, err := r.Debug(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"POST","body":"run-42-1"}`, resp.Body)
}

func TestRunner_Debug(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	r := newRunner(t, Config{
		URL:         srv.URL + "/echo",
		Requests:    10,
		Concurrency: 5,
		Method:      MethodPut,
		Body:        body.Literal([]byte("payload")),
	})
	resp, err := r.Debug(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1", resp.Proto)
	assert.JSONEq(t, `{"method":"PUT","body":"payload"}`, resp.Body)
}

func TestRunner_DebugErrorStatus(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	r := newRunner(t, Config{URL: srv.URL + "/fail", Requests: 1, Concurrency: 1})
	resp, err := r.Debug(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "500 Internal Server Error", resp.Body)
}

func TestRunner_DebugTransportError(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler())
	url := srv.URL
	srv.Close()

	r := newRunner(t, Config{URL: url + "/ok", Requests: 1, Concurrency: 1})
	resp, err := r.Debug(context.Background())
	assert.Error(t, err)
	assert.Nil(t, resp)
}
