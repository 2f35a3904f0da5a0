package dummy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type ServerConfig struct {
	Port int
}

// Handler returns the mux served by the local target.
func Handler() http.Handler {
	mux := http.NewServeMux()

	// 1. OK Endpoint (no delay)
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Hello"))
	})

	// 2. Fast Endpoint (10-50ms)
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(rand.IntN(40)+10) * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Fast response"))
	})

	// 3. Slow Endpoint (1s-2s)
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Duration(rand.IntN(1000)+1000) * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Slow response"))
	})

	// 4. Flaky Endpoint (random 500/429)
	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		rnd := rand.Float32()
		if rnd < 0.2 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("500 Internal Server Error"))
		} else if rnd < 0.4 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("429 Too Many Requests"))
		} else {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		}
	})

	// 5. Fail Endpoint (always 500)
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("500 Internal Server Error"))
	})

	// 6. Echo Endpoint (method and body back as JSON)
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"method":%q,"body":%q}`, r.Method, b)
	})

	// 7. Binary Endpoint (not valid UTF-8)
	mux.HandleFunc("/binary", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte{0xff, 0xfe, 0xfd})
	})

	return mux
}

// Start serves Handler on cfg.Port until ctx is cancelled.
func Start(ctx context.Context, cfg ServerConfig) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("component", "dummy").
		Str("addr", "http://localhost"+addr).
		Strs("endpoints", []string{"/ok", "/fast", "/slow", "/error", "/fail", "/echo", "/binary"}).
		Msg("dummy server running")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
