package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"loadq/internal/cli"
	"loadq/internal/metrics"
	"loadq/internal/runner"
	"loadq/internal/stats"
	"loadq/internal/storage"
	"loadq/internal/tui/live"
	"loadq/internal/tui/result"
)

func runLoad(cmd *cobra.Command, s settings, url string) error {
	cfg, err := s.runnerConfig(url)
	if err != nil {
		return exitWith(1, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return exitWith(1, err)
	}
	runID := id.String()

	var recorder *metrics.Recorder
	opts := []runner.Option{runner.WithRunID(runID)}
	if s.MetricsAddr != "" {
		opts = append(opts, runner.WithObserver(func(o runner.Outcome) {
			recorder.Observe(o)
		}))
	}

	r, err := runner.NewRunner(cfg, opts...)
	if err != nil {
		return exitWith(1, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()

	if s.Debug {
		resp, err := r.Debug(ctx)
		if err != nil {
			return exitWith(1, fmt.Errorf("debug request: %w", err))
		}
		cli.PrintResponse(out, resp)
		return nil
	}

	if s.MetricsAddr != "" {
		recorder = metrics.NewRecorder(r.Inflight)
		go func() {
			if err := recorder.Serve(ctx, s.MetricsAddr); err != nil {
				logger.Error().Err(err).Str("addr", s.MetricsAddr).Msg("metrics server failed")
			}
		}()
	}

	logger.Debug().
		Str("run_id", runID).
		Str("url", cfg.URL).
		Int("requests", cfg.Requests).
		Int("concurrency", cfg.Concurrency).
		Msg("starting run")

	started := time.Now()
	var res stats.RunResult
	var runErr error
	if !s.NoTUI && isTerminal(out) {
		res, runErr = runInteractive(ctx, r, out)
	} else {
		res, runErr = runPlain(ctx, r, out, cmd.ErrOrStderr())
	}

	if !s.NoHistory {
		saveHistory(s.HistoryFile, storage.HistoryItem{
			ID:          runID,
			Timestamp:   started,
			URL:         cfg.URL,
			Method:      string(cfg.Method),
			Body:        describeBody(cfg),
			Requests:    cfg.Requests,
			Concurrency: cfg.Concurrency,
			Summary:     storage.SummaryFrom(res),
		})
	}

	switch {
	case errors.Is(runErr, context.Canceled):
		return exitWith(1, fmt.Errorf("run interrupted after %d of %d requests", res.Completed, res.Total))
	case runErr != nil:
		return exitWith(1, runErr)
	case s.FailOnError && res.Failures > 0:
		return exitWith(2, fmt.Errorf("%d of %d requests failed", res.Failures, res.Completed))
	}
	return nil
}

func runPlain(ctx context.Context, r *runner.Runner, out, errOut io.Writer) (stats.RunResult, error) {
	cli.PrintHeader(out, r.Cfg)

	progress := cli.NewProgress(errOut)
	res, err := r.Run(ctx, progress.Update)
	progress.Done()

	cli.PrintSummary(out, res)
	if r.Cfg.OutputDir != "" {
		fmt.Fprintf(out, "Responses written to %s\n", r.Cfg.OutputDir)
	}
	return res, err
}

// runInteractive shows the live view while the run executes on its own
// goroutine, then prints the final summary.
func runInteractive(ctx context.Context, r *runner.Runner, out io.Writer) (stats.RunResult, error) {
	// the live view owns the terminal
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := live.NewUpdates()
	p := tea.NewProgram(live.NewModel(r.Cfg, updates, cancel, r.Inflight), tea.WithOutput(out))

	done := make(chan live.DoneMsg, 1)
	go func() {
		res, err := r.Run(ctx, updates.Offer)
		msg := live.DoneMsg{Result: res, Err: err}
		done <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		logger.Error().Err(err).Msg("live view failed")
	}
	cancel()
	msg := <-done

	fmt.Fprintln(out, result.NewModel(r.Cfg, msg.Result, msg.Err).View())
	return msg.Result, msg.Err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func describeBody(cfg runner.Config) string {
	if cfg.Body.IsEmpty() {
		return ""
	}
	s := cfg.Body.String()
	if cfg.Template {
		s += ", templated"
	}
	return s
}

func saveHistory(path string, item storage.HistoryItem) {
	if path == "" {
		p, err := storage.DefaultPath()
		if err != nil {
			logger.Warn().Err(err).Msg("cannot locate history database")
			return
		}
		path = p
	}

	store, err := storage.NewStore(path)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot open history database")
		return
	}
	defer store.Close()

	if err := store.Save(item); err != nil {
		logger.Warn().Err(err).Msg("cannot save run to history")
	}
}
