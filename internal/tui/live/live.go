package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"loadq/internal/runner"
	"loadq/internal/stats"
	"loadq/internal/tui/components"
	"loadq/internal/tui/styles"
)

// Updates carries progress snapshots from the run to the view. Senders must
// not block on it; a dropped snapshot is superseded by the next one.
type Updates chan stats.RunResult

func NewUpdates() Updates {
	return make(Updates, 1)
}

// Offer replaces any pending snapshot with r. Durations is dropped because
// the aggregator keeps appending to it.
func (u Updates) Offer(r stats.RunResult) {
	r.Durations = nil
	select {
	case u <- r:
		return
	default:
	}
	select {
	case <-u:
	default:
	}
	select {
	case u <- r:
	default:
	}
}

// StatsMsg is a progress snapshot delivered to the model.
type StatsMsg stats.RunResult

// DoneMsg ends the live view with the outcome of the run.
type DoneMsg struct {
	Result stats.RunResult
	Err    error
}

type Model struct {
	Cfg      runner.Config
	Stats    stats.RunResult
	Progress progress.Model

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline

	Updates  Updates
	Cancel   func()
	Inflight func() int64

	Done     *DoneMsg
	Stopping bool

	Width  int
	Height int
}

func NewModel(cfg runner.Config, updates Updates, cancel func(), inflight func() int64) Model {
	return Model{
		Cfg:         cfg,
		Stats:       stats.RunResult{Total: cfg.Requests},
		Progress:    progress.New(progress.WithDefaultGradient()),
		RpsLine:     components.NewSparkline(40, "RPS", styles.Active),
		LatencyLine: components.NewSparkline(40, "Latency P90 (ms)", styles.Warn),
		Updates:     updates,
		Cancel:      cancel,
		Inflight:    inflight,
	}
}

func waitForUpdate(sub Updates) tea.Cmd {
	return func() tea.Msg {
		return StatsMsg(<-sub)
	}
}

func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.Updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StatsMsg:
		m.Stats = stats.RunResult(msg)
		m.RpsLine.Push(msg.RPS)
		m.LatencyLine.Push(float64(msg.P90) / float64(time.Millisecond))
		cmd := m.Progress.SetPercent(m.Stats.Progress())
		return m, tea.Batch(cmd, waitForUpdate(m.Updates))

	case DoneMsg:
		m.Done = &msg
		m.Stats = msg.Result
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.Stopping && m.Cancel != nil {
				m.Cancel()
			}
			m.Stopping = true
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = max(msg.Width-4, 10)

		half := max(msg.Width/2-6, 10)
		m.RpsLine.Resize(half)
		m.LatencyLine.Resize(half)
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	if m.Done != nil {
		return ""
	}

	s := strings.Builder{}

	s.WriteString(styles.Title.Render(fmt.Sprintf("%s %s", m.Cfg.Method, m.Cfg.URL)))
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render(fmt.Sprintf(
		"%d requests | concurrency %d | body %s | elapsed %s",
		m.Cfg.Requests, m.Cfg.Concurrency, m.Cfg.Body, m.Stats.Elapsed.Round(time.Millisecond),
	)))
	s.WriteString("\n\n")

	var inflight int64
	if m.Inflight != nil {
		inflight = m.Inflight()
	}
	errPct := m.Stats.ErrorRate()

	col1 := fmt.Sprintf("DONE: %d/%d\nINF:  %d", m.Stats.Completed, m.Stats.Total, inflight)
	col2 := fmt.Sprintf("OK:   %d\nFAIL: %d", m.Stats.Success, m.Stats.Failures)
	col3 := fmt.Sprintf("ERR: %s\nRPS: %s",
		styles.ErrorRate(errPct).Render(fmt.Sprintf("%.2f%%", errPct)),
		styles.Value.Render(fmt.Sprintf("%.1f", m.Stats.RPS)),
	)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(col2),
		styles.Box.Render(col3),
	))
	s.WriteString("\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n")

	latencies := fmt.Sprintf(
		"Avg: %s  |  Min: %s  |  P50: %s  |  P90: %s  |  P95: %s  |  Max: %s",
		ms(m.Stats.Avg), ms(m.Stats.Min), ms(m.Stats.P50), ms(m.Stats.P90), ms(m.Stats.P95), ms(m.Stats.Max),
	)
	s.WriteString(styles.Box.Render(latencies))
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())
	s.WriteString("\n")

	if m.Stopping {
		s.WriteString(styles.Warn.Render("Stopping..."))
	} else {
		s.WriteString(styles.RenderKey("q", "stop run"))
	}

	return s.String()
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}
