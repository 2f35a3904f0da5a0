package result

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"loadq/internal/runner"
	"loadq/internal/stats"
	"loadq/internal/tui/styles"
)

// Model renders the final summary printed once the live view has exited.
type Model struct {
	Cfg    runner.Config
	Stats  stats.RunResult
	Err    error
	Output string
}

func NewModel(cfg runner.Config, r stats.RunResult, err error) Model {
	return Model{Cfg: cfg, Stats: r, Err: err, Output: cfg.OutputDir}
}

func (m Model) View() string {
	s := strings.Builder{}

	title := "Test Complete"
	if m.Stats.Completed < m.Stats.Total {
		title = "Test Interrupted"
	}
	s.WriteString(styles.Title.Render(title))
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render(fmt.Sprintf("%s %s", m.Cfg.Method, m.Cfg.URL)))
	s.WriteString("\n\n")

	errPct := m.Stats.ErrorRate()
	overview := fmt.Sprintf(
		"Completed: %d/%d\nSuccess:   %s\nFailed:    %s\nErrors:    %s\nRPS:       %.2f\nElapsed:   %s",
		m.Stats.Completed, m.Stats.Total,
		styles.Success.Render(fmt.Sprint(m.Stats.Success)),
		styles.Error.Render(fmt.Sprint(m.Stats.Failures)),
		styles.ErrorRate(errPct).Render(fmt.Sprintf("%.2f%%", errPct)),
		m.Stats.RPS,
		m.Stats.Elapsed.Round(time.Millisecond),
	)

	latency := fmt.Sprintf(
		"Avg: %s\nMin: %s\nP50: %s\nP90: %s\nP95: %s\nMax: %s",
		ms(m.Stats.Avg), ms(m.Stats.Min), ms(m.Stats.P50), ms(m.Stats.P90), ms(m.Stats.P95), ms(m.Stats.Max),
	)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.JoinVertical(lipgloss.Left, styles.Active.Render("Overview"), styles.Box.Render(overview)),
		lipgloss.JoinVertical(lipgloss.Left, styles.Active.Render("Latency"), styles.Box.Render(latency)),
	))
	s.WriteString("\n")

	if m.Output != "" {
		s.WriteString(styles.Subtle.Render("Responses written to " + m.Output))
		s.WriteString("\n")
	}
	if m.Err != nil {
		s.WriteString(styles.Error.Render("Error: " + m.Err.Error()))
		s.WriteString("\n")
	}

	return s.String()
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2f ms", float64(d)/float64(time.Millisecond))
}
