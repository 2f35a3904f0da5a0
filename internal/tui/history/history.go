package history

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"loadq/internal/storage"
	"loadq/internal/tui/styles"
)

// Model browses stored runs; enter toggles the detail panel for the
// selected row.
type Model struct {
	Items   []storage.HistoryItem
	Table   table.Model
	Details bool

	Width  int
	Height int
}

func NewModel(items []storage.HistoryItem) Model {
	columns := []table.Column{
		{Title: "Time", Width: 20},
		{Title: "Method", Width: 7},
		{Title: "URL", Width: 30},
		{Title: "Reqs", Width: 8},
		{Title: "Conc", Width: 6},
		{Title: "Success", Width: 8},
		{Title: "RPS", Width: 10},
		{Title: "P95 (ms)", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.ColorSubtle).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(styles.ColorSelectFg).
		Background(styles.ColorSelected).
		Bold(false)
	t.SetStyles(s)

	m := Model{
		Items: items,
		Table: t,
	}
	m.Table.SetRows(Rows(items))
	return m
}

// Rows formats items as table rows.
func Rows(items []storage.HistoryItem) []table.Row {
	rows := make([]table.Row, len(items))
	for i, item := range items {
		rows[i] = table.Row{
			item.Timestamp.Local().Format(time.DateTime),
			item.Method,
			item.URL,
			fmt.Sprintf("%d", item.Requests),
			fmt.Sprintf("%d", item.Concurrency),
			fmt.Sprintf("%d", item.Summary.Success),
			fmt.Sprintf("%.2f", item.Summary.RPS),
			fmt.Sprintf("%.2f", item.Summary.P95LatencyMs),
		}
	}
	return rows
}

// Selected returns the highlighted run, or nil when the history is empty.
func (m Model) Selected() *storage.HistoryItem {
	i := m.Table.Cursor()
	if i < 0 || i >= len(m.Items) {
		return nil
	}
	return &m.Items[i]
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		m.Table.SetHeight(max(msg.Height-14, 5))

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			m.Details = !m.Details
			return m, nil
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if len(m.Items) == 0 {
		return styles.Subtle.Render("No runs recorded yet.") + "\n"
	}

	out := styles.Box.Render(m.Table.View()) + "\n"
	if item := m.Selected(); m.Details && item != nil {
		out += styles.Box.Render(details(*item)) + "\n"
	}
	out += lipgloss.JoinHorizontal(lipgloss.Center,
		styles.RenderKey("enter", "details"), "  ",
		styles.RenderKey("q", "quit"),
	)
	return out
}

func details(item storage.HistoryItem) string {
	s := item.Summary
	status := styles.Success.Render("complete")
	if s.Interrupted {
		status = styles.Warn.Render("interrupted")
	}
	return fmt.Sprintf(
		"Run %s (%s)\nBody: %s\nCompleted %d  Success %d  Failed %d  Errors %.2f%%\nAvg %.2f ms  Min %.2f ms  P50 %.2f ms  P90 %.2f ms  P95 %.2f ms  Max %.2f ms\nRPS %.2f  Elapsed %.0f ms",
		item.ID, status, orNone(item.Body),
		s.Completed, s.Success, s.Failures, s.ErrorRate(),
		s.AvgLatencyMs, s.MinLatencyMs, s.P50LatencyMs, s.P90LatencyMs, s.P95LatencyMs, s.MaxLatencyMs,
		s.RPS, s.ElapsedMs,
	)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
