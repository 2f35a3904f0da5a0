package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var levels = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline is a one-row scrolling chart of the last Width samples.
type Sparkline struct {
	Data  []float64
	Width int
	Max   float64
	Style lipgloss.Style
	Label string
}

func NewSparkline(width int, label string, style lipgloss.Style) Sparkline {
	return Sparkline{
		Width: width,
		Label: label,
		Style: style,
		Data:  make([]float64, 0, width),
	}
}

// Push appends a sample, dropping the oldest once the window is full.
func (s *Sparkline) Push(val float64) {
	if val < 0 {
		val = 0
	}
	s.Data = append(s.Data, val)
	if s.Width > 0 && len(s.Data) > s.Width {
		s.Data = s.Data[len(s.Data)-s.Width:]
	}

	// max of the visible window
	s.Max = 0
	for _, v := range s.Data {
		if v > s.Max {
			s.Max = v
		}
	}
}

// Resize changes the window, keeping the most recent samples.
func (s *Sparkline) Resize(width int) {
	s.Width = width
	if width > 0 && len(s.Data) > width {
		s.Data = s.Data[len(s.Data)-width:]
	}
}

// Graph renders only the bars, padded to Width.
func (s Sparkline) Graph() string {
	if s.Width <= 0 {
		return ""
	}

	var graph strings.Builder
	for _, v := range s.Data {
		idx := 0
		if s.Max > 0 {
			idx = int(v / s.Max * float64(len(levels)-1))
		}
		idx = min(max(idx, 0), len(levels)-1)
		graph.WriteRune(levels[idx])
	}

	if pad := s.Width - len(s.Data); pad > 0 {
		graph.WriteString(strings.Repeat(" ", pad))
	}
	return graph.String()
}

func (s Sparkline) View() string {
	if s.Width <= 0 {
		return ""
	}
	return s.Style.Render(s.Label) + "\n" + s.Style.Render(s.Graph())
}
