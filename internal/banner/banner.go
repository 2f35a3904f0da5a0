package banner

import (
	"loadq/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

const ascii = `
    __                    __  ____ 
   / /   ____  ____ _____/ / / __ \
  / /   / __ \/ __ '/ __  / / / / /
 / /___/ /_/ / /_/ / /_/ / / /_/ / 
/_____/\____/\__,_/\__,_/  \___\_\ `

// GetString renders the banner shown above the help text.
func GetString() string {
	style := lipgloss.DefaultRenderer().NewStyle().
		Foreground(styles.ColorPrimary).
		Bold(true)

	return "\n" + style.Render(ascii) + "\n"
}
