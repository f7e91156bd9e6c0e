package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/deployctl/pkg/view"
)

type Theme struct {
	Primary lipgloss.Color
	Muted   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Border  lipgloss.Color

	Title         lipgloss.Style
	TitleMuted    lipgloss.Style
	StatusRunning lipgloss.Style
	StatusDead    lipgloss.Style
	StatusWarn    lipgloss.Style
	KeybindKey    lipgloss.Style
	KeybindDesc   lipgloss.Style
	Banner        lipgloss.Style
	Selected      lipgloss.Style
}

func DefaultTheme() Theme {
	t := Theme{
		Primary: lipgloss.Color("39"),
		Muted:   lipgloss.Color("245"),
		Success: lipgloss.Color("42"),
		Warning: lipgloss.Color("214"),
		Error:   lipgloss.Color("196"),
		Border:  lipgloss.Color("240"),
	}
	t.Title = lipgloss.NewStyle().Bold(true)
	t.TitleMuted = lipgloss.NewStyle().Foreground(t.Muted)
	t.StatusRunning = lipgloss.NewStyle().Foreground(t.Success).Bold(true)
	t.StatusDead = lipgloss.NewStyle().Foreground(t.Error).Bold(true)
	t.StatusWarn = lipgloss.NewStyle().Foreground(t.Warning)
	t.KeybindKey = lipgloss.NewStyle().Foreground(t.Primary).Bold(true)
	t.KeybindDesc = lipgloss.NewStyle().Foreground(t.Muted)
	t.Banner = lipgloss.NewStyle().
		Foreground(lipgloss.Color("231")).
		Background(t.Error).
		Bold(true).
		Padding(0, 1)
	t.Selected = lipgloss.NewStyle().Foreground(t.Primary).Bold(true)
	return t
}

// BadgeStyle styles a badge. Anything but running gets the stopped look.
func (t Theme) BadgeStyle(b view.Badge) lipgloss.Style {
	if b == view.BadgeRunning {
		return t.StatusRunning
	}
	return t.StatusDead
}

func (t Theme) LevelStyle(level string) lipgloss.Style {
	switch level {
	case "error":
		return t.StatusDead
	case "warn":
		return t.StatusWarn
	default:
		return t.TitleMuted
	}
}
