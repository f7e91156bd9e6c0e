package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/deployctl/pkg/tui/styles"
	"github.com/go-go-golems/deployctl/pkg/view"
)

// Card renders one deployment fragment with the tail of its logs.
type Card struct {
	Fragment view.Fragment
	Selected bool
	Width    int
	// TailLines is how many trailing log lines are shown. Zero hides logs.
	TailLines int
	theme     styles.Theme
}

func NewCard(f view.Fragment) Card {
	return Card{Fragment: f, TailLines: 3, theme: styles.DefaultTheme()}
}

func (c Card) WithSelected(on bool) Card {
	c.Selected = on
	return c
}

func (c Card) WithWidth(w int) Card {
	c.Width = w
	return c
}

func (c Card) WithTailLines(n int) Card {
	c.TailLines = n
	return c
}

func (c Card) Render() string {
	theme := c.theme
	f := c.Fragment

	badge := theme.BadgeStyle(f.Badge)
	summary := lipgloss.JoinHorizontal(lipgloss.Center,
		badge.Render(styles.BadgeIcon(f.Badge)+" "+string(f.Badge)),
		"  ",
		theme.TitleMuted.Render(fmt.Sprintf("port %d", f.Port)),
		"  ",
		theme.TitleMuted.Render(f.Link),
	)

	lines := []string{summary}
	if c.TailLines > 0 {
		tail := TailLines(f.Logs, c.TailLines)
		if len(tail) == 0 {
			lines = append(lines, theme.TitleMuted.Render("(no logs yet)"))
		}
		for _, l := range tail {
			lines = append(lines, truncate(l, c.Width-6))
		}
	}

	return NewBox(f.ShortID).
		WithTitleRight(string(f.Status)).
		WithContent(lipgloss.JoinVertical(lipgloss.Left, lines...)).
		WithSize(c.Width, 0).
		WithHighlight(c.Selected).
		Render()
}

// TailLines returns the last n non-trailing lines of text.
func TailLines(text string, n int) []string {
	text = strings.TrimRight(text, "\n")
	if text == "" || n <= 0 {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func truncate(s string, w int) string {
	if w <= 3 || lipgloss.Width(s) <= w {
		return s
	}
	r := []rune(s)
	if len(r) > w-3 {
		r = r[:w-3]
	}
	return string(r) + "..."
}
