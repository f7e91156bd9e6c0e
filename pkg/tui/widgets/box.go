package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/deployctl/pkg/tui/styles"
)

// Box is a rounded border with a title on the top-left and an optional hint
// on the top-right.
type Box struct {
	Title      string
	TitleRight string
	Content    string
	Width      int
	Height     int
	Highlight  bool
	theme      styles.Theme
}

func NewBox(title string) Box {
	return Box{Title: title, theme: styles.DefaultTheme()}
}

func (b Box) WithTitleRight(s string) Box {
	b.TitleRight = s
	return b
}

func (b Box) WithContent(s string) Box {
	b.Content = s
	return b
}

func (b Box) WithSize(w, h int) Box {
	b.Width, b.Height = w, h
	return b
}

func (b Box) WithHighlight(on bool) Box {
	b.Highlight = on
	return b
}

func (b Box) Render() string {
	theme := b.theme
	border := theme.Border
	if b.Highlight {
		border = theme.Primary
	}

	inner := b.Width - 4
	if inner < 10 {
		inner = 10
	}

	left := theme.Title.Render(b.Title)
	header := left
	if b.TitleRight != "" {
		right := theme.TitleMuted.Render(b.TitleRight)
		gap := inner - lipgloss.Width(left) - lipgloss.Width(right)
		if gap < 1 {
			gap = 1
		}
		header = left + strings.Repeat(" ", gap) + right
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(inner + 2)
	if b.Height > 2 {
		style = style.Height(b.Height - 2)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, header, b.Content))
}
