package models

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/deployctl/pkg/tui/styles"
	"github.com/go-go-golems/deployctl/pkg/tui/widgets"
	"github.com/go-go-golems/deployctl/pkg/view"
)

// DeploymentModel shows one deployment with its full console output.
type DeploymentModel struct {
	width  int
	height int

	id       string
	fragment view.Fragment
	found    bool

	follow bool

	searching bool
	search    textinput.Model
	filter    string

	vp viewport.Model
}

func NewDeploymentModel() DeploymentModel {
	search := textinput.New()
	search.Placeholder = "filter…"
	search.Prompt = "/ "
	search.CharLimit = 200

	m := DeploymentModel{follow: true, search: search}
	m.vp = viewport.New(0, 0)
	return m
}

func (m DeploymentModel) WithSize(width, height int) DeploymentModel {
	m.width, m.height = width, height
	m = m.resizeViewport()
	return m
}

// WithDeployment switches to id and resets filter and follow state.
func (m DeploymentModel) WithDeployment(id string, frags []view.Fragment) DeploymentModel {
	m.id = id
	m.follow = true
	m.searching = false
	m.filter = ""
	m.search.SetValue("")
	m.search.Blur()
	return m.WithFragments(frags)
}

// WithFragments picks the current deployment out of a fresh render.
func (m DeploymentModel) WithFragments(frags []view.Fragment) DeploymentModel {
	m.found = false
	for _, f := range frags {
		if f.ID == m.id {
			m.fragment = f
			m.found = true
			break
		}
	}
	m = m.refreshViewportContent(true)
	return m
}

func (m DeploymentModel) ID() string {
	return m.id
}

func (m DeploymentModel) Searching() bool {
	return m.searching
}

func (m DeploymentModel) Update(msg tea.Msg) (DeploymentModel, tea.Cmd) {
	switch v := msg.(type) {
	case tea.KeyMsg:
		if m.searching {
			switch v.String() {
			case "esc":
				m.searching = false
				m.search.Blur()
				return m, nil
			case "enter":
				m.filter = strings.TrimSpace(m.search.Value())
				m.searching = false
				m.search.Blur()
				m = m.refreshViewportContent(true)
				return m, nil
			}

			var cmd tea.Cmd
			m.search, cmd = m.search.Update(v)
			return m, cmd
		}

		switch v.String() {
		case "/":
			m.searching = true
			m.search.SetValue(m.filter)
			m.search.CursorEnd()
			m.search.Focus()
			return m, nil
		case "ctrl+l":
			m.filter = ""
			m.search.SetValue("")
			m = m.refreshViewportContent(true)
			return m, nil
		case "f":
			m.follow = !m.follow
			if m.follow {
				m.vp.GotoBottom()
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(v)
		return m, cmd
	}
	return m, nil
}

func (m DeploymentModel) View() string {
	theme := styles.DefaultTheme()

	if m.id == "" {
		return theme.TitleMuted.Render("No deployment selected.")
	}
	if !m.found {
		return widgets.NewBox("Deployment: "+view.ShortID(m.id, 8)).
			WithTitleRight("[esc] back").
			WithContent(theme.TitleMuted.Render("Not in the latest snapshot.")).
			WithSize(m.width, 5).
			Render()
	}

	f := m.fragment
	badge := theme.BadgeStyle(f.Badge)
	var info []string
	info = append(info, lipgloss.JoinHorizontal(lipgloss.Center,
		badge.Render(styles.BadgeIcon(f.Badge)),
		" ",
		theme.Title.Render(string(f.Status)),
		"  ",
		theme.TitleMuted.Render(fmt.Sprintf("port %d", f.Port)),
	))
	info = append(info, theme.TitleMuted.Render("ID:   "+f.ID))
	info = append(info, theme.TitleMuted.Render("Link: "+f.Link))

	followIcon := styles.IconPending
	followStyle := theme.TitleMuted
	if m.follow {
		followIcon = styles.IconRunning
		followStyle = theme.StatusRunning
	}
	info = append(info, lipgloss.JoinHorizontal(lipgloss.Center,
		followStyle.Render(followIcon),
		" ",
		theme.TitleMuted.Render("Follow: "),
		followStyle.Render(fmt.Sprintf("%v", m.follow)),
	))
	if m.filter != "" {
		info = append(info, theme.TitleMuted.Render(fmt.Sprintf("Filter: %q", m.filter)))
	}

	sections := []string{
		widgets.NewBox("Deployment: "+f.ShortID).
			WithTitleRight("[s] stop  [esc] back").
			WithContent(lipgloss.JoinVertical(lipgloss.Left, info...)).
			WithSize(m.width, len(info)+3).
			Render(),
	}
	if m.searching {
		sections = append(sections, m.search.View())
	}
	sections = append(sections, widgets.NewBox("Logs").
		WithTitleRight("[↑/↓] scroll  [f] follow  [/] filter").
		WithContent(m.vp.View()).
		WithSize(m.width, m.vp.Height+3).
		Render())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m DeploymentModel) resizeViewport() DeploymentModel {
	// info box (5 lines + border) plus the log box chrome
	usableHeight := m.height - 12
	if m.searching {
		usableHeight--
	}
	if usableHeight < 3 {
		usableHeight = 3
	}
	m.vp.Width = maxInt(0, m.width-4)
	m.vp.Height = usableHeight
	m = m.refreshViewportContent(false)
	return m
}

func (m DeploymentModel) refreshViewportContent(gotoBottom bool) DeploymentModel {
	text := strings.TrimRight(m.fragment.Logs, "\n")
	content := ""
	switch {
	case !m.found || text == "":
		content = "(no log lines yet)\n"
	default:
		lines := strings.Split(text, "\n")
		if m.filter != "" {
			filtered := make([]string, 0, len(lines))
			for _, line := range lines {
				if strings.Contains(line, m.filter) {
					filtered = append(filtered, line)
				}
			}
			lines = filtered
		}
		if len(lines) == 0 {
			content = "(no matching lines)\n"
		} else {
			content = strings.Join(lines, "\n") + "\n"
		}
	}
	m.vp.SetContent(content)
	if gotoBottom && m.follow {
		m.vp.GotoBottom()
	}
	return m
}
