package models

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/go-go-golems/deployctl/pkg/dashboard"
	"github.com/go-go-golems/deployctl/pkg/tui"
	"github.com/go-go-golems/deployctl/pkg/tui/styles"
	"github.com/go-go-golems/deployctl/pkg/tui/widgets"
)

// ActionRequester hands UI actions to the reconciliation loop.
type ActionRequester interface {
	Request(req dashboard.ActionRequest) error
}

type viewMode int

const (
	modeDashboard viewMode = iota
	modeDeployment
	modeActivity
	modeUpload
)

// cardHeight is border + summary + three log lines.
const cardHeight = 6

type RootModel struct {
	width  int
	height int

	mode    viewMode
	actions ActionRequester

	render     dashboard.RenderRequest
	haveRender bool

	cursor     int
	selectedID string

	deployment DeploymentModel
	events     EventLogModel
	upload     textinput.Model
	spin       spinner.Model

	notice string
}

func NewRootModel(actions ActionRequester) RootModel {
	upload := textinput.New()
	upload.Placeholder = "/path/to/bundle.zip"
	upload.Prompt = "upload: "
	upload.CharLimit = 4096

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	return RootModel{
		actions:    actions,
		deployment: NewDeploymentModel(),
		events:     NewEventLogModel(),
		upload:     upload,
		spin:       spin,
	}
}

func (m RootModel) Init() tea.Cmd {
	return m.spin.Tick
}

// SelectedID is the deployment under the cursor, empty when there is none.
func (m RootModel) SelectedID() string {
	return m.selectedID
}

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.WindowSizeMsg:
		w, h := v.Width, v.Height
		if w <= 0 {
			w = 80
		}
		if h <= 0 {
			h = 24
		}
		m.width, m.height = w, h
		m.deployment = m.deployment.WithSize(w, h-3)
		m.events = m.events.WithSize(w, h-3)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(v)
		return m, cmd
	case tui.RenderRequestMsg:
		return m.applyRender(v.Request), nil
	case tui.ActivityMsg:
		m.events = m.events.Append(v.Entry)
		return m, nil
	case tui.ActionErrorMsg:
		m.notice = fmt.Sprintf("%s failed: %v", v.Request.Kind, v.Err)
		return m, nil
	case tui.NavigateToDeploymentMsg:
		m.mode = modeDeployment
		m.deployment = m.deployment.WithDeployment(v.ID, m.render.Fragments)
		return m, nil
	case tea.KeyMsg:
		return m.updateKey(v)
	}
	return m, nil
}

func (m RootModel) applyRender(req dashboard.RenderRequest) RootModel {
	// the bus does not guarantee order
	if m.haveRender && req.Seq <= m.render.Seq {
		return m
	}
	m.render = req
	m.haveRender = true

	frags := req.Fragments
	idx := -1
	for i, f := range frags {
		if f.ID == m.selectedID {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = m.cursor
	}
	if idx >= len(frags) {
		idx = len(frags) - 1
	}
	if idx < 0 {
		idx = 0
	}
	m.cursor = idx
	m.selectedID = ""
	if len(frags) > 0 {
		m.selectedID = frags[idx].ID
	}
	m.deployment = m.deployment.WithFragments(frags)
	return m
}

func (m RootModel) updateKey(v tea.KeyMsg) (tea.Model, tea.Cmd) {
	if v.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.mode {
	case modeUpload:
		switch v.String() {
		case "esc":
			m.mode = modeDashboard
			m.upload.Blur()
			return m, nil
		case "enter":
			paths := dashboard.SplitDroppedPaths(m.upload.Value())
			m.mode = modeDashboard
			m.upload.Blur()
			m.upload.SetValue("")
			return m, m.request(dashboard.ActionRequest{Kind: dashboard.ActionUpload, Paths: paths})
		}
		var cmd tea.Cmd
		m.upload, cmd = m.upload.Update(v)
		return m, cmd

	case modeDeployment:
		if !m.deployment.Searching() {
			switch v.String() {
			case "esc", "q":
				m.mode = modeDashboard
				return m, nil
			case "s":
				return m, m.request(dashboard.ActionRequest{Kind: dashboard.ActionStop, ID: m.deployment.ID()})
			}
		}
		var cmd tea.Cmd
		m.deployment, cmd = m.deployment.Update(v)
		return m, cmd

	case modeActivity:
		if !m.events.Searching() {
			switch v.String() {
			case "esc", "q":
				m.mode = modeDashboard
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.events, cmd = m.events.Update(v)
		return m, cmd
	}

	// a file dropped onto the terminal arrives as a bracketed paste
	if v.Paste {
		paths := dashboard.SplitDroppedPaths(string(v.Runes))
		return m, m.request(dashboard.ActionRequest{Kind: dashboard.ActionUpload, Paths: paths})
	}

	frags := m.render.Fragments
	switch v.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.selectedID = frags[m.cursor].ID
		}
	case "down", "j":
		if m.cursor < len(frags)-1 {
			m.cursor++
			m.selectedID = frags[m.cursor].ID
		}
	case "enter":
		if m.selectedID != "" {
			id := m.selectedID
			return m, func() tea.Msg { return tui.NavigateToDeploymentMsg{ID: id} }
		}
	case "s":
		return m, m.request(dashboard.ActionRequest{Kind: dashboard.ActionStop, ID: m.selectedID})
	case "r":
		return m, m.request(dashboard.ActionRequest{Kind: dashboard.ActionRefresh})
	case "u":
		m.mode = modeUpload
		m.notice = ""
		cmd := m.upload.Focus()
		return m, cmd
	case "a":
		m.mode = modeActivity
	}
	return m, nil
}

func (m RootModel) request(req dashboard.ActionRequest) tea.Cmd {
	actions := m.actions
	if actions == nil {
		return nil
	}
	return func() tea.Msg {
		if err := actions.Request(req); err != nil {
			return tui.ActionErrorMsg{Request: req, Err: err}
		}
		return nil
	}
}

func (m RootModel) View() string {
	theme := styles.DefaultTheme()

	switch m.mode {
	case modeDeployment:
		return lipgloss.JoinVertical(lipgloss.Left, m.header(theme), m.deployment.View())
	case modeActivity:
		return lipgloss.JoinVertical(lipgloss.Left, m.header(theme), m.events.View())
	}

	sections := []string{m.header(theme)}
	if b := m.render.Banner; b != "" {
		sections = append(sections, theme.Banner.Render(styles.IconError+" "+b))
	}
	if line := m.uploadLine(theme); line != "" {
		sections = append(sections, line)
	}
	if line := m.commandLine(theme); line != "" {
		sections = append(sections, line)
	}
	if m.notice != "" {
		sections = append(sections, theme.StatusWarn.Render(styles.IconWarning+" "+m.notice))
	}
	if m.mode == modeUpload {
		sections = append(sections, m.upload.View())
	}
	sections = append(sections, m.cards(theme, len(sections)))

	footer := widgets.NewFooter(m.keybinds()).
		WithWidth(m.width).
		WithStatus(fmt.Sprintf("%d deployments", len(m.render.Fragments)))
	sections = append(sections, footer.Render())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m RootModel) header(theme styles.Theme) string {
	channel := theme.StatusRunning.Render(styles.ChannelIcon(true) + " live")
	if !m.render.ChannelUp {
		label := " logs offline"
		if m.render.ChannelErr != "" {
			label += ": " + m.render.ChannelErr
		}
		channel = theme.StatusWarn.Render(styles.ChannelIcon(false) + label)
	}

	refresh := theme.TitleMuted.Render("never refreshed")
	if !m.render.LastFetch.IsZero() {
		refresh = theme.TitleMuted.Render("refreshed " + humanize.Time(m.render.LastFetch))
	}
	if m.render.Fetching || !m.haveRender {
		refresh = m.spin.View() + " " + theme.TitleMuted.Render("refreshing")
	}

	return lipgloss.JoinHorizontal(lipgloss.Center,
		theme.Title.Render("deployctl"),
		"  ",
		channel,
		"  ",
		refresh,
	)
}

func (m RootModel) uploadLine(theme styles.Theme) string {
	up := m.render.Upload
	switch up.Phase {
	case dashboard.UploadUploading:
		return m.spin.View() + " " + theme.TitleMuted.Render(fmt.Sprintf("%s uploading %s (%s)", styles.IconUpload, up.File, humanize.Bytes(uint64(up.Size))))
	case dashboard.UploadSucceeded:
		return theme.StatusRunning.Render(styles.IconSuccess + " " + up.Message)
	case dashboard.UploadFailed:
		return theme.StatusDead.Render(styles.IconError + " upload: " + up.Message)
	}
	return ""
}

func (m RootModel) commandLine(theme styles.Theme) string {
	c := m.render.Command
	switch {
	case c.Op == "":
		return ""
	case c.Pending:
		return m.spin.View() + " " + theme.TitleMuted.Render(c.Op+" "+c.ID+"…")
	case c.Ok:
		return theme.StatusRunning.Render(styles.IconSuccess + " " + c.Message)
	}
	return theme.StatusDead.Render(styles.IconError + " " + c.Op + ": " + c.Message)
}

func (m RootModel) cards(theme styles.Theme, used int) string {
	frags := m.render.Fragments
	if len(frags) == 0 {
		if !m.haveRender {
			return theme.TitleMuted.Render("loading deployments…")
		}
		return theme.TitleMuted.Render("No deployments. Press [u] or drop a bundle onto the terminal to deploy.")
	}

	// header lines above, footer (3) below
	visible := (m.height - used - 3) / cardHeight
	if visible < 1 {
		visible = 1
	}
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := start + visible
	if end > len(frags) {
		end = len(frags)
	}

	rendered := make([]string, 0, end-start+1)
	for i := start; i < end; i++ {
		rendered = append(rendered, widgets.NewCard(frags[i]).
			WithWidth(m.width).
			WithSelected(i == m.cursor).
			Render())
	}
	if hidden := len(frags) - (end - start); hidden > 0 {
		rendered = append(rendered, theme.TitleMuted.Render(fmt.Sprintf("%s %d more", styles.IconBullet, hidden)))
	}
	return strings.Join(rendered, "\n")
}

func (m RootModel) keybinds() []widgets.Keybind {
	return []widgets.Keybind{
		{Key: "↑/↓", Label: "select"},
		{Key: "enter", Label: "logs"},
		{Key: "s", Label: "stop"},
		{Key: "u", Label: "upload"},
		{Key: "r", Label: "refresh"},
		{Key: "a", Label: "activity"},
		{Key: "q", Label: "quit"},
	}
}
