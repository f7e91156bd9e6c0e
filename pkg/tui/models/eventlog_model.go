package models

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/deployctl/pkg/dashboard"
	"github.com/go-go-golems/deployctl/pkg/tui/styles"
)

// activityItem is one row of the activity log. Consecutive entries with the
// same level and text collapse into one row with a repeat count.
type activityItem struct {
	entry   dashboard.ActivityEntry
	repeats int
}

var levelRank = map[dashboard.Level]int{
	dashboard.LevelInfo:  0,
	dashboard.LevelWarn:  1,
	dashboard.LevelError: 2,
}

// EventLogModel is the activity log: loop activity, bounded, filterable by
// text and by minimum level.
type EventLogModel struct {
	max   int
	items []activityItem

	minLevel dashboard.Level

	width  int
	height int

	searching bool
	search    textinput.Model
	filter    string

	vp viewport.Model
}

func NewEventLogModel() EventLogModel {
	search := textinput.New()
	search.Placeholder = "filter…"
	search.Prompt = "/ "
	search.CharLimit = 200

	m := EventLogModel{max: 200, minLevel: dashboard.LevelInfo, search: search}
	m.vp = viewport.New(0, 0)
	return m
}

func (m EventLogModel) WithSize(width, height int) EventLogModel {
	m.width, m.height = width, height
	usable := height - 5
	if usable < 3 {
		usable = 3
	}
	m.vp.Width = maxInt(0, width)
	m.vp.Height = usable
	return m.refresh(false)
}

func (m EventLogModel) Searching() bool {
	return m.searching
}

// Len is the number of rows after collapsing repeats.
func (m EventLogModel) Len() int {
	return len(m.items)
}

// Visible returns the rows that pass the level and text filters.
func (m EventLogModel) Visible() []dashboard.ActivityEntry {
	var out []dashboard.ActivityEntry
	for _, it := range m.items {
		if m.matches(it.entry) {
			out = append(out, it.entry)
		}
	}
	return out
}

func (m EventLogModel) Append(e dashboard.ActivityEntry) EventLogModel {
	if n := len(m.items); n > 0 {
		last := &m.items[n-1]
		if last.entry.Level == e.Level && last.entry.Text == e.Text {
			last.repeats++
			last.entry.At = e.At
			return m.refresh(true)
		}
	}
	m.items = append(m.items, activityItem{entry: e, repeats: 1})
	if m.max > 0 && len(m.items) > m.max {
		m.items = append([]activityItem{}, m.items[len(m.items)-m.max:]...)
	}
	return m.refresh(true)
}

func (m EventLogModel) Update(msg tea.Msg) (EventLogModel, tea.Cmd) {
	v, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

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
			return m.refresh(true), nil
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
		return m, m.search.Focus()
	case "ctrl+l":
		m.filter = ""
		m.search.SetValue("")
		return m.refresh(true), nil
	case "l":
		m.minLevel = nextLevel(m.minLevel)
		return m.refresh(true), nil
	case "c":
		m.items = nil
		return m.refresh(true), nil
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(v)
	return m, cmd
}

func (m EventLogModel) View() string {
	theme := styles.DefaultTheme()

	counts := map[dashboard.Level]int{}
	for _, it := range m.items {
		counts[it.entry.Level] += it.repeats
	}
	title := fmt.Sprintf("Activity  %s %d  %s %d  %s %d  level>=%s",
		styles.IconInfo, counts[dashboard.LevelInfo],
		styles.IconWarning, counts[dashboard.LevelWarn],
		styles.IconError, counts[dashboard.LevelError],
		m.minLevel)
	if m.filter != "" {
		title += fmt.Sprintf("  filter=%q", m.filter)
	}

	var b strings.Builder
	b.WriteString(theme.Title.Render(title))
	b.WriteString("\n")
	b.WriteString(theme.TitleMuted.Render("[l] level  [/] filter  [ctrl+l] clear filter  [c] clear  [esc] back"))
	b.WriteString("\n\n")
	if m.searching {
		b.WriteString(m.search.View())
		b.WriteString("\n\n")
	}

	switch {
	case m.Len() == 0:
		b.WriteString(theme.TitleMuted.Render("(no activity yet)"))
		b.WriteString("\n")
	case len(m.Visible()) == 0:
		b.WriteString(theme.TitleMuted.Render("(nothing matches)"))
		b.WriteString("\n")
	default:
		b.WriteString(m.vp.View())
	}
	return b.String()
}

func (m EventLogModel) matches(e dashboard.ActivityEntry) bool {
	if levelRank[e.Level] < levelRank[m.minLevel] {
		return false
	}
	return m.filter == "" || strings.Contains(strings.ToLower(e.Text), strings.ToLower(m.filter))
}

func (m EventLogModel) refresh(gotoBottom bool) EventLogModel {
	theme := styles.DefaultTheme()
	var lines []string
	for _, it := range m.items {
		if !m.matches(it.entry) {
			continue
		}
		level := string(it.entry.Level)
		line := fmt.Sprintf("%s %s %s",
			theme.LevelStyle(level).Render(styles.LevelIcon(level)),
			theme.TitleMuted.Render(it.entry.At.Format("15:04:05")),
			it.entry.Text)
		if it.repeats > 1 {
			line += theme.TitleMuted.Render(fmt.Sprintf(" (x%d)", it.repeats))
		}
		lines = append(lines, line)
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if gotoBottom {
		m.vp.GotoBottom()
	}
	return m
}

func nextLevel(l dashboard.Level) dashboard.Level {
	switch l {
	case dashboard.LevelInfo:
		return dashboard.LevelWarn
	case dashboard.LevelWarn:
		return dashboard.LevelError
	}
	return dashboard.LevelInfo
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
