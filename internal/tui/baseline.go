package tui

import (
	"fimwatch/internal/dashboard"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
)

// baselineModel lists the recorded files.
type baselineModel struct {
	table table.Model
	view  *dashboard.BaselineView
}

func newBaselineModel() baselineModel {
	t := table.New(
		table.WithColumns(baselineColumns(80)),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Selected = selectedStyle
	t.SetStyles(styles)
	return baselineModel{table: t}
}

func baselineColumns(width int) []table.Column {
	pathWidth := width - 16 - 10 - 8
	if pathWidth < 20 {
		pathWidth = 20
	}
	return []table.Column{
		{Title: "Path", Width: pathWidth},
		{Title: "SHA-256", Width: 16},
		{Title: "Size", Width: 10},
	}
}

func (m *baselineModel) resize(width, height int) {
	m.table.SetColumns(baselineColumns(width))
	m.table.SetWidth(width)
	m.table.SetHeight(height)
}

func (m *baselineModel) setView(v *dashboard.BaselineView) {
	m.view = v
	if v == nil {
		m.table.SetRows(nil)
		return
	}
	rows := make([]table.Row, 0, len(v.Files))
	for _, r := range v.Files {
		rows = append(rows, table.Row{
			r.Path,
			r.Digest.String()[:12] + "…",
			humanize.Bytes(uint64(r.Size)),
		})
	}
	m.table.SetRows(rows)
}

func (m baselineModel) Update(msg tea.Msg) (baselineModel, tea.Cmd) {
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m baselineModel) View() string {
	if m.view == nil {
		return "\n" + dimStyle.Render("  No baseline recorded.") + "\n"
	}
	return m.table.View()
}
