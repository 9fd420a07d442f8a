package tui

import (
	"strings"

	"fimwatch/internal/notify"
	"fimwatch/internal/report"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

// reportModel shows the most recent drift report, rendered as Markdown.
type reportModel struct {
	viewport    viewport.Model
	renderer    *glamour.TermRenderer
	entry       *report.Entry
	initialized bool
}

func (m *reportModel) resize(width, height int) {
	m.viewport = viewport.New(width, height)

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err == nil {
		m.renderer = r
	}
	m.initialized = true
	m.viewport.SetContent(m.render())
}

func (m *reportModel) setEntry(e *report.Entry) {
	m.entry = e
	if m.initialized {
		m.viewport.SetContent(m.render())
	}
}

func (m reportModel) render() string {
	if m.entry == nil {
		return dimStyle.Render("No drift has been reported.")
	}
	md := notify.EntryBody(*m.entry)
	if m.renderer == nil {
		return md
	}
	rendered, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(rendered, "\n")
}

func (m reportModel) Update(msg tea.Msg) (reportModel, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m reportModel) View() string {
	if !m.initialized {
		return ""
	}
	return m.viewport.View()
}
