package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fimwatch/internal/baseline"
	"fimwatch/internal/dashboard"
	"fimwatch/internal/report"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ViewState represents which screen is active.
type ViewState int

const (
	ViewStatus ViewState = iota
	ViewReport
	ViewBaseline
)

var viewNames = []string{"Status", "Last report", "Baseline"}

// Config holds configuration passed from the CLI layer.
type Config struct {
	Sources dashboard.Sources
	// Refresh is the reload interval. Zero means 5s.
	Refresh time.Duration
}

// Model is the top-level Bubble Tea model.
type Model struct {
	state   ViewState
	config  Config
	width   int
	height  int
	loading bool
	updated time.Time

	spinner  spinner.Model
	status   statusModel
	report   reportModel
	baseline baselineModel
	err      error
}

// snapshotMsg carries a reload of every view.
type snapshotMsg struct {
	summary  dashboard.Summary
	baseline *dashboard.BaselineView
	latest   *report.Entry
	err      error
}

type tickMsg time.Time

// New creates a new TUI model with the given config.
func New(cfg Config) Model {
	if cfg.Refresh == 0 {
		cfg.Refresh = 5 * time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle

	return Model{
		state:    ViewStatus,
		config:   cfg,
		loading:  true,
		spinner:  sp,
		baseline: newBaselineModel(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, load(m.config.Sources))
}

func load(src dashboard.Sources) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var msg snapshotMsg

		if msg.summary, msg.err = src.Summary(ctx); msg.err != nil {
			return msg
		}
		view, err := src.Baseline(ctx, time.Time{}, "")
		var corrupt *baseline.CorruptError
		if err != nil && !errors.Is(err, baseline.ErrNoBaseline) && !errors.As(err, &corrupt) {
			msg.err = err
			return msg
		}
		msg.baseline = view

		if src.Journal != nil {
			e, ok, err := src.Journal.LastAnomaly()
			if err != nil {
				msg.err = err
				return msg
			}
			if ok {
				msg.latest = &e
			}
		}
		return msg
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Layout: tab bar, gap, body, status bar.
		body := m.height - 3
		if body < 5 {
			body = 5
		}
		m.report.resize(m.width, body)
		m.baseline.resize(m.width, body)
		return m, nil

	case snapshotMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.status = statusModel{summary: msg.summary, ready: true}
			m.report.setEntry(msg.latest)
			m.baseline.setView(msg.baseline)
			m.updated = time.Now()
		}
		return m, tick(m.config.Refresh)

	case tickMsg:
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, load(m.config.Sources))

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			m.state = (m.state + 1) % ViewState(len(viewNames))
			return m, nil
		case "shift+tab":
			m.state = (m.state + ViewState(len(viewNames)) - 1) % ViewState(len(viewNames))
			return m, nil
		case "1", "2", "3":
			m.state = ViewState(msg.String()[0] - '1')
			return m, nil
		case "r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, load(m.config.Sources))
		}
	}

	var cmd tea.Cmd
	switch m.state {
	case ViewReport:
		m.report, cmd = m.report.Update(msg)
	case ViewBaseline:
		m.baseline, cmd = m.baseline.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	var tabs []string
	for i, name := range viewNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if ViewState(i) == m.state {
			tabs = append(tabs, tabStyle.Inherit(selectedStyle).Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	header := titleStyle.Render(" ◆ fimwatch ") + lipgloss.JoinHorizontal(lipgloss.Top, tabs...)

	var body string
	switch {
	case m.err != nil:
		body = "\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n"
	case m.state == ViewStatus:
		body = m.status.View()
	case m.state == ViewReport:
		body = m.report.View()
	case m.state == ViewBaseline:
		body = m.baseline.View()
	}

	state := "idle"
	if m.loading {
		state = m.spinner.View() + " refreshing"
	} else if !m.updated.IsZero() {
		state = "updated " + m.updated.Format(time.TimeOnly)
	}
	bar := statusBarStyle.Width(m.width).Render(
		fmt.Sprintf(" %s • %s • tab switch • r refresh • q quit", m.config.Sources.Root, state))

	return strings.Join([]string{header, body, bar}, "\n")
}

// Run starts the TUI program.
func Run(cfg Config) error {
	p := tea.NewProgram(New(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
