package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Fetcher retrieves a fresh StatusInfo, e.g. by polling GET /status.
type Fetcher func() (StatusInfo, error)

// RunWatch runs a live-updating bubbletea dashboard that polls fetch once
// a second, adapted from the teacher's indexingModel tick/spinner loop
// (internal/ui/tui.go) — generalized from a one-shot indexing progress
// bar to a recurring server-metrics poll. Returns when the user presses
// q or ctrl+c.
func RunWatch(fetch Fetcher) error {
	m := newWatchModel(fetch)
	p := tea.NewProgram(m)
	_, err := p.Run()
	return err
}

type tickMsg time.Time
type fetchedMsg struct {
	info StatusInfo
	err  error
}

type watchModel struct {
	fetch    Fetcher
	spinner  spinner.Model
	styles   Styles
	info     StatusInfo
	err      error
	quitting bool
}

func newWatchModel(fetch Fetcher) *watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))
	return &watchModel{fetch: fetch, spinner: s, styles: DefaultStyles()}
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll(), tickCmd())
}

func (m *watchModel) poll() tea.Cmd {
	return func() tea.Msg {
		info, err := m.fetch()
		return fetchedMsg{info: info, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.poll(), tickCmd())
	case fetchedMsg:
		m.info, m.err = msg.info, msg.err
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *watchModel) View() string {
	if m.quitting {
		return "\n"
	}

	header := fmt.Sprintf("%s %s", m.spinner.View(), m.styles.Header.Render("memorized status"))
	if m.err != nil {
		return header + "\n\n" + m.styles.Error.Render(m.err.Error()) + "\n\n" + m.styles.Dim.Render("q to quit")
	}

	lines := []string{
		header,
		"",
		fmt.Sprintf("  Status:  %s", m.renderStatus(m.info.Status)),
		fmt.Sprintf("  Data:    %s", m.info.DataDir),
		"",
		m.styles.Label.Render("  Fusion search:"),
		fmt.Sprintf("    Queries:  %d  (%.1f/min)", m.info.QueryCount, m.info.QPS1m*60),
		fmt.Sprintf("    Cache:    %d hits / %d misses", m.info.CacheHits, m.info.CacheMisses),
		fmt.Sprintf("    Latency:  p50 %.1fms  p95 %.1fms  avg %.1fms", m.info.P50Ms, m.info.P95Ms, m.info.AvgMs),
		"",
		m.styles.Dim.Render("  q to quit"),
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1)
	return panel.Render(strings.Join(lines, "\n"))
}

func (m *watchModel) renderStatus(status string) string {
	switch status {
	case "ok":
		return m.styles.Success.Render(status)
	case "degraded":
		return m.styles.Warning.Render(status)
	default:
		return m.styles.Dim.Render("unknown")
	}
}
