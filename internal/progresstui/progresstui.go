// Package progresstui is an optional live view of a crawl's progress: a
// pure consumer of the status channel rendered as a bubbletea program.
//
// It never drives the crawl — attaching or not attaching progresstui does
// not change what gets described or emitted, only what the operator sees
// while it happens.
package progresstui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nixtract/nixtract/internal/status"
)

const maxRecentEvents = 500

// Config configures the progress view.
type Config struct {
	FlakeRef string
	System   string
}

// Model is the bubbletea model driving the live progress view. The
// scrolling event log is a viewport.Model so long crawls can be scrolled
// back through instead of only ever showing the tail.
type Model struct {
	cfg     Config
	events  <-chan status.Event
	counts  status.Counts
	recent  []string
	logVP   viewport.Model
	started time.Time
	done    bool
	ready   bool
	width   int
}

type eventMsg status.Event
type channelClosedMsg struct{}

// New creates a Model that reads from events until it closes.
func New(cfg Config, events <-chan status.Event) Model {
	return Model{cfg: cfg, events: events, started: time.Now()}
}

// Run starts the bubbletea program and blocks until the crawl finishes
// (the status channel closes) or the operator quits.
func Run(cfg Config, events <-chan status.Event) error {
	p := tea.NewProgram(New(cfg, events))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan status.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return channelClosedMsg{}
		}
		return eventMsg(e)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		logHeight := msg.Height - 6
		if logHeight < 3 {
			logHeight = 3
		}
		if !m.ready {
			m.logVP = viewport.New(msg.Width-4, logHeight)
			m.ready = true
		} else {
			m.logVP.Width = msg.Width - 4
			m.logVP.Height = logHeight
		}
		m.logVP.SetContent(strings.Join(m.recent, "\n"))
	case eventMsg:
		e := status.Event(msg)
		m.counts.Apply(e)
		m.recent = append(m.recent, describeEvent(e))
		if len(m.recent) > maxRecentEvents {
			m.recent = m.recent[len(m.recent)-maxRecentEvents:]
		}
		if m.ready {
			m.logVP.SetContent(strings.Join(m.recent, "\n"))
			m.logVP.GotoBottom()
		}
		if e.Kind == status.Drained {
			m.done = true
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)
	case channelClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.logVP, cmd = m.logVP.Update(msg)
	return m, cmd
}

func describeEvent(e status.Event) string {
	switch e.Kind {
	case status.Queued:
		return "queued " + e.AttributePath
	case status.Started:
		return "describing " + e.AttributePath
	case status.Described:
		return "described " + e.AttributePath
	case status.Skipped:
		return "skipped " + e.AttributePath
	case status.Failed:
		if e.AttributePath != "" {
			return fmt.Sprintf("failed %s: %v", e.AttributePath, e.Err)
		}
		return fmt.Sprintf("failed: %v", e.Err)
	case status.FinderDone:
		return "finder done"
	case status.Drained:
		return "drained"
	default:
		return string(e.Kind)
	}
}

func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	borderStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)

	header := titleStyle.Render(fmt.Sprintf("nixtract  %s  %s", m.cfg.FlakeRef, m.cfg.System))

	stats := fmt.Sprintf(
		"discovered %d   %s %d   %s %d   skipped %d   elapsed %s",
		m.counts.Discovered,
		okStyle.Render("described"), m.counts.Described,
		failStyle.Render("failed"), m.counts.Failed,
		m.counts.Skipped,
		time.Since(m.started).Round(time.Second),
	)

	log := dimStyle.Render("starting up...")
	if m.ready {
		log = m.logVP.View()
	}

	body := header + "\n\n" + stats + "\n\n" + log
	if m.done {
		body += "\n\n" + okStyle.Render("crawl complete")
	}
	return borderStyle.Render(body)
}
