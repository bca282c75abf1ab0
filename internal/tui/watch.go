// Package tui renders a terminal view of one job's progress and model
// output, fed by the same router subscriptions as every other consumer.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/narrate-go/narrate/internal/channel"
	"github.com/narrate-go/narrate/internal/models"
)

const reasoningLines = 6

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle       = lipgloss.NewStyle().Faint(true)
	doneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	reasoningStyle = lipgloss.NewStyle().
			Faint(true).
			Italic(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// ProgressMsg carries a progress change for the watched job.
type ProgressMsg models.JobProgress

// ViewMsg carries a new reassembled view for the watched job.
type ViewMsg models.ReasoningView

// StateMsg carries a connection state change.
type StateMsg channel.State

// ProgressSource is the progress model the view reads from.
type ProgressSource interface {
	Get(jobID string) models.JobProgress
	OnChange(jobID string, fn func(models.JobProgress)) (cancel func())
}

// ViewSource is the reassembler the view reads from.
type ViewSource interface {
	View(jobID string) models.ReasoningView
	OnView(jobID string, fn func(models.ReasoningView)) (cancel func())
}

// WatchModel is the bubbletea model for one job.
type WatchModel struct {
	jobID      string
	exitOnDone bool

	progress models.JobProgress
	view     models.ReasoningView
	state    channel.State

	bar  progress.Model
	main viewport.Model

	width  int
	height int
	ready  bool
}

// NewWatchModel creates a view of jobID seeded with the current snapshots.
// With exitOnDone the program quits once the job reaches 100%.
func NewWatchModel(jobID string, ps ProgressSource, vs ViewSource, exitOnDone bool) WatchModel {
	return WatchModel{
		jobID:      jobID,
		exitOnDone: exitOnDone,
		progress:   ps.Get(jobID),
		view:       vs.View(jobID),
		state:      channel.StateClosed,
		bar:        progress.New(progress.WithDefaultGradient()),
	}
}

// WithConnectionState sets the channel state shown before the first StateMsg.
func (m WatchModel) WithConnectionState(s channel.State) WatchModel {
	m.state = s
	return m
}

// Subscribe mounts the job's subscriptions and forwards every change to
// send, usually tea.Program.Send. The returned cancel unmounts them.
func Subscribe(jobID string, ps ProgressSource, vs ViewSource, send func(tea.Msg)) (cancel func()) {
	stopProgress := ps.OnChange(jobID, func(p models.JobProgress) { send(ProgressMsg(p)) })
	stopView := vs.OnView(jobID, func(v models.ReasoningView) { send(ViewMsg(v)) })
	return func() {
		stopProgress()
		stopView()
	}
}

func (m WatchModel) Init() tea.Cmd {
	return nil
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = max(msg.Width-4, 10)
		mainHeight := max(msg.Height-reasoningLines-8, 3)
		if !m.ready {
			m.main = viewport.New(msg.Width, mainHeight)
			m.ready = true
		} else {
			m.main.Width = msg.Width
			m.main.Height = mainHeight
		}
		m.refreshMain()
		return m, nil
	case ProgressMsg:
		m.progress = models.JobProgress(msg)
		if m.progress.Terminal && m.exitOnDone {
			return m, tea.Quit
		}
		return m, nil
	case ViewMsg:
		m.view = models.ReasoningView(msg)
		m.refreshMain()
		return m, nil
	case StateMsg:
		m.state = channel.State(msg)
		return m, nil
	}

	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.main, cmd = m.main.Update(msg)
	return m, cmd
}

func (m *WatchModel) refreshMain() {
	if !m.ready {
		return
	}
	atBottom := m.main.AtBottom()
	m.main.SetContent(m.view.Main)
	if atBottom {
		m.main.GotoBottom()
	}
}

func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Job "+m.jobID) + dimStyle.Render(fmt.Sprintf("  channel %s", m.state)))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(float64(m.progress.Percentage) / 100))
	b.WriteString("\n")
	switch {
	case m.progress.Terminal:
		b.WriteString(doneStyle.Render(orDefault(m.progress.Message, "Complete")))
	default:
		b.WriteString(orDefault(m.progress.Message, dimStyle.Render("Waiting for progress...")))
	}
	b.WriteString("\n\n")

	if m.view.Reasoning != "" || m.view.Open {
		label := "Reasoning"
		if m.view.Open {
			label = "Thinking..."
		}
		b.WriteString(dimStyle.Render(label))
		b.WriteString("\n")
		b.WriteString(reasoningStyle.Render(tail(m.view.Reasoning, reasoningLines)))
		b.WriteString("\n")
	}

	if m.ready {
		b.WriteString(m.main.View())
	} else {
		b.WriteString(m.view.Main)
	}
	b.WriteString("\n" + dimStyle.Render("q to quit"))
	return b.String()
}

// tail keeps the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
