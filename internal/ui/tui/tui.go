package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI adapts a running tea.Program to the ui.UI interface.
type TUI struct {
	program *tea.Program
}

func NewTUI(p *tea.Program) *TUI {
	return &TUI{program: p}
}

func (t *TUI) UpdateStatus(status string) {
	t.program.Send(StatusMsg(status))
}

func (t *TUI) StageStarted(index, total int, name string) {
	t.program.Send(StageMsg{Index: index, Total: total, Name: name})
}

func (t *TUI) Log(msg string) {
	t.program.Send(LogMsg(msg))
}

// Done tells the program the run finished; the model quits after rendering
// the final state.
func (t *TUI) Done(err error) {
	t.program.Send(DoneMsg{Err: err})
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))
)

type Model struct {
	Query     string
	Status    string
	Stage     string
	Completed int
	Total     int
	Log       []string
	Err       error
	Progress  progress.Model
	Viewport  viewport.Model
	Quitting  bool
	Ready     bool
	Width     int
	Height    int
}

type LogMsg string
type StatusMsg string

// StageMsg reports that a stage began. Index is zero based.
type StageMsg struct {
	Index int
	Total int
	Name  string
}

type DoneMsg struct {
	Err error
}

func NewModel(query string, stages int) Model {
	return Model{
		Query:    query,
		Status:   "Starting...",
		Total:    stages,
		Progress: progress.New(progress.WithDefaultGradient()),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, max(msg.Height-8, 1))
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = max(msg.Height-8, 1)
		}
		m.Progress.Width = max(msg.Width-4, 10)

	case LogMsg:
		m.appendLog(string(msg))

	case StatusMsg:
		m.Status = string(msg)

	case StageMsg:
		m.Stage = msg.Name
		m.Completed = msg.Index
		if msg.Total > 0 {
			m.Total = msg.Total
		}
		m.appendLog(fmt.Sprintf("[%d/%d] %s", msg.Index+1, m.Total, msg.Name))

	case DoneMsg:
		m.Err = msg.Err
		if msg.Err == nil {
			m.Completed = m.Total
			m.Status = "complete"
		} else {
			m.Status = "failed"
		}
		m.Quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) appendLog(line string) {
	m.Log = append(m.Log, line)
	m.Viewport.SetContent(strings.Join(m.Log, "\n"))
	m.Viewport.GotoBottom()
}

// Fraction returns the completed share of stages.
func (m Model) Fraction() float64 {
	if m.Total <= 0 {
		return 0
	}
	return float64(m.Completed) / float64(m.Total)
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Starting..."
	}

	header := titleStyle.Render(" scribe ")
	status := infoStyle.Render(fmt.Sprintf(" %s ", m.Status))
	if m.Err != nil {
		status = errorStyle.Render(fmt.Sprintf(" %s: %v ", m.Status, m.Err))
	}
	stage := fmt.Sprintf(" Stage: %s ", m.Stage)

	view := fmt.Sprintf("%s%s%s\n %s\n\n%s\n\n%s",
		header, status, stage,
		m.Query,
		m.Viewport.View(),
		m.Progress.ViewAs(m.Fraction()))

	if m.Quitting {
		return view + "\n"
	}
	return view
}
