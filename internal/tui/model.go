// Package tui is the interactive terminal front end.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dsqprocess/dsqprocess/internal/orchestrator"
	"github.com/dsqprocess/dsqprocess/internal/presets"
	"github.com/dsqprocess/dsqprocess/internal/registry"
)

// Controller is the part of app.App the TUI drives
type Controller interface {
	Presets() []presets.Preset
	StartPreset(index int) (orchestrator.Handle, error)
	CheckDeadProcesses(ctx context.Context) []string
	Tracked() []registry.Entry
	Status() string
	CurrentGame() string
}

const tickInterval = time.Second

// Model is the Bubble Tea state
type Model struct {
	ctrl Controller

	list    list.Model
	tracked []registry.Entry
	status  string
	game    string
	err     error

	width  int
	height int
}

// New builds the model with the preset list loaded
func New(ctrl Controller) *Model {
	delegate := list.NewDefaultDelegate()
	lst := list.New(nil, delegate, 0, 0)
	lst.Title = "Presets"
	lst.SetShowHelp(false)
	lst.DisableQuitKeybindings()

	m := &Model{ctrl: ctrl, list: lst}
	m.loadPresets()
	m.refresh()
	return m
}

// Run starts the program and blocks until the user quits
func Run(ctrl Controller) error {
	_, err := tea.NewProgram(New(ctrl), tea.WithAltScreen()).Run()
	return err
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.height > 8 {
			m.list.SetSize(msg.Width, msg.Height-8)
		}

	case tickMsg:
		return m, tea.Batch(pollCmd(m.ctrl), tick())

	case polledMsg:
		m.refresh()

	case startedMsg:
		m.err = msg.err
		m.refresh()

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(presetItem); ok {
				return m, startCmd(m.ctrl, item.index)
			}
			return m, nil
		case "r":
			m.loadPresets()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m *Model) View() string {
	var b strings.Builder

	header := lipgloss.NewStyle().Bold(true)
	if m.game != "" {
		b.WriteString(header.Foreground(lipgloss.Color("42")).Render("Playing: " + m.game))
	} else {
		b.WriteString(header.Foreground(lipgloss.Color("244")).Render("Idle"))
	}
	b.WriteByte('\n')

	if m.status != "" {
		b.WriteString(m.status)
		b.WriteByte('\n')
	}
	if m.err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteByte('\n')
	}

	b.WriteString(m.list.View())
	b.WriteByte('\n')

	if len(m.tracked) > 0 {
		lines := make([]string, 0, len(m.tracked))
		for _, e := range m.tracked {
			lines = append(lines, fmt.Sprintf("pid=%d %s (%s)", e.PID, e.Name, time.Since(e.StartedAt).Round(time.Second)))
		}
		box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
		b.WriteString(box.Render(strings.Join(lines, "\n")))
		b.WriteByte('\n')
	}

	help := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	b.WriteString(help.Render("enter start • / filter • r reload presets • q quit"))
	return b.String()
}

func (m *Model) loadPresets() {
	loaded := m.ctrl.Presets()
	items := make([]list.Item, 0, len(loaded))
	for i, p := range loaded {
		items = append(items, presetItem{Preset: p, index: i})
	}
	m.list.SetItems(items)
}

func (m *Model) refresh() {
	m.status = m.ctrl.Status()
	m.game = m.ctrl.CurrentGame()
	m.tracked = m.ctrl.Tracked()
}

type presetItem struct {
	presets.Preset
	index int
}

func (p presetItem) Title() string {
	if p.IsCustom {
		return p.Name + " (custom)"
	}
	return p.Name
}

func (p presetItem) Description() string {
	return p.Path + "/" + p.Executable
}

func (p presetItem) FilterValue() string {
	return p.Name + " " + p.Executable
}

type tickMsg time.Time

type polledMsg struct{ ended []string }

type startedMsg struct{ err error }

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func pollCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return polledMsg{ended: ctrl.CheckDeadProcesses(ctx)}
	}
}

func startCmd(ctrl Controller, index int) tea.Cmd {
	return func() tea.Msg {
		_, err := ctrl.StartPreset(index)
		return startedMsg{err: err}
	}
}
