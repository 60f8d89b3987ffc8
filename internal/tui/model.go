package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/autopilot/internal/engine"
	"github.com/aristath/autopilot/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneStatus PaneID = iota
	PaneOutput
)

// Engine is the control surface the dashboard drives. Satisfied by
// engine.Controller.
type Engine interface {
	State() engine.EngineState
	Pause() error
	Resume() error
	Interrupt() error
	AddIterations(n int) error
	RemoveIterations(n int) error
}

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	statusPane  StatusPaneModel
	outputPane  OutputPaneModel
	focusedPane PaneID
	eng         Engine
	eventSub    <-chan events.Event
	width       int
	height      int
	quitting    bool
}

// New creates the dashboard model. It subscribes to all events on the bus.
func New(eng Engine, bus *events.EventBus) Model {
	m := Model{
		statusPane:  NewStatusPaneModel(),
		outputPane:  NewOutputPaneModel(),
		focusedPane: PaneOutput,
		eng:         eng,
		eventSub:    bus.SubscribeAll(0),
	}
	m.statusPane.SetState(eng.State())
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.eventSub), m.statusPane.Tick())
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab, KeyShiftTab:
			if m.focusedPane == PaneStatus {
				m.focusedPane = PaneOutput
			} else {
				m.focusedPane = PaneStatus
			}
			m.updateFocusStates()

		case KeyPause:
			m.control(m.eng.Pause())
		case KeyResume:
			m.control(m.eng.Resume())
		case KeyIntr:
			m.control(m.eng.Interrupt())
		case KeyAddIter:
			m.control(m.eng.AddIterations(1))
		case KeyDropIter:
			m.control(m.eng.RemoveIterations(1))

		default:
			if m.focusedPane == PaneOutput {
				var cmd tea.Cmd
				m.outputPane, cmd = m.outputPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case tickMsg:
		var cmd tea.Cmd
		m.outputPane, cmd = m.outputPane.Update(msg)
		cmds = append(cmds, cmd)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.statusPane, cmd = m.statusPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.Event:
		// Every bus event refreshes the status snapshot; output-relevant
		// events also reach the output pane.
		m.statusPane.SetState(m.eng.State())
		if st, ok := msg.(events.EngineStatusEvent); ok {
			m.statusPane.SetNotice(st.Detail)
		}

		var cmd tea.Cmd
		m.outputPane, cmd = m.outputPane.Update(msg)
		cmds = append(cmds, cmd)
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// control refreshes the status pane after a control operation; errors land in
// the notice banner rather than crashing the view.
func (m *Model) control(err error) {
	if err != nil {
		m.statusPane.SetNotice(err.Error())
	}
	m.statusPane.SetState(m.eng.State())
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	left := m.statusPane.View()
	right := m.outputPane.View()
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, HelpView())
}

// computeLayout calculates pane dimensions and updates the child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 40) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // reserve 1 line for help bar

	m.statusPane.SetSize(leftWidth, availableHeight)
	m.outputPane.SetSize(rightWidth, availableHeight)
	m.updateFocusStates()
}

// updateFocusStates updates the focus state of the panes.
func (m *Model) updateFocusStates() {
	m.statusPane.SetFocused(m.focusedPane == PaneStatus)
	m.outputPane.SetFocused(m.focusedPane == PaneOutput)
}
