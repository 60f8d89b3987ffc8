package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/aristath/autopilot/internal/events"
)

// maxOutputLines bounds the scrollback kept per run.
const maxOutputLines = 2000

// OutputPaneModel is the scrolling agent-output viewport.
type OutputPaneModel struct {
	lines     []string
	viewport  viewport.Model
	width     int
	height    int
	focused   bool
	updateTag int // for debouncing
}

// NewOutputPaneModel creates a new output pane.
func NewOutputPaneModel() OutputPaneModel {
	vp := viewport.New(0, 0)
	return OutputPaneModel{viewport: vp}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the output pane.
func (m OutputPaneModel) Update(msg tea.Msg) (OutputPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		m.viewport, cmd = m.viewport.Update(msg)

	case events.AgentOutputEvent:
		line := msg.Line
		if msg.Stream == "stderr" {
			line = StyleStatusFailed.Render(line)
		}
		m.append(line)

		// Debounce: one viewport refresh per burst, not per line
		m.updateTag++
		tag := m.updateTag
		return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
			return tickMsg{tag: tag}
		})

	case events.AgentStartedEvent:
		m.append(StyleTitle.Render(fmt.Sprintf("--- %s attempt %d ---", msg.AgentID, msg.Attempt)))
		m.refresh()

	case events.RetryScheduledEvent:
		m.append(StyleStatusPaused.Render(fmt.Sprintf("[retry %d in %s]", msg.Attempt, msg.Delay)))
		m.refresh()

	case events.AgentSwitchedEvent:
		m.append(StyleBanner.Render(fmt.Sprintf("[agent switch %s -> %s (%s)]", msg.From, msg.To, msg.Reason)))
		m.refresh()

	case events.GapEvent:
		m.append(StyleStatusPaused.Render(fmt.Sprintf("[%d output lines dropped]", msg.Dropped)))
		m.refresh()

	case tickMsg:
		// Only refresh on the most recent tick
		if msg.tag == m.updateTag {
			m.refresh()
		}
	}

	return m, cmd
}

func (m *OutputPaneModel) append(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxOutputLines {
		m.lines = m.lines[len(m.lines)-maxOutputLines:]
	}
}

func (m *OutputPaneModel) refresh() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// SetSize updates the pane dimensions.
func (m *OutputPaneModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width - 2
	m.viewport.Height = height - 2
	m.refresh()
}

// SetFocused updates the focus state.
func (m *OutputPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// View renders the output pane.
func (m OutputPaneModel) View() string {
	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.Width(m.width - 2).Height(m.height - 2).Render(m.viewport.View())
}
