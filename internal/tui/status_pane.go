package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/autopilot/internal/engine"
)

// StatusPaneModel renders engine status: the live iteration, the active
// agent, the rate-limit banner, and the iteration history.
type StatusPaneModel struct {
	state   engine.EngineState
	spin    spinner.Model
	width   int
	height  int
	focused bool
	notice  string // Last pause/failure detail
}

// NewStatusPaneModel creates a new status pane.
func NewStatusPaneModel() StatusPaneModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StyleStatusRunning
	return StatusPaneModel{spin: s}
}

// Tick starts the spinner's tick loop.
func (m StatusPaneModel) Tick() tea.Cmd {
	return m.spin.Tick
}

// Update advances the spinner.
func (m StatusPaneModel) Update(msg tea.Msg) (StatusPaneModel, tea.Cmd) {
	var cmd tea.Cmd
	m.spin, cmd = m.spin.Update(msg)
	return m, cmd
}

// SetState replaces the rendered engine snapshot.
func (m *StatusPaneModel) SetState(state engine.EngineState) {
	m.state = state
}

// SetNotice sets the banner detail line shown while paused or degraded.
func (m *StatusPaneModel) SetNotice(notice string) {
	m.notice = notice
}

// SetSize updates the pane dimensions.
func (m *StatusPaneModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// SetFocused updates the focus state.
func (m *StatusPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// View renders the status pane.
func (m StatusPaneModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Engine"))
	b.WriteString("\n")
	status := statusStyle(m.state.Status).Render(string(m.state.Status))
	if m.state.Status == engine.StatusRunning {
		status = m.spin.View() + " " + status
	}
	b.WriteString(fmt.Sprintf("  status:     %s\n", status))
	b.WriteString(fmt.Sprintf("  iteration:  %d / %d\n", m.state.CompletedIterations(), m.state.MaxIterations))

	if m.state.CurrentTaskID != "" {
		b.WriteString(fmt.Sprintf("  task:       %s\n", m.state.CurrentTaskID))
	}
	if a := m.state.ActiveAgent; a != nil {
		label := a.ID
		if a.Reason == engine.AgentFallback {
			label += " (fallback)"
		}
		b.WriteString(fmt.Sprintf("  agent:      %s\n", label))
	}

	if rl := m.state.RateLimit; rl != nil && rl.LimitedAt != nil {
		banner := fmt.Sprintf("%s rate limited since %s", rl.PrimaryID, rl.LimitedAt.Format(time.Kitchen))
		if rl.FallbackID != "" {
			banner += ", running on " + rl.FallbackID
		}
		b.WriteString(StyleBanner.Render(banner))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(StyleBanner.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(StyleTitle.Render("History"))
	b.WriteString("\n")
	b.WriteString(m.historyView())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.Width(m.width - 2).Height(m.height - 2).Render(b.String())
}

// historyView lists recent iterations, newest last, trimmed to the pane.
func (m StatusPaneModel) historyView() string {
	history := m.state.History
	max := m.height - 12
	if max < 1 {
		max = 1
	}
	if len(history) > max {
		history = history[len(history)-max:]
	}

	var lines []string
	for _, it := range history {
		marker := "…"
		switch it.Outcome {
		case engine.OutcomeCompleted:
			marker = StyleStatusComplete.Render("ok")
		case engine.OutcomeFailed:
			marker = StyleStatusFailed.Render("fail")
		case engine.OutcomeInterrupted:
			marker = StyleStatusPaused.Render("intr")
		}

		line := fmt.Sprintf("  #%d %s %s", it.Number, it.TaskID, marker)
		if n := len(it.Switches); n > 0 {
			line += fmt.Sprintf(" [%d switch]", n)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return StyleStatusPaused.Render("  no iterations yet")
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func statusStyle(s engine.Status) lipgloss.Style {
	switch s {
	case engine.StatusRunning:
		return StyleStatusRunning
	case engine.StatusCompleted:
		return StyleStatusComplete
	case engine.StatusError:
		return StyleStatusFailed
	default:
		return StyleStatusPaused
	}
}
