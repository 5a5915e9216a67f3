package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model renders the progress of one optimization run. It reads completion
// percentages until the channel is closed.
type Model struct {
	updates  <-chan float64
	started  time.Time
	width    int
	total    int
	percent  float64
	quitting bool
}

type doneMsg struct{}

type percentMsg float64

// NewModel returns a Model for a run over total images.
func NewModel(updates <-chan float64, total int) Model {
	return Model{updates: updates, total: total, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case percentMsg:
		m.percent = float64(msg)
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		// Runs cannot be cancelled; ctrl+c only hides the view.
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	done := int(math.Round(m.percent / 100 * float64(m.total)))
	elapsed := time.Since(m.started).Round(time.Millisecond)

	lines := []string{
		titleStyle.Render("image-optimizer"),
		labelStyle.Render(fmt.Sprintf("Images: %d/%d", done, m.total)) + dimStyle.Render(fmt.Sprintf("  %.0f%%", m.percent)),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)),
		barStyle.Render(renderBar(barWidth, m.percent/100)),
	}

	return strings.Join(lines, "\n")
}

// Percent returns the last percentage received.
func (m Model) Percent() float64 {
	return m.percent
}

func listenForUpdates(updates <-chan float64) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return percentMsg(p)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(ColorInk)
	barStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	dimStyle   = lipgloss.NewStyle().Foreground(ColorDim)
)
