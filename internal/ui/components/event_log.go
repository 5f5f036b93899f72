package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	lineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	scrollbarTrackStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("236"))

	scrollbarHandleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))
)

// EventLog renders the most recent feed lines in a scrollable viewport.
// Lines past the limit are dropped oldest first.
type EventLog struct {
	viewport viewport.Model
	lines    []string
	limit    int
	ready    bool
	width    int
	height   int
}

func NewEventLog(width, height, limit int) *EventLog {
	return &EventLog{
		viewport: viewport.New(width, height),
		limit:    limit,
		width:    width,
		height:   height,
	}
}

func (l *EventLog) SetSize(width, height int) {
	l.width = width
	l.height = height
	vpWidth := width
	if width > 0 {
		vpWidth = width - 1
	}
	if !l.ready {
		l.viewport = viewport.New(vpWidth, height)
		l.ready = true
	} else {
		l.viewport.Width = vpWidth
		l.viewport.Height = height
	}
	l.updateContent()
}

// Append adds one line. The view follows the tail unless the user has
// scrolled up.
func (l *EventLog) Append(line string) {
	follow := !l.ready || l.viewport.AtBottom()
	l.lines = append(l.lines, line)
	if l.limit > 0 && len(l.lines) > l.limit {
		l.lines = l.lines[len(l.lines)-l.limit:]
	}
	l.updateContent()
	if follow {
		l.viewport.GotoBottom()
	}
}

func (l *EventLog) AppendStatus(status string) {
	l.Append(statusStyle.Render("--- " + status + " ---"))
}

func (l *EventLog) Len() int {
	return len(l.lines)
}

func (l *EventLog) Lines() []string {
	return l.lines
}

func (l *EventLog) Reset() {
	l.lines = nil
	l.updateContent()
}

func (l *EventLog) updateContent() {
	content := strings.Join(l.lines, "\n")
	if width := l.viewport.Width; width > 0 {
		content = lineStyle.Width(width).Render(content)
	} else {
		content = lineStyle.Render(content)
	}
	l.viewport.SetContent(content)
}

func (l *EventLog) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	l.viewport, cmd = l.viewport.Update(msg)
	return cmd
}

func (l *EventLog) View() string {
	if !l.ready {
		return ""
	}

	if l.viewport.TotalLineCount() <= l.viewport.Height {
		return l.viewport.View()
	}

	h := l.viewport.Height
	handlePos := int(float64(h-1) * l.viewport.ScrollPercent())

	var sb strings.Builder
	for i := range h {
		if i == handlePos {
			sb.WriteString(scrollbarHandleStyle.Render("┃"))
		} else {
			sb.WriteString(scrollbarTrackStyle.Render("│"))
		}
		if i < h-1 {
			sb.WriteString("\n")
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, l.viewport.View(), sb.String())
}

func (l *EventLog) GotoBottom() {
	l.viewport.GotoBottom()
}

func (l *EventLog) Height() int {
	return l.viewport.Height
}
