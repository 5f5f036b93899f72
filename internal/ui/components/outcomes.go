package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("42")).
			Padding(0, 1)

	cancelledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	subTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true).
				Padding(0, 1)
)

// Outcome is a task that reached a terminal status.
type Outcome struct {
	Title     string
	Completed bool
}

// Outcomes shows the tasks most recently completed or cancelled, oldest
// first.
type Outcomes struct {
	Completed []Outcome
	Cancelled []Outcome
	Width     int
	Title     string
}

func NewOutcomes(width int) *Outcomes {
	return &Outcomes{
		Width: width,
		Title: "Finished Tasks",
	}
}

func (o *Outcomes) Add(res Outcome, limit int) {
	if res.Completed {
		o.Completed = appendWithLimit(o.Completed, res, limit)
	} else {
		o.Cancelled = appendWithLimit(o.Cancelled, res, limit)
	}
}

func appendWithLimit(s []Outcome, res Outcome, limit int) []Outcome {
	s = append(s, res)
	if limit > 0 && len(s) > limit {
		return s[len(s)-limit:]
	}
	return s
}

func (o *Outcomes) View() string {
	var boxes []string
	if len(o.Completed) > 0 {
		boxes = append(boxes, o.renderBox("Completed", o.Completed, completedStyle, "✓"))
	}
	if len(o.Cancelled) > 0 {
		boxes = append(boxes, o.renderBox("Cancelled", o.Cancelled, cancelledStyle, "✗"))
	}

	content := placeholderStyle.Render("No finished tasks yet")
	if len(boxes) > 0 {
		content = strings.Join(boxes, "\n")
	}
	if o.Title == "" {
		return content
	}
	return headerStyle.Render(o.Title) + "\n" + content
}

func (o *Outcomes) renderBox(title string, items []Outcome, style lipgloss.Style, icon string) string {
	subTitle := subTitleStyle.Foreground(style.GetForeground()).Render(title)

	// border and padding take four columns, the icon two more
	nameWidth := max(o.Width-6, 0)
	boxWidth := max(o.Width-2, 0)

	var lines []string
	for _, it := range items {
		wrapped := lipgloss.NewStyle().Width(nameWidth).Render(it.Title)
		for i, line := range strings.Split(wrapped, "\n") {
			if i == 0 {
				lines = append(lines, fmt.Sprintf("%s %s", icon, line))
			} else {
				lines = append(lines, "  "+line)
			}
		}
	}

	return style.Width(boxWidth).Render(subTitle + "\n" + strings.Join(lines, "\n"))
}
