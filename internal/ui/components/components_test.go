package components

import (
	"fmt"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestOutcomes(t *testing.T) {
	o := NewOutcomes(80)
	o.Title = "Done"

	o.Add(Outcome{Title: "ship parser", Completed: true}, 5)
	o.Add(Outcome{Title: "old idea", Completed: false}, 5)

	view := o.View()
	for _, want := range []string{"Done", "Completed", "Cancelled", "✓ ship parser", "✗ old idea"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestOutcomesOrderAndLimit(t *testing.T) {
	o := NewOutcomes(40)
	for i := range 5 {
		o.Add(Outcome{Title: fmt.Sprintf("task-%d", i), Completed: true}, 3)
	}
	if len(o.Completed) != 3 {
		t.Fatalf("expected 3 outcomes kept, got %d", len(o.Completed))
	}

	view := o.View()
	if strings.Contains(view, "task-1") {
		t.Errorf("expected oldest outcomes to be dropped")
	}
	i2, i3, i4 := strings.Index(view, "task-2"), strings.Index(view, "task-3"), strings.Index(view, "task-4")
	if i2 == -1 || !(i2 < i3 && i3 < i4) {
		t.Errorf("expected oldest first, got indices %d, %d, %d", i2, i3, i4)
	}
}

func TestOutcomesEmptyState(t *testing.T) {
	o := NewOutcomes(80)
	if !strings.Contains(o.View(), "No finished tasks yet") {
		t.Errorf("expected placeholder when empty")
	}

	o.Add(Outcome{Title: "x", Completed: true}, 5)
	view := o.View()
	if strings.Contains(view, "Cancelled") {
		t.Errorf("expected no Cancelled box when none were cancelled")
	}
}

func TestOutcomesWidth(t *testing.T) {
	width := 20
	o := NewOutcomes(width)
	o.Add(Outcome{Title: "a title long enough to need wrapping", Completed: true}, 5)

	for _, line := range strings.Split(o.View(), "\n") {
		if w := lipgloss.Width(line); w > width {
			t.Errorf("line too wide: %d > %d. Line: %q", w, width, line)
		}
	}
}

func TestEventLog(t *testing.T) {
	l := NewEventLog(80, 20, 0)
	l.SetSize(80, 20)

	l.Append("hello")
	l.AppendStatus("connected")

	view := l.View()
	if !strings.Contains(view, "hello") {
		t.Errorf("expected view to contain hello")
	}
	if !strings.Contains(view, "--- connected ---") {
		t.Errorf("expected view to contain status line")
	}

	l.Reset()
	if strings.Contains(l.View(), "hello") {
		t.Errorf("expected view to be cleared after Reset")
	}
}

func TestEventLogLimit(t *testing.T) {
	l := NewEventLog(40, 10, 3)
	l.SetSize(40, 10)
	for i := range 5 {
		l.Append(fmt.Sprintf("line-%d", i))
	}

	if l.Len() != 3 {
		t.Fatalf("expected 3 lines kept, got %d", l.Len())
	}
	if got := l.Lines()[0]; got != "line-2" {
		t.Errorf("expected oldest kept line to be line-2, got %q", got)
	}
	if strings.Contains(l.View(), "line-0") {
		t.Errorf("expected dropped line to be gone from view")
	}
}

func TestEventLogScrollbar(t *testing.T) {
	l := NewEventLog(20, 5, 0)
	l.SetSize(20, 5)
	for range 10 {
		l.Append("line")
	}

	view := l.View()
	if !strings.Contains(view, "┃") {
		t.Errorf("expected view to contain scrollbar handle")
	}
	if !strings.Contains(view, "│") {
		t.Errorf("expected view to contain scrollbar track")
	}
}

func TestEventLogNoScrollbar(t *testing.T) {
	l := NewEventLog(20, 10, 0)
	l.SetSize(20, 10)
	l.Append("short")

	view := l.View()
	if strings.Contains(view, "┃") || strings.Contains(view, "│") {
		t.Errorf("expected no scrollbar when content fits")
	}
}

func TestEventLogWrapsOnResize(t *testing.T) {
	l := NewEventLog(60, 10, 0)
	l.SetSize(60, 10)
	l.Append("this is a moderately long line that should fit in sixty characters but not in twenty")

	before := strings.Split(strings.TrimSpace(l.viewport.View()), "\n")
	l.SetSize(20, 10)
	after := strings.Split(strings.TrimSpace(l.viewport.View()), "\n")

	if len(after) <= len(before) {
		t.Errorf("expected more lines after shrinking width: %d <= %d", len(after), len(before))
	}
}
