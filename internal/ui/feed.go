// Package ui renders the live event feed shown by metis watch.
package ui

import (
	"encoding/json"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ldi/metis/internal/events"
	"github.com/ldi/metis/internal/ui/components"
	"github.com/ldi/metis/pkg/models"
)

// DefaultLimit is how many feed lines are kept when none is configured.
const DefaultLimit = 200

const outcomeLimit = 5

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).PaddingLeft(1)

	kindStyles = map[string]lipgloss.Style{
		"task":            lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		"subtask":         lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		"dependency":      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"requirement_ref": lipgloss.NewStyle().Foreground(lipgloss.Color("135")),
	}
)

// EventMsg carries one event from the feed source into the model.
type EventMsg events.Event

// StreamClosedMsg reports that the source ended. Err is nil on a clean close.
type StreamClosedMsg struct {
	Err error
}

// FeedModel is a bubbletea model listing hub events as they arrive.
type FeedModel struct {
	source <-chan events.Event
	errFn  func() error

	log      *components.EventLog
	outcomes *components.Outcomes

	titles   map[string]string
	statuses map[string]models.TaskStatus
	received int
	closed   bool
	err      error

	width, height int
	quitting      bool
}

// NewFeedModel reads events from source until it is closed. errFn, if not
// nil, is consulted once the channel closes to explain why.
func NewFeedModel(source <-chan events.Event, limit int, errFn func() error) FeedModel {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return FeedModel{
		source:   source,
		errFn:    errFn,
		log:      components.NewEventLog(80, 20, limit),
		outcomes: components.NewOutcomes(30),
		titles:   make(map[string]string),
		statuses: make(map[string]models.TaskStatus),
	}
}

func (m FeedModel) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m FeedModel) waitForEvent() tea.Cmd {
	source, errFn := m.source, m.errFn
	return func() tea.Msg {
		e, ok := <-source
		if !ok {
			var err error
			if errFn != nil {
				err = errFn()
			}
			return StreamClosedMsg{Err: err}
		}
		return EventMsg(e)
	}
}

func (m FeedModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.log.Update(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case EventMsg:
		m.record(events.Event(msg))
		return m, m.waitForEvent()

	case StreamClosedMsg:
		m.closed = true
		m.err = msg.Err
		if msg.Err != nil {
			m.log.AppendStatus("disconnected: " + msg.Err.Error())
		} else {
			m.log.AppendStatus("disconnected")
		}
		return m, nil
	}

	return m, m.log.Update(msg)
}

func (m *FeedModel) layout() {
	sideWidth := 0
	if m.width >= 80 {
		sideWidth = m.width / 3
	}
	m.outcomes.Width = sideWidth
	// header and footer take one line each
	m.log.SetSize(m.width-sideWidth, max(m.height-2, 1))
}

func (m *FeedModel) record(e events.Event) {
	m.received++
	p := decodePayload(e.Data)

	switch e.Type {
	case events.TaskCreated, events.TaskUpdated:
		if p.Task != nil {
			m.trackTask(p.Task)
		}
	case events.TaskDeleted:
		defer func() {
			delete(m.titles, p.TaskID)
			delete(m.statuses, p.TaskID)
		}()
	}

	m.log.Append(m.formatLine(e, p))
}

// trackTask remembers titles for later lines and notes tasks that just
// reached a terminal status.
func (m *FeedModel) trackTask(t *models.Task) {
	m.titles[t.ID] = t.Title
	prev, seen := m.statuses[t.ID]
	m.statuses[t.ID] = t.Status
	if seen && prev == t.Status {
		return
	}
	switch t.Status {
	case models.TaskStatusCompleted:
		m.outcomes.Add(components.Outcome{Title: t.Title, Completed: true}, outcomeLimit)
	case models.TaskStatusCancelled:
		m.outcomes.Add(components.Outcome{Title: t.Title}, outcomeLimit)
	}
}

func (m FeedModel) formatLine(e events.Event, p payload) string {
	kind := entityKind(e.Type)
	style, ok := kindStyles[kind]
	if !ok {
		style = mutedStyle
	}

	stamp := "--:--:--"
	if !e.Timestamp.IsZero() {
		stamp = e.Timestamp.Local().Format("15:04:05")
	}
	head := mutedStyle.Render(fmt.Sprintf("%s #%-4d", stamp, e.Seq))
	return fmt.Sprintf("%s %s %s", head, style.Render(fmt.Sprintf("%-23s", e.Type)), m.describe(e.Type, p))
}

func (m FeedModel) describe(t events.Type, p payload) string {
	switch t {
	case events.TaskCreated:
		if p.Task == nil {
			return ""
		}
		return fmt.Sprintf("%q [%s, %s]", p.Task.Title, p.Task.Status, p.Task.Priority)
	case events.TaskUpdated:
		if p.Task == nil {
			return ""
		}
		return fmt.Sprintf("%q now %s", p.Task.Title, p.Task.Status)
	case events.TaskDeleted:
		s := m.taskName(p.TaskID)
		if n := len(p.CascadedDependencyIDs); n > 0 {
			s += fmt.Sprintf(" (%d dependencies removed)", n)
		}
		return s
	case events.SubtaskAdded, events.SubtaskUpdated:
		if p.Subtask == nil {
			return m.taskName(p.TaskID)
		}
		mark := "[ ]"
		if p.Subtask.Completed {
			mark = "[x]"
		}
		return fmt.Sprintf("%s %s on %s", mark, p.Subtask.Title, m.taskName(p.TaskID))
	case events.SubtaskRemoved:
		return fmt.Sprintf("%s from %s", p.SubtaskID, m.taskName(p.TaskID))
	case events.DependencyCreated, events.DependencyUpdated:
		if p.Dependency == nil {
			return ""
		}
		return fmt.Sprintf("%s %s %s", m.taskName(p.Dependency.SourceTaskID), p.Dependency.Type, m.taskName(p.Dependency.TargetTaskID))
	case events.DependencyDeleted:
		s := fmt.Sprintf("%s %s %s", m.taskName(p.SourceTaskID), p.DependencyType, m.taskName(p.TargetTaskID))
		if p.Cascaded {
			s += " (cascaded)"
		}
		return s
	case events.RequirementRefAdded, events.RequirementRefUpdated:
		if p.Ref == nil {
			return m.taskName(p.TaskID)
		}
		return fmt.Sprintf("%s %s %s", m.taskName(p.TaskID), p.Ref.RelationshipType, p.Ref.RequirementID)
	case events.RequirementRefRemoved:
		return fmt.Sprintf("%s from %s", p.RequirementID, m.taskName(p.TaskID))
	}
	return ""
}

func (m FeedModel) taskName(id string) string {
	if title, ok := m.titles[id]; ok {
		return fmt.Sprintf("%q", title)
	}
	return id
}

func (m FeedModel) View() string {
	if m.quitting {
		return ""
	}

	status := mutedStyle.Render(fmt.Sprintf("%d events, %d tasks seen", m.received, len(m.titles)))
	if m.closed {
		if m.err != nil {
			status = errorStyle.Render("disconnected: " + m.err.Error())
		} else {
			status = errorStyle.Render("disconnected")
		}
	}
	header := titleStyle.Render("metis watch") + "  " + status

	body := m.log.View()
	if m.log.Len() == 0 {
		body = mutedStyle.Render("waiting for events...")
	}
	if m.outcomes.Width > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, m.outcomes.View())
	}

	return strings.Join([]string{header, body, footerStyle.Render("↑/↓ scroll • q quit")}, "\n")
}

// Received reports how many events the model has consumed.
func (m FeedModel) Received() int {
	return m.received
}

// RunFeed takes over the terminal until the user quits.
func RunFeed(source <-chan events.Event, limit int, errFn func() error) error {
	p := tea.NewProgram(NewFeedModel(source, limit, errFn), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func entityKind(t events.Type) string {
	s := string(t)
	if i := strings.LastIndexByte(s, '_'); i > 0 {
		return s[:i]
	}
	return s
}

// payload is the union of every event payload shape. Events decoded off
// the wire carry generic maps, in-process ones carry typed structs, so both
// are normalised through JSON.
type payload struct {
	Task    *models.Task    `json:"task"`
	TaskID  string          `json:"task_id"`
	Subtask *models.Subtask `json:"subtask"`

	SubtaskID             string   `json:"subtask_id"`
	CascadedDependencyIDs []string `json:"cascaded_dependency_ids"`

	Dependency     *models.Dependency    `json:"dependency"`
	SourceTaskID   string                `json:"source_task_id"`
	TargetTaskID   string                `json:"target_task_id"`
	DependencyType models.DependencyType `json:"dependency_type"`
	Cascaded       bool                  `json:"cascaded"`

	Ref           *models.RequirementRef `json:"requirement_ref"`
	RequirementID string                 `json:"requirement_id"`
}

func decodePayload(data any) payload {
	var p payload
	if data == nil {
		return p
	}
	raw, ok := data.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(data); err != nil {
			return p
		}
	}
	_ = json.Unmarshal(raw, &p)
	return p
}
