package models

import (
	"slices"
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskStatuses lists every status in display order.
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusInProgress,
	TaskStatusReview,
	TaskStatusCompleted,
	TaskStatusCancelled,
}

func (s TaskStatus) Valid() bool {
	return slices.Contains(TaskStatuses, s)
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

var TaskPriorities = []TaskPriority{
	PriorityLow,
	PriorityMedium,
	PriorityHigh,
	PriorityUrgent,
}

func (p TaskPriority) Valid() bool {
	return slices.Contains(TaskPriorities, p)
}

type Task struct {
	ID           string       `json:"id" validate:"required"`
	Title        string       `json:"title" validate:"required,max=255"`
	Description  string       `json:"description"`
	Status       TaskStatus   `json:"status" validate:"required,oneof=pending in_progress review completed cancelled"`
	Priority     TaskPriority `json:"priority" validate:"required,oneof=low medium high urgent"`
	Assignee     *string      `json:"assignee"`
	DueDate      *time.Time   `json:"due_date"`
	Tags         []string     `json:"tags" validate:"dive,required,max=64"`
	Details      string       `json:"details,omitempty"`
	TestStrategy string       `json:"test_strategy,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	Subtasks        []Subtask        `json:"subtasks" validate:"dive"`
	RequirementRefs []RequirementRef `json:"requirement_refs" validate:"dive"`
	Complexity      *ComplexityScore `json:"complexity,omitempty"`

	// DependsOn holds ids of dependencies where this task is the source,
	// Blocks the ids where it is the target. Both are maintained by the store.
	DependsOn []string `json:"depends_on"`
	Blocks    []string `json:"blocks"`
}

type Subtask struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Clone returns a deep copy. Stored tasks are never handed out directly.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Assignee != nil {
		a := *t.Assignee
		c.Assignee = &a
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.Complexity != nil {
		cs := *t.Complexity
		c.Complexity = &cs
	}
	c.Tags = cloneSlice(t.Tags)
	c.Subtasks = cloneSlice(t.Subtasks)
	c.RequirementRefs = cloneSlice(t.RequirementRefs)
	c.DependsOn = cloneSlice(t.DependsOn)
	c.Blocks = cloneSlice(t.Blocks)
	return &c
}

// SubtaskIndex returns the position of the subtask with the given id, or -1.
func (t *Task) SubtaskIndex(id string) int {
	return slices.IndexFunc(t.Subtasks, func(s Subtask) bool { return s.ID == id })
}

// RequirementRefIndex returns the position of the reference with the given id, or -1.
func (t *Task) RequirementRefIndex(id string) int {
	return slices.IndexFunc(t.RequirementRefs, func(r RequirementRef) bool { return r.ID == id })
}

// HasTag reports whether the task carries tag (case-insensitive).
func (t *Task) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return slices.Contains(t.Tags, tag)
}

// NormalizeTags lower-cases, trims, deduplicates and sorts tags so they
// behave as a set.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		out = append(out, tag)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ParseDueDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
// An empty string yields nil.
func ParseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateOnly} {
		if ts, err := time.Parse(layout, s); err == nil {
			ts = ts.UTC()
			return &ts, nil
		}
	}
	return nil, invalidArgument("malformed date %q: expected RFC 3339 or YYYY-MM-DD", s)
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
