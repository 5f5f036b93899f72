package graph

import (
	"strings"

	"github.com/ldi/metis/pkg/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// TaskFilter selects tasks. Zero-valued fields match everything.
type TaskFilter struct {
	Status   models.TaskStatus
	Priority models.TaskPriority
	Assignee string
	Tag      string
	// Search is a case-insensitive substring match over title and description.
	Search string
}

func (f TaskFilter) Match(t *models.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Assignee != "" && (t.Assignee == nil || *t.Assignee != f.Assignee) {
		return false
	}
	if f.Tag != "" && !t.HasTag(f.Tag) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), q) &&
			!strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	return true
}

// DependencyFilter selects edges. TaskID matches either endpoint.
type DependencyFilter struct {
	TaskID string
	Type   models.DependencyType
}

func (f DependencyFilter) Match(d *models.Dependency) bool {
	if f.TaskID != "" && !d.Touches(f.TaskID) {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	return true
}

type TaskPage struct {
	Tasks    []*models.Task `json:"tasks"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// TotalPages is the number of pages needed to show Total tasks.
func (p TaskPage) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}
