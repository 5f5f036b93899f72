package service

import (
	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/graph"
	"github.com/ldi/metis/pkg/models"
)

// TaskInput describes a new task. Empty Status and Priority default to
// pending and medium.
type TaskInput struct {
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Status          models.TaskStatus     `json:"status"`
	Priority        models.TaskPriority   `json:"priority"`
	Assignee        *string               `json:"assignee"`
	DueDate         string                `json:"due_date"`
	Tags            []string              `json:"tags"`
	Details         string                `json:"details"`
	TestStrategy    string                `json:"test_strategy"`
	Subtasks        []SubtaskInput        `json:"subtasks"`
	RequirementRefs []RequirementRefInput `json:"requirement_refs"`
}

// TaskUpdate is a partial update: nil fields are left unchanged.
type TaskUpdate struct {
	Title         *string              `json:"title"`
	Description   *string              `json:"description"`
	Status        *models.TaskStatus   `json:"status"`
	Priority      *models.TaskPriority `json:"priority"`
	Assignee      *string              `json:"assignee"`
	ClearAssignee bool                 `json:"clear_assignee"`
	DueDate       *string              `json:"due_date"`
	ClearDueDate  bool                 `json:"clear_due_date"`
	Tags          *[]string            `json:"tags"`
	Details       *string              `json:"details"`
	TestStrategy  *string              `json:"test_strategy"`
}

type SubtaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

type SubtaskUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// RequirementRefInput attaches an external requirement. An empty
// RelationshipType defaults to implements.
type RequirementRefInput struct {
	RequirementID    string                  `json:"requirement_id"`
	RelationshipType models.RelationshipType `json:"relationship_type"`
	Snippet          *string                 `json:"snippet"`
}

type RequirementRefUpdate struct {
	RelationshipType *models.RelationshipType `json:"relationship_type"`
	Snippet          *string                  `json:"snippet"`
}

type DependencyInput struct {
	SourceTaskID string                `json:"source_task_id"`
	TargetTaskID string                `json:"target_task_id"`
	Type         models.DependencyType `json:"dependency_type"`
	Description  *string               `json:"description"`
}

type DependencyUpdate struct {
	Type        *models.DependencyType `json:"dependency_type"`
	Description *string                `json:"description"`
}

// ListTasksParams filters and pages a task listing. Zero Page and PageSize
// mean the first page of graph.DefaultPageSize tasks.
type ListTasksParams struct {
	Status   models.TaskStatus   `json:"status"`
	Priority models.TaskPriority `json:"priority"`
	Assignee string              `json:"assignee"`
	Tag      string              `json:"tag"`
	Search   string              `json:"search"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

func (p ListTasksParams) filter() (graph.TaskFilter, error) {
	if p.Status != "" && !p.Status.Valid() {
		return graph.TaskFilter{}, errors.InvalidArgumentf("unknown status %q", p.Status)
	}
	if p.Priority != "" && !p.Priority.Valid() {
		return graph.TaskFilter{}, errors.InvalidArgumentf("unknown priority %q", p.Priority)
	}
	return graph.TaskFilter{
		Status:   p.Status,
		Priority: p.Priority,
		Assignee: p.Assignee,
		Tag:      p.Tag,
		Search:   p.Search,
	}, nil
}

func (p ListTasksParams) paging() (page, size int) {
	page, size = p.Page, p.PageSize
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = graph.DefaultPageSize
	}
	return page, size
}
