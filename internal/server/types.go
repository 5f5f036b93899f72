package server

import (
	"github.com/ldi/metis/internal/requirements"
	"github.com/ldi/metis/internal/service"
	"github.com/ldi/metis/pkg/models"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

// MessageResponse acknowledges an operation without a payload.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type TaskResponse struct {
	Success bool         `json:"success"`
	Task    *models.Task `json:"task"`
}

type TaskListResponse struct {
	Success    bool           `json:"success"`
	Tasks      []*models.Task `json:"tasks"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

type SubtaskResponse struct {
	Success bool            `json:"success"`
	TaskID  string          `json:"task_id"`
	Subtask *models.Subtask `json:"subtask"`
}

type RequirementRefResponse struct {
	Success        bool                   `json:"success"`
	TaskID         string                 `json:"task_id"`
	RequirementRef *models.RequirementRef `json:"requirement_ref"`
	Task           *models.Task           `json:"task,omitempty"`
}

type ComplexityResponse struct {
	Success    bool                    `json:"success"`
	TaskID     string                  `json:"task_id"`
	Complexity *models.ComplexityScore `json:"complexity"`
}

type StatisticsResponse struct {
	Success    bool               `json:"success"`
	Statistics service.Statistics `json:"statistics"`
}

type DependencyResponse struct {
	Success    bool               `json:"success"`
	Dependency *models.Dependency `json:"dependency"`
}

type DependencyListResponse struct {
	Success      bool                 `json:"success"`
	Dependencies []*models.Dependency `json:"dependencies"`
	Total        int                  `json:"total"`
}

// GraphResponse lists tasks in dependency order with every edge, for
// rendering the graph.
type GraphResponse struct {
	Success bool                 `json:"success"`
	Nodes   []*models.Task       `json:"nodes"`
	Edges   []*models.Dependency `json:"edges"`
}

type RequirementSearchResponse struct {
	Success      bool                       `json:"success"`
	Requirements []requirements.Requirement `json:"requirements"`
	Total        int                        `json:"total"`
	Page         int                        `json:"page"`
	PageSize     int                        `json:"page_size"`
}

// ImportRequest carries the optional overrides for a requirement import.
type ImportRequest struct {
	Priority models.TaskPriority `json:"priority"`
	Assignee *string             `json:"assignee"`
}

// ReferenceRequest carries the optional relationship for a Telos reference.
type ReferenceRequest struct {
	RelationshipType models.RelationshipType `json:"relationship_type"`
}

type ComplexityRequest struct {
	Factors *models.ComplexityFactors `json:"factors"`
}
