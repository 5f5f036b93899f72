package requirements

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/service"
	"github.com/ldi/metis/pkg/models"
)

// Tasks is the part of the task service the gateway writes through.
type Tasks interface {
	CreateTask(ctx context.Context, in service.TaskInput) (*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	AddRequirementRef(ctx context.Context, taskID string, in service.RequirementRefInput) (*models.RequirementRef, error)
}

type Gateway struct {
	upstream Upstream
	tasks    Tasks
	logger   *slog.Logger
}

func NewGateway(upstream Upstream, tasks Tasks, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{upstream: upstream, tasks: tasks, logger: logger}
}

// SearchRequirements forwards the query upstream after checking paging.
func (g *Gateway) SearchRequirements(ctx context.Context, p SearchParams) (SearchResult, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	if p.Page < 1 {
		return SearchResult{}, errors.InvalidArgumentf("page must be >= 1, got %d", p.Page)
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		return SearchResult{}, errors.InvalidArgumentf("page_size must be between 1 and %d, got %d", MaxPageSize, p.PageSize)
	}

	res, err := g.upstream.Search(ctx, p)
	if err != nil {
		return SearchResult{}, err
	}
	if res.Requirements == nil {
		res.Requirements = []Requirement{}
	}
	res.Page, res.PageSize = p.Page, p.PageSize
	return res, nil
}

// ImportRequirementAsTask creates a task from a requirement. A non-empty
// priority overrides the requirement's own; a nil assignee leaves the task
// unassigned. The new task carries an implements reference back to the
// requirement.
func (g *Gateway) ImportRequirementAsTask(ctx context.Context, reqID string, priority models.TaskPriority, assignee *string) (*models.Task, error) {
	if strings.TrimSpace(reqID) == "" {
		return nil, errors.InvalidArgumentf("requirement_id is required")
	}
	if priority != "" && !priority.Valid() {
		return nil, errors.InvalidArgumentf("unknown priority %q", priority)
	}

	req, err := g.upstream.Get(ctx, reqID)
	if err != nil {
		return nil, err
	}

	if priority == "" {
		if p := models.TaskPriority(strings.ToLower(req.Priority)); p.Valid() {
			priority = p
		}
	}
	title := req.Title
	if strings.TrimSpace(title) == "" {
		title = "Requirement " + req.ID
	}

	in := service.TaskInput{
		Title:       title,
		Description: req.Description,
		Priority:    priority,
		Assignee:    assignee,
		Tags:        req.Tags,
		RequirementRefs: []service.RequirementRefInput{{
			RequirementID:    req.ID,
			RelationshipType: models.RelationshipImplements,
			Snippet:          snippet(req),
		}},
	}
	task, err := g.tasks.CreateTask(ctx, in)
	if err != nil {
		return nil, err
	}
	g.logger.Info("imported requirement as task", "requirement_id", req.ID, "task_id", task.ID)
	return task, nil
}

// ImportRequirementReference attaches a reference to an existing task and
// returns the task as it stands afterwards. An empty relationship means
// implements.
func (g *Gateway) ImportRequirementReference(ctx context.Context, reqID, taskID string, rel models.RelationshipType) (*models.RequirementRef, *models.Task, error) {
	if rel != "" && !rel.Valid() {
		return nil, nil, errors.InvalidArgumentf("unknown relationship type %q", rel)
	}
	if _, err := g.tasks.GetTask(ctx, taskID); err != nil {
		return nil, nil, err
	}

	req, err := g.upstream.Get(ctx, reqID)
	if err != nil {
		return nil, nil, err
	}

	ref, err := g.tasks.AddRequirementRef(ctx, taskID, service.RequirementRefInput{
		RequirementID:    req.ID,
		RelationshipType: rel,
		Snippet:          snippet(req),
	})
	if err != nil {
		return nil, nil, err
	}
	task, err := g.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	return ref, task, nil
}

func snippet(r *Requirement) *string {
	if r.Title == "" {
		return nil
	}
	s := r.Title
	return &s
}
