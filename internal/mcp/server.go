package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/graph"
	"github.com/ldi/metis/internal/requirements"
	"github.com/ldi/metis/internal/service"
	"github.com/ldi/metis/pkg/models"
)

const (
	ServerName    = "Metis"
	ServerVersion = "0.1.0"
)

func enumOf[T ~string](values []T) mcp.PropertyOption {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return mcp.Enum(out...)
}

// NewServer creates a new MCP server. reqs may be nil, in which case the
// requirement tools report the tracker as unavailable.
func NewServer(svc *service.Service, reqs *requirements.Gateway) *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion)
	h := &handlers{svc: svc, reqs: reqs}

	// Task Management
	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a new task."),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("status", mcp.Description("Initial status (defaults to pending)"), enumOf(models.TaskStatuses)),
		mcp.WithString("priority", mcp.Description("Priority (defaults to medium)"), enumOf(models.TaskPriorities)),
		mcp.WithString("assignee", mcp.Description("Assignee")),
		mcp.WithString("due_date", mcp.Description("Due date, RFC 3339 or YYYY-MM-DD")),
		mcp.WithArray("tags", mcp.Description("Tags"), mcp.WithStringItems()),
		mcp.WithString("details", mcp.Description("Implementation details")),
		mcp.WithString("test_strategy", mcp.Description("How the task will be verified")),
		mcp.WithArray("subtasks", mcp.Description("Subtask titles"), mcp.WithStringItems()),
	), h.createTask)

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task by id."),
		mcp.WithString("task_id", mcp.Description("Task id"), mcp.Required()),
	), h.getTask)

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update an existing task. Only the given fields change."),
		mcp.WithString("task_id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description("New status"), enumOf(models.TaskStatuses)),
		mcp.WithString("priority", mcp.Description("New priority"), enumOf(models.TaskPriorities)),
		mcp.WithString("assignee", mcp.Description("New assignee (empty string clears it)")),
		mcp.WithString("due_date", mcp.Description("New due date (empty string clears it)")),
		mcp.WithArray("tags", mcp.Description("Replacement tags"), mcp.WithStringItems()),
		mcp.WithString("details", mcp.Description("New details")),
		mcp.WithString("test_strategy", mcp.Description("New test strategy")),
	), h.updateTask)

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task (cascades to its dependencies)."),
		mcp.WithString("task_id", mcp.Description("Task id"), mcp.Required()),
	), h.deleteTask)

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks with optional filters."),
		mcp.WithString("status", mcp.Description("Filter by status"), enumOf(models.TaskStatuses)),
		mcp.WithString("priority", mcp.Description("Filter by priority"), enumOf(models.TaskPriorities)),
		mcp.WithString("assignee", mcp.Description("Filter by assignee")),
		mcp.WithString("tag", mcp.Description("Filter by tag")),
		mcp.WithString("search", mcp.Description("Search title and description")),
		mcp.WithNumber("page", mcp.Description("Page number (from 1)")),
		mcp.WithNumber("page_size", mcp.Description("Page size (1-100, default 50)")),
	), h.listTasks)

	// Subtasks
	s.AddTool(mcp.NewTool("add_subtask",
		mcp.WithDescription("Add a subtask to a task."),
		mcp.WithString("task_id", mcp.Description("Parent task id"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Subtask title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Subtask description")),
	), h.addSubtask)

	s.AddTool(mcp.NewTool("update_subtask",
		mcp.WithDescription("Update a subtask."),
		mcp.WithString("task_id", mcp.Description("Parent task id"), mcp.Required()),
		mcp.WithString("subtask_id", mcp.Description("Subtask id"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithBoolean("completed", mcp.Description("Completion flag")),
	), h.updateSubtask)

	s.AddTool(mcp.NewTool("remove_subtask",
		mcp.WithDescription("Remove a subtask."),
		mcp.WithString("task_id", mcp.Description("Parent task id"), mcp.Required()),
		mcp.WithString("subtask_id", mcp.Description("Subtask id"), mcp.Required()),
	), h.removeSubtask)

	// Requirement references
	s.AddTool(mcp.NewTool("add_requirement_ref",
		mcp.WithDescription("Reference an external requirement from a task."),
		mcp.WithString("task_id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("requirement_id", mcp.Description("External requirement id"), mcp.Required()),
		mcp.WithString("relationship_type", mcp.Description("Relationship (defaults to implements)"), enumOf(models.RelationshipTypes)),
		mcp.WithString("snippet", mcp.Description("Cached excerpt of the requirement")),
	), h.addRequirementRef)

	s.AddTool(mcp.NewTool("remove_requirement_ref",
		mcp.WithDescription("Remove a requirement reference from a task."),
		mcp.WithString("task_id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("ref_id", mcp.Description("Reference id"), mcp.Required()),
	), h.removeRequirementRef)

	// Dependency Management
	s.AddTool(mcp.NewTool("create_dependency",
		mcp.WithDescription("Create a dependency between two tasks. depends_on and blocks edges may not form a cycle."),
		mcp.WithString("source_task_id", mcp.Description("Source task id"), mcp.Required()),
		mcp.WithString("target_task_id", mcp.Description("Target task id"), mcp.Required()),
		mcp.WithString("dependency_type", mcp.Description("Type (defaults to depends_on)"), enumOf(models.DependencyTypes)),
		mcp.WithString("description", mcp.Description("Why the dependency exists")),
	), h.createDependency)

	s.AddTool(mcp.NewTool("delete_dependency",
		mcp.WithDescription("Remove a dependency."),
		mcp.WithString("dependency_id", mcp.Description("Dependency id"), mcp.Required()),
	), h.deleteDependency)

	s.AddTool(mcp.NewTool("list_dependencies",
		mcp.WithDescription("List dependencies, optionally for one task or of one type."),
		mcp.WithString("task_id", mcp.Description("Only edges touching this task")),
		mcp.WithString("dependency_type", mcp.Description("Only edges of this type"), enumOf(models.DependencyTypes)),
	), h.listDependencies)

	// Analysis
	s.AddTool(mcp.NewTool("analyze_task_complexity",
		mcp.WithDescription("Score a task's complexity. Factors not given are derived from the task."),
		mcp.WithString("task_id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithNumber("technical_difficulty", mcp.Description("0-10"), mcp.Min(0), mcp.Max(10)),
		mcp.WithNumber("scope", mcp.Description("0-10"), mcp.Min(0), mcp.Max(10)),
		mcp.WithNumber("uncertainty", mcp.Description("0-10"), mcp.Min(0), mcp.Max(10)),
	), h.analyzeComplexity)

	s.AddTool(mcp.NewTool("get_task_statistics",
		mcp.WithDescription("Counts by status, priority and assignee plus the completion rate."),
	), h.statistics)

	s.AddTool(mcp.NewTool("get_graph_json",
		mcp.WithDescription("Get every task in dependency order together with all edges."),
	), h.graphJSON)

	// Requirements
	s.AddTool(mcp.NewTool("search_requirements",
		mcp.WithDescription("Search the external requirement tracker."),
		mcp.WithString("query", mcp.Description("Search text")),
		mcp.WithString("status", mcp.Description("Requirement status")),
		mcp.WithString("category", mcp.Description("Requirement category")),
		mcp.WithNumber("page", mcp.Description("Page number (from 1)")),
		mcp.WithNumber("page_size", mcp.Description("Page size (1-100, default 50)")),
	), h.searchRequirements)

	s.AddTool(mcp.NewTool("import_requirement",
		mcp.WithDescription("Import an external requirement. With task_id it is attached to that task as a reference, otherwise a new task is created from it."),
		mcp.WithString("requirement_id", mcp.Description("External requirement id"), mcp.Required()),
		mcp.WithString("task_id", mcp.Description("Existing task to reference the requirement from")),
		mcp.WithString("relationship_type", mcp.Description("Relationship for a reference (defaults to implements)"), enumOf(models.RelationshipTypes)),
		mcp.WithString("priority", mcp.Description("Priority override for a new task"), enumOf(models.TaskPriorities)),
		mcp.WithString("assignee", mcp.Description("Assignee for a new task")),
	), h.importRequirement)

	return s
}

// ServeIO runs the MCP server over in and out until in is exhausted or ctx
// ends. Transport errors go to logger, which must not write to out.
func ServeIO(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger *slog.Logger) error {
	stdio := server.NewStdioServer(s)
	if logger != nil {
		stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	}
	return stdio.Listen(ctx, in, out)
}

type handlers struct {
	svc  *service.Service
	reqs *requirements.Gateway
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// optString returns a pointer to the argument if the caller supplied it.
func optString(request mcp.CallToolRequest, key string) *string {
	v, ok := request.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func has(request mcp.CallToolRequest, key string) bool {
	_, ok := request.GetArguments()[key]
	return ok
}

func (h *handlers) createTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := service.TaskInput{
		Title:        mcp.ParseString(request, "title", ""),
		Description:  mcp.ParseString(request, "description", ""),
		Status:       models.TaskStatus(mcp.ParseString(request, "status", "")),
		Priority:     models.TaskPriority(mcp.ParseString(request, "priority", "")),
		Assignee:     optString(request, "assignee"),
		DueDate:      mcp.ParseString(request, "due_date", ""),
		Tags:         request.GetStringSlice("tags", nil),
		Details:      mcp.ParseString(request, "details", ""),
		TestStrategy: mcp.ParseString(request, "test_strategy", ""),
	}
	for _, title := range request.GetStringSlice("subtasks", nil) {
		in.Subtasks = append(in.Subtasks, service.SubtaskInput{Title: title})
	}

	task, err := h.svc.CreateTask(ctx, in)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(task)
}

func (h *handlers) getTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := h.svc.GetTask(ctx, mcp.ParseString(request, "task_id", ""))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(task)
}

func (h *handlers) updateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var upd service.TaskUpdate
	upd.Title = optString(request, "title")
	upd.Description = optString(request, "description")
	if v := optString(request, "status"); v != nil {
		st := models.TaskStatus(*v)
		upd.Status = &st
	}
	if v := optString(request, "priority"); v != nil {
		p := models.TaskPriority(*v)
		upd.Priority = &p
	}
	if v := optString(request, "assignee"); v != nil {
		if *v == "" {
			upd.ClearAssignee = true
		} else {
			upd.Assignee = v
		}
	}
	if v := optString(request, "due_date"); v != nil {
		if *v == "" {
			upd.ClearDueDate = true
		} else {
			upd.DueDate = v
		}
	}
	if has(request, "tags") {
		tags := request.GetStringSlice("tags", []string{})
		upd.Tags = &tags
	}
	upd.Details = optString(request, "details")
	upd.TestStrategy = optString(request, "test_strategy")

	task, err := h.svc.UpdateTask(ctx, mcp.ParseString(request, "task_id", ""), upd)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(task)
}

func (h *handlers) deleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "task_id", "")
	if err := h.svc.DeleteTask(ctx, id); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s deleted", id)), nil
}

func (h *handlers) listTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := h.svc.ListTasks(ctx, service.ListTasksParams{
		Status:   models.TaskStatus(mcp.ParseString(request, "status", "")),
		Priority: models.TaskPriority(mcp.ParseString(request, "priority", "")),
		Assignee: mcp.ParseString(request, "assignee", ""),
		Tag:      mcp.ParseString(request, "tag", ""),
		Search:   mcp.ParseString(request, "search", ""),
		Page:     mcp.ParseInt(request, "page", 0),
		PageSize: mcp.ParseInt(request, "page_size", 0),
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{
		"tasks":       page.Tasks,
		"total":       page.Total,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_pages": page.TotalPages(),
	})
}

func (h *handlers) addSubtask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sub, err := h.svc.AddSubtask(ctx, mcp.ParseString(request, "task_id", ""), service.SubtaskInput{
		Title:       mcp.ParseString(request, "title", ""),
		Description: mcp.ParseString(request, "description", ""),
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(sub)
}

func (h *handlers) updateSubtask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	upd := service.SubtaskUpdate{
		Title:       optString(request, "title"),
		Description: optString(request, "description"),
	}
	if has(request, "completed") {
		done := mcp.ParseBoolean(request, "completed", false)
		upd.Completed = &done
	}
	sub, err := h.svc.UpdateSubtask(ctx,
		mcp.ParseString(request, "task_id", ""),
		mcp.ParseString(request, "subtask_id", ""),
		upd,
	)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(sub)
}

func (h *handlers) removeSubtask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sid := mcp.ParseString(request, "subtask_id", "")
	if err := h.svc.RemoveSubtask(ctx, mcp.ParseString(request, "task_id", ""), sid); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Subtask %s removed", sid)), nil
}

func (h *handlers) addRequirementRef(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := h.svc.AddRequirementRef(ctx, mcp.ParseString(request, "task_id", ""), service.RequirementRefInput{
		RequirementID:    mcp.ParseString(request, "requirement_id", ""),
		RelationshipType: models.RelationshipType(mcp.ParseString(request, "relationship_type", "")),
		Snippet:          optString(request, "snippet"),
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(ref)
}

func (h *handlers) removeRequirementRef(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	refID := mcp.ParseString(request, "ref_id", "")
	if err := h.svc.RemoveRequirementRef(ctx, mcp.ParseString(request, "task_id", ""), refID); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Requirement reference %s removed", refID)), nil
}

func (h *handlers) createDependency(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dep, err := h.svc.CreateDependency(ctx, service.DependencyInput{
		SourceTaskID: mcp.ParseString(request, "source_task_id", ""),
		TargetTaskID: mcp.ParseString(request, "target_task_id", ""),
		Type:         models.DependencyType(mcp.ParseString(request, "dependency_type", "")),
		Description:  optString(request, "description"),
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(dep)
}

func (h *handlers) deleteDependency(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "dependency_id", "")
	if err := h.svc.DeleteDependency(ctx, id); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Dependency %s deleted", id)), nil
}

func (h *handlers) listDependencies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deps, err := h.svc.ListDependencies(ctx, graph.DependencyFilter{
		TaskID: mcp.ParseString(request, "task_id", ""),
		Type:   models.DependencyType(mcp.ParseString(request, "dependency_type", "")),
	})
	if err != nil {
		return toolError(err)
	}
	if deps == nil {
		deps = []*models.Dependency{}
	}
	return jsonResult(map[string]any{"dependencies": deps, "total": len(deps)})
}

func (h *handlers) analyzeComplexity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var factors *models.ComplexityFactors
	if has(request, "technical_difficulty") || has(request, "scope") || has(request, "uncertainty") {
		factors = &models.ComplexityFactors{
			TechnicalDifficulty: mcp.ParseFloat64(request, "technical_difficulty", 0),
			Scope:               mcp.ParseFloat64(request, "scope", 0),
			Uncertainty:         mcp.ParseFloat64(request, "uncertainty", 0),
		}
	}
	score, err := h.svc.AnalyzeComplexity(ctx, mcp.ParseString(request, "task_id", ""), factors)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(score)
}

func (h *handlers) statistics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := h.svc.Statistics(ctx)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(st)
}

func (h *handlers) graphJSON(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodes, err := h.svc.TopologicalOrder(ctx)
	if err != nil {
		return toolError(err)
	}
	edges, err := h.svc.ListDependencies(ctx, graph.DependencyFilter{})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{"nodes": nodes, "edges": edges})
}

func (h *handlers) gateway() (*requirements.Gateway, error) {
	if h.reqs == nil {
		return nil, errors.Upstream("requirement tracker is not configured", nil)
	}
	return h.reqs, nil
}

func (h *handlers) searchRequirements(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gw, err := h.gateway()
	if err != nil {
		return toolError(err)
	}
	res, err := gw.SearchRequirements(ctx, requirements.SearchParams{
		Query:    mcp.ParseString(request, "query", ""),
		Status:   mcp.ParseString(request, "status", ""),
		Category: mcp.ParseString(request, "category", ""),
		Page:     mcp.ParseInt(request, "page", 0),
		PageSize: mcp.ParseInt(request, "page_size", 0),
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (h *handlers) importRequirement(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gw, err := h.gateway()
	if err != nil {
		return toolError(err)
	}
	reqID := mcp.ParseString(request, "requirement_id", "")

	if taskID := mcp.ParseString(request, "task_id", ""); taskID != "" {
		rel := models.RelationshipType(mcp.ParseString(request, "relationship_type", ""))
		ref, task, err := gw.ImportRequirementReference(ctx, reqID, taskID, rel)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(map[string]any{"requirement_ref": ref, "task": task})
	}

	task, err := gw.ImportRequirementAsTask(ctx, reqID,
		models.TaskPriority(mcp.ParseString(request, "priority", "")),
		optString(request, "assignee"),
	)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(task)
}
