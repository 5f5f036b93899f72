package server

import (
	"fmt"
	"net/http"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/graph"
	"github.com/ldi/metis/internal/requirements"
	"github.com/ldi/metis/internal/service"
	"github.com/ldi/metis/pkg/models"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeAPIJSON(w, http.StatusOK, map[string]any{
		"name":        "Metis",
		"description": "Task management service",
		"version":     Version,
		"status":      "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeAPIJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"component":   "metis",
		"version":     Version,
		"port":        s.port,
		"subscribers": s.hub.Subscribers(),
		"message":     "Metis is running normally",
	})
}

// tasks

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in service.TaskInput
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	task, err := s.svc.CreateTask(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, TaskResponse{Success: true, Task: task})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := service.ListTasksParams{
		Status:   models.TaskStatus(q.Get("status")),
		Priority: models.TaskPriority(q.Get("priority")),
		Assignee: q.Get("assignee"),
		Tag:      q.Get("tag"),
		Search:   q.Get("search"),
	}
	var err error
	if params.Page, err = queryInt(r, "page"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if params.PageSize, err = queryInt(r, "page_size"); err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.svc.ListTasks(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, TaskListResponse{
		Success:    true,
		Tasks:      page.Tasks,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages(),
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, TaskResponse{Success: true, Task: task})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var upd service.TaskUpdate
	if err := decodeBody(r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	task, err := s.svc.UpdateTask(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, TaskResponse{Success: true, Task: task})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.DeleteTask(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, MessageResponse{Success: true, Message: fmt.Sprintf("Task %s deleted", id)})
}

// subtasks

func (s *Server) handleAddSubtask(w http.ResponseWriter, r *http.Request) {
	var in service.SubtaskInput
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	taskID := r.PathValue("id")
	sub, err := s.svc.AddSubtask(r.Context(), taskID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, SubtaskResponse{Success: true, TaskID: taskID, Subtask: sub})
}

func (s *Server) handleUpdateSubtask(w http.ResponseWriter, r *http.Request) {
	var upd service.SubtaskUpdate
	if err := decodeBody(r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	taskID := r.PathValue("id")
	sub, err := s.svc.UpdateSubtask(r.Context(), taskID, r.PathValue("sid"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, SubtaskResponse{Success: true, TaskID: taskID, Subtask: sub})
}

func (s *Server) handleRemoveSubtask(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	if err := s.svc.RemoveSubtask(r.Context(), r.PathValue("id"), sid); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, MessageResponse{Success: true, Message: fmt.Sprintf("Subtask %s removed", sid)})
}

// requirement references

func (s *Server) handleAddRequirementRef(w http.ResponseWriter, r *http.Request) {
	var in service.RequirementRefInput
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	taskID := r.PathValue("id")
	ref, err := s.svc.AddRequirementRef(r.Context(), taskID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, RequirementRefResponse{Success: true, TaskID: taskID, RequirementRef: ref})
}

func (s *Server) handleUpdateRequirementRef(w http.ResponseWriter, r *http.Request) {
	var upd service.RequirementRefUpdate
	if err := decodeBody(r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	taskID := r.PathValue("id")
	ref, err := s.svc.UpdateRequirementRef(r.Context(), taskID, r.PathValue("rid"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, RequirementRefResponse{Success: true, TaskID: taskID, RequirementRef: ref})
}

func (s *Server) handleRemoveRequirementRef(w http.ResponseWriter, r *http.Request) {
	rid := r.PathValue("rid")
	if err := s.svc.RemoveRequirementRef(r.Context(), r.PathValue("id"), rid); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, MessageResponse{Success: true, Message: fmt.Sprintf("Requirement reference %s removed", rid)})
}

// analysis

func (s *Server) handleAnalyzeComplexity(w http.ResponseWriter, r *http.Request) {
	var req ComplexityRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	taskID := r.PathValue("id")
	score, err := s.svc.AnalyzeComplexity(r.Context(), taskID, req.Factors)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, ComplexityResponse{Success: true, TaskID: taskID, Complexity: score})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Statistics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, StatisticsResponse{Success: true, Statistics: st})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.svc.TopologicalOrder(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	edges, err := s.svc.ListDependencies(r.Context(), graph.DependencyFilter{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, GraphResponse{Success: true, Nodes: nodes, Edges: edges})
}

// dependencies

func (s *Server) handleCreateDependency(w http.ResponseWriter, r *http.Request) {
	var in service.DependencyInput
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	dep, err := s.svc.CreateDependency(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, DependencyResponse{Success: true, Dependency: dep})
}

func (s *Server) handleListDependencies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.listDependencies(w, r, graph.DependencyFilter{
		TaskID: q.Get("task_id"),
		Type:   models.DependencyType(q.Get("dependency_type")),
	})
}

func (s *Server) handleTaskDependencies(w http.ResponseWriter, r *http.Request) {
	s.listDependencies(w, r, graph.DependencyFilter{TaskID: r.PathValue("id")})
}

func (s *Server) listDependencies(w http.ResponseWriter, r *http.Request, f graph.DependencyFilter) {
	deps, err := s.svc.ListDependencies(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if deps == nil {
		deps = []*models.Dependency{}
	}
	writeAPIJSON(w, http.StatusOK, DependencyListResponse{Success: true, Dependencies: deps, Total: len(deps)})
}

func (s *Server) handleGetDependency(w http.ResponseWriter, r *http.Request) {
	dep, err := s.svc.GetDependency(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, DependencyResponse{Success: true, Dependency: dep})
}

func (s *Server) handleUpdateDependency(w http.ResponseWriter, r *http.Request) {
	var upd service.DependencyUpdate
	if err := decodeBody(r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	dep, err := s.svc.UpdateDependency(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, DependencyResponse{Success: true, Dependency: dep})
}

func (s *Server) handleDeleteDependency(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.DeleteDependency(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, MessageResponse{Success: true, Message: fmt.Sprintf("Dependency %s deleted", id)})
}

// telos

func (s *Server) gateway() (*requirements.Gateway, error) {
	if s.reqs == nil {
		return nil, errors.Upstream("requirement tracker is not configured", nil)
	}
	return s.reqs, nil
}

func (s *Server) handleSearchRequirements(w http.ResponseWriter, r *http.Request) {
	gw, err := s.gateway()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	p := requirements.SearchParams{
		Query:    q.Get("query"),
		Status:   q.Get("status"),
		Category: q.Get("category"),
	}
	if p.Page, err = queryInt(r, "page"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.PageSize, err = queryInt(r, "page_size"); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := gw.SearchRequirements(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, RequirementSearchResponse{
		Success:      true,
		Requirements: res.Requirements,
		Total:        res.Total,
		Page:         res.Page,
		PageSize:     res.PageSize,
	})
}

func (s *Server) handleImportRequirement(w http.ResponseWriter, r *http.Request) {
	gw, err := s.gateway()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ImportRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	task, err := gw.ImportRequirementAsTask(r.Context(), r.PathValue("rid"), req.Priority, req.Assignee)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, TaskResponse{Success: true, Task: task})
}

func (s *Server) handleAddTelosReference(w http.ResponseWriter, r *http.Request) {
	gw, err := s.gateway()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ReferenceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	taskID := r.PathValue("id")
	ref, task, err := gw.ImportRequirementReference(r.Context(), r.PathValue("rid"), taskID, req.RelationshipType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, RequirementRefResponse{Success: true, TaskID: taskID, RequirementRef: ref, Task: task})
}
